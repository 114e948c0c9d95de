package beavy

import (
	"context"

	"github.com/emberpc/gatecore/pkg/gatecore/gate"
	"github.com/emberpc/gatecore/pkg/gatecore/logging"
	"github.com/emberpc/gatecore/pkg/gatecore/provider"
	"github.com/emberpc/gatecore/pkg/gatecore/wire"
)

// INVGate implements Boolean complement: exactly one
// party (IsMyJob) flips its secret share; everyone else's share, and the
// public share, pass through unchanged. When this party isn't the
// designated one, the input wire is reused as the output rather than
// re-allocated.
type INVGate struct {
	gate.Base
	prov  *provider.Context
	in    *wire.BooleanBEAVY
	out   *wire.BooleanBEAVY
	isJob bool
}

// NewINVGate constructs a complement gate over in.
func NewINVGate(prov *provider.Context, in *wire.BooleanBEAVY) *INVGate {
	gateID := prov.NextGateID()
	isJob := prov.IsMyJob(gateID)
	out := in
	if isJob {
		out = wire.NewBooleanBEAVY(in.NumSimd())
	}
	return &INVGate{
		Base:  gate.Base{GateID: gateID},
		prov:  prov,
		in:    in,
		out:   out,
		isJob: isJob,
	}
}

// Output returns the produced wire.
func (g *INVGate) Output() *wire.BooleanBEAVY { return g.out }

// EvaluateSetup implements gate.Gate.
func (g *INVGate) EvaluateSetup(ctx context.Context) error {
	verbose := g.prov.Config().VerboseDebug
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "setup", "start")
	if !g.isJob {
		err := g.in.WaitSetup(ctx)
		gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "setup", "end")
		return err
	}
	if err := g.in.WaitSetup(ctx); err != nil {
		return err
	}
	g.out.SetSecretShare(g.GateID, g.in.SecretShare().Not())
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "setup", "end", logging.Redacted("secret_share"))
	return nil
}

// EvaluateOnline implements gate.Gate.
func (g *INVGate) EvaluateOnline(ctx context.Context) error {
	verbose := g.prov.Config().VerboseDebug
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "online", "start")
	if !g.isJob {
		err := g.in.WaitOnline(ctx)
		gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "online", "end")
		return err
	}
	if err := g.in.WaitOnline(ctx); err != nil {
		return err
	}
	g.out.SetPublicShare(g.GateID, g.in.PublicShare().Clone())
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "online", "end")
	return nil
}
