package bmr

import (
	"context"

	"github.com/emberpc/gatecore/pkg/gatecore/gate"
	"github.com/emberpc/gatecore/pkg/gatecore/logging"
	"github.com/emberpc/gatecore/pkg/gatecore/wire"
)

// INVGate implements Boolean complement. Key
// material passes through unchanged (correctness is carried by the
// permutation share, not by the key labels, per this package's doc
// comment); exactly one designated party (IsMyJob) flips its own
// permutation-bit share.
type INVGate struct {
	gate.Base
	bp    *Provider
	in    *wire.BMR
	out   *wire.BMR
	isJob bool
}

// NewINVGate constructs a complement gate over in.
func NewINVGate(bp *Provider, in *wire.BMR) *INVGate {
	gateID := bp.Context().NextGateID()
	return &INVGate{
		Base:  gate.Base{GateID: gateID},
		bp:    bp,
		in:    in,
		out:   wire.NewBMR(in.NumSimd(), bp.Kappa()),
		isJob: bp.Context().IsMyJob(gateID),
	}
}

// Output returns the produced wire.
func (g *INVGate) Output() *wire.BMR { return g.out }

// EvaluateSetup implements gate.Gate.
func (g *INVGate) EvaluateSetup(ctx context.Context) error {
	prov := g.bp.Context()
	verbose := prov.Config().VerboseDebug
	gate.Trace(ctx, prov.Logger(), verbose, g.GateID, "setup", "start")
	if err := g.in.WaitSetup(ctx); err != nil {
		return err
	}
	keys0, keys1 := g.in.Keys()
	lambda := g.in.PermutationShare().Clone()
	if g.isJob {
		lambda = lambda.Not()
	}
	g.out.SetGarbling(g.GateID, lambda, keys0, keys1)
	gate.Trace(ctx, prov.Logger(), verbose, g.GateID, "setup", "end", logging.Redacted("wire_keys"))
	return nil
}

// EvaluateOnline implements gate.Gate.
func (g *INVGate) EvaluateOnline(ctx context.Context) error {
	prov := g.bp.Context()
	verbose := prov.Config().VerboseDebug
	gate.Trace(ctx, prov.Logger(), verbose, g.GateID, "online", "start")
	if err := g.in.WaitOnline(ctx); err != nil {
		return err
	}
	g.out.SetPublicValue(g.GateID, g.in.PublicValue().Clone())
	gate.Trace(ctx, prov.Logger(), verbose, g.GateID, "online", "end")
	return nil
}
