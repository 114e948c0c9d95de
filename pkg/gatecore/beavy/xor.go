package beavy

import (
	"context"

	"github.com/emberpc/gatecore/pkg/gatecore/gate"
	"github.com/emberpc/gatecore/pkg/gatecore/logging"
	"github.com/emberpc/gatecore/pkg/gatecore/provider"
	"github.com/emberpc/gatecore/pkg/gatecore/wire"
)

// XORGate implements the free-XOR BEAVY gate: both
// shares are XORed componentwise, in setup and online respectively, with no
// interaction.
type XORGate struct {
	gate.Base
	prov *provider.Context
	a, b *wire.BooleanBEAVY
	out  *wire.BooleanBEAVY
}

// NewXORGate constructs a free XOR gate over a and b, which must carry the
// same lane count.
func NewXORGate(prov *provider.Context, a, b *wire.BooleanBEAVY) *XORGate {
	if a.NumSimd() != b.NumSimd() {
		panic("beavy: XOR operand lane count mismatch")
	}
	return &XORGate{
		Base: gate.Base{GateID: prov.NextGateID()},
		prov: prov,
		a:    a,
		b:    b,
		out:  wire.NewBooleanBEAVY(a.NumSimd()),
	}
}

// Output returns the produced wire.
func (g *XORGate) Output() *wire.BooleanBEAVY { return g.out }

// EvaluateSetup implements gate.Gate.
func (g *XORGate) EvaluateSetup(ctx context.Context) error {
	verbose := g.prov.Config().VerboseDebug
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "setup", "start")
	if err := g.a.WaitSetup(ctx); err != nil {
		return err
	}
	if err := g.b.WaitSetup(ctx); err != nil {
		return err
	}
	g.out.SetSecretShare(g.GateID, g.a.SecretShare().Xor(g.b.SecretShare()))
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "setup", "end", logging.Redacted("secret_share"))
	return nil
}

// EvaluateOnline implements gate.Gate.
func (g *XORGate) EvaluateOnline(ctx context.Context) error {
	verbose := g.prov.Config().VerboseDebug
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "online", "start")
	if err := g.a.WaitOnline(ctx); err != nil {
		return err
	}
	if err := g.b.WaitOnline(ctx); err != nil {
		return err
	}
	g.out.SetPublicShare(g.GateID, g.a.PublicShare().Xor(g.b.PublicShare()))
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "online", "end")
	return nil
}
