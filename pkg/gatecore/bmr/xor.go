package bmr

import (
	"context"

	"github.com/emberpc/gatecore/pkg/gatecore/gate"
	"github.com/emberpc/gatecore/pkg/gatecore/logging"
	"github.com/emberpc/gatecore/pkg/gatecore/transport"
	"github.com/emberpc/gatecore/pkg/gatecore/wire"
)

// XORGate implements free-XOR: every party's own
// key pair for the output wire is the XOR of the two input wires' key
// pairs, requiring no communication because every party already knows
// every other party's broadcasted key material and Delta offsets cancel
// symmetrically (this package's doc comment explains the algebra).
type XORGate struct {
	gate.Base
	bp   *Provider
	a, b *wire.BMR
	out  *wire.BMR
}

// NewXORGate constructs a free XOR gate over a and b.
func NewXORGate(bp *Provider, a, b *wire.BMR) *XORGate {
	if a.NumSimd() != b.NumSimd() {
		panic("bmr: XOR operand lane count mismatch")
	}
	return &XORGate{
		Base: gate.Base{GateID: bp.Context().NextGateID()},
		bp:   bp,
		a:    a,
		b:    b,
		out:  wire.NewBMR(a.NumSimd(), bp.Kappa()),
	}
}

// Output returns the produced wire.
func (g *XORGate) Output() *wire.BMR { return g.out }

// EvaluateSetup implements gate.Gate.
func (g *XORGate) EvaluateSetup(ctx context.Context) error {
	prov := g.bp.Context()
	verbose := prov.Config().VerboseDebug
	gate.Trace(ctx, prov.Logger(), verbose, g.GateID, "setup", "start")
	if err := g.a.WaitSetup(ctx); err != nil {
		return err
	}
	if err := g.b.WaitSetup(ctx); err != nil {
		return err
	}
	aKeys0, aKeys1 := g.a.Keys()
	bKeys0, _ := g.b.Keys()
	numSimd := g.a.NumSimd()
	keys0 := make([]map[transport.PartyID][]byte, numSimd)
	keys1 := make([]map[transport.PartyID][]byte, numSimd)
	for lane := 0; lane < numSimd; lane++ {
		keys0[lane] = make(map[transport.PartyID][]byte, len(aKeys0[lane]))
		keys1[lane] = make(map[transport.PartyID][]byte, len(aKeys0[lane]))
		for party, aKey0 := range aKeys0[lane] {
			bKey0 := bKeys0[lane][party]
			aKey1 := aKeys1[lane][party]
			keys0[lane][party] = xorBytes(aKey0, bKey0)
			keys1[lane][party] = xorBytes(aKey1, bKey0)
		}
	}
	lambda := g.a.PermutationShare().Xor(g.b.PermutationShare())
	g.out.SetGarbling(g.GateID, lambda, keys0, keys1)
	gate.Trace(ctx, prov.Logger(), verbose, g.GateID, "setup", "end", logging.Redacted("wire_keys"))
	return nil
}

// EvaluateOnline implements gate.Gate.
func (g *XORGate) EvaluateOnline(ctx context.Context) error {
	prov := g.bp.Context()
	verbose := prov.Config().VerboseDebug
	gate.Trace(ctx, prov.Logger(), verbose, g.GateID, "online", "start")
	if err := g.a.WaitOnline(ctx); err != nil {
		return err
	}
	if err := g.b.WaitOnline(ctx); err != nil {
		return err
	}
	g.out.SetPublicValue(g.GateID, g.a.PublicValue().Xor(g.b.PublicValue()))
	gate.Trace(ctx, prov.Logger(), verbose, g.GateID, "online", "end")
	return nil
}
