package bmr

import (
	"context"

	"github.com/emberpc/gatecore/pkg/gatecore/bitvec"
	"github.com/emberpc/gatecore/pkg/gatecore/future"
	"github.com/emberpc/gatecore/pkg/gatecore/gate"
	"github.com/emberpc/gatecore/pkg/gatecore/gerr"
	"github.com/emberpc/gatecore/pkg/gatecore/logging"
	"github.com/emberpc/gatecore/pkg/gatecore/messaging"
	"github.com/emberpc/gatecore/pkg/gatecore/transport"
	"github.com/emberpc/gatecore/pkg/gatecore/wire"
)

const (
	bmrKeysTag   uint8 = 0
	bmrLambdaTag uint8 = 1
)

// InputGate is symmetric across owner and non-owner (unlike beavy's
// split sender/receiver): every party generates and broadcasts its own
// wire key pair regardless of who owns the input, since BMR keys carry no
// secret about the real bit by themselves; only the owner additionally
// supplies the real input bit and reveals the masked value online.
type InputGate struct {
	gate.Base
	bp      *Provider
	owner   transport.PartyID
	inputID uint64
	numSimd int
	out     *wire.BMR

	keyCells map[transport.PartyID]*future.Cell[*bitvec.BitVector]
	lambdaIn *future.Cell[*bitvec.BitVector] // only used by non-owners
	input    *future.Cell[*bitvec.BitVector] // only used by the owner

	myKeys0, myKeys1  [][]byte
	revealAccumulator *bitvec.BitVector // owner only: lambda XORed with every peer's cancelling PRG stream
}

// NewInputGate constructs a BMR input gate for owner's input. inputID must
// be assigned by the shared circuit-building walk, exactly as in beavy.
func NewInputGate(bp *Provider, owner transport.PartyID, inputID uint64, numSimd int) (*InputGate, error) {
	prov := bp.Context()
	gateID := prov.NextGateID()
	keyCells, err := prov.Registry().RegisterForBitsMessages(messaging.SubID(gateID, bmrKeysTag), numSimd*2*bp.Kappa())
	if err != nil {
		return nil, err
	}
	g := &InputGate{
		Base:     gate.Base{GateID: gateID},
		bp:       bp,
		owner:    owner,
		inputID:  inputID,
		numSimd:  numSimd,
		out:      wire.NewBMR(numSimd, bp.Kappa()),
		keyCells: keyCells,
		input:    future.New[*bitvec.BitVector](),
	}
	if prov.MyID() != owner {
		cell, err := prov.Registry().RegisterForBitsMessage(owner, messaging.SubID(gateID, bmrLambdaTag), numSimd)
		if err != nil {
			return nil, err
		}
		g.lambdaIn = cell
	}
	return g, nil
}

// Output returns the produced wire.
func (g *InputGate) Output() *wire.BMR { return g.out }

// SetInput supplies the clear input bits. Only meaningful when this party
// is the gate's owner.
func (g *InputGate) SetInput(bits *bitvec.BitVector) { g.input.Set(bits) }

// EvaluateSetup implements gate.Gate.
func (g *InputGate) EvaluateSetup(ctx context.Context) error {
	prov := g.bp.Context()
	verbose := prov.Config().VerboseDebug
	gate.Trace(ctx, prov.Logger(), verbose, g.GateID, "setup", "start")
	myKeys0 := make([][]byte, g.numSimd)
	myKeys1 := make([][]byte, g.numSimd)
	for i := 0; i < g.numSimd; i++ {
		k0, err := g.bp.randomKey()
		if err != nil {
			return err
		}
		myKeys0[i] = k0
		myKeys1[i] = xorBytes(k0, g.bp.delta)
	}
	g.myKeys0, g.myKeys1 = myKeys0, myKeys1

	blob := encodeKeyPairs(myKeys0, myKeys1, g.bp.Kappa()/8)
	if err := prov.Registry().BroadcastBitsMessage(ctx, messaging.SubID(g.GateID, bmrKeysTag), blob); err != nil {
		return err
	}

	fromPeers := make(map[transport.PartyID][][2][]byte, len(g.keyCells))
	for peer, cell := range g.keyCells {
		peerBlob, err := cell.Get(ctx)
		if err != nil {
			return err
		}
		k0s, k1s, err := decodeKeyPairs(g.GateID, peerBlob, g.numSimd, g.bp.Kappa()/8)
		if err != nil {
			return err
		}
		pairs := make([][2][]byte, g.numSimd)
		for i := range pairs {
			pairs[i] = [2][]byte{k0s[i], k1s[i]}
		}
		fromPeers[peer] = pairs
	}
	keys0, keys1 := mergeKeyTable(prov.MyID(), g.numSimd, myKeys0, myKeys1, fromPeers)

	var lambda *bitvec.BitVector
	if prov.MyID() == g.owner {
		lambda = bitvec.Random(g.numSimd)
		accumulator := lambda.Clone()
		for _, peer := range prov.Peers() {
			prg := prov.Correlator().MyRandomnessGenerator(peer)
			accumulator.XorInPlace(prg.GetBits(g.inputID, g.numSimd))
		}
		g.revealAccumulator = accumulator
	} else {
		prg := prov.Correlator().TheirRandomnessGenerator(g.owner)
		lambda = prg.GetBits(g.inputID, g.numSimd)
	}
	g.out.SetGarbling(g.GateID, lambda, keys0, keys1)
	gate.Trace(ctx, prov.Logger(), verbose, g.GateID, "setup", "end", logging.Redacted("wire_keys"))
	return nil
}

// EvaluateOnline implements gate.Gate.
func (g *InputGate) EvaluateOnline(ctx context.Context) error {
	prov := g.bp.Context()
	verbose := prov.Config().VerboseDebug
	gate.Trace(ctx, prov.Logger(), verbose, g.GateID, "online", "start")
	if prov.MyID() == g.owner {
		input, err := g.input.Get(ctx)
		if err != nil {
			return err
		}
		if input.Size() != g.numSimd {
			return gerr.Newf(g.GateID, "online", gerr.ConfigInvalid, "input size %d, want %d", input.Size(), g.numSimd)
		}
		masked := g.revealAccumulator.Xor(input)
		if err := prov.Registry().BroadcastBitsMessage(ctx, messaging.SubID(g.GateID, bmrLambdaTag), masked); err != nil {
			return err
		}
		g.out.SetPublicValue(g.GateID, masked)
		gate.Trace(ctx, prov.Logger(), verbose, g.GateID, "online", "end")
		return nil
	}
	masked, err := g.lambdaIn.Get(ctx)
	if err != nil {
		return err
	}
	g.out.SetPublicValue(g.GateID, masked)
	gate.Trace(ctx, prov.Logger(), verbose, g.GateID, "online", "end")
	return nil
}
