package beavy

import (
	"context"

	"github.com/emberpc/gatecore/pkg/gatecore/bitvec"
	"github.com/emberpc/gatecore/pkg/gatecore/future"
	"github.com/emberpc/gatecore/pkg/gatecore/gate"
	"github.com/emberpc/gatecore/pkg/gatecore/gerr"
	"github.com/emberpc/gatecore/pkg/gatecore/logging"
	"github.com/emberpc/gatecore/pkg/gatecore/messaging"
	"github.com/emberpc/gatecore/pkg/gatecore/provider"
	"github.com/emberpc/gatecore/pkg/gatecore/transport"
	"github.com/emberpc/gatecore/pkg/gatecore/wire"
)

const inputOnlineTag uint8 = 0

// InputGateSender is the input owner's side of a BEAVY input gate. In
// setup it samples a fresh delta and cancels out every other party's
// contribution via their shared randomness generator; in online it folds
// in the real clear input and broadcasts Delta.
type InputGateSender struct {
	gate.Base
	prov    *provider.Context
	inputID uint64
	numSimd int
	peers   []transport.PartyID
	out     *wire.BooleanBEAVY
	input   *future.Cell[*bitvec.BitVector]

	deltaPartial *bitvec.BitVector
}

// NewInputGateSender constructs an input gate owned by this party. inputID
// must be assigned by the shared circuit-building walk so that every
// receiver constructed for the same logical input agrees on it.
func NewInputGateSender(prov *provider.Context, inputID uint64, numSimd int) *InputGateSender {
	return &InputGateSender{
		Base:    gate.Base{GateID: prov.NextGateID()},
		prov:    prov,
		inputID: inputID,
		numSimd: numSimd,
		peers:   prov.Peers(),
		out:     wire.NewBooleanBEAVY(numSimd),
		input:   future.New[*bitvec.BitVector](),
	}
}

// Output returns the produced wire.
func (g *InputGateSender) Output() *wire.BooleanBEAVY { return g.out }

// SetInput supplies the clear input bits. Must be called before the
// backend runs this gate's online phase; it may be called any time before
// or after setup.
func (g *InputGateSender) SetInput(bits *bitvec.BitVector) { g.input.Set(bits) }

// EvaluateSetup implements gate.Gate.
func (g *InputGateSender) EvaluateSetup(ctx context.Context) error {
	verbose := g.prov.Config().VerboseDebug
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "setup", "start")
	delta := bitvec.Random(g.numSimd)
	Delta := delta.Clone()
	for _, peer := range g.peers {
		prg := g.prov.Correlator().MyRandomnessGenerator(peer)
		Delta.XorInPlace(prg.GetBits(g.inputID, g.numSimd))
	}
	g.deltaPartial = Delta
	g.out.SetSecretShare(g.GateID, delta)
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "setup", "end", logging.Redacted("secret_share"))
	return nil
}

// EvaluateOnline implements gate.Gate.
func (g *InputGateSender) EvaluateOnline(ctx context.Context) error {
	verbose := g.prov.Config().VerboseDebug
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "online", "start")
	input, err := g.input.Get(ctx)
	if err != nil {
		return err
	}
	if input.Size() != g.numSimd {
		return gerr.Newf(g.GateID, "online", gerr.ConfigInvalid, "input size %d, want %d", input.Size(), g.numSimd)
	}
	Delta := g.deltaPartial.Xor(input)
	if err := g.prov.Registry().BroadcastBitsMessage(ctx, messaging.SubID(g.GateID, inputOnlineTag), Delta); err != nil {
		return err
	}
	g.out.SetPublicShare(g.GateID, Delta)
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "online", "end")
	return nil
}

// InputGateReceiver is a non-owning party's side of a BEAVY input gate. Its
// delta is entirely determined by the owner's randomness stream, so setup
// needs no communication; online just awaits the owner's broadcast Delta.
type InputGateReceiver struct {
	gate.Base
	prov      *provider.Context
	inputID   uint64
	numSimd   int
	owner     transport.PartyID
	out       *wire.BooleanBEAVY
	deltaCell *future.Cell[*bitvec.BitVector]
}

// NewInputGateReceiver constructs the receiving side for owner's input,
// registering the inbound Delta broadcast at construction time.
func NewInputGateReceiver(prov *provider.Context, owner transport.PartyID, inputID uint64, numSimd int) (*InputGateReceiver, error) {
	gateID := prov.NextGateID()
	cell, err := prov.Registry().RegisterForBitsMessage(owner, messaging.SubID(gateID, inputOnlineTag), numSimd)
	if err != nil {
		return nil, err
	}
	return &InputGateReceiver{
		Base:      gate.Base{GateID: gateID},
		prov:      prov,
		inputID:   inputID,
		numSimd:   numSimd,
		owner:     owner,
		out:       wire.NewBooleanBEAVY(numSimd),
		deltaCell: cell,
	}, nil
}

// Output returns the produced wire.
func (g *InputGateReceiver) Output() *wire.BooleanBEAVY { return g.out }

// EvaluateSetup implements gate.Gate.
func (g *InputGateReceiver) EvaluateSetup(ctx context.Context) error {
	verbose := g.prov.Config().VerboseDebug
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "setup", "start")
	prg := g.prov.Correlator().TheirRandomnessGenerator(g.owner)
	delta := prg.GetBits(g.inputID, g.numSimd)
	g.out.SetSecretShare(g.GateID, delta)
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "setup", "end", logging.Redacted("secret_share"))
	return nil
}

// EvaluateOnline implements gate.Gate.
func (g *InputGateReceiver) EvaluateOnline(ctx context.Context) error {
	verbose := g.prov.Config().VerboseDebug
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "online", "start")
	Delta, err := g.deltaCell.Get(ctx)
	if err != nil {
		return err
	}
	g.out.SetPublicShare(g.GateID, Delta)
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "online", "end")
	return nil
}
