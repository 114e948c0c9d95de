package beavy

import (
	"context"
	"crypto/rand"

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

const arithInputOnlineTag uint8 = 1

// ArithmeticInputGateSender generalizes the Boolean input gate to an
// arithmetic-sharing domain: same shape as InputGateSender, but
// additive instead of XOR. Setup samples a fresh random share and cancels
// every peer's derived share; online reveals x + sum_of_all_shares.
type ArithmeticInputGateSender[T wire.Unsigned] struct {
	gate.Base
	prov    *provider.Context
	inputID uint64
	numSimd int
	peers   []transport.PartyID
	out     *wire.Arithmetic[T]
	input   *future.Cell[[]T]

	deltaPartial []T
}

// NewArithmeticInputGateSender constructs an input gate owned by this party.
func NewArithmeticInputGateSender[T wire.Unsigned](prov *provider.Context, inputID uint64, numSimd int) *ArithmeticInputGateSender[T] {
	return &ArithmeticInputGateSender[T]{
		Base:    gate.Base{GateID: prov.NextGateID()},
		prov:    prov,
		inputID: inputID,
		numSimd: numSimd,
		peers:   prov.Peers(),
		out:     wire.NewArithmetic[T](numSimd),
		input:   future.New[[]T](),
	}
}

// Output returns the produced wire.
func (g *ArithmeticInputGateSender[T]) Output() *wire.Arithmetic[T] { return g.out }

// SetInput supplies the clear input values.
func (g *ArithmeticInputGateSender[T]) SetInput(vals []T) { g.input.Set(vals) }

func (g *ArithmeticInputGateSender[T]) randomShare() []T {
	buf := make([]byte, g.numSimd*wire.ElemSize[T]())
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return wire.DecodeUints[T](buf, g.numSimd)
}

// EvaluateSetup implements gate.Gate.
func (g *ArithmeticInputGateSender[T]) EvaluateSetup(ctx context.Context) error {
	verbose := g.prov.Config().VerboseDebug
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "setup", "start")
	delta := g.randomShare()
	sum := append([]T(nil), delta...)
	for _, peer := range g.peers {
		prg := g.prov.Correlator().MyRandomnessGenerator(peer)
		peerShare := wire.DecodeUints[T](prg.GetBits(g.inputID, g.numSimd*wire.ElemSize[T]()*8).Bytes(), g.numSimd)
		for i := range sum {
			sum[i] += peerShare[i]
		}
	}
	g.deltaPartial = sum
	g.out.SetSecretShare(g.GateID, delta)
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "setup", "end", logging.Redacted("secret_share"))
	return nil
}

// EvaluateOnline implements gate.Gate.
func (g *ArithmeticInputGateSender[T]) EvaluateOnline(ctx context.Context) error {
	verbose := g.prov.Config().VerboseDebug
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "online", "start")
	input, err := g.input.Get(ctx)
	if err != nil {
		return err
	}
	if len(input) != g.numSimd {
		return gerr.Newf(g.GateID, "online", gerr.ConfigInvalid, "input size %d, want %d", len(input), g.numSimd)
	}
	masked := make([]T, g.numSimd)
	for i := range masked {
		masked[i] = g.deltaPartial[i] + input[i]
	}
	bits, err := bitvec.FromBytes(wire.EncodeUints(masked), g.numSimd*wire.ElemSize[T]()*8)
	if err != nil {
		return err
	}
	if err := g.prov.Registry().BroadcastBitsMessage(ctx, messaging.SubID(g.GateID, arithInputOnlineTag), bits); err != nil {
		return err
	}
	g.out.SetPublicShare(g.GateID, masked)
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "online", "end")
	return nil
}

// ArithmeticInputGateReceiver is a non-owning party's side of an
// arithmetic-BEAVY input gate: its share is entirely determined by the
// owner's randomness stream toward it, matching InputGateReceiver's shape.
type ArithmeticInputGateReceiver[T wire.Unsigned] struct {
	gate.Base
	prov      *provider.Context
	inputID   uint64
	numSimd   int
	owner     transport.PartyID
	out       *wire.Arithmetic[T]
	deltaCell *future.Cell[*bitvec.BitVector]
}

// NewArithmeticInputGateReceiver constructs the receiving side for owner's
// input, registering the inbound masked-value broadcast at construction.
func NewArithmeticInputGateReceiver[T wire.Unsigned](prov *provider.Context, owner transport.PartyID, inputID uint64, numSimd int) (*ArithmeticInputGateReceiver[T], error) {
	gateID := prov.NextGateID()
	cell, err := prov.Registry().RegisterForBitsMessage(owner, messaging.SubID(gateID, arithInputOnlineTag), numSimd*wire.ElemSize[T]()*8)
	if err != nil {
		return nil, err
	}
	return &ArithmeticInputGateReceiver[T]{
		Base:      gate.Base{GateID: gateID},
		prov:      prov,
		inputID:   inputID,
		numSimd:   numSimd,
		owner:     owner,
		out:       wire.NewArithmetic[T](numSimd),
		deltaCell: cell,
	}, nil
}

// Output returns the produced wire.
func (g *ArithmeticInputGateReceiver[T]) Output() *wire.Arithmetic[T] { return g.out }

// EvaluateSetup implements gate.Gate.
func (g *ArithmeticInputGateReceiver[T]) EvaluateSetup(ctx context.Context) error {
	verbose := g.prov.Config().VerboseDebug
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "setup", "start")
	prg := g.prov.Correlator().TheirRandomnessGenerator(g.owner)
	share := wire.DecodeUints[T](prg.GetBits(g.inputID, g.numSimd*wire.ElemSize[T]()*8).Bytes(), g.numSimd)
	g.out.SetSecretShare(g.GateID, share)
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "setup", "end", logging.Redacted("secret_share"))
	return nil
}

// EvaluateOnline implements gate.Gate.
func (g *ArithmeticInputGateReceiver[T]) EvaluateOnline(ctx context.Context) error {
	verbose := g.prov.Config().VerboseDebug
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "online", "start")
	bits, err := g.deltaCell.Get(ctx)
	if err != nil {
		return err
	}
	masked := wire.DecodeUints[T](bits.Bytes(), g.numSimd)
	g.out.SetPublicShare(g.GateID, masked)
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "online", "end")
	return nil
}

const arithOutputTag uint8 = 1

// ArithmeticOutputGate reconstructs the clear value for recipient (or
// AllParties) as public - sum_over_all_parties(share), the additive
// counterpart of OutputGate.
type ArithmeticOutputGate[T wire.Unsigned] struct {
	gate.Base
	prov      *provider.Context
	in        *wire.Arithmetic[T]
	recipient transport.PartyID
	recovers  bool
	cells     map[transport.PartyID]*future.Cell[*bitvec.BitVector]
	result    *future.Cell[[]T]
}

// NewArithmeticOutputGate constructs an output gate revealing in to
// recipient, or to every party if recipient is AllParties.
func NewArithmeticOutputGate[T wire.Unsigned](prov *provider.Context, in *wire.Arithmetic[T], recipient transport.PartyID) (*ArithmeticOutputGate[T], error) {
	gateID := prov.NextGateID()
	recovers := recipient == AllParties || recipient == prov.MyID()
	g := &ArithmeticOutputGate[T]{
		Base:      gate.Base{GateID: gateID},
		prov:      prov,
		in:        in,
		recipient: recipient,
		recovers:  recovers,
		result:    future.New[[]T](),
	}
	if recovers {
		cells, err := prov.Registry().RegisterForBitsMessages(messaging.SubID(gateID, arithOutputTag), in.NumSimd()*wire.ElemSize[T]()*8)
		if err != nil {
			return nil, err
		}
		g.cells = cells
	}
	return g, nil
}

// Result returns the future holding the reconstructed clear value.
func (g *ArithmeticOutputGate[T]) Result() *future.Cell[[]T] { return g.result }

// EvaluateSetup implements gate.Gate.
func (g *ArithmeticOutputGate[T]) EvaluateSetup(ctx context.Context) error {
	verbose := g.prov.Config().VerboseDebug
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "setup", "start")
	err := g.in.WaitSetup(ctx)
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "setup", "end")
	return err
}

// EvaluateOnline implements gate.Gate.
func (g *ArithmeticOutputGate[T]) EvaluateOnline(ctx context.Context) error {
	verbose := g.prov.Config().VerboseDebug
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "online", "start", logging.Redacted("secret_share"))
	if err := g.in.WaitOnline(ctx); err != nil {
		return err
	}
	share := g.in.SecretShare()
	bits, err := bitvec.FromBytes(wire.EncodeUints(share), g.in.NumSimd()*wire.ElemSize[T]()*8)
	if err != nil {
		return err
	}
	if g.recipient == AllParties {
		if err := g.prov.Registry().BroadcastBitsMessage(ctx, messaging.SubID(g.GateID, arithOutputTag), bits); err != nil {
			return err
		}
	} else if g.recipient != g.prov.MyID() {
		if err := g.prov.Registry().SendBitsMessage(ctx, g.recipient, messaging.SubID(g.GateID, arithOutputTag), bits); err != nil {
			return err
		}
	}
	if !g.recovers {
		g.result.Fail(gerr.Newf(g.GateID, "online", gerr.ProtocolViolation, "party %d is not this party's output recipient", g.prov.MyID()))
		gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "online", "end")
		return nil
	}
	numSimd := g.in.NumSimd()
	clear := append([]T(nil), g.in.PublicShare()...)
	for i := range clear {
		clear[i] -= share[i]
	}
	for _, cell := range g.cells {
		peerBits, err := cell.Get(ctx)
		if err != nil {
			g.result.Fail(err)
			return err
		}
		peerShare := wire.DecodeUints[T](peerBits.Bytes(), numSimd)
		for i := range clear {
			clear[i] -= peerShare[i]
		}
	}
	g.result.Set(clear)
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "online", "end")
	return nil
}
