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

const outputOnlineTag uint8 = 0

// OutputGate reconstructs the clear value for recipient (or AllParties, for
// a broadcast) by gathering every party's secret share and XORing them
// together with the input wire's public share:
// clear = Delta XOR XOR_p(delta_p).
type OutputGate struct {
	gate.Base
	prov      *provider.Context
	in        *wire.BooleanBEAVY
	recipient transport.PartyID
	recovers  bool
	cells     map[transport.PartyID]*future.Cell[*bitvec.BitVector]
	result    *future.Cell[*bitvec.BitVector]
}

// NewOutputGate constructs an output gate revealing in to recipient, or to
// every party if recipient is AllParties.
func NewOutputGate(prov *provider.Context, in *wire.BooleanBEAVY, recipient transport.PartyID) (*OutputGate, error) {
	gateID := prov.NextGateID()
	recovers := recipient == AllParties || recipient == prov.MyID()
	g := &OutputGate{
		Base:      gate.Base{GateID: gateID},
		prov:      prov,
		in:        in,
		recipient: recipient,
		recovers:  recovers,
		result:    future.New[*bitvec.BitVector](),
	}
	if recovers {
		cells, err := prov.Registry().RegisterForBitsMessages(messaging.SubID(gateID, outputOnlineTag), in.NumSimd())
		if err != nil {
			return nil, err
		}
		g.cells = cells
	}
	return g, nil
}

// Result returns the future holding the reconstructed clear value. It only
// resolves for the recipient (or every party, if recipient is AllParties);
// non-recipients' result fails with ProtocolViolation.
func (g *OutputGate) Result() *future.Cell[*bitvec.BitVector] { return g.result }

// EvaluateSetup implements gate.Gate.
func (g *OutputGate) EvaluateSetup(ctx context.Context) error {
	verbose := g.prov.Config().VerboseDebug
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "setup", "start")
	err := g.in.WaitSetup(ctx)
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "setup", "end")
	return err
}

// EvaluateOnline implements gate.Gate.
func (g *OutputGate) EvaluateOnline(ctx context.Context) error {
	verbose := g.prov.Config().VerboseDebug
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "online", "start", logging.Redacted("secret_share"))
	if err := g.in.WaitOnline(ctx); err != nil {
		return err
	}
	share := g.in.SecretShare()
	if g.recipient == AllParties {
		if err := g.prov.Registry().BroadcastBitsMessage(ctx, messaging.SubID(g.GateID, outputOnlineTag), share); err != nil {
			return err
		}
	} else if g.recipient == g.prov.MyID() {
		// nothing to send to self; peers below will unicast to us
	} else {
		if err := g.prov.Registry().SendBitsMessage(ctx, g.recipient, messaging.SubID(g.GateID, outputOnlineTag), share); err != nil {
			return err
		}
	}
	if !g.recovers {
		g.result.Fail(gerr.Newf(g.GateID, "online", gerr.ProtocolViolation, "party %d is not this output gate's recipient", g.prov.MyID()))
		gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "online", "end")
		return nil
	}
	clear := g.in.PublicShare().Clone()
	clear.XorInPlace(share)
	for _, cell := range g.cells {
		peerShare, err := cell.Get(ctx)
		if err != nil {
			g.result.Fail(err)
			return err
		}
		clear.XorInPlace(peerShare)
	}
	g.result.Set(clear)
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "online", "end")
	return nil
}
