package beavy

import (
	"context"
	"sync"

	"github.com/emberpc/gatecore/pkg/gatecore/bitvec"
	"github.com/emberpc/gatecore/pkg/gatecore/future"
	"github.com/emberpc/gatecore/pkg/gatecore/gate"
	"github.com/emberpc/gatecore/pkg/gatecore/gerr"
	"github.com/emberpc/gatecore/pkg/gatecore/logging"
	"github.com/emberpc/gatecore/pkg/gatecore/messaging"
	"github.com/emberpc/gatecore/pkg/gatecore/ot"
	"github.com/emberpc/gatecore/pkg/gatecore/provider"
	"github.com/emberpc/gatecore/pkg/gatecore/wire"
)

const andOnlineTag uint8 = 0

// ANDGate implements the two-party BEAVY AND gate.
// Setup runs one XCOT-bit instance in each direction (this party as sender
// correlated by its own delta_b, and as receiver choosing on its own
// delta_a) to derive a fresh secret share of the product; online exchanges
// the two parties' shares of the public Delta_c and reconstructs it, with
// exactly one designated party (IsMyJob) folding in the Delta_a & Delta_b
// cross term so it isn't double-counted.
type ANDGate struct {
	gate.Base
	prov  *provider.Context
	a, b  *wire.BooleanBEAVY
	out   *wire.BooleanBEAVY
	isJob bool

	otSender   *ot.Sender
	otReceiver *ot.Receiver

	shareIn *future.Cell[*bitvec.BitVector]

	deltaYShare *bitvec.BitVector
}

// NewANDGate constructs a two-party AND gate over a and b. The gate's peer
// is the single other party of prov's (necessarily two-party) session.
func NewANDGate(prov *provider.Context, a, b *wire.BooleanBEAVY) (*ANDGate, error) {
	if prov.NumParties() != 2 {
		return nil, gerr.Newf(0, "setup", gerr.ConfigInvalid, "beavy: AND gate requires exactly two parties, got %d", prov.NumParties())
	}
	if a.NumSimd() != b.NumSimd() {
		return nil, gerr.Newf(0, "setup", gerr.ConfigInvalid, "beavy: AND operand lane count mismatch")
	}
	peers := prov.Peers()
	peer := peers[0]

	gateID := prov.NextGateID()
	otp, err := prov.OT().Peer(peer)
	if err != nil {
		return nil, err
	}
	otSender, err := otp.RegisterSendXCOTBit(gateID, a.NumSimd())
	if err != nil {
		return nil, err
	}
	otReceiver, err := otp.RegisterReceiveXCOTBit(gateID, a.NumSimd())
	if err != nil {
		return nil, err
	}
	shareCell, err := prov.Registry().RegisterForBitsMessage(peer, messaging.SubID(gateID, andOnlineTag), a.NumSimd())
	if err != nil {
		return nil, err
	}
	return &ANDGate{
		Base:       gate.Base{GateID: gateID},
		prov:       prov,
		a:          a,
		b:          b,
		out:        wire.NewBooleanBEAVY(a.NumSimd()),
		isJob:      prov.IsMyJob(gateID),
		otSender:   otSender,
		otReceiver: otReceiver,
		shareIn:    shareCell,
	}, nil
}

// Output returns the produced wire.
func (g *ANDGate) Output() *wire.BooleanBEAVY { return g.out }

// EvaluateSetup implements gate.Gate.
func (g *ANDGate) EvaluateSetup(ctx context.Context) error {
	verbose := g.prov.Config().VerboseDebug
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "setup", "start")
	if err := g.a.WaitSetup(ctx); err != nil {
		return err
	}
	if err := g.b.WaitSetup(ctx); err != nil {
		return err
	}
	deltaA := g.a.SecretShare()
	deltaB := g.b.SecretShare()
	localProduct := deltaA.And(deltaB)

	if err := g.otReceiver.SetChoices(deltaA); err != nil {
		return err
	}
	if err := g.otSender.SetCorrelations(deltaB); err != nil {
		return err
	}

	var wg sync.WaitGroup
	var sendErr, recvErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		sendErr = g.otSender.SendMessages(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := g.otReceiver.SendCorrections(ctx); err != nil {
			recvErr = err
			return
		}
		recvErr = g.otReceiver.ComputeOutputs(ctx)
	}()
	wg.Wait()
	if sendErr != nil {
		return sendErr
	}
	if recvErr != nil {
		return recvErr
	}
	if err := g.otSender.ComputeOutputs(); err != nil {
		return err
	}

	deltaC := bitvec.Random(g.a.NumSimd())
	share := deltaC.Clone()
	share.XorInPlace(localProduct)
	share.XorInPlace(g.otSender.GetOutputs())
	share.XorInPlace(g.otReceiver.GetOutputs())
	g.deltaYShare = share
	g.out.SetSecretShare(g.GateID, deltaC)
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "setup", "end", logging.Redacted("secret_share"))
	return nil
}

// EvaluateOnline implements gate.Gate.
func (g *ANDGate) EvaluateOnline(ctx context.Context) error {
	verbose := g.prov.Config().VerboseDebug
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "online", "start")
	if err := g.a.WaitOnline(ctx); err != nil {
		return err
	}
	if err := g.b.WaitOnline(ctx); err != nil {
		return err
	}
	BigA := g.a.PublicShare()
	BigB := g.b.PublicShare()

	share := g.deltaYShare.Clone()
	share.XorInPlace(BigA.And(g.b.SecretShare()))
	share.XorInPlace(BigB.And(g.a.SecretShare()))
	if g.isJob {
		share.XorInPlace(BigA.And(BigB))
	}

	peer := g.prov.Peers()[0]
	if err := g.prov.Registry().SendBitsMessage(ctx, peer, messaging.SubID(g.GateID, andOnlineTag), share); err != nil {
		return err
	}
	peerShare, err := g.shareIn.Get(ctx)
	if err != nil {
		return err
	}
	BigC := share.Xor(peerShare)
	g.out.SetPublicShare(g.GateID, BigC)
	gate.Trace(ctx, g.prov.Logger(), verbose, g.GateID, "online", "end")
	return nil
}
