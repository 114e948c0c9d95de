package bmr

import (
	"context"
	"sync"

	"github.com/emberpc/gatecore/pkg/gatecore/bitvec"
	"github.com/emberpc/gatecore/pkg/gatecore/future"
	"github.com/emberpc/gatecore/pkg/gatecore/gate"
	"github.com/emberpc/gatecore/pkg/gatecore/logging"
	"github.com/emberpc/gatecore/pkg/gatecore/messaging"
	"github.com/emberpc/gatecore/pkg/gatecore/ot"
	"github.com/emberpc/gatecore/pkg/gatecore/transport"
	"github.com/emberpc/gatecore/pkg/gatecore/wire"
)

// andOnlineTag must stay disjoint from bmrKeysTag (0) and bmrLambdaTag (1),
// since SubID(gateID, tag) collides across gates that share both gateID and
// tag, and this gate registers both a key-table inbox and an online-share
// inbox under the same gateID.
const andOnlineTag uint8 = 2

// otPair is one peer's XCOT-bit instance pair: this party plays sender
// correlated on its own permutation share of wire b toward that peer, and
// receiver choosing on its own permutation share of wire a from that
// peer, exactly the two flows beavy's two-party AND gate runs against its
// single fixed peer. Running one otPair per peer generalizes that
// algebra from two parties to N: (XOR_i lambda_a^i)(XOR_j lambda_b^j)
// expands over GF(2) into a local diagonal term per party plus one
// cross term per ordered pair, and the two OT flows in each otPair
// jointly realize both cross terms for that unordered pair.
type otPair struct {
	peer     transport.PartyID
	sender   *ot.Sender
	receiver *ot.Receiver
}

// ANDGate implements the N-party BMR AND gate. Its key tables are fresh,
// broadcast key material exactly like InputGate (an AND gate always
// introduces a new wire, exactly as a real garbled-row AND would); its
// clear-value correctness runs through the permutation-share algebra
// generalized from beavy's two-party AND (this package's doc comment
// explains why the internal garbled-row construction is not attempted).
// The key tables are generated, broadcast, and merged in full but are not
// load-bearing for that correctness (see DESIGN.md D.2); the permutation
// share alone determines the clear value.
type ANDGate struct {
	gate.Base
	bp    *Provider
	a, b  *wire.BMR
	out   *wire.BMR
	isJob bool

	otPairs  []otPair
	shareIn  map[transport.PartyID]*future.Cell[*bitvec.BitVector]
	keyCells map[transport.PartyID]*future.Cell[*bitvec.BitVector]

	lambdaHelper *bitvec.BitVector
}

// NewANDGate constructs an AND gate over a and b.
func NewANDGate(bp *Provider, a, b *wire.BMR) (*ANDGate, error) {
	prov := bp.Context()
	if a.NumSimd() != b.NumSimd() {
		panic("bmr: AND operand lane count mismatch")
	}
	gateID := prov.NextGateID()

	otPairs := make([]otPair, 0, len(prov.Peers()))
	for _, peer := range prov.Peers() {
		otp, err := prov.OT().Peer(peer)
		if err != nil {
			return nil, err
		}
		sender, err := otp.RegisterSendXCOTBit(gateID, a.NumSimd())
		if err != nil {
			return nil, err
		}
		receiver, err := otp.RegisterReceiveXCOTBit(gateID, a.NumSimd())
		if err != nil {
			return nil, err
		}
		otPairs = append(otPairs, otPair{peer: peer, sender: sender, receiver: receiver})
	}
	shareIn, err := prov.Registry().RegisterForBitsMessages(messaging.SubID(gateID, andOnlineTag), a.NumSimd())
	if err != nil {
		return nil, err
	}
	keyCells, err := prov.Registry().RegisterForBitsMessages(messaging.SubID(gateID, bmrKeysTag), a.NumSimd()*2*bp.Kappa())
	if err != nil {
		return nil, err
	}

	return &ANDGate{
		Base:     gate.Base{GateID: gateID},
		bp:       bp,
		a:        a,
		b:        b,
		out:      wire.NewBMR(a.NumSimd(), bp.Kappa()),
		isJob:    prov.IsMyJob(gateID),
		otPairs:  otPairs,
		shareIn:  shareIn,
		keyCells: keyCells,
	}, nil
}

// Output returns the produced wire.
func (g *ANDGate) Output() *wire.BMR { return g.out }

// EvaluateSetup implements gate.Gate.
func (g *ANDGate) EvaluateSetup(ctx context.Context) error {
	if err := g.a.WaitSetup(ctx); err != nil {
		return err
	}
	if err := g.b.WaitSetup(ctx); err != nil {
		return err
	}
	prov := g.bp.Context()
	verbose := prov.Config().VerboseDebug
	gate.Trace(ctx, prov.Logger(), verbose, g.GateID, "setup", "start")
	lambdaA := g.a.PermutationShare()
	lambdaB := g.b.PermutationShare()
	crossTerms := lambdaA.And(lambdaB) // this party's own diagonal term

	var wg sync.WaitGroup
	errs := make([]error, len(g.otPairs)*2)
	for idx, p := range g.otPairs {
		idx, p := idx, p
		if err := p.receiver.SetChoices(lambdaA); err != nil {
			return err
		}
		if err := p.sender.SetCorrelations(lambdaB); err != nil {
			return err
		}
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs[2*idx] = p.sender.SendMessages(ctx)
		}()
		go func() {
			defer wg.Done()
			if err := p.receiver.SendCorrections(ctx); err != nil {
				errs[2*idx+1] = err
				return
			}
			errs[2*idx+1] = p.receiver.ComputeOutputs(ctx)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	for _, p := range g.otPairs {
		if err := p.sender.ComputeOutputs(); err != nil {
			return err
		}
		crossTerms.XorInPlace(p.sender.GetOutputs())
		crossTerms.XorInPlace(p.receiver.GetOutputs())
	}

	numSimd := g.a.NumSimd()
	myKeys0 := make([][]byte, numSimd)
	myKeys1 := make([][]byte, numSimd)
	for lane := 0; lane < numSimd; lane++ {
		k0, err := g.bp.randomKey()
		if err != nil {
			return err
		}
		myKeys0[lane] = k0
		myKeys1[lane] = xorBytes(k0, g.bp.delta)
	}
	// Broadcast this party's fresh key pair the same way InputGate does, and
	// merge every peer's pair into the full table.
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
		k0s, k1s, err := decodeKeyPairs(g.GateID, peerBlob, numSimd, g.bp.Kappa()/8)
		if err != nil {
			return err
		}
		pairs := make([][2][]byte, numSimd)
		for i := range pairs {
			pairs[i] = [2][]byte{k0s[i], k1s[i]}
		}
		fromPeers[peer] = pairs
	}
	keys0, keys1 := mergeKeyTable(prov.MyID(), numSimd, myKeys0, myKeys1, fromPeers)

	lambdaC := bitvec.Random(numSimd)
	helper := lambdaC.Clone()
	helper.XorInPlace(crossTerms)
	g.lambdaHelper = helper

	g.out.SetGarbling(g.GateID, lambdaC, keys0, keys1)
	gate.Trace(ctx, prov.Logger(), verbose, g.GateID, "setup", "end", logging.Redacted("wire_keys"))
	return nil
}

// EvaluateOnline implements gate.Gate.
func (g *ANDGate) EvaluateOnline(ctx context.Context) error {
	if err := g.a.WaitOnline(ctx); err != nil {
		return err
	}
	if err := g.b.WaitOnline(ctx); err != nil {
		return err
	}
	prov := g.bp.Context()
	verbose := prov.Config().VerboseDebug
	gate.Trace(ctx, prov.Logger(), verbose, g.GateID, "online", "start")
	BigA := g.a.PublicValue()
	BigB := g.b.PublicValue()

	share := g.lambdaHelper.Clone()
	share.XorInPlace(BigA.And(g.b.PermutationShare()))
	share.XorInPlace(BigB.And(g.a.PermutationShare()))
	if g.isJob {
		share.XorInPlace(BigA.And(BigB))
	}
	if err := prov.Registry().BroadcastBitsMessage(ctx, messaging.SubID(g.GateID, andOnlineTag), share); err != nil {
		return err
	}
	clear := share.Clone()
	for _, cell := range g.shareIn {
		peerShare, err := cell.Get(ctx)
		if err != nil {
			return err
		}
		clear.XorInPlace(peerShare)
	}
	g.out.SetPublicValue(g.GateID, clear)
	return nil
}
