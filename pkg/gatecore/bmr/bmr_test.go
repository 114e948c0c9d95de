package bmr_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/emberpc/gatecore/pkg/gatecore/bitvec"
	"github.com/emberpc/gatecore/pkg/gatecore/bmr"
	"github.com/emberpc/gatecore/pkg/gatecore/config"
	"github.com/emberpc/gatecore/pkg/gatecore/gate"
	"github.com/emberpc/gatecore/pkg/gatecore/logging"
	"github.com/emberpc/gatecore/pkg/gatecore/messaging"
	"github.com/emberpc/gatecore/pkg/gatecore/mocknet"
	"github.com/emberpc/gatecore/pkg/gatecore/ot"
	"github.com/emberpc/gatecore/pkg/gatecore/provider"
	"github.com/emberpc/gatecore/pkg/gatecore/transport"
)

// nPartySession wires up a mocknet fabric plus a running provider and BMR
// wrapper for every one of n parties, exactly like beavy's twoPartySession
// generalized past a fixed peer.
type nPartySession struct {
	provs []*provider.Context
	bps   []*bmr.Provider
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newNPartySession(t *testing.T, n int) *nPartySession {
	t.Helper()
	net := mocknet.New()
	all := make([]transport.PartyID, n)
	for i := range all {
		all[i] = transport.PartyID(i)
	}
	eps := make([]*mocknet.Endpoint, n)
	for i := range eps {
		eps[i] = net.NewEndpoint(transport.PartyID(i), all)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &nPartySession{cancel: cancel}

	provs := make([]*provider.Context, n)
	bps := make([]*bmr.Provider, n)
	var wgSetup sync.WaitGroup
	wgSetup.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wgSetup.Done()
			self := transport.PartyID(i)
			var peers []transport.PartyID
			for _, p := range all {
				if p != self {
					peers = append(peers, p)
				}
			}
			pairs, err := messaging.PerformHandshake(ctx, self, peers, n, false, "test-v1", eps[i])
			require.NoError(t, err)
			correlator := messaging.NewCorrelator(pairs)

			bases, err := ot.BootstrapAll(ctx, peers, eps[i])
			require.NoError(t, err)

			registry := messaging.NewRegistry(self, peers, eps[i])
			otManager := ot.NewManager(registry, bases)

			cfg := config.Config{PartyID: i, PartyCount: n}
			provs[i] = provider.New(cfg, registry, correlator, otManager, logging.New(nil))
			bp, err := bmr.NewProvider(provs[i], 0)
			require.NoError(t, err)
			bps[i] = bp
		}()
	}
	wgSetup.Wait()
	sess.provs = provs
	sess.bps = bps

	sess.wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer sess.wg.Done()
			var peers []transport.PartyID
			for _, p := range all {
				if p != transport.PartyID(i) {
					peers = append(peers, p)
				}
			}
			var inner sync.WaitGroup
			inner.Add(len(peers))
			for _, peer := range peers {
				peer := peer
				go func() {
					defer inner.Done()
					_ = provs[i].Registry().RunReceiveLoop(ctx, peer)
				}()
			}
			inner.Wait()
		}()
	}
	return sess
}

func (s *nPartySession) close() {
	s.cancel()
	s.wg.Wait()
}

func evaluate(t *testing.T, ctx context.Context, gates ...gate.Gate) {
	t.Helper()
	for _, g := range gates {
		require.NoError(t, g.EvaluateSetup(ctx))
	}
	for _, g := range gates {
		require.NoError(t, g.EvaluateOnline(ctx))
	}
}

func bits(vals ...bool) *bitvec.BitVector {
	v := bitvec.New(len(vals))
	for i, b := range vals {
		v.Set(i, b)
	}
	return v
}

// TestThreePartyANDChain covers the mandated three-party scenario: inputs
// P0=1, P1=0, P2=1, circuit AND(AND(P0,P1), P2), output revealed to every
// party must be 0.
func TestThreePartyANDChain(t *testing.T) {
	sess := newNPartySession(t, 3)
	defer sess.close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	inputs := []bool{true, false, true}
	inputIDs := [3]uint64{
		sess.provs[0].NextInputID(),
		sess.provs[1].NextInputID(),
		sess.provs[2].NextInputID(),
	}

	// Every party constructs one InputGate per owner, in identical order,
	// so gate ids stay synchronized (the same invariant beavy's tests rely
	// on, generalized to three parties).
	ins := make([][3]*bmr.InputGate, 3)
	for party := 0; party < 3; party++ {
		for owner := 0; owner < 3; owner++ {
			g, err := bmr.NewInputGate(sess.bps[party], transport.PartyID(owner), inputIDs[owner], 1)
			require.NoError(t, err)
			ins[party][owner] = g
		}
		ins[party][party].SetInput(bits(inputs[party]))
	}

	and1 := make([]*bmr.ANDGate, 3)
	and2 := make([]*bmr.ANDGate, 3)
	outs := make([]*bmr.OutputGate, 3)
	for party := 0; party < 3; party++ {
		g1, err := bmr.NewANDGate(sess.bps[party], ins[party][0].Output(), ins[party][1].Output())
		require.NoError(t, err)
		and1[party] = g1
		g2, err := bmr.NewANDGate(sess.bps[party], g1.Output(), ins[party][2].Output())
		require.NoError(t, err)
		and2[party] = g2
		out, err := bmr.NewOutputGate(sess.bps[party], g2.Output(), bmr.AllParties)
		require.NoError(t, err)
		outs[party] = out
	}

	var wg sync.WaitGroup
	wg.Add(3)
	for party := 0; party < 3; party++ {
		party := party
		go func() {
			defer wg.Done()
			gates := []gate.Gate{
				ins[party][0], ins[party][1], ins[party][2],
				and1[party], and2[party], outs[party],
			}
			evaluate(t, ctx, gates...)
		}()
	}
	wg.Wait()

	want := bits(false)
	for party := 0; party < 3; party++ {
		res, err := outs[party].Result().Get(ctx)
		require.NoError(t, err)
		require.Truef(t, res.Equal(want), "party %d got %v, want %v", party, res, want)
	}
}

func TestXORAndINV(t *testing.T) {
	sess := newNPartySession(t, 2)
	defer sess.close()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	inputIDs := [2]uint64{sess.provs[0].NextInputID(), sess.provs[1].NextInputID()}
	ins := make([][2]*bmr.InputGate, 2)
	for party := 0; party < 2; party++ {
		for owner := 0; owner < 2; owner++ {
			g, err := bmr.NewInputGate(sess.bps[party], transport.PartyID(owner), inputIDs[owner], 4)
			require.NoError(t, err)
			ins[party][owner] = g
		}
	}
	a := bits(true, false, true, false)
	b := bits(false, false, true, true)
	ins[0][0].SetInput(a)
	ins[1][1].SetInput(b)

	xor := make([]*bmr.XORGate, 2)
	inv := make([]*bmr.INVGate, 2)
	outs := make([]*bmr.OutputGate, 2)
	for party := 0; party < 2; party++ {
		x := bmr.NewXORGate(sess.bps[party], ins[party][0].Output(), ins[party][1].Output())
		xor[party] = x
		iv := bmr.NewINVGate(sess.bps[party], x.Output())
		inv[party] = iv
		out, err := bmr.NewOutputGate(sess.bps[party], iv.Output(), bmr.AllParties)
		require.NoError(t, err)
		outs[party] = out
	}

	var wg sync.WaitGroup
	wg.Add(2)
	for party := 0; party < 2; party++ {
		party := party
		go func() {
			defer wg.Done()
			evaluate(t, ctx, ins[party][0], ins[party][1], xor[party], inv[party], outs[party])
		}()
	}
	wg.Wait()

	want := a.Xor(b).Not()
	res, err := outs[0].Result().Get(ctx)
	require.NoError(t, err)
	require.True(t, res.Equal(want))
}

func TestOutputOwnershipRestrictsRecipient(t *testing.T) {
	sess := newNPartySession(t, 2)
	defer sess.close()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	inputID := sess.provs[0].NextInputID()
	in0, err := bmr.NewInputGate(sess.bps[0], 0, inputID, 1)
	require.NoError(t, err)
	in1, err := bmr.NewInputGate(sess.bps[1], 0, inputID, 1)
	require.NoError(t, err)
	in0.SetInput(bits(true))

	out0, err := bmr.NewOutputGate(sess.bps[0], in0.Output(), 0)
	require.NoError(t, err)
	out1, err := bmr.NewOutputGate(sess.bps[1], in1.Output(), 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); evaluate(t, ctx, in0, out0) }()
	go func() { defer wg.Done(); evaluate(t, ctx, in1, out1) }()
	wg.Wait()

	res0, err := out0.Result().Get(ctx)
	require.NoError(t, err)
	require.True(t, res0.Equal(bits(true)))

	_, err = out1.Result().Get(ctx)
	require.Error(t, err)
}
