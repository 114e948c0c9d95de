package beavy_test

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/emberpc/gatecore/pkg/gatecore/beavy"
	"github.com/emberpc/gatecore/pkg/gatecore/bitvec"
	"github.com/emberpc/gatecore/pkg/gatecore/config"
	"github.com/emberpc/gatecore/pkg/gatecore/gate"
	"github.com/emberpc/gatecore/pkg/gatecore/gerr"
	"github.com/emberpc/gatecore/pkg/gatecore/logging"
	"github.com/emberpc/gatecore/pkg/gatecore/messaging"
	"github.com/emberpc/gatecore/pkg/gatecore/mocknet"
	"github.com/emberpc/gatecore/pkg/gatecore/ot"
	"github.com/emberpc/gatecore/pkg/gatecore/provider"
	"github.com/emberpc/gatecore/pkg/gatecore/transport"
)

// twoPartySession wires up a full two-party gate-engine session over
// mocknet: Hello handshake, OT base-key bootstrap, and a running receive
// loop per party, ready for gate construction and evaluation.
type twoPartySession struct {
	provs  [2]*provider.Context
	net    *mocknet.Net
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newTwoPartySession(t *testing.T) *twoPartySession {
	t.Helper()
	net := mocknet.New()
	all := []transport.PartyID{0, 1}
	eps := [2]*mocknet.Endpoint{net.NewEndpoint(0, all), net.NewEndpoint(1, all)}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &twoPartySession{net: net, cancel: cancel}

	var provs [2]*provider.Context
	var wgSetup sync.WaitGroup
	wgSetup.Add(2)
	for i := 0; i < 2; i++ {
		i := i
		go func() {
			defer wgSetup.Done()
			self := transport.PartyID(i)
			peer := transport.PartyID(1 - i)
			pairs, err := messaging.PerformHandshake(ctx, self, []transport.PartyID{peer}, 2, false, "test-v1", eps[i])
			require.NoError(t, err)
			correlator := messaging.NewCorrelator(pairs)

			bases, err := ot.BootstrapAll(ctx, []transport.PartyID{peer}, eps[i])
			require.NoError(t, err)

			registry := messaging.NewRegistry(self, []transport.PartyID{peer}, eps[i])
			otManager := ot.NewManager(registry, bases)

			cfg := config.Config{PartyID: i, PartyCount: 2}
			provs[i] = provider.New(cfg, registry, correlator, otManager, logging.New(nil))
		}()
	}
	wgSetup.Wait()
	sess.provs = provs

	sess.wg.Add(2)
	for i := 0; i < 2; i++ {
		i := i
		go func() {
			defer sess.wg.Done()
			peer := transport.PartyID(1 - i)
			_ = provs[i].Registry().RunReceiveLoop(ctx, peer)
		}()
	}
	return sess
}

func (s *twoPartySession) close() {
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

func TestANDGateTruthTable(t *testing.T) {
	cases := []struct {
		a, b, want bool
	}{
		{false, false, false},
		{false, true, false},
		{true, false, false},
		{true, true, true},
	}
	for _, tc := range cases {
		sess := newTwoPartySession(t)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)

		sIn0 := beavy.NewInputGateSender(sess.provs[0], sess.provs[0].NextInputID(), 1)
		rIn0, err := beavy.NewInputGateReceiver(sess.provs[1], 0, 0, 1)
		require.NoError(t, err)
		sIn1 := beavy.NewInputGateSender(sess.provs[1], sess.provs[1].NextInputID(), 1)
		rIn1, err := beavy.NewInputGateReceiver(sess.provs[0], 1, 0, 1)
		require.NoError(t, err)

		sIn0.SetInput(bits(tc.a))
		sIn1.SetInput(bits(tc.b))

		and0, err := beavy.NewANDGate(sess.provs[0], sIn0.Output(), rIn1.Output())
		require.NoError(t, err)
		and1, err := beavy.NewANDGate(sess.provs[1], rIn0.Output(), sIn1.Output())
		require.NoError(t, err)

		out0, err := beavy.NewOutputGate(sess.provs[0], and0.Output(), beavy.AllParties)
		require.NoError(t, err)
		out1, err := beavy.NewOutputGate(sess.provs[1], and1.Output(), beavy.AllParties)
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); evaluate(t, ctx, sIn0, rIn1, and0, out0) }()
		go func() { defer wg.Done(); evaluate(t, ctx, rIn0, sIn1, and1, out1) }()
		wg.Wait()

		res0, err := out0.Result().Get(ctx)
		require.NoError(t, err)
		res1, err := out1.Result().Get(ctx)
		require.NoError(t, err)
		require.True(t, res0.Equal(bits(tc.want)))
		require.True(t, res1.Equal(bits(tc.want)))

		cancel()
		sess.close()
	}
}

func TestXORChainAndINV(t *testing.T) {
	sess := newTwoPartySession(t)
	defer sess.close()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sIn0 := beavy.NewInputGateSender(sess.provs[0], sess.provs[0].NextInputID(), 4)
	rIn0, err := beavy.NewInputGateReceiver(sess.provs[1], 0, 0, 4)
	require.NoError(t, err)
	sIn1 := beavy.NewInputGateSender(sess.provs[1], sess.provs[1].NextInputID(), 4)
	rIn1, err := beavy.NewInputGateReceiver(sess.provs[0], 1, 0, 4)
	require.NoError(t, err)

	a := bits(true, false, true, false)
	b := bits(false, false, true, true)
	sIn0.SetInput(a)
	sIn1.SetInput(b)

	xor0 := beavy.NewXORGate(sess.provs[0], sIn0.Output(), rIn1.Output())
	xor1 := beavy.NewXORGate(sess.provs[1], rIn0.Output(), sIn1.Output())
	inv0 := beavy.NewINVGate(sess.provs[0], xor0.Output())
	inv1 := beavy.NewINVGate(sess.provs[1], xor1.Output())

	out0, err := beavy.NewOutputGate(sess.provs[0], inv0.Output(), beavy.AllParties)
	require.NoError(t, err)
	out1, err := beavy.NewOutputGate(sess.provs[1], inv1.Output(), beavy.AllParties)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); evaluate(t, ctx, sIn0, rIn1, xor0, inv0, out0) }()
	go func() { defer wg.Done(); evaluate(t, ctx, rIn0, sIn1, xor1, inv1, out1) }()
	wg.Wait()

	want := a.Xor(b).Not()
	res0, err := out0.Result().Get(ctx)
	require.NoError(t, err)
	require.True(t, res0.Equal(want))
}

func TestOutputOwnershipRestrictsRecipient(t *testing.T) {
	sess := newTwoPartySession(t)
	defer sess.close()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sIn0 := beavy.NewInputGateSender(sess.provs[0], sess.provs[0].NextInputID(), 1)
	rIn0, err := beavy.NewInputGateReceiver(sess.provs[1], 0, 0, 1)
	require.NoError(t, err)
	sIn0.SetInput(bits(true))

	out0, err := beavy.NewOutputGate(sess.provs[0], sIn0.Output(), 0)
	require.NoError(t, err)
	out1, err := beavy.NewOutputGate(sess.provs[1], rIn0.Output(), 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); evaluate(t, ctx, sIn0, out0) }()
	go func() { defer wg.Done(); evaluate(t, ctx, rIn0, out1) }()
	wg.Wait()

	res0, err := out0.Result().Get(ctx)
	require.NoError(t, err)
	require.True(t, res0.Equal(bits(true)))

	_, err = out1.Result().Get(ctx)
	require.Error(t, err)
}

// TestANDGateFuzzSIMD8 exercises an AND gate at SIMD width 8 with
// randomized lanes, checked against lane-wise boolean AND on every
// trial rather than a fixed truth table.
func TestANDGateFuzzSIMD8(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	const simd = 8
	for trial := 0; trial < 20; trial++ {
		a := make([]bool, simd)
		b := make([]bool, simd)
		want := make([]bool, simd)
		for i := range a {
			a[i] = rng.Intn(2) == 1
			b[i] = rng.Intn(2) == 1
			want[i] = a[i] && b[i]
		}

		sess := newTwoPartySession(t)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)

		sIn0 := beavy.NewInputGateSender(sess.provs[0], sess.provs[0].NextInputID(), simd)
		rIn0, err := beavy.NewInputGateReceiver(sess.provs[1], 0, 0, simd)
		require.NoError(t, err)
		sIn1 := beavy.NewInputGateSender(sess.provs[1], sess.provs[1].NextInputID(), simd)
		rIn1, err := beavy.NewInputGateReceiver(sess.provs[0], 1, 0, simd)
		require.NoError(t, err)

		sIn0.SetInput(bits(a...))
		sIn1.SetInput(bits(b...))

		and0, err := beavy.NewANDGate(sess.provs[0], sIn0.Output(), rIn1.Output())
		require.NoError(t, err)
		and1, err := beavy.NewANDGate(sess.provs[1], rIn0.Output(), sIn1.Output())
		require.NoError(t, err)

		out0, err := beavy.NewOutputGate(sess.provs[0], and0.Output(), beavy.AllParties)
		require.NoError(t, err)
		out1, err := beavy.NewOutputGate(sess.provs[1], and1.Output(), beavy.AllParties)
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); evaluate(t, ctx, sIn0, rIn1, and0, out0) }()
		go func() { defer wg.Done(); evaluate(t, ctx, rIn0, sIn1, and1, out1) }()
		wg.Wait()

		res0, err := out0.Result().Get(ctx)
		require.NoError(t, err)
		res1, err := out1.Result().Get(ctx)
		require.NoError(t, err)
		require.True(t, res0.Equal(bits(want...)), "trial %d: a=%v b=%v", trial, a, b)
		require.True(t, res1.Equal(bits(want...)), "trial %d: a=%v b=%v", trial, a, b)

		cancel()
		sess.close()
	}
}

// TestAbortMidEvaluationOnDisconnect checks that a
// peer disappearing mid-evaluation fails the waiting party with
// gerr.ErrPeerGone rather than hanging forever.
func TestAbortMidEvaluationOnDisconnect(t *testing.T) {
	sess := newTwoPartySession(t)
	defer sess.close()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sIn0 := beavy.NewInputGateSender(sess.provs[0], sess.provs[0].NextInputID(), 1)
	rIn0, err := beavy.NewInputGateReceiver(sess.provs[1], 0, 0, 1)
	require.NoError(t, err)
	sIn0.SetInput(bits(true))

	out0, err := beavy.NewOutputGate(sess.provs[0], sIn0.Output(), beavy.AllParties)
	require.NoError(t, err)

	require.NoError(t, sIn0.EvaluateSetup(ctx))
	require.NoError(t, out0.EvaluateSetup(ctx))

	sess.net.Disconnect(0)

	require.NoError(t, rIn0.EvaluateSetup(ctx))
	// sIn0 never broadcasts its masked value; with party 0 marked gone the
	// waiting receiver must fail fast instead of blocking on the timeout.
	err = rIn0.EvaluateOnline(ctx)
	require.Error(t, err)
	require.ErrorIs(t, err, gerr.ErrPeerGone)
}
