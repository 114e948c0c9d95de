package ot_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/emberpc/gatecore/pkg/gatecore/bitvec"
	"github.com/emberpc/gatecore/pkg/gatecore/messaging"
	"github.com/emberpc/gatecore/pkg/gatecore/mocknet"
	"github.com/emberpc/gatecore/pkg/gatecore/ot"
	"github.com/emberpc/gatecore/pkg/gatecore/transport"
)

// setupPair bootstraps OT base keys and a registry between two mocknet
// endpoints, running each peer's receive loop in the background.
func setupPair(t *testing.T) (mgr0, mgr1 *ot.Manager, cancel func()) {
	t.Helper()
	net := mocknet.New()
	all := []transport.PartyID{0, 1}
	ep0 := net.NewEndpoint(0, all)
	ep1 := net.NewEndpoint(1, all)

	ctx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)

	var wg sync.WaitGroup
	wg.Add(2)
	var bases0, bases1 map[transport.PartyID]*ot.BaseKeys
	var err0, err1 error
	go func() {
		defer wg.Done()
		bases0, err0 = ot.BootstrapAll(ctx, []transport.PartyID{1}, ep0)
	}()
	go func() {
		defer wg.Done()
		bases1, err1 = ot.BootstrapAll(ctx, []transport.PartyID{0}, ep1)
	}()
	wg.Wait()
	require.NoError(t, err0)
	require.NoError(t, err1)

	reg0 := messaging.NewRegistry(0, []transport.PartyID{1}, ep0)
	reg1 := messaging.NewRegistry(1, []transport.PartyID{0}, ep1)
	go func() { _ = reg0.RunReceiveLoop(ctx, 1) }()
	go func() { _ = reg1.RunReceiveLoop(ctx, 0) }()

	return ot.NewManager(reg0, bases0), ot.NewManager(reg1, bases1), cancelFn
}

func TestXCOTBitCrossTermCorrectness(t *testing.T) {
	mgr0, mgr1, cancel := setupPair(t)
	defer cancel()

	peer0, err := mgr0.Peer(1)
	require.NoError(t, err)
	peer1, err := mgr1.Peer(0)
	require.NoError(t, err)

	const gateID = 42
	const n = 8

	// Party 0 is the OT-receiver (choices), party 1 is the OT-sender
	// (correlations), for this single direction of the pair.
	receiver, err := peer0.RegisterReceiveXCOTBit(gateID, n)
	require.NoError(t, err)
	sender, err := peer1.RegisterSendXCOTBit(gateID, n)
	require.NoError(t, err)

	choices := mustBits(t, []bool{true, false, true, true, false, false, true, false})
	correlations := mustBits(t, []bool{false, true, true, false, true, false, true, true})

	require.NoError(t, receiver.SetChoices(choices))
	require.NoError(t, sender.SetCorrelations(correlations))

	ctx, cancelCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelCtx()

	var wg sync.WaitGroup
	wg.Add(2)
	var sendErr, recvErr error
	go func() {
		defer wg.Done()
		sendErr = sender.SendMessages(ctx)
	}()
	go func() {
		defer wg.Done()
		recvErr = receiver.SendCorrections(ctx)
		if recvErr != nil {
			return
		}
		recvErr = receiver.ComputeOutputs(ctx)
	}()
	wg.Wait()
	require.NoError(t, sendErr)
	require.NoError(t, recvErr)
	require.NoError(t, sender.ComputeOutputs())

	senderOut := sender.GetOutputs()
	receiverOut := receiver.GetOutputs()
	require.NotNil(t, senderOut)
	require.NotNil(t, receiverOut)

	for i := 0; i < n; i++ {
		want := choices.Get(i) && correlations.Get(i)
		got := senderOut.Get(i) != receiverOut.Get(i) // XOR
		require.Equalf(t, want, got, "lane %d", i)
	}
}

func mustBits(t *testing.T, bits []bool) *bitvec.BitVector {
	t.Helper()
	v := bitvec.New(len(bits))
	for i, b := range bits {
		v.Set(i, b)
	}
	return v
}
