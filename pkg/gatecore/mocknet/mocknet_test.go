package mocknet_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/emberpc/gatecore/pkg/gatecore/gerr"
	"github.com/emberpc/gatecore/pkg/gatecore/mocknet"
	"github.com/emberpc/gatecore/pkg/gatecore/transport"
)

func TestNetSequenceAndPairing(t *testing.T) {
	net := mocknet.New()
	all := []transport.PartyID{0, 1}
	p1 := net.NewEndpoint(0, all)
	p2 := net.NewEndpoint(1, all)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	const rounds = 5
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			require.NoError(t, p1.Send(ctx, 1, []byte{byte(i)}))
			got, err := p1.Receive(ctx, 1)
			require.NoError(t, err)
			require.Equal(t, []byte{byte(i + 1)}, got)
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			got, err := p2.Receive(ctx, 0)
			require.NoError(t, err)
			require.Equal(t, []byte{byte(i)}, got)
			require.NoError(t, p2.Send(ctx, 0, []byte{byte(i + 1)}))
		}
	}()

	wg.Wait()
}

func TestNetReceiveAllMultiParty(t *testing.T) {
	net := mocknet.New()
	all := []transport.PartyID{0, 1, 2}
	ep0 := net.NewEndpoint(0, all)
	ep1 := net.NewEndpoint(1, all)
	ep2 := net.NewEndpoint(2, all)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); require.NoError(t, ep1.Send(ctx, 0, []byte("from1"))) }()
	go func() { defer wg.Done(); require.NoError(t, ep2.Send(ctx, 0, []byte("from2"))) }()
	wg.Wait()

	msgs, err := ep0.ReceiveAll(ctx, []transport.PartyID{1, 2})
	require.NoError(t, err)
	require.Equal(t, []byte("from1"), msgs[1])
	require.Equal(t, []byte("from2"), msgs[2])
}

func TestNetSendToSelfFails(t *testing.T) {
	net := mocknet.New()
	ep := net.NewEndpoint(0, []transport.PartyID{0, 1})
	err := ep.Send(context.Background(), 0, []byte("x"))
	require.Error(t, err)
}

func TestNetUnknownPeerFails(t *testing.T) {
	net := mocknet.New()
	ep := net.NewEndpoint(0, []transport.PartyID{0, 1})
	err := ep.Send(context.Background(), 5, []byte("x"))
	require.Error(t, err)
}

func TestNetDisconnectFailsPendingReceive(t *testing.T) {
	net := mocknet.New()
	all := []transport.PartyID{0, 1}
	ep0 := net.NewEndpoint(0, all)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := ep0.Receive(ctx, 1)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	net.Disconnect(1)

	select {
	case err := <-done:
		require.ErrorIs(t, err, gerr.ErrPeerGone)
	case <-time.After(time.Second):
		t.Fatal("receive did not unblock after disconnect")
	}
}
