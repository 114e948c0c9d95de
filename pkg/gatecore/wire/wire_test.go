package wire_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/emberpc/gatecore/pkg/gatecore/bitvec"
	"github.com/emberpc/gatecore/pkg/gatecore/transport"
	"github.com/emberpc/gatecore/pkg/gatecore/wire"
)

func bits(vals ...bool) *bitvec.BitVector {
	v := bitvec.New(len(vals))
	for i, b := range vals {
		v.Set(i, b)
	}
	return v
}

func TestBooleanBEAVYReadinessOrder(t *testing.T) {
	w := wire.NewBooleanBEAVY(4)
	require.False(t, w.SetupReady())
	require.False(t, w.OnlineReady())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		require.NoError(t, w.WaitSetup(ctx))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("WaitSetup returned before setup-ready fired")
	case <-time.After(20 * time.Millisecond):
	}

	w.SetSecretShare(1, bits(true, false, true, false))
	<-done
	require.True(t, w.SetupReady())
	require.True(t, w.SecretShare().Equal(bits(true, false, true, false)))

	w.SetPublicShare(1, bits(false, false, true, true))
	require.True(t, w.OnlineReady())
	require.True(t, w.PublicShare().Equal(bits(false, false, true, true)))
}

func TestBooleanBEAVYDoubleFirePanics(t *testing.T) {
	w := wire.NewBooleanBEAVY(1)
	w.SetSecretShare(1, bits(true))
	require.Panics(t, func() { w.SetSecretShare(1, bits(false)) })
}

func TestBooleanBEAVYWrongSizePanics(t *testing.T) {
	w := wire.NewBooleanBEAVY(2)
	require.Panics(t, func() { w.SetSecretShare(1, bits(true)) })
}

func TestWaitingGatesRecorded(t *testing.T) {
	w := wire.NewBooleanBEAVY(1)
	w.AddWaitingGate(5)
	w.AddWaitingGate(7)
	require.Equal(t, []uint64{5, 7}, w.WaitingGates())
}

func TestBMRReadinessAndKeys(t *testing.T) {
	w := wire.NewBMR(2, 0)
	require.Equal(t, wire.DefaultKappa, w.Kappa())

	keys0 := []map[transport.PartyID][]byte{{0: []byte("k0-lane0")}, {0: []byte("k0-lane1")}}
	keys1 := []map[transport.PartyID][]byte{{0: []byte("k1-lane0")}, {0: []byte("k1-lane1")}}
	w.SetGarbling(2, bits(true, false), keys0, keys1)
	require.True(t, w.SetupReady())

	share := w.PermutationShare()
	require.True(t, share.Equal(bits(true, false)))

	w.SetPublicValue(2, bits(false, true))
	require.True(t, w.OnlineReady())
	require.True(t, w.PublicValue().Equal(bits(false, true)))
}
