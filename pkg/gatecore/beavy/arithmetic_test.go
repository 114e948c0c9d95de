package beavy_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/emberpc/gatecore/pkg/gatecore/beavy"
)

// TestArithmeticInputOutputRoundTrip covers the parametric generalization
// promoted out of the source's commented-out arithmetic input gates: both
// parties share a uint32 input, and party 0's input, revealed to every
// party, must come back unchanged modulo 2^32.
func TestArithmeticInputOutputRoundTrip(t *testing.T) {
	sess := newTwoPartySession(t)
	defer sess.close()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	a := []uint32{7, 4294967290} // second lane sits near 2^32, so masking wraps
	b := []uint32{35, 10}

	sIn0 := beavy.NewArithmeticInputGateSender[uint32](sess.provs[0], sess.provs[0].NextInputID(), 2)
	rIn0, err := beavy.NewArithmeticInputGateReceiver[uint32](sess.provs[1], 0, 0, 2)
	require.NoError(t, err)
	sIn1 := beavy.NewArithmeticInputGateSender[uint32](sess.provs[1], sess.provs[1].NextInputID(), 2)
	rIn1, err := beavy.NewArithmeticInputGateReceiver[uint32](sess.provs[0], 1, 0, 2)
	require.NoError(t, err)

	sIn0.SetInput(a)
	sIn1.SetInput(b)

	// This gate family has no arithmetic ADD gate of its own (that would be
	// a second free, no-communication gate mirroring XOR's shape); this
	// test exercises the input/output round trip directly by revealing
	// party 0's own input wire.
	out0, err := beavy.NewArithmeticOutputGate[uint32](sess.provs[0], sIn0.Output(), beavy.AllParties)
	require.NoError(t, err)
	out1, err := beavy.NewArithmeticOutputGate[uint32](sess.provs[1], rIn0.Output(), beavy.AllParties)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		require.NoError(t, sIn0.EvaluateSetup(ctx))
		require.NoError(t, rIn1.EvaluateSetup(ctx))
		require.NoError(t, out0.EvaluateSetup(ctx))
		require.NoError(t, sIn0.EvaluateOnline(ctx))
		require.NoError(t, rIn1.EvaluateOnline(ctx))
		require.NoError(t, out0.EvaluateOnline(ctx))
	}()
	go func() {
		defer wg.Done()
		require.NoError(t, rIn0.EvaluateSetup(ctx))
		require.NoError(t, sIn1.EvaluateSetup(ctx))
		require.NoError(t, out1.EvaluateSetup(ctx))
		require.NoError(t, rIn0.EvaluateOnline(ctx))
		require.NoError(t, sIn1.EvaluateOnline(ctx))
		require.NoError(t, out1.EvaluateOnline(ctx))
	}()
	wg.Wait()

	res0, err := out0.Result().Get(ctx)
	require.NoError(t, err)
	res1, err := out1.Result().Get(ctx)
	require.NoError(t, err)
	require.Equal(t, a, res0)
	require.Equal(t, a, res1)
}
