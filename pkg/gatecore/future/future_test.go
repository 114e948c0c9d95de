package future_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/emberpc/gatecore/pkg/gatecore/future"
)

func TestSetThenGet(t *testing.T) {
	c := future.New[int]()
	c.Set(42)
	v, err := c.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestGetBlocksUntilSet(t *testing.T) {
	c := future.New[string]()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		c.Set("ready")
	}()

	v, err := c.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ready", v)
	wg.Wait()
}

func TestSetOnlyOnce(t *testing.T) {
	c := future.New[int]()
	c.Set(1)
	c.Set(2)
	v, err := c.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestFailPropagatesError(t *testing.T) {
	c := future.New[int]()
	sentinel := errors.New("boom")
	c.Fail(sentinel)
	_, err := c.Get(context.Background())
	require.ErrorIs(t, err, sentinel)
}

func TestGetRespectsContextCancellation(t *testing.T) {
	c := future.New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := c.Get(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIsSet(t *testing.T) {
	c := future.New[int]()
	require.False(t, c.IsSet())
	c.Set(1)
	require.True(t, c.IsSet())
}
