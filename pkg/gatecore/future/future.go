// Package future implements a single-producer/single-consumer hand-off
// cell: completable exactly once, with consumers awaiting and receiving
// the value.
//
// Both wire readiness events and inbound message futures are built on top
// of this cell.
package future

import (
	"context"
	"sync"
)

// Cell is a value slot completable exactly once. The zero value is not
// usable; construct with New.
type Cell[T any] struct {
	once sync.Once
	done chan struct{}

	mu    sync.Mutex
	value T
	err   error
}

// New returns a ready-to-use, unset Cell.
func New[T any]() *Cell[T] {
	return &Cell[T]{done: make(chan struct{})}
}

// Set completes the cell with value. Only the first call takes effect,
// matching the idempotent, fires-exactly-once contract wire readiness
// events need; subsequent calls are silently
// ignored by design so a defensive double-fire from a poisoned gate cannot
// panic an unrelated consumer. Callers that must detect a double-fire (as
// the wire package's readiness events do, panicking on a second fire)
// track that themselves before calling Set.
func (c *Cell[T]) Set(value T) {
	c.once.Do(func() {
		c.mu.Lock()
		c.value = value
		c.mu.Unlock()
		close(c.done)
	})
}

// Fail completes the cell with an error instead of a value. A subsequent
// Get returns the zero value of T and this error.
func (c *Cell[T]) Fail(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
	})
}

// Get blocks until the cell is completed or ctx is done, whichever comes
// first. It is safe to call Get after completion; it returns immediately.
func (c *Cell[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.value, c.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Wait blocks until the cell is completed or ctx is done. Unlike Get it
// discards the value, for callers that only need the readiness signal
// (wire.WaitSetup / WaitOnline).
func (c *Cell[T]) Wait(ctx context.Context) error {
	_, err := c.Get(ctx)
	return err
}

// Done returns a channel closed once the cell is completed, for callers
// that want to select over multiple cells at once.
func (c *Cell[T]) Done() <-chan struct{} {
	return c.done
}

// IsSet reports whether Set or Fail has already been called, without
// blocking.
func (c *Cell[T]) IsSet() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
