// Package wire implements the BEAVY and BMR wire types: a fixed SIMD-lane
// count, interior-mutable value slots guarded by one-shot setup/online
// readiness events, and back-references to waiting gate ids carried by id
// only, to avoid pinning a consumer gate alive from its wire.
package wire

import (
	"context"
	"sync"

	"github.com/emberpc/gatecore/pkg/gatecore/bitvec"
	"github.com/emberpc/gatecore/pkg/gatecore/gerr"
)

// readiness is a one-shot event that fires at most once and panics loudly on
// a second fire. Unlike future.Cell (silent double-Set) this is
// deliberately strict: readiness double-fire is a gate implementation bug,
// not a poisoning race.
type readiness struct {
	mu    sync.Mutex
	fired bool
	done  chan struct{}
}

func newReadiness() *readiness {
	return &readiness{done: make(chan struct{})}
}

func (r *readiness) fire(gateID uint64, phase, what string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fired {
		panic(gerr.Newf(gateID, phase, gerr.ProtocolViolation, "%s fired twice", what))
	}
	r.fired = true
	close(r.done)
}

func (r *readiness) wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *readiness) isFired() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// BooleanBEAVY carries a BEAVY Boolean wire's public share (Delta, known
// online) and secret share (delta, known after setup), with the invariant
// clear = Delta XOR XOR_over_parties(delta).
type BooleanBEAVY struct {
	numSimd int

	setupReady  *readiness
	onlineReady *readiness

	mu           sync.RWMutex
	secretShare  *bitvec.BitVector
	publicShare  *bitvec.BitVector
	waitingGates []uint64
}

// NewBooleanBEAVY constructs a wire carrying numSimd parallel lanes.
func NewBooleanBEAVY(numSimd int) *BooleanBEAVY {
	if numSimd <= 0 {
		panic("wire: num_simd must be positive")
	}
	return &BooleanBEAVY{
		numSimd:     numSimd,
		setupReady:  newReadiness(),
		onlineReady: newReadiness(),
	}
}

// NumSimd returns the fixed lane count.
func (w *BooleanBEAVY) NumSimd() int { return w.numSimd }

// SetSecretShare finalizes delta and fires setup-ready. Must be called
// exactly once, before SetPublicShare.
func (w *BooleanBEAVY) SetSecretShare(gateID uint64, delta *bitvec.BitVector) {
	if delta.Size() != w.numSimd {
		panic(gerr.Newf(gateID, "setup", gerr.ConfigInvalid, "secret share size %d, want %d", delta.Size(), w.numSimd))
	}
	w.mu.Lock()
	w.secretShare = delta
	w.mu.Unlock()
	w.setupReady.fire(gateID, "setup", "setup_ready")
}

// SetPublicShare finalizes Delta and fires online-ready. Must be called
// exactly once, after setup-ready has fired.
func (w *BooleanBEAVY) SetPublicShare(gateID uint64, Delta *bitvec.BitVector) {
	if Delta.Size() != w.numSimd {
		panic(gerr.Newf(gateID, "online", gerr.ConfigInvalid, "public share size %d, want %d", Delta.Size(), w.numSimd))
	}
	w.mu.Lock()
	w.publicShare = Delta
	w.mu.Unlock()
	w.onlineReady.fire(gateID, "online", "online_ready")
}

// WaitSetup blocks until the secret share is final.
func (w *BooleanBEAVY) WaitSetup(ctx context.Context) error { return w.setupReady.wait(ctx) }

// WaitOnline blocks until the public share is final.
func (w *BooleanBEAVY) WaitOnline(ctx context.Context) error { return w.onlineReady.wait(ctx) }

// SetupReady reports whether the secret share is already final.
func (w *BooleanBEAVY) SetupReady() bool { return w.setupReady.isFired() }

// OnlineReady reports whether the public share is already final.
func (w *BooleanBEAVY) OnlineReady() bool { return w.onlineReady.isFired() }

// SecretShare returns delta. Callers must WaitSetup first.
func (w *BooleanBEAVY) SecretShare() *bitvec.BitVector {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.secretShare
}

// PublicShare returns Delta. Callers must WaitOnline first.
func (w *BooleanBEAVY) PublicShare() *bitvec.BitVector {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.publicShare
}

// AddWaitingGate records that gateID consumes this wire, for diagnostics
// and for detecting leaked fibers. Ids only, never gate handles, so wires
// never hold a consumer alive.
func (w *BooleanBEAVY) AddWaitingGate(gateID uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.waitingGates = append(w.waitingGates, gateID)
}

// WaitingGates returns the recorded consumer gate ids.
func (w *BooleanBEAVY) WaitingGates() []uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]uint64, len(w.waitingGates))
	copy(out, w.waitingGates)
	return out
}
