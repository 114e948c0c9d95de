package wire

import (
	"context"
	"sync"

	"github.com/emberpc/gatecore/pkg/gatecore/bitvec"
	"github.com/emberpc/gatecore/pkg/gatecore/gerr"
	"github.com/emberpc/gatecore/pkg/gatecore/transport"
)

// DefaultKappa is the symmetric security parameter BMR wire keys use
// unless a caller overrides it (typically 128).
const DefaultKappa = 128

// BMR carries a garbled-circuit wire: a local share of the permutation bit
// lambda per lane, and the per-party kappa-bit keys for both possible
// values, per lane. keys_0[lane][party] is the
// kappa-bit key that party contributed for this wire carrying value 0 at
// that SIMD lane; keys_1 is its value-1 counterpart.
type BMR struct {
	numSimd int
	kappa   int

	setupReady  *readiness
	onlineReady *readiness

	mu               sync.RWMutex
	permutationShare *bitvec.BitVector
	keys0            []map[transport.PartyID][]byte
	keys1            []map[transport.PartyID][]byte
	publicValue      *bitvec.BitVector
	waitingGates     []uint64
}

// NewBMR constructs a wire carrying numSimd lanes with kappa-bit keys.
// kappa <= 0 selects DefaultKappa.
func NewBMR(numSimd, kappa int) *BMR {
	if numSimd <= 0 {
		panic("wire: num_simd must be positive")
	}
	if kappa <= 0 {
		kappa = DefaultKappa
	}
	return &BMR{
		numSimd:     numSimd,
		kappa:       kappa,
		setupReady:  newReadiness(),
		onlineReady: newReadiness(),
	}
}

// NumSimd returns the fixed lane count.
func (w *BMR) NumSimd() int { return w.numSimd }

// Kappa returns the wire key length in bits.
func (w *BMR) Kappa() int { return w.kappa }

// SetGarbling finalizes this party's permutation-bit share and the per-lane,
// per-party key table, and fires setup-ready. Called exactly once by the
// producing gate.
func (w *BMR) SetGarbling(gateID uint64, permutationShare *bitvec.BitVector, keys0, keys1 []map[transport.PartyID][]byte) {
	if permutationShare.Size() != w.numSimd {
		panic(gerr.Newf(gateID, "setup", gerr.ConfigInvalid,
			"permutation share size %d, want %d", permutationShare.Size(), w.numSimd))
	}
	if len(keys0) != w.numSimd || len(keys1) != w.numSimd {
		panic(gerr.Newf(gateID, "setup", gerr.ConfigInvalid, "key table has %d/%d lanes, want %d", len(keys0), len(keys1), w.numSimd))
	}
	w.mu.Lock()
	w.permutationShare = permutationShare
	w.keys0 = keys0
	w.keys1 = keys1
	w.mu.Unlock()
	w.setupReady.fire(gateID, "setup", "setup_ready")
}

// SetPublicValue finalizes the revealed masked bits (x XOR lambda per lane)
// and fires online-ready.
func (w *BMR) SetPublicValue(gateID uint64, value *bitvec.BitVector) {
	if value.Size() != w.numSimd {
		panic(gerr.Newf(gateID, "online", gerr.ConfigInvalid, "public value size %d, want %d", value.Size(), w.numSimd))
	}
	w.mu.Lock()
	w.publicValue = value
	w.mu.Unlock()
	w.onlineReady.fire(gateID, "online", "online_ready")
}

// WaitSetup blocks until the garbling is final.
func (w *BMR) WaitSetup(ctx context.Context) error { return w.setupReady.wait(ctx) }

// WaitOnline blocks until the public value is final.
func (w *BMR) WaitOnline(ctx context.Context) error { return w.onlineReady.wait(ctx) }

// SetupReady reports whether the garbling is already final.
func (w *BMR) SetupReady() bool { return w.setupReady.isFired() }

// OnlineReady reports whether the public value is already final.
func (w *BMR) OnlineReady() bool { return w.onlineReady.isFired() }

// PermutationShare returns this party's lambda share. Callers must
// WaitSetup first.
func (w *BMR) PermutationShare() *bitvec.BitVector {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.permutationShare
}

// Keys returns the per-lane, per-party key tables for value 0 and value 1.
// Callers must WaitSetup first.
func (w *BMR) Keys() (keys0, keys1 []map[transport.PartyID][]byte) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.keys0, w.keys1
}

// PublicValue returns the revealed masked bits (x XOR lambda per lane).
// Callers must WaitOnline
// first.
func (w *BMR) PublicValue() *bitvec.BitVector {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.publicValue
}

// AddWaitingGate records that gateID consumes this wire.
func (w *BMR) AddWaitingGate(gateID uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.waitingGates = append(w.waitingGates, gateID)
}

// WaitingGates returns the recorded consumer gate ids.
func (w *BMR) WaitingGates() []uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]uint64, len(w.waitingGates))
	copy(out, w.waitingGates)
	return out
}
