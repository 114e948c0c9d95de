package wire

import (
	"context"
	"reflect"
	"sync"

	"github.com/emberpc/gatecore/pkg/gatecore/gerr"
)

// Unsigned is the set of integer types the arithmetic-BEAVY wire can
// carry, sharing additively modulo 2^bitsize(T) via native wraparound.
type Unsigned interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Arithmetic carries an additive-shared value, the arithmetic analogue of
// BooleanBEAVY: a per-party secret share sampled in setup and a public
// masked value revealed online, satisfying
// clear = public - sum_over_all_parties(share) (mod 2^bitsize(T)), the
// additive counterpart of BooleanBEAVY's XOR invariant.
type Arithmetic[T Unsigned] struct {
	numSimd int

	setupReady  *readiness
	onlineReady *readiness

	mu           sync.RWMutex
	share        []T
	public       []T
	waitingGates []uint64
}

// NewArithmetic constructs a wire carrying numSimd parallel lanes of T.
func NewArithmetic[T Unsigned](numSimd int) *Arithmetic[T] {
	if numSimd <= 0 {
		panic("wire: num_simd must be positive")
	}
	return &Arithmetic[T]{
		numSimd:     numSimd,
		setupReady:  newReadiness(),
		onlineReady: newReadiness(),
	}
}

// NumSimd returns the fixed lane count.
func (w *Arithmetic[T]) NumSimd() int { return w.numSimd }

// SetSecretShare finalizes this party's additive share and fires
// setup-ready. Must be called exactly once, before SetPublicShare.
func (w *Arithmetic[T]) SetSecretShare(gateID uint64, share []T) {
	if len(share) != w.numSimd {
		panic(gerr.Newf(gateID, "setup", gerr.ConfigInvalid, "secret share size %d, want %d", len(share), w.numSimd))
	}
	w.mu.Lock()
	w.share = share
	w.mu.Unlock()
	w.setupReady.fire(gateID, "setup", "setup_ready")
}

// SetPublicShare finalizes the revealed masked value and fires online-ready.
// Must be called exactly once, after setup-ready has fired.
func (w *Arithmetic[T]) SetPublicShare(gateID uint64, public []T) {
	if len(public) != w.numSimd {
		panic(gerr.Newf(gateID, "online", gerr.ConfigInvalid, "public share size %d, want %d", len(public), w.numSimd))
	}
	w.mu.Lock()
	w.public = public
	w.mu.Unlock()
	w.onlineReady.fire(gateID, "online", "online_ready")
}

// WaitSetup blocks until the secret share is final.
func (w *Arithmetic[T]) WaitSetup(ctx context.Context) error { return w.setupReady.wait(ctx) }

// WaitOnline blocks until the public share is final.
func (w *Arithmetic[T]) WaitOnline(ctx context.Context) error { return w.onlineReady.wait(ctx) }

// SecretShare returns this party's additive share. Callers must WaitSetup
// first.
func (w *Arithmetic[T]) SecretShare() []T {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.share
}

// PublicShare returns the revealed masked value. Callers must WaitOnline
// first.
func (w *Arithmetic[T]) PublicShare() []T {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.public
}

// AddWaitingGate records that gateID consumes this wire.
func (w *Arithmetic[T]) AddWaitingGate(gateID uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.waitingGates = append(w.waitingGates, gateID)
}

// WaitingGates returns the recorded consumer gate ids.
func (w *Arithmetic[T]) WaitingGates() []uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]uint64, len(w.waitingGates))
	copy(out, w.waitingGates)
	return out
}

// ElemSize returns the byte width of one T lane.
func ElemSize[T Unsigned]() int {
	var v T
	return int(reflect.TypeOf(v).Size())
}

// EncodeUints packs vals little-endian per lane, for PRG draws and message
// framing shared with the boolean side's bitvec-addressed transport.
func EncodeUints[T Unsigned](vals []T) []byte {
	size := ElemSize[T]()
	out := make([]byte, len(vals)*size)
	for i, v := range vals {
		for b := 0; b < size; b++ {
			out[i*size+b] = byte(v >> (8 * b))
		}
	}
	return out
}

// DecodeUints is EncodeUints's inverse, reading n lanes from buf.
func DecodeUints[T Unsigned](buf []byte, n int) []T {
	size := ElemSize[T]()
	out := make([]T, n)
	for i := 0; i < n; i++ {
		var v T
		for b := 0; b < size; b++ {
			v |= T(buf[i*size+b]) << (8 * b)
		}
		out[i] = v
	}
	return out
}
