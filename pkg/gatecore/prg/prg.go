// Package prg implements a keyed, seekable counter-PRG: one instance per
// peer per direction, an outbound generator toward a peer and an inbound
// generator installed from that peer's handshake seed.
//
// The construction is a ChaCha20 keystream keyed by a 32-byte seed
// exchanged during the Hello handshake: GetBits(offset, n) seeks the
// cipher to the block containing bit offset and reads n bits from the
// keystream, MSB-first, matching bitvec's packing.
package prg

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20"

	"github.com/emberpc/gatecore/pkg/gatecore/bitvec"
)

const blockSizeBits = 64 * 8 // chacha20 block size, in bits

// Generator produces deterministic bits from a fixed 32-byte seed. GetBits
// never modifies the Generator, so one instance per direction per peer is
// shared by every gate goroutine that draws from it.
type Generator struct {
	key   [chacha20.KeySize]byte
	nonce [chacha20.NonceSize]byte
}

// NewGenerator seeds a Generator from a 32-byte value, typically the seed
// exchanged in the Hello handshake.
func NewGenerator(seed [32]byte) *Generator {
	g := &Generator{}
	copy(g.key[:], seed[:])
	return g
}

// RandomSeed samples a fresh 32-byte seed suitable for NewGenerator, used by
// a Hello initiator that has not been given an explicit seed.
func RandomSeed() ([32]byte, error) {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return seed, fmt.Errorf("prg: sampling seed: %w", err)
	}
	return seed, nil
}

// GetBits deterministically derives n bits starting at bit offset. Calls
// with the same offset always return the same bits, and two calls whose
// [offset, offset+n) ranges overlap return the same bits on the overlap;
// only disjoint ranges draw independent bits.
func (g *Generator) GetBits(offset uint64, n int) *bitvec.BitVector {
	if n == 0 {
		return bitvec.New(0)
	}
	blockStart := offset / blockSizeBits
	bitInBlock := int(offset % blockSizeBits)
	totalBits := bitInBlock + n
	totalBytes := (totalBits + 7) / 8

	cipher, err := chacha20.NewUnauthenticatedCipher(g.key[:], g.nonce[:])
	if err != nil {
		panic(fmt.Sprintf("prg: new cipher: %v", err))
	}
	cipher.SetCounter(uint32(blockStart))

	zeros := make([]byte, totalBytes)
	keystream := make([]byte, totalBytes)
	cipher.XORKeyStream(keystream, zeros)

	full, err := bitvec.FromBytes(keystream, totalBytes*8)
	if err != nil {
		panic(fmt.Sprintf("prg: unexpected framing error: %v", err))
	}
	return full.Subset(bitInBlock, bitInBlock+n)
}

// Pair holds the two per-peer randomness generators a session needs: one
// instance for outbound randomness toward a peer, one for inbound
// randomness from that same peer.
type Pair struct {
	Mine   *Generator // outbound randomness toward this peer
	Theirs *Generator // installed from the peer's Hello seed, never written
}
