package messaging

import (
	"context"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/emberpc/gatecore/pkg/gatecore/gerr"
	"github.com/emberpc/gatecore/pkg/gatecore/prg"
	"github.com/emberpc/gatecore/pkg/gatecore/transport"
)

// helloMagic distinguishes a handshake frame from a gate frame on the wire.
const helloMagic uint32 = 0x4845_4c4f // "HELO"

// Hello is the handshake message every ordered
// pair (i, j) exchanges before circuit evaluation.
type Hello struct {
	SenderID         transport.PartyID
	RecipientID      transport.PartyID
	PartyCount       uint32
	Seed             [32]byte
	HasSeed          bool
	OnlineAfterSetup bool
	Version          string
}

func (h Hello) encode() []byte {
	versionBytes := []byte(h.Version)
	checksum := blake2b.Sum256(h.Seed[:])

	buf := make([]byte, 0, 4+4+4+4+1+32+32+1+4+len(versionBytes))
	put32 := func(v uint32) { buf = binary.LittleEndian.AppendUint32(buf, v) }

	put32(helloMagic)
	put32(uint32(h.SenderID))
	put32(uint32(h.RecipientID))
	put32(h.PartyCount)
	if h.HasSeed {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, h.Seed[:]...)
	buf = append(buf, checksum[:]...)
	if h.OnlineAfterSetup {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	put32(uint32(len(versionBytes)))
	buf = append(buf, versionBytes...)
	return buf
}

func decodeHello(buf []byte) (Hello, error) {
	var h Hello
	if len(buf) < 4+4+4+4+1+32+32+1+4 {
		return h, fmt.Errorf("messaging: hello frame too short")
	}
	off := 0
	readU32 := func() uint32 {
		v := binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
		return v
	}
	if magic := readU32(); magic != helloMagic {
		return h, fmt.Errorf("messaging: bad hello magic %#x", magic)
	}
	h.SenderID = transport.PartyID(readU32())
	h.RecipientID = transport.PartyID(readU32())
	h.PartyCount = readU32()
	h.HasSeed = buf[off] == 1
	off++
	copy(h.Seed[:], buf[off:off+32])
	off += 32
	checksum := buf[off : off+32]
	off += 32
	h.OnlineAfterSetup = buf[off] == 1
	off++
	versionLen := readU32()
	if off+int(versionLen) > len(buf) {
		return h, fmt.Errorf("messaging: hello version length overruns frame")
	}
	h.Version = string(buf[off : off+int(versionLen)])

	if h.HasSeed {
		want := blake2b.Sum256(h.Seed[:])
		if string(want[:]) != string(checksum) {
			return h, fmt.Errorf("messaging: hello seed checksum mismatch")
		}
	}
	return h, nil
}

// PerformHandshake exchanges a Hello with every peer, verifying the
// reciprocal view (matched ids, matched party count, matched version),
// and installs each peer's supplied seed as the seed of "their RNG toward
// me". It returns one prg.Pair per peer.
func PerformHandshake(ctx context.Context, self transport.PartyID, peers []transport.PartyID, partyCount int, onlineAfterSetup bool, version string, t transport.Transport) (map[transport.PartyID]*prg.Pair, error) {
	mySeeds := make(map[transport.PartyID][32]byte, len(peers))
	for _, p := range peers {
		seed, err := prg.RandomSeed()
		if err != nil {
			return nil, gerr.Newf(0, "", gerr.HandshakeFailed, "sampling seed for peer %d: %v", p, err)
		}
		mySeeds[p] = seed
	}

	sendErrs := make(chan error, len(peers))
	for _, p := range peers {
		p := p
		go func() {
			hello := Hello{
				SenderID:         self,
				RecipientID:      p,
				PartyCount:       uint32(partyCount),
				Seed:             mySeeds[p],
				HasSeed:          true,
				OnlineAfterSetup: onlineAfterSetup,
				Version:          version,
			}
			sendErrs <- t.Send(ctx, p, hello.encode())
		}()
	}
	for range peers {
		if err := <-sendErrs; err != nil {
			return nil, gerr.Newf(0, "", gerr.HandshakeFailed, "sending hello: %v", err)
		}
	}

	pairs := make(map[transport.PartyID]*prg.Pair, len(peers))
	for _, p := range peers {
		buf, err := t.Receive(ctx, p)
		if err != nil {
			return nil, gerr.Newf(0, "", gerr.HandshakeFailed, "receiving hello from %d: %v", p, err)
		}
		hello, err := decodeHello(buf)
		if err != nil {
			return nil, gerr.Newf(0, "", gerr.HandshakeFailed, "decoding hello from %d: %v", p, err)
		}
		if hello.SenderID != p || hello.RecipientID != self {
			return nil, gerr.Newf(0, "", gerr.HandshakeFailed,
				"hello id mismatch: expected sender=%d recipient=%d, got sender=%d recipient=%d",
				p, self, hello.SenderID, hello.RecipientID)
		}
		if int(hello.PartyCount) != partyCount {
			return nil, gerr.Newf(0, "", gerr.HandshakeFailed,
				"hello party count mismatch: expected %d, got %d", partyCount, hello.PartyCount)
		}
		if hello.Version != version {
			return nil, gerr.Newf(0, "", gerr.HandshakeFailed,
				"hello version mismatch: expected %q, got %q", version, hello.Version)
		}
		if !hello.HasSeed {
			return nil, gerr.Newf(0, "", gerr.HandshakeFailed, "hello from %d missing seed", p)
		}
		pairs[p] = &prg.Pair{
			Mine:   prg.NewGenerator(mySeeds[p]),
			Theirs: prg.NewGenerator(hello.Seed),
		}
	}
	return pairs, nil
}
