// Package transport defines the messaging contract the gate engine's
// backend drives, and the wire framing used to address each frame to its
// gate. The interface is deliberately narrow so a caller can back it with an
// in-process mock (see pkg/gatecore/mocknet), a plain TCP dialer, or an
// mTLS-authenticated socket without the core knowing the difference.
package transport

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/emberpc/gatecore/pkg/gatecore/bitvec"
)

// PartyID identifies a party within a session. Values start at 0 and
// increase monotonically for additional parties.
type PartyID uint32

// Transport captures the messaging contract required by the gate engine.
//
// Concurrency: implementations MUST be safe for concurrent use by multiple
// goroutines; the backend's fiber pool drives sends and receives from many
// gate tasks at once.
//
// Ordering: within a single peer-to-peer channel, messages are delivered in
// send order; across channels there is no ordering guarantee, and callers
// must not assume one.
type Transport interface {
	Send(ctx context.Context, to PartyID, msg []byte) error
	Receive(ctx context.Context, from PartyID) ([]byte, error)
	ReceiveAll(ctx context.Context, from []PartyID) (map[PartyID][]byte, error)
}

// MagicTag prefixes every wire message frame, guarding against a
// misconfigured transport delivering frames from an unrelated protocol.
const MagicTag uint32 = 0x4741_5445 // "GATE"

// EncodeFrame serializes a gate-id-addressed bit payload using the fixed
// layout magic_tag | gate_id (u64 LE) | payload_length (u32 LE) |
// payload_bits.
func EncodeFrame(gateID uint64, payload *bitvec.BitVector) []byte {
	body := payload.Bytes()
	buf := make([]byte, 4+8+4+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], MagicTag)
	binary.LittleEndian.PutUint64(buf[4:12], gateID)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(payload.Size()))
	copy(buf[16:], body)
	return buf
}

// DecodeFrame parses a frame produced by EncodeFrame, returning the gate id
// and the payload bit-vector.
func DecodeFrame(buf []byte) (gateID uint64, payload *bitvec.BitVector, err error) {
	if len(buf) < 16 {
		return 0, nil, fmt.Errorf("transport: frame too short: %d bytes", len(buf))
	}
	tag := binary.LittleEndian.Uint32(buf[0:4])
	if tag != MagicTag {
		return 0, nil, fmt.Errorf("transport: bad magic tag %#x", tag)
	}
	gateID = binary.LittleEndian.Uint64(buf[4:12])
	numBits := binary.LittleEndian.Uint32(buf[12:16])
	body := buf[16:]
	payload, err = bitvec.FromBytes(body, int(numBits))
	if err != nil {
		return 0, nil, fmt.Errorf("transport: decoding payload: %w", err)
	}
	return gateID, payload, nil
}
