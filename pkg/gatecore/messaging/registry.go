// Package messaging implements the gate-id-keyed message registry, the
// random-tape correlator, and the Hello handshake.
package messaging

import (
	"context"
	"sync"

	"github.com/emberpc/gatecore/pkg/gatecore/bitvec"
	"github.com/emberpc/gatecore/pkg/gatecore/future"
	"github.com/emberpc/gatecore/pkg/gatecore/gerr"
	"github.com/emberpc/gatecore/pkg/gatecore/transport"
)

// SubID derives a routing id for the tag-th sub-message of gate id gateID.
// A single gate may need to exchange more than one distinct message keyed
// under the exactly-once (sender, gate_id) contract of RegisterForBitsMessage
// (for instance the BEAVY AND gate's OT correlation points, OT corrections,
// and online Delta broadcast); SubID gives each a disjoint id in the same
// registry without a second Registry instance. tag must be below 16.
func SubID(gateID uint64, tag uint8) uint64 {
	return gateID<<4 | uint64(tag&0xF)
}

type inboxKey struct {
	sender transport.PartyID
	gateID uint64
}

// Registry implements point-to-point and broadcast delivery of bit-payload
// messages keyed by (sender, gate_id), guaranteeing exactly-once delivery:
// each registration is resolved by exactly one inbound frame, and
// disconnection poisons every outstanding registration from the departed
// peer.
type Registry struct {
	self      transport.PartyID
	peers     []transport.PartyID
	transport transport.Transport

	mu      sync.Mutex
	pending map[inboxKey]*pendingEntry
}

type pendingEntry struct {
	numBits int
	cell    *future.Cell[*bitvec.BitVector]
}

// NewRegistry builds a Registry that sends over t and expects inbound
// frames from every party in peers.
func NewRegistry(self transport.PartyID, peers []transport.PartyID, t transport.Transport) *Registry {
	return &Registry{
		self:      self,
		peers:     append([]transport.PartyID(nil), peers...),
		transport: t,
		pending:   make(map[inboxKey]*pendingEntry),
	}
}

// RegisterForBitsMessage reserves an inbox entry for a gate id expected
// from sender. Duplicate registration for the same (sender, gate_id) is a
// protocol violation.
func (r *Registry) RegisterForBitsMessage(sender transport.PartyID, gateID uint64, numBits int) (*future.Cell[*bitvec.BitVector], error) {
	key := inboxKey{sender: sender, gateID: gateID}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.pending[key]; exists {
		return nil, gerr.Newf(gateID, "", gerr.ProtocolViolation,
			"duplicate registration for (sender=%d, gate_id=%d)", sender, gateID)
	}
	cell := future.New[*bitvec.BitVector]()
	r.pending[key] = &pendingEntry{numBits: numBits, cell: cell}
	return cell, nil
}

// RegisterForBitsMessages reserves an inbox entry from every peer for the
// same gate id, used by gates that gather a share from each other party,
// such as a BEAVY Output gate.
func (r *Registry) RegisterForBitsMessages(gateID uint64, numBits int) (map[transport.PartyID]*future.Cell[*bitvec.BitVector], error) {
	out := make(map[transport.PartyID]*future.Cell[*bitvec.BitVector], len(r.peers))
	for _, p := range r.peers {
		cell, err := r.RegisterForBitsMessage(p, gateID, numBits)
		if err != nil {
			return nil, err
		}
		out[p] = cell
	}
	return out, nil
}

// deliver resolves the registration for (sender, gate_id) with payload. It
// is called by the backend's per-peer receive loop after decoding a frame.
func (r *Registry) deliver(sender transport.PartyID, gateID uint64, payload *bitvec.BitVector) error {
	key := inboxKey{sender: sender, gateID: gateID}
	r.mu.Lock()
	entry, ok := r.pending[key]
	if ok {
		delete(r.pending, key)
	}
	r.mu.Unlock()
	if !ok {
		return gerr.Newf(gateID, "", gerr.ProtocolViolation,
			"unregistered inbound message from sender=%d gate_id=%d", sender, gateID)
	}
	if payload.Size() != entry.numBits {
		return gerr.Newf(gateID, "", gerr.ProtocolViolation,
			"payload size mismatch: got %d bits, registered for %d", payload.Size(), entry.numBits)
	}
	entry.cell.Set(payload)
	return nil
}

// FailPeer poisons every outstanding registration from peer with err, so
// a disconnect fails every outstanding future with PeerGone rather than
// leaving it to hang.
func (r *Registry) FailPeer(peer transport.PartyID, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, entry := range r.pending {
		if key.sender == peer {
			entry.cell.Fail(err)
			delete(r.pending, key)
		}
	}
}

// Pending reports the number of outstanding registrations, used by tests
// to assert no inbox entry remains at session end.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// SendBitsMessage sends a point-to-point frame to peer.
func (r *Registry) SendBitsMessage(ctx context.Context, peer transport.PartyID, gateID uint64, bits *bitvec.BitVector) error {
	if peer == r.self {
		return gerr.Newf(gateID, "", gerr.ConfigInvalid, "self-targeted send to party %d", peer)
	}
	frame := transport.EncodeFrame(gateID, bits)
	if err := r.transport.Send(ctx, peer, frame); err != nil {
		return remapSendError(gateID, peer, err)
	}
	return nil
}

// BroadcastBitsMessage sends bits to every peer, realized as N-1 unicasts.
func (r *Registry) BroadcastBitsMessage(ctx context.Context, gateID uint64, bits *bitvec.BitVector) error {
	for _, p := range r.peers {
		if err := r.SendBitsMessage(ctx, p, gateID, bits); err != nil {
			return err
		}
	}
	return nil
}

// RunReceiveLoop drains frames addressed from peer until ctx is done or the
// transport reports the peer gone, dispatching each to deliver. The backend
// runs one of these per peer for the lifetime of a session.
func (r *Registry) RunReceiveLoop(ctx context.Context, peer transport.PartyID) error {
	for {
		buf, err := r.transport.Receive(ctx, peer)
		if err != nil {
			wrapped := remapReceiveError(peer, err)
			r.FailPeer(peer, wrapped)
			return wrapped
		}
		gateID, payload, decodeErr := transport.DecodeFrame(buf)
		if decodeErr != nil {
			return gerr.Newf(0, "", gerr.ProtocolViolation, "decoding frame from %d: %v", peer, decodeErr)
		}
		if err := r.deliver(peer, gateID, payload); err != nil {
			return err
		}
	}
}

func remapReceiveError(peer transport.PartyID, err error) error {
	if gerr.IsAborted(err) {
		return err
	}
	if ge, ok := err.(*gerr.Error); ok {
		return ge
	}
	return gerr.Newf(0, "", gerr.PeerGone, "receiving from party %d: %v", peer, err)
}

func remapSendError(gateID uint64, peer transport.PartyID, err error) error {
	if ge, ok := err.(*gerr.Error); ok {
		return ge
	}
	return gerr.Newf(gateID, "", gerr.PeerGone, "sending to party %d: %v", peer, err)
}
