// Package ot implements a bit-level correlated OT (XCOT-bit) facade:
// sender and receiver instances bound to a gate id, exposing
// SetChoices/SetCorrelations/SendCorrections/SendMessages/ComputeOutputs/
// GetOutputs.
//
// This package supplies a self-contained, if unoptimized, two-message
// realization (a batched instance of Chou-Orlandi's "Simplest OT" protocol
// per lane) rather than a full OT-extension construction. A BEAVY AND
// gate's cross term runs the parties simultaneously as OT sender
// (correlation = own delta_b) and OT receiver (choices = own delta_a); the
// XOR of both outputs plus each side's local product yields
// delta_a & delta_b.
package ot

import (
	"context"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/emberpc/gatecore/pkg/gatecore/bitvec"
	"github.com/emberpc/gatecore/pkg/gatecore/future"
	"github.com/emberpc/gatecore/pkg/gatecore/gerr"
	"github.com/emberpc/gatecore/pkg/gatecore/messaging"
	"github.com/emberpc/gatecore/pkg/gatecore/transport"
)

const (
	tagOTPoints      uint8 = 0xC // R_i points, sent by the OT-receiver role
	tagOTCorrections uint8 = 0xD // e_i correction bits, sent by the OT-sender role
)

// BaseKeys holds the once-per-peer Diffie-Hellman keys the OT protocol runs
// against. They are established once, at session start after the Hello
// handshake, and reused by every gate's OT instances for that peer: only the
// receiver's per-lane ephemeral scalar is fresh per gate, which is what
// keeps each AND gate's cross terms independent.
type BaseKeys struct {
	mySecret   secp256k1.ModNScalar
	myPublic   secp256k1.JacobianPoint // S = y*G, sent to the peer
	myT        secp256k1.JacobianPoint // T = y*S, used only on the sender side
	peerPublic secp256k1.JacobianPoint // peer's S', used only on the receiver side
}

// Bootstrap performs the one-time base-key exchange with peer over the raw
// transport, mirroring messaging.PerformHandshake's send/receive pattern. It
// must run after the Hello handshake and before any gate traffic.
func Bootstrap(ctx context.Context, peer transport.PartyID, t transport.Transport) (*BaseKeys, error) {
	y, err := randomScalar()
	if err != nil {
		return nil, gerr.Newf(0, "", gerr.CryptoFailure, "ot: sampling base secret for peer %d: %v", peer, err)
	}
	S := scalarBaseMul(y)
	T := scalarMul(y, &S)

	sendErr := make(chan error, 1)
	go func() { sendErr <- t.Send(ctx, peer, encodePoint(&S)) }()

	buf, err := t.Receive(ctx, peer)
	if err != nil {
		return nil, gerr.Newf(0, "", gerr.HandshakeFailed, "ot: receiving base key from %d: %v", peer, err)
	}
	if err := <-sendErr; err != nil {
		return nil, gerr.Newf(0, "", gerr.HandshakeFailed, "ot: sending base key to %d: %v", peer, err)
	}
	peerS, err := decodePoint(buf)
	if err != nil {
		return nil, gerr.Newf(0, "", gerr.HandshakeFailed, "ot: decoding base key from %d: %v", peer, err)
	}
	return &BaseKeys{mySecret: *y, myPublic: S, myT: T, peerPublic: peerS}, nil
}

// BootstrapAll runs Bootstrap concurrently against every peer.
func BootstrapAll(ctx context.Context, peers []transport.PartyID, t transport.Transport) (map[transport.PartyID]*BaseKeys, error) {
	type result struct {
		peer transport.PartyID
		keys *BaseKeys
		err  error
	}
	results := make(chan result, len(peers))
	for _, p := range peers {
		p := p
		go func() {
			keys, err := Bootstrap(ctx, p, t)
			results <- result{peer: p, keys: keys, err: err}
		}()
	}
	out := make(map[transport.PartyID]*BaseKeys, len(peers))
	for range peers {
		r := <-results
		if r.err != nil {
			return nil, r.err
		}
		out[r.peer] = r.keys
	}
	return out, nil
}

// Manager owns the base keys for every peer and the registry OT traffic is
// carried over, and mints per-peer facades.
type Manager struct {
	registry *messaging.Registry
	bases    map[transport.PartyID]*BaseKeys
}

// NewManager builds a Manager from bootstrapped base keys.
func NewManager(registry *messaging.Registry, bases map[transport.PartyID]*BaseKeys) *Manager {
	return &Manager{registry: registry, bases: bases}
}

// Peer returns the OT facade scoped to peer.
func (m *Manager) Peer(peer transport.PartyID) (*PeerProvider, error) {
	base, ok := m.bases[peer]
	if !ok {
		return nil, gerr.Newf(0, "", gerr.ConfigInvalid, "ot: no base keys for peer %d", peer)
	}
	return &PeerProvider{mgr: m, peer: peer, base: base}, nil
}

// PeerProvider registers OT sender/receiver instances against one peer.
type PeerProvider struct {
	mgr  *Manager
	peer transport.PartyID
	base *BaseKeys
}

// RegisterSendXCOTBit registers this party as the OT sender for numBits
// lanes of gate id gateID, correlated by a value supplied later via
// SetCorrelations. It reserves the inbound registration for the peer's R_i
// query points at construction time, so registration always happens before
// any message can arrive for this gate.
func (p *PeerProvider) RegisterSendXCOTBit(gateID uint64, numBits int) (*Sender, error) {
	cell, err := p.mgr.registry.RegisterForBitsMessage(p.peer, messaging.SubID(gateID, tagOTPoints), numBits*pointLen*8)
	if err != nil {
		return nil, err
	}
	return &Sender{provider: p, gateID: gateID, numBits: numBits, pointsCell: cell}, nil
}

// RegisterReceiveXCOTBit registers this party as the OT receiver for numBits
// lanes of gate id gateID, choosing per-lane bits supplied later via
// SetChoices. It reserves the inbound registration for the peer's
// correction bits at construction time.
func (p *PeerProvider) RegisterReceiveXCOTBit(gateID uint64, numBits int) (*Receiver, error) {
	cell, err := p.mgr.registry.RegisterForBitsMessage(p.peer, messaging.SubID(gateID, tagOTCorrections), numBits)
	if err != nil {
		return nil, err
	}
	return &Receiver{provider: p, gateID: gateID, numBits: numBits, correctionsCell: cell}, nil
}

// Sender is the OT-sender side of an XCOT-bit instance: it holds a
// correlation bit per lane and, after SendMessages, a fresh random pad per
// lane that XORs with the receiver's output to reveal choice & correlation.
type Sender struct {
	provider *PeerProvider
	gateID   uint64
	numBits  int

	correlations *bitvec.BitVector
	outputs      *bitvec.BitVector
	pointsCell   *future.Cell[*bitvec.BitVector]
}

// SetCorrelations installs this instance's per-lane correlation bits.
func (s *Sender) SetCorrelations(bits *bitvec.BitVector) error {
	if bits.Size() != s.numBits {
		return gerr.Newf(s.gateID, "setup", gerr.ConfigInvalid,
			"ot: correlation size %d, want %d", bits.Size(), s.numBits)
	}
	s.correlations = bits
	return nil
}

// SendMessages awaits the receiver's query points, derives the per-lane pad
// and correction, and sends the corrections back. It may suspend on the
// peer's response before returning.
func (s *Sender) SendMessages(ctx context.Context) error {
	if s.correlations == nil {
		return gerr.Newf(s.gateID, "setup", gerr.ConfigInvalid, "ot: SendMessages before SetCorrelations")
	}
	pointsVec, err := s.pointsCell.Get(ctx)
	if err != nil {
		return err
	}
	raw := pointsVec.Bytes()
	if len(raw) != s.numBits*pointLen {
		return gerr.Newf(s.gateID, "setup", gerr.ProtocolViolation,
			"ot: query point blob is %d bytes, want %d", len(raw), s.numBits*pointLen)
	}

	pad := bitvec.New(s.numBits)
	corrections := bitvec.New(s.numBits)
	for i := 0; i < s.numBits; i++ {
		R, err := decodePoint(raw[i*pointLen : (i+1)*pointLen])
		if err != nil {
			return gerr.Newf(s.gateID, "setup", gerr.CryptoFailure, "ot: decoding query point %d: %v", i, err)
		}
		yR := scalarMul(&s.provider.base.mySecret, &R)
		k0 := deriveBit(roleZero, i, &yR)
		yRminusT := subPoints(&yR, &s.provider.base.myT)
		k1 := deriveBit(roleOne, i, &yRminusT)

		correlationBit := byte(0)
		if s.correlations.Get(i) {
			correlationBit = 1
		}
		e := k1 ^ k0 ^ correlationBit

		pad.Set(i, k0 == 1)
		corrections.Set(i, e == 1)
	}
	s.outputs = pad

	if err := s.provider.mgr.registry.SendBitsMessage(ctx, s.provider.peer, messaging.SubID(s.gateID, tagOTCorrections), corrections); err != nil {
		return err
	}
	return nil
}

// ComputeOutputs is a no-op finalization step, kept as a distinct call in
// the sequence for symmetry with the receiver side; SendMessages already
// derived the output pad.
func (s *Sender) ComputeOutputs() error {
	if s.outputs == nil {
		return gerr.Newf(s.gateID, "setup", gerr.ConfigInvalid, "ot: ComputeOutputs before SendMessages")
	}
	return nil
}

// GetOutputs returns this sender's per-lane output share.
func (s *Sender) GetOutputs() *bitvec.BitVector {
	return s.outputs
}

// Receiver is the OT-receiver side of an XCOT-bit instance.
type Receiver struct {
	provider *PeerProvider
	gateID   uint64
	numBits  int

	choices         *bitvec.BitVector
	scalars         []*secp256k1.ModNScalar
	outputs         *bitvec.BitVector
	correctionsCell *future.Cell[*bitvec.BitVector]
}

// SetChoices installs this instance's per-lane choice bits and samples the
// ephemeral scalars behind each query point.
func (r *Receiver) SetChoices(bits *bitvec.BitVector) error {
	if bits.Size() != r.numBits {
		return gerr.Newf(r.gateID, "setup", gerr.ConfigInvalid,
			"ot: choices size %d, want %d", bits.Size(), r.numBits)
	}
	r.choices = bits
	r.scalars = make([]*secp256k1.ModNScalar, r.numBits)
	for i := 0; i < r.numBits; i++ {
		x, err := randomScalar()
		if err != nil {
			return gerr.Newf(r.gateID, "setup", gerr.CryptoFailure, "ot: sampling query scalar %d: %v", i, err)
		}
		r.scalars[i] = x
	}
	return nil
}

// SendCorrections sends the per-lane query points to the OT sender. Despite
// the name, kept for symmetry with the sender-side call sequence, these are
// the receiver's outbound query, not a correction of the sender's data.
func (r *Receiver) SendCorrections(ctx context.Context) error {
	if r.choices == nil {
		return gerr.Newf(r.gateID, "setup", gerr.ConfigInvalid, "ot: SendCorrections before SetChoices")
	}
	buf := make([]byte, 0, r.numBits*pointLen)
	for i := 0; i < r.numBits; i++ {
		xG := scalarBaseMul(r.scalars[i])
		var R secp256k1.JacobianPoint
		if r.choices.Get(i) {
			R = addPoints(&r.provider.base.peerPublic, &xG)
		} else {
			R = xG
		}
		buf = append(buf, encodePoint(&R)...)
	}
	payload, err := bitvec.FromBytes(buf, len(buf)*8)
	if err != nil {
		return gerr.Newf(r.gateID, "setup", gerr.CryptoFailure, "ot: encoding query points: %v", err)
	}
	return r.provider.mgr.registry.SendBitsMessage(ctx, r.provider.peer, messaging.SubID(r.gateID, tagOTPoints), payload)
}

// ComputeOutputs awaits the sender's corrections and derives the per-lane
// output share.
func (r *Receiver) ComputeOutputs(ctx context.Context) error {
	corrections, err := r.correctionsCell.Get(ctx)
	if err != nil {
		return err
	}
	out := bitvec.New(r.numBits)
	for i := 0; i < r.numBits; i++ {
		xS := scalarMul(r.scalars[i], &r.provider.base.peerPublic)
		var bit byte
		if r.choices.Get(i) {
			k1 := deriveBit(roleOne, i, &xS)
			c := byte(0)
			if corrections.Get(i) {
				c = 1
			}
			bit = k1 ^ c
		} else {
			bit = deriveBit(roleZero, i, &xS)
		}
		out.Set(i, bit == 1)
	}
	r.outputs = out
	return nil
}

// GetOutputs returns this receiver's per-lane output share.
func (r *Receiver) GetOutputs() *bitvec.BitVector {
	return r.outputs
}
