package mocknet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/emberpc/gatecore/pkg/gatecore/gerr"
	"github.com/emberpc/gatecore/pkg/gatecore/transport"
)

// Net is an in-process transport fabric connecting every party in a test
// session. It is the mock backing for pkg/gatecore/transport.Transport used
// throughout the gate-engine test suite, grounded on the same queue-per-
// ordered-pair design a socket-backed transport would use, minus the
// sockets.
type Net struct {
	mu sync.Mutex
	q  map[queueKey]chan []byte

	deadMu sync.Mutex
	dead   map[transport.PartyID]chan struct{}
}

func New() *Net {
	return &Net{
		q:    make(map[queueKey]chan []byte),
		dead: make(map[transport.PartyID]chan struct{}),
	}
}

type queueKey struct {
	from transport.PartyID
	to   transport.PartyID
	seq  uint64
}

// Disconnect simulates a party crashing mid-session: every outstanding
// and future Send/Receive/ReceiveAll that touches party fails with
// gerr.ErrPeerGone.
func (n *Net) Disconnect(party transport.PartyID) {
	n.deadMu.Lock()
	defer n.deadMu.Unlock()
	ch, ok := n.dead[party]
	if !ok {
		ch = make(chan struct{})
		n.dead[party] = ch
	}
	select {
	case <-ch:
		// already disconnected
	default:
		close(ch)
	}
}

func (n *Net) goneChan(party transport.PartyID) <-chan struct{} {
	n.deadMu.Lock()
	defer n.deadMu.Unlock()
	ch, ok := n.dead[party]
	if !ok {
		ch = make(chan struct{})
		n.dead[party] = ch
	}
	return ch
}

type endpointCore struct {
	net  *Net
	self transport.PartyID

	mu        sync.Mutex
	sendSeq   map[transport.PartyID]uint64
	recvSeq   map[transport.PartyID]uint64
	sendLocks map[transport.PartyID]*sync.Mutex
	recvLocks map[transport.PartyID]*sync.Mutex
}

func newEndpointCore(n *Net, self transport.PartyID) *endpointCore {
	return &endpointCore{
		net:       n,
		self:      self,
		sendSeq:   make(map[transport.PartyID]uint64),
		recvSeq:   make(map[transport.PartyID]uint64),
		sendLocks: make(map[transport.PartyID]*sync.Mutex),
		recvLocks: make(map[transport.PartyID]*sync.Mutex),
	}
}

func (c *endpointCore) key(from, to transport.PartyID, seq uint64) queueKey {
	return queueKey{from: from, to: to, seq: seq}
}

func (c *endpointCore) sendLock(p transport.PartyID) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock := c.sendLocks[p]
	if lock == nil {
		lock = &sync.Mutex{}
		c.sendLocks[p] = lock
	}
	return lock
}

func (c *endpointCore) recvLock(p transport.PartyID) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock := c.recvLocks[p]
	if lock == nil {
		lock = &sync.Mutex{}
		c.recvLocks[p] = lock
	}
	return lock
}

func (c *endpointCore) currentSendSeq(p transport.PartyID) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendSeq[p]
}

func (c *endpointCore) advanceSendSeq(p transport.PartyID) {
	c.mu.Lock()
	c.sendSeq[p]++
	c.mu.Unlock()
}

func (c *endpointCore) currentRecvSeq(p transport.PartyID) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recvSeq[p]
}

func (c *endpointCore) advanceRecvSeq(p transport.PartyID) {
	c.mu.Lock()
	c.recvSeq[p]++
	c.mu.Unlock()
}

func (n *Net) slot(key queueKey) chan []byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := n.q[key]
	if ch == nil {
		ch = make(chan []byte, 1)
		n.q[key] = ch
	}
	return ch
}

func (n *Net) deliver(ctx context.Context, key queueKey, payload []byte) error {
	ch := n.slot(key)
	msg := append([]byte(nil), payload...)
	select {
	case ch <- msg:
		return nil
	case <-n.goneChan(key.to):
		return gerr.Newf(0, "", gerr.PeerGone, "mocknet: peer %d disconnected", key.to)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Net) await(ctx context.Context, key queueKey) ([]byte, error) {
	ch := n.slot(key)
	select {
	case msg := <-ch:
		n.mu.Lock()
		delete(n.q, key)
		n.mu.Unlock()
		return msg, nil
	case <-n.goneChan(key.from):
		return nil, gerr.Newf(0, "", gerr.PeerGone, "mocknet: peer %d disconnected", key.from)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type endpoint struct {
	core  *endpointCore
	peers map[transport.PartyID]struct{}
}

func newEndpoint(n *Net, self transport.PartyID, peers []transport.PartyID) *endpoint {
	peerSet := make(map[transport.PartyID]struct{}, len(peers))
	for _, p := range peers {
		if p == self {
			continue
		}
		peerSet[p] = struct{}{}
	}
	return &endpoint{core: newEndpointCore(n, self), peers: peerSet}
}

func (e *endpoint) Send(ctx context.Context, to transport.PartyID, msg []byte) error {
	if to == e.core.self {
		return errors.New("mocknet: send to self")
	}
	if _, ok := e.peers[to]; !ok {
		return fmt.Errorf("mocknet: unknown peer %d", to)
	}
	lock := e.core.sendLock(to)
	lock.Lock()
	defer lock.Unlock()

	seq := e.core.currentSendSeq(to)
	if err := e.core.net.deliver(ctx, e.core.key(e.core.self, to, seq), msg); err != nil {
		return err
	}
	e.core.advanceSendSeq(to)
	return nil
}

func (e *endpoint) Receive(ctx context.Context, from transport.PartyID) ([]byte, error) {
	if from == e.core.self {
		return nil, errors.New("mocknet: receive from self")
	}
	if _, ok := e.peers[from]; !ok {
		return nil, fmt.Errorf("mocknet: unknown peer %d", from)
	}
	lock := e.core.recvLock(from)
	lock.Lock()
	defer lock.Unlock()

	seq := e.core.currentRecvSeq(from)
	msg, err := e.core.net.await(ctx, e.core.key(from, e.core.self, seq))
	if err != nil {
		return nil, err
	}
	e.core.advanceRecvSeq(from)
	return msg, nil
}

func (e *endpoint) ReceiveAll(ctx context.Context, from []transport.PartyID) (map[transport.PartyID][]byte, error) {
	parties, err := e.normalizeParties(from)
	if err != nil {
		return nil, err
	}
	if len(parties) == 0 {
		return map[transport.PartyID][]byte{}, nil
	}

	locks := make([]*sync.Mutex, len(parties))
	for i, p := range parties {
		lock := e.core.recvLock(p)
		lock.Lock()
		locks[i] = lock
	}
	defer func() {
		for _, lock := range locks {
			lock.Unlock()
		}
	}()

	out := make(map[transport.PartyID][]byte, len(parties))
	for _, p := range parties {
		seq := e.core.currentRecvSeq(p)
		msg, err := e.core.net.await(ctx, e.core.key(p, e.core.self, seq))
		if err != nil {
			return nil, err
		}
		out[p] = msg
		e.core.advanceRecvSeq(p)
	}
	return out, nil
}

func (e *endpoint) normalizeParties(from []transport.PartyID) ([]transport.PartyID, error) {
	uniq := make(map[transport.PartyID]struct{}, len(from))
	for _, p := range from {
		if p == e.core.self {
			return nil, errors.New("mocknet: receive from self")
		}
		if _, ok := e.peers[p]; !ok {
			return nil, fmt.Errorf("mocknet: unknown peer %d", p)
		}
		if _, ok := uniq[p]; ok {
			return nil, errors.New("mocknet: duplicate peer")
		}
		uniq[p] = struct{}{}
	}
	parties := make([]transport.PartyID, 0, len(uniq))
	for p := range uniq {
		parties = append(parties, p)
	}
	sort.Slice(parties, func(i, j int) bool { return parties[i] < parties[j] })
	return parties, nil
}

// Endpoint is a Net-backed transport.Transport for a single party, aware of
// its full peer set (not limited to two parties).
type Endpoint struct{ *endpoint }

// NewEndpoint returns a transport.Transport for self, able to talk to every
// party in peers.
func (n *Net) NewEndpoint(self transport.PartyID, peers []transport.PartyID) *Endpoint {
	return &Endpoint{endpoint: newEndpoint(n, self, peers)}
}

var _ transport.Transport = (*Endpoint)(nil)
