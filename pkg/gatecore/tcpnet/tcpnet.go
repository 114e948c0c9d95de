// Package tcpnet implements transport.Transport over plain TCP: no TLS or
// certificate machinery, just per-peer connection bookkeeping and framing.
package tcpnet

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/emberpc/gatecore/pkg/gatecore/transport"
)

// Config configures the plain-TCP transport between parties.
type Config struct {
	Self      transport.PartyID
	Addresses []string // Addresses[i] is host:port for party i.
}

// Transport implements transport.Transport using long-lived TCP
// connections, one per pair of parties, established once at construction.
type Transport struct {
	self transport.PartyID

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.RWMutex
	peers map[transport.PartyID]*peerConn

	listener  net.Listener
	closeOnce sync.Once
}

type peerConn struct {
	conn net.Conn

	send chan []byte
	recv chan []byte

	errOnce       sync.Once
	err           error
	closeRecvOnce sync.Once
}

// Dial establishes TCP connections with every other party named in cfg and
// returns a ready-to-use transport. Each party dials every higher-indexed
// party and accepts from every lower-indexed one, avoiding duplicate
// connections for the same pair.
func Dial(ctx context.Context, cfg Config) (*Transport, error) {
	self := int(cfg.Self)
	if self < 0 || self >= len(cfg.Addresses) {
		return nil, fmt.Errorf("tcpnet: invalid self index %d", self)
	}
	if len(cfg.Addresses) < 2 {
		return nil, errors.New("tcpnet: at least two parties required")
	}

	runCtx, cancel := context.WithCancel(ctx)
	tr := &Transport{
		self:   cfg.Self,
		ctx:    runCtx,
		cancel: cancel,
		peers:  make(map[transport.PartyID]*peerConn),
	}

	ln, err := net.Listen("tcp", cfg.Addresses[self])
	if err != nil {
		cancel()
		return nil, fmt.Errorf("tcpnet: listen: %w", err)
	}
	tr.listener = ln

	expectedPeers := len(cfg.Addresses) - 1
	var ready sync.WaitGroup
	ready.Add(expectedPeers)
	errCh := make(chan error, expectedPeers)

	register := func(id transport.PartyID, conn net.Conn) error {
		tr.mu.Lock()
		if _, exists := tr.peers[id]; exists {
			tr.mu.Unlock()
			return fmt.Errorf("tcpnet: duplicate connection from peer %d", id)
		}
		tr.peers[id] = newPeerConn(runCtx, conn)
		tr.mu.Unlock()
		ready.Done()
		return nil
	}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-runCtx.Done():
					return
				default:
					errCh <- fmt.Errorf("tcpnet: accept: %w", err)
					return
				}
			}
			peerID, err := readPeerID(conn)
			if err != nil {
				errCh <- closeWithContextErr(conn, fmt.Errorf("tcpnet: read peer id: %w", err))
				return
			}
			if int(peerID) >= len(cfg.Addresses) {
				errCh <- closeWithContextErr(conn, fmt.Errorf("tcpnet: unexpected peer id %d", peerID))
				return
			}
			if err := register(peerID, conn); err != nil {
				errCh <- closeWithContextErr(conn, err)
				return
			}
		}
	}()

	for peer := range cfg.Addresses {
		if peer == self || peer < self {
			continue // lower-index peers dial us; we dial only upward.
		}
		peerIdx := peer
		go func() {
			addr := cfg.Addresses[peerIdx]
			for {
				select {
				case <-runCtx.Done():
					return
				default:
				}
				conn, err := net.Dial("tcp", addr)
				if err != nil {
					time.Sleep(200 * time.Millisecond)
					continue
				}
				if err := writePeerID(conn, cfg.Self); err != nil {
					_ = conn.Close()
					time.Sleep(200 * time.Millisecond)
					continue
				}
				if err := register(transport.PartyID(peerIdx), conn); err != nil {
					errCh <- closeWithContextErr(conn, err)
					return
				}
				return
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		ready.Wait()
		close(done)
	}()

	select {
	case <-done:
		return tr, nil
	case err := <-errCh:
		cancel()
		return nil, err
	case <-time.After(10 * time.Second):
		cancel()
		return nil, errors.New("tcpnet: timeout waiting for peer connections")
	}
}

func (t *Transport) Send(ctx context.Context, to transport.PartyID, msg []byte) error {
	if to == t.self {
		return errors.New("tcpnet: send to self")
	}
	pc, err := t.getPeer(to)
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.ctx.Done():
		return errors.New("tcpnet: transport closed")
	case pc.send <- append([]byte(nil), msg...):
		return nil
	}
}

func (t *Transport) Receive(ctx context.Context, from transport.PartyID) ([]byte, error) {
	if from == t.self {
		return nil, errors.New("tcpnet: receive from self")
	}
	pc, err := t.getPeer(from)
	if err != nil {
		return nil, err
	}
	return pc.recvOne(ctx, t.ctx)
}

func (t *Transport) ReceiveAll(ctx context.Context, from []transport.PartyID) (map[transport.PartyID][]byte, error) {
	uniq := make(map[transport.PartyID]struct{}, len(from))
	for _, p := range from {
		if p == t.self {
			return nil, errors.New("tcpnet: receive_all includes self")
		}
		if _, err := t.getPeer(p); err != nil {
			return nil, err
		}
		if _, exists := uniq[p]; exists {
			return nil, errors.New("tcpnet: duplicate peer in receive_all")
		}
		uniq[p] = struct{}{}
	}
	out := make(map[transport.PartyID][]byte, len(from))
	for _, p := range from {
		pc, _ := t.getPeer(p)
		msg, err := pc.recvOne(ctx, t.ctx)
		if err != nil {
			return nil, err
		}
		out[p] = msg
	}
	return out, nil
}

// Close terminates the transport and every underlying connection.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.cancel()
		if t.listener != nil {
			_ = t.listener.Close()
		}
		t.mu.Lock()
		for _, pc := range t.peers {
			pc.close()
		}
		t.mu.Unlock()
	})
	return nil
}

func (t *Transport) getPeer(id transport.PartyID) (*peerConn, error) {
	t.mu.RLock()
	pc, ok := t.peers[id]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tcpnet: unknown peer %d", id)
	}
	return pc, nil
}

func newPeerConn(ctx context.Context, conn net.Conn) *peerConn {
	pc := &peerConn{
		conn: conn,
		send: make(chan []byte, 16),
		recv: make(chan []byte, 16),
	}
	go pc.writer(ctx)
	go pc.reader(ctx)
	return pc
}

func (pc *peerConn) writer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			pc.setErr(ctx.Err())
			return
		case msg, ok := <-pc.send:
			if !ok {
				return
			}
			if err := writeFrame(pc.conn, msg); err != nil {
				pc.setErr(err)
				return
			}
		}
	}
}

func (pc *peerConn) reader(ctx context.Context) {
	for {
		msg, err := readFrame(pc.conn)
		if err != nil {
			pc.setErr(err)
			pc.closeRecv()
			return
		}
		select {
		case pc.recv <- msg:
		case <-ctx.Done():
			pc.setErr(ctx.Err())
			pc.closeRecv()
			return
		}
	}
}

func (pc *peerConn) recvOne(ctx, transportCtx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-transportCtx.Done():
		return nil, errors.New("tcpnet: transport closed")
	case msg, ok := <-pc.recv:
		if !ok {
			return nil, pc.errOr(io.EOF)
		}
		return msg, nil
	}
}

func (pc *peerConn) close() {
	pc.setErr(io.EOF)
	pc.closeRecv()
}

func (pc *peerConn) setErr(err error) {
	pc.errOnce.Do(func() {
		if err == nil {
			err = io.EOF
		}
		pc.err = err
		_ = pc.conn.Close()
		close(pc.send)
	})
}

func (pc *peerConn) closeRecv() {
	pc.closeRecvOnce.Do(func() {
		close(pc.recv)
	})
}

func (pc *peerConn) errOr(fallback error) error {
	if pc.err != nil {
		return pc.err
	}
	return fallback
}

func writeFrame(conn net.Conn, payload []byte) error {
	size := len(payload)
	if size > math.MaxUint32 {
		return fmt.Errorf("tcpnet: frame too large (%d bytes)", size)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(size))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := conn.Write(payload)
	return err
}

func readFrame(conn net.Conn) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writePeerID(conn net.Conn, id transport.PartyID) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(id))
	_, err := conn.Write(buf[:])
	return err
}

func readPeerID(conn net.Conn) (transport.PartyID, error) {
	var buf [4]byte
	if _, err := io.ReadFull(conn, buf[:]); err != nil {
		return 0, err
	}
	return transport.PartyID(binary.BigEndian.Uint32(buf[:])), nil
}

func closeWithContextErr(c io.Closer, base error) error {
	if base == nil {
		return c.Close()
	}
	if closeErr := c.Close(); closeErr != nil {
		return fmt.Errorf("%w; close error: %v", base, closeErr)
	}
	return base
}

var _ transport.Transport = (*Transport)(nil)
