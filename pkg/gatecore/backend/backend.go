// Package backend owns the top-level per-session object: it drives the
// Hello handshake, bootstraps OT base keys, wires a Transport to the
// messaging substrate, and hands the caller a ready gate-construction
// dependency plus two circuit-evaluation policies, EvaluateSequential and
// EvaluateParallel.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/emberpc/gatecore/pkg/gatecore/config"
	"github.com/emberpc/gatecore/pkg/gatecore/gate"
	"github.com/emberpc/gatecore/pkg/gatecore/logging"
	"github.com/emberpc/gatecore/pkg/gatecore/messaging"
	"github.com/emberpc/gatecore/pkg/gatecore/ot"
	"github.com/emberpc/gatecore/pkg/gatecore/provider"
	"github.com/emberpc/gatecore/pkg/gatecore/transport"
)

// Session owns one party's process-wide backend resources for the lifetime
// of a single protocol run: the handshake result, the OT base keys, the
// message registry's receive-loop fibers, and the provider context every
// gate is constructed against.
type Session struct {
	prov *provider.Context
	log  logging.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New performs the Hello handshake against every peer
// named in cfg, bootstraps XCOT-bit base keys, and starts one receive-loop
// fiber per peer. The returned Session's Provider is ready for gate
// construction as soon as New returns.
func New(ctx context.Context, cfg config.Config, t transport.Transport, version string) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	self := transport.PartyID(cfg.PartyID)
	peers := make([]transport.PartyID, 0, cfg.PartyCount-1)
	for _, id := range cfg.PeerIDs() {
		peers = append(peers, transport.PartyID(id))
	}

	level := slog.LevelInfo
	if cfg.VerboseDebug {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	log := logging.New(slog.New(handler)).With("party", cfg.PartyID)

	pairs, err := messaging.PerformHandshake(ctx, self, peers, cfg.PartyCount, cfg.OnlineAfterSetup, version, t)
	if err != nil {
		return nil, fmt.Errorf("backend: hello handshake: %w", err)
	}
	correlator := messaging.NewCorrelator(pairs)

	bases, err := ot.BootstrapAll(ctx, peers, t)
	if err != nil {
		return nil, fmt.Errorf("backend: ot bootstrap: %w", err)
	}

	registry := messaging.NewRegistry(self, peers, t)
	otManager := ot.NewManager(registry, bases)
	prov := provider.New(cfg, registry, correlator, otManager, log)

	runCtx, cancel := context.WithCancel(ctx)
	s := &Session{prov: prov, log: log, cancel: cancel}
	s.wg.Add(len(peers))
	for _, peer := range peers {
		peer := peer
		go func() {
			defer s.wg.Done()
			if err := registry.RunReceiveLoop(runCtx, peer); err != nil && runCtx.Err() == nil {
				log.Warn(runCtx, "receive loop ended", "peer", peer, "error", err)
			}
		}()
	}
	return s, nil
}

// Provider returns the gate-construction dependency for this session.
func (s *Session) Provider() *provider.Context { return s.prov }

// Close cancels every receive-loop fiber and waits for them to exit.
func (s *Session) Close() {
	s.cancel()
	s.wg.Wait()
}

// EvaluateSequential runs every gate's setup task to completion, in the
// order given, before starting any gate's online task, also in order. This
// is the conservative policy: circuit order is the caller's responsibility
// (every input to a gate must appear earlier in the slice than the gate
// itself), and no gate ever blocks longer than one wire-wait, since by the
// time its turn comes every wire it depends on has already finished its
// phase.
func (s *Session) EvaluateSequential(ctx context.Context, gates ...gate.Gate) error {
	for _, g := range gates {
		if err := g.EvaluateSetup(ctx); err != nil {
			return fmt.Errorf("backend: gate %d setup: %w", g.ID(), err)
		}
	}
	for _, g := range gates {
		if err := g.EvaluateOnline(ctx); err != nil {
			return fmt.Errorf("backend: gate %d online: %w", g.ID(), err)
		}
	}
	return nil
}

// EvaluateParallel runs every gate on its own fiber, submitted up front
// through an errgroup, relying on each gate's own wire-readiness waits to
// order setup against online across gates. This is the default policy and
// the one cmd/gatecore-demo exercises: circuit order does not need to
// match slice order, since a gate that runs ahead of its dependency simply
// blocks in WaitSetup/WaitOnline until the dependency's fiber publishes it.
// With the config's OnlineAfterSetup set, no gate starts its online phase
// until every gate's setup phase has returned.
func (s *Session) EvaluateParallel(ctx context.Context, gates ...gate.Gate) error {
	onlineAfterSetup := s.prov.Config().OnlineAfterSetup
	var setupDone sync.WaitGroup
	setupDone.Add(len(gates))
	eg, gctx := errgroup.WithContext(ctx)
	for _, g := range gates {
		g := g
		eg.Go(func() error {
			err := g.EvaluateSetup(gctx)
			setupDone.Done()
			if err != nil {
				return fmt.Errorf("backend: gate %d setup: %w", g.ID(), err)
			}
			if onlineAfterSetup {
				setupDone.Wait()
			}
			if err := g.EvaluateOnline(gctx); err != nil {
				return fmt.Errorf("backend: gate %d online: %w", g.ID(), err)
			}
			return nil
		})
	}
	return eg.Wait()
}
