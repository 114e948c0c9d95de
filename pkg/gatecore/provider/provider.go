// Package provider implements the per-protocol provider context: the
// process-wide (per backend session) dependency that issues gate and input
// ids, designates the single party responsible for one-sided work, and
// hands out the messaging registry, randomness correlator, and OT manager
// every gate needs at construction.
//
// Context is passed explicitly to every gate constructor rather than kept
// as mutable global state, so a process can host more than one session
// concurrently without cross-talk.
package provider

import (
	"sync/atomic"

	"github.com/emberpc/gatecore/pkg/gatecore/config"
	"github.com/emberpc/gatecore/pkg/gatecore/logging"
	"github.com/emberpc/gatecore/pkg/gatecore/messaging"
	"github.com/emberpc/gatecore/pkg/gatecore/ot"
	"github.com/emberpc/gatecore/pkg/gatecore/transport"
)

// Context is a per-protocol provider, one per backend session. It is safe
// for concurrent use: gate ids and input ids are issued atomically, and the
// dependencies it hands out (registry, OT manager, correlator) are
// themselves concurrency-safe.
type Context struct {
	cfg        config.Config
	registry   *messaging.Registry
	correlator *messaging.Correlator
	otManager  *ot.Manager
	log        logging.Logger

	nextGateID  atomic.Uint64
	nextInputID atomic.Uint64
}

// New builds a provider context from its already-constructed dependencies.
// The backend wires these up in order: Hello handshake -> correlator, OT
// bootstrap -> otManager, registry -> registry.
func New(cfg config.Config, registry *messaging.Registry, correlator *messaging.Correlator, otManager *ot.Manager, log logging.Logger) *Context {
	return &Context{cfg: cfg, registry: registry, correlator: correlator, otManager: otManager, log: log}
}

// MyID returns this party's id.
func (c *Context) MyID() transport.PartyID { return transport.PartyID(c.cfg.PartyID) }

// NumParties returns the total party count.
func (c *Context) NumParties() int { return c.cfg.PartyCount }

// Config returns the backend configuration this provider was built from.
func (c *Context) Config() config.Config { return c.cfg }

// Logger returns the base logger, pre-scoped by the caller as needed.
func (c *Context) Logger() logging.Logger { return c.log }

// Registry returns the gate-id-keyed message registry.
func (c *Context) Registry() *messaging.Registry { return c.registry }

// Correlator returns the random-tape correlator.
func (c *Context) Correlator() *messaging.Correlator { return c.correlator }

// OT returns the OT provider manager. Nil for protocols (e.g. BMR's XOR/INV
// only circuits) that never register an AND gate.
func (c *Context) OT() *ot.Manager { return c.otManager }

// NextGateID issues a fresh, monotonically increasing gate id.
func (c *Context) NextGateID() uint64 { return c.nextGateID.Add(1) - 1 }

// NextInputID issues a fresh, monotonically increasing input id. Input
// gates use it as the bit offset of their PRG draws, so consecutive ids
// start one bit apart and, with more than one lane, their draws overlap.
func (c *Context) NextInputID() uint64 { return c.nextInputID.Add(1) - 1 }

// IsMyJob deterministically designates exactly one party responsible for
// gate-scoped work that must be performed by a single side (BEAVY INV's
// complement, BMR's garbler-of-record for a given AND gate). Assignment is
// a fixed function of gate id and party count so every party agrees on the
// answer without communicating.
func (c *Context) IsMyJob(gateID uint64) bool {
	return gateID%uint64(c.cfg.PartyCount) == uint64(c.cfg.PartyID)
}

// Peers returns every party id other than this one, in ascending order.
func (c *Context) Peers() []transport.PartyID {
	out := make([]transport.PartyID, 0, c.cfg.PartyCount-1)
	for i := 0; i < c.cfg.PartyCount; i++ {
		if i == c.cfg.PartyID {
			continue
		}
		out = append(out, transport.PartyID(i))
	}
	return out
}
