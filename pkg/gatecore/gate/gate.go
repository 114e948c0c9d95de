// Package gate defines the shared two-phase evaluation contract every
// BEAVY and BMR gate implements: a small interface dispatched over
// concrete gate structs, rather than a deep class hierarchy, so there is
// no virtual construction order to reason about.
package gate

import (
	"context"

	"github.com/emberpc/gatecore/pkg/gatecore/logging"
)

// Gate is the capability every BEAVY and BMR gate implements. EvaluateSetup
// and EvaluateOnline are each called at most once per gate per evaluation;
// implementations must wait on every input wire's readiness before reading
// it and fire their own outputs' readiness before returning. An error
// return leaves the gate's output wires unfired; a waiter on them returns
// only when its context is done, which EvaluateParallel brings about by
// cancelling the shared context on the first error.
type Gate interface {
	// ID returns the gate's provider-assigned id, used for message routing
	// and error scoping.
	ID() uint64
	// EvaluateSetup runs the gate's setup-phase computation.
	EvaluateSetup(ctx context.Context) error
	// EvaluateOnline runs the gate's online-phase computation. The backend
	// guarantees this is only invoked after EvaluateSetup for this gate has
	// returned without error, but inputs' online-readiness is the gate's
	// own responsibility to await.
	EvaluateOnline(ctx context.Context) error
}

// Base carries the identity every concrete gate embeds: a monotonic gate
// id assigned by the provider at construction.
type Base struct {
	GateID uint64
}

// ID implements Gate.
func (b Base) ID() uint64 { return b.GateID }

// Trace emits a per-gate debug log line tagged with gate id, phase
// ("setup"/"online"), and event ("start"/"end"). A no-op unless verbose is
// true and log is non-nil; the arguments are still evaluated at each call
// site, so only the log call itself is skipped.
func Trace(ctx context.Context, log logging.Logger, verbose bool, gateID uint64, phase, event string, args ...any) {
	if !verbose || log == nil {
		return
	}
	all := make([]any, 0, len(args)+4)
	all = append(all, "gate_id", gateID, "phase", phase)
	all = append(all, args...)
	log.Debug(ctx, "gate "+event, all...)
}
