// Package beavy implements the two-party BEAVY Boolean secret-sharing gate
// family: Input (sender/receiver), Output, XOR, INV, and AND, over the
// wire.BooleanBEAVY carrier. Each gate operates on a single wire carrying
// num_simd lanes rather than a wire array, keeping gate construction and
// wire bookkeeping uniform across the whole family.
package beavy

import (
	"github.com/emberpc/gatecore/pkg/gatecore/transport"
	"github.com/emberpc/gatecore/pkg/gatecore/wire"
)

// Share is a vector of wires produced by a gate, the protocol-typed
// public interface between gates.
type Share []*wire.BooleanBEAVY

// AllParties is the Output gate recipient sentinel meaning every party
// should recover the clear value, broadcasting it instead of sending to
// a single recipient.
const AllParties transport.PartyID = ^transport.PartyID(0)
