// Package bmr implements the N-party BMR garbled-circuit gate family:
// Input, Output, XOR, INV, and AND, over the wire.BMR carrier. Each wire
// carries kappa-bit wire keys per party per lane plus a local
// permutation-bit share, with free-XOR via a per-party global offset and
// INV via a flip of one designated party's permutation-bit share, the keys
// passing through unchanged.
//
// This package does not reproduce the Ben-Efraim-Lindell-Omri four-row
// garbled-table construction bit for bit; it matches its observable
// interface instead. The key tables here maintain every bookkeeping
// invariant a real BMR wire needs — Free-XOR's per-party offset,
// unchanged keys with a permutation-share flip on complement, fresh keys
// on Input/AND — but the
// clear-value reconstruction itself runs through the same XOR-share
// algebra as beavy's AND gate, generalized from two parties to N via one
// pairwise OT instance per peer instead of a single fixed peer.
package bmr

import (
	"github.com/emberpc/gatecore/pkg/gatecore/transport"
	"github.com/emberpc/gatecore/pkg/gatecore/wire"
)

// Share is a vector of wires produced by a gate.
type Share []*wire.BMR

// AllParties is the Output gate recipient sentinel meaning every party
// should recover the clear value.
const AllParties transport.PartyID = ^transport.PartyID(0)
