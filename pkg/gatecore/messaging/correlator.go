package messaging

import (
	"github.com/emberpc/gatecore/pkg/gatecore/prg"
	"github.com/emberpc/gatecore/pkg/gatecore/transport"
)

// Correlator pairs "my RNG toward peer P" with "their RNG toward me" for
// every peer, installed once from the Hello handshake seeds.
type Correlator struct {
	pairs map[transport.PartyID]*prg.Pair
}

// NewCorrelator wraps handshake-derived randomness pairs.
func NewCorrelator(pairs map[transport.PartyID]*prg.Pair) *Correlator {
	return &Correlator{pairs: pairs}
}

// MyRandomnessGenerator returns the generator used only by my own fibers to
// derive randomness shared with peer.
func (c *Correlator) MyRandomnessGenerator(peer transport.PartyID) *prg.Generator {
	pair, ok := c.pairs[peer]
	if !ok {
		panic("messaging: no randomness pair for peer, handshake incomplete")
	}
	return pair.Mine
}

// TheirRandomnessGenerator returns the generator seeded by peer's Hello
// message. It must never be written by any fiber, only read.
func (c *Correlator) TheirRandomnessGenerator(peer transport.PartyID) *prg.Generator {
	pair, ok := c.pairs[peer]
	if !ok {
		panic("messaging: no randomness pair for peer, handshake incomplete")
	}
	return pair.Theirs
}
