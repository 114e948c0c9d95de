package bmr

import (
	"crypto/rand"

	"github.com/emberpc/gatecore/pkg/gatecore/gerr"
	"github.com/emberpc/gatecore/pkg/gatecore/provider"
	"github.com/emberpc/gatecore/pkg/gatecore/wire"
)

// Provider wraps a gate-engine provider context with the one piece of
// state that's specific to BMR: this party's fixed global Free-XOR offset
// Delta, sampled once per session and reused by every wire so that XOR
// gates never need to exchange messages.
type Provider struct {
	prov  *provider.Context
	kappa int
	delta []byte
}

// NewProvider samples this party's Delta and returns a BMR-scoped
// provider. kappa <= 0 selects wire.DefaultKappa; it must otherwise be a
// multiple of 8.
func NewProvider(prov *provider.Context, kappa int) (*Provider, error) {
	if kappa <= 0 {
		kappa = wire.DefaultKappa
	}
	if kappa%8 != 0 {
		return nil, gerr.Newf(0, "", gerr.ConfigInvalid, "bmr: kappa must be a multiple of 8, got %d", kappa)
	}
	delta := make([]byte, kappa/8)
	if _, err := rand.Read(delta); err != nil {
		return nil, gerr.Newf(0, "", gerr.CryptoFailure, "bmr: sampling delta: %v", err)
	}
	delta[len(delta)-1] |= 1 // classical Free-XOR convention: Delta's LSB is always 1
	return &Provider{prov: prov, kappa: kappa, delta: delta}, nil
}

// Context returns the underlying gate-engine provider.
func (p *Provider) Context() *provider.Context { return p.prov }

// Kappa returns the wire key length in bits.
func (p *Provider) Kappa() int { return p.kappa }

func (p *Provider) randomKey() ([]byte, error) {
	key := make([]byte, p.kappa/8)
	if _, err := rand.Read(key); err != nil {
		return nil, gerr.Newf(0, "setup", gerr.CryptoFailure, "bmr: sampling wire key: %v", err)
	}
	return key, nil
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
