// Package config carries the environment toggles and topology settings a
// backend supplies to the gate engine.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/emberpc/gatecore/pkg/gatecore/gerr"
)

// Config expresses the knobs the gate engine consumes but does not itself
// decide. The circuit builder, socket layer, and CLI populate this struct;
// the core only reads it.
type Config struct {
	// PartyID is this process's index into the party set, 0-based.
	PartyID int

	// PartyCount is the total number of parties in the session.
	PartyCount int

	// Addresses[i] is the host:port for party i, used by TCP-backed
	// transports. Unused by mocknet-backed sessions.
	Addresses []string

	// VerboseDebug enables per-gate trace logs in setup and online phases.
	VerboseDebug bool

	// OnlineAfterSetup makes the gate engine wait until every setup task
	// has completed before starting any online task.
	OnlineAfterSetup bool
}

// Validate checks the invariants the core relies on before it starts
// issuing gate ids.
func (c Config) Validate() error {
	if c.PartyCount < 2 {
		return gerr.Newf(0, "", gerr.ConfigInvalid, "party count must be >= 2, got %d", c.PartyCount)
	}
	if c.PartyID < 0 || c.PartyID >= c.PartyCount {
		return gerr.Newf(0, "", gerr.ConfigInvalid, "party id %d out of range [0,%d)", c.PartyID, c.PartyCount)
	}
	if len(c.Addresses) != 0 && len(c.Addresses) != c.PartyCount {
		return gerr.Newf(0, "", gerr.ConfigInvalid, "addresses length %d != party count %d", len(c.Addresses), c.PartyCount)
	}
	return nil
}

// FromEnv reads the boolean toggles from the process environment, leaving
// topology fields (PartyID, PartyCount, Addresses) for the caller to fill in
// from its own CLI flags or config file, the way a backend wraps this core.
func FromEnv() Config {
	return Config{
		VerboseDebug:     boolEnv("GATECORE_VERBOSE_DEBUG"),
		OnlineAfterSetup: boolEnv("GATECORE_ONLINE_AFTER_SETUP"),
	}
}

func boolEnv(name string) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

// PeerIDs returns every party index other than PartyID, in ascending order.
func (c Config) PeerIDs() []int {
	peers := make([]int, 0, c.PartyCount-1)
	for i := 0; i < c.PartyCount; i++ {
		if i != c.PartyID {
			peers = append(peers, i)
		}
	}
	return peers
}

func (c Config) String() string {
	return fmt.Sprintf("Config{party=%d/%d verbose=%v online_after_setup=%v}",
		c.PartyID, c.PartyCount, c.VerboseDebug, c.OnlineAfterSetup)
}
