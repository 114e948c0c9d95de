// Command gatecore-demo runs a three-party BMR AND-chain circuit:
// P0=1, P1=0, P2=1, circuit
// AND(AND(P0,P1),P2), output revealed to every party, expected 0. It can
// run all three parties in one process over an in-memory mocknet fabric
// (the default, for a self-contained demo) or as three separate processes
// talking plain TCP.
package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/emberpc/gatecore/pkg/gatecore/backend"
	"github.com/emberpc/gatecore/pkg/gatecore/bitvec"
	"github.com/emberpc/gatecore/pkg/gatecore/bmr"
	"github.com/emberpc/gatecore/pkg/gatecore/config"
	"github.com/emberpc/gatecore/pkg/gatecore/gate"
	"github.com/emberpc/gatecore/pkg/gatecore/mocknet"
	"github.com/emberpc/gatecore/pkg/gatecore/tcpnet"
	"github.com/emberpc/gatecore/pkg/gatecore/transport"
)

const version = "gatecore-demo-v1"

// inputs holds the scenario's fixed clear bits, one per party.
var inputs = [3]bool{true, false, true}

func main() {
	var (
		party     = flag.Int("party", -1, "this party's index [0,3); omit to run all three parties in one process over mocknet")
		addrsFlag = flag.String("addrs", "", "comma-separated host:port for parties 0,1,2 (required with --party)")
	)
	flag.Parse()

	if *party < 0 {
		runMocknet()
		return
	}

	addrs := strings.Split(*addrsFlag, ",")
	if len(addrs) != 3 {
		log.Fatalf("gatecore-demo: --addrs must list exactly 3 addresses, got %d", len(addrs))
	}
	runTCP(*party, addrs)
}

func runMocknet() {
	net := mocknet.New()
	all := []transport.PartyID{0, 1, 2}

	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		i := i
		go func() {
			defer wg.Done()
			ep := net.NewEndpoint(transport.PartyID(i), all)
			cfg := config.Config{PartyID: i, PartyCount: 3}
			runParty(i, cfg, ep)
		}()
	}
	wg.Wait()
}

func runTCP(party int, addrs []string) {
	self := transport.PartyID(party)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tr, err := tcpnet.Dial(ctx, tcpnet.Config{Self: self, Addresses: addrs})
	if err != nil {
		log.Fatalf("gatecore-demo: dial: %v", err)
	}
	defer tr.Close()

	cfg := config.Config{PartyID: party, PartyCount: 3}
	runParty(party, cfg, tr)
}

func runParty(party int, cfg config.Config, t transport.Transport) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sess, err := backend.New(ctx, cfg, t, version)
	if err != nil {
		log.Fatalf("gatecore-demo: party %d: backend.New: %v", party, err)
	}
	defer sess.Close()

	bp, err := bmr.NewProvider(sess.Provider(), 0)
	if err != nil {
		log.Fatalf("gatecore-demo: party %d: bmr.NewProvider: %v", party, err)
	}

	inputIDs := [3]uint64{
		sess.Provider().NextInputID(),
		sess.Provider().NextInputID(),
		sess.Provider().NextInputID(),
	}

	// Every party constructs one InputGate per owner, in identical order,
	// so gate ids stay synchronized across the session (see
	// pkg/gatecore/bmr's tests for the same invariant).
	var ins [3]*bmr.InputGate
	for owner := 0; owner < 3; owner++ {
		g, err := bmr.NewInputGate(bp, transport.PartyID(owner), inputIDs[owner], 1)
		if err != nil {
			log.Fatalf("gatecore-demo: party %d: NewInputGate(%d): %v", party, owner, err)
		}
		ins[owner] = g
	}
	ins[party].SetInput(bit(inputs[party]))

	and1, err := bmr.NewANDGate(bp, ins[0].Output(), ins[1].Output())
	if err != nil {
		log.Fatalf("gatecore-demo: party %d: NewANDGate(0,1): %v", party, err)
	}
	and2, err := bmr.NewANDGate(bp, and1.Output(), ins[2].Output())
	if err != nil {
		log.Fatalf("gatecore-demo: party %d: NewANDGate(01,2): %v", party, err)
	}
	out, err := bmr.NewOutputGate(bp, and2.Output(), bmr.AllParties)
	if err != nil {
		log.Fatalf("gatecore-demo: party %d: NewOutputGate: %v", party, err)
	}

	gates := []gate.Gate{ins[0], ins[1], ins[2], and1, and2, out}
	if err := sess.EvaluateParallel(ctx, gates...); err != nil {
		log.Fatalf("gatecore-demo: party %d: evaluate: %v", party, err)
	}

	result, err := out.Result().Get(ctx)
	if err != nil {
		log.Fatalf("gatecore-demo: party %d: output: %v", party, err)
	}
	log.Printf("party %d: AND(AND(%v,%v),%v) = %v", party, inputs[0], inputs[1], inputs[2], result.Get(0))
}

func bit(v bool) *bitvec.BitVector {
	bv := bitvec.New(1)
	bv.Set(0, v)
	return bv
}
