// Package mocknet provides an in-memory transport implementation for testing.
//
// Mocknet implements the transport.Transport interface using in-memory
// channels, allowing gate-engine tests to run without actual network
// communication. It provides sequenced, reliable message delivery between
// parties and simulates peer disconnection for abort-path testing.
//
// # Features
//
//   - Sequenced message delivery (guarantees message ordering)
//   - Support for both 2-party and N-party sessions
//   - Context-based cancellation support
//   - Simulated peer disconnection (Net.Disconnect) for abort scenarios
//   - Thread-safe concurrent operations
//   - No external dependencies (pure Go)
//
// # Usage
//
// Create a network and endpoints for each party:
//
//	import (
//	    "github.com/emberpc/gatecore/pkg/gatecore/mocknet"
//	    "github.com/emberpc/gatecore/pkg/gatecore/transport"
//	)
//
//	net := mocknet.New()
//	all := []transport.PartyID{0, 1, 2}
//	ep0 := net.NewEndpoint(0, all)
//	ep1 := net.NewEndpoint(1, all)
//	ep2 := net.NewEndpoint(2, all)
//
// Each endpoint implements transport.Transport and can be handed directly
// to backend.New to drive a gate-engine session.
//
// # Simulating an abort
//
//	net.Disconnect(1) // party 1 crashes
//	// party 0's and party 2's pending Send/Receive calls involving party 1
//	// now fail with gerr.ErrPeerGone.
//
// # Limitations
//
// Mocknet is designed for testing only: no encryption or authentication, no
// latency or packet loss simulation. For production deployments implement
// transport.Transport over a real socket layer (TCP, mTLS).
package mocknet
