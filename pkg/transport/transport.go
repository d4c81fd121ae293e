// Package transport defines the datagram transport primitive that the socket
// layer is built on.
//
// A Transport opens outbound Conns and bound Listeners. Both report lifecycle
// changes through a StateHandler and complete I/O through callbacks that run
// on transport-owned goroutines:
//
//	conn, err := tr.Open(ep)
//	conn.Start(func(s transport.State, err error) { ... })
//	conn.Send(payload, func(err error) { ... })
//	conn.Receive(1, mtu, func(data []byte, complete bool, err error) { ... })
//	conn.Cancel()
//
// Listeners hand every new remote peer to an accept callback as a Conn that
// shares the listener's socket.
//
// Implementations:
//   - udp: real sockets on top of package net
//   - mocks.MockTransport: scriptable in-memory double for tests
package transport

import (
	"net"

	"dominicbreuker/marko/pkg/endpoint"
)

// State is the lifecycle state of a Conn or Listener.
type State int

const (
	StateSetup State = iota
	StatePreparing
	StateReady
	StateWaiting
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateSetup:
		return "setup"
	case StatePreparing:
		return "preparing"
	case StateReady:
		return "ready"
	case StateWaiting:
		return "waiting"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateCancelled
}

// StateHandler is called on every state change. err is set for StateFailed
// and StateWaiting.
type StateHandler func(s State, err error)

// ReceiveHandler completes a single receive. complete is false when the
// datagram was larger than the requested maximum and data is truncated.
// A nil err with empty data means nothing was delivered.
type ReceiveHandler func(data []byte, complete bool, err error)

// SendHandler completes a single send.
type SendHandler func(err error)

// Conn is a datagram association with one remote peer.
type Conn interface {
	// Start begins the Setup -> Preparing -> Ready progression and returns
	// immediately. h receives every subsequent state change.
	Start(h StateHandler)
	// SetStateHandler replaces the state handler. A nil handler drops
	// notifications.
	SetStateHandler(h StateHandler)
	State() State

	// Send hands one datagram to the transport. done may be nil.
	Send(b []byte, done SendHandler)
	// Receive requests exactly one datagram of minLen..maxLen bytes.
	Receive(minLen, maxLen int, h ReceiveHandler)
	// Cancel stops the association and short-circuits pending receives.
	Cancel()

	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// ListenOptions configure a bound listener.
type ListenOptions struct {
	// ReuseAddr permits several sockets to bind the same endpoint.
	ReuseAddr bool
	// LocalOnly drops datagrams from non-loopback peers.
	LocalOnly bool
	// PeerToPeer enables broadcast so peers on the local link can discover
	// the listener.
	PeerToPeer bool
}

// AcceptHandler is called once for every new remote peer.
type AcceptHandler func(c Conn)

// Listener is a bound datagram endpoint fanning out to per-peer Conns.
type Listener interface {
	// Start begins delivering state changes to sh and new peers to ah.
	Start(sh StateHandler, ah AcceptHandler)
	Cancel()
	Addr() net.Addr
}

// Transport creates Conns and Listeners.
type Transport interface {
	// Open returns an unstarted Conn targeting ep.
	Open(ep endpoint.Endpoint) (Conn, error)
	// Listen binds ep. Bind failures are reported synchronously.
	Listen(ep endpoint.Endpoint, opts ListenOptions) (Listener, error)
}
