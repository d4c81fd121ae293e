// Package socket implements the connect and bind roles on top of the
// transport primitive.
//
// A Connection owns one transport Conn bound to one remote endpoint and runs
// its state machine:
//
//	Setup -> Preparing -> Ready <-> Waiting
//	any non-terminal state -> Failed | Cancelled
//
// A Listener owns one bound transport Listener and wraps every new peer in a
// Connection with a listener-scoped, strictly increasing id. Cancelled peers
// are pruned lazily by the sweep that precedes every Listener Send and
// Receive.
//
// Both satisfy Socket, so the pubsub layer works over either.
package socket

import (
	"dominicbreuker/marko/pkg/config"
	"dominicbreuker/marko/pkg/transport"
	"dominicbreuker/marko/pkg/transport/udp"
)

// Socket is the capability shared by Connection and Listener.
type Socket interface {
	SendString(s string)
	Send(b []byte)
	// Receive performs a single-shot receive. handler runs on a transport
	// goroutine, at most once per registered receive, and only with
	// non-empty payloads.
	Receive(handler func([]byte))
}

var (
	_ Socket = (*Connection)(nil)
	_ Socket = (*Listener)(nil)
)

// transportFor returns the injected transport or a real UDP one.
func transportFor(cfg *config.Config) transport.Transport {
	deps := cfg.GetDeps()
	if deps != nil && deps.Transport != nil {
		return deps.Transport
	}
	t := udp.New(deps)
	t.Trace = cfg.TraceWriter
	return t
}
