// Package udp implements the transport primitive on top of real UDP sockets.
//
// Outbound Conns own a connected *net.UDPConn. A Listener owns one bound
// net.PacketConn and demultiplexes inbound datagrams by remote address into
// per-peer Conns that share the listener socket for replies.
package udp

import (
	"context"
	"dominicbreuker/marko/pkg/config"
	"dominicbreuker/marko/pkg/endpoint"
	"dominicbreuker/marko/pkg/log"
	"dominicbreuker/marko/pkg/transport"
	"errors"
	"io"
	"net"
	"syscall"
)

// maxDatagram is large enough for any UDP payload plus one byte, so that
// oversized reads can be detected.
const maxDatagram = 64*1024 + 1

// ErrNotReady is returned for I/O attempted before Ready or after Cancel.
var ErrNotReady = errors.New("udp: connection not ready")

// Transport creates UDP Conns and Listeners.
type Transport struct {
	// Trace, if set, receives a hex dump of every datagram.
	Trace io.Writer

	dial   config.UDPDialerFunc
	listen config.PacketListenerFunc
}

// New returns a Transport using deps for its OS primitives. deps may be nil.
func New(deps *config.Dependencies) *Transport {
	return &Transport{
		dial:   config.GetUDPDialerFunc(deps),
		listen: config.GetPacketListenerFunc(deps, listenPacket),
	}
}

// Open returns an unstarted Conn targeting ep. Resolution and dialing happen
// asynchronously once the Conn is started.
func (t *Transport) Open(ep endpoint.Endpoint) (transport.Conn, error) {
	if err := ep.Validate(); err != nil {
		return nil, err
	}
	return newDialConn(ep, t.dial, t.Trace), nil
}

// Listen binds ep and returns an unstarted Listener.
func (t *Transport) Listen(ep endpoint.Endpoint, opts transport.ListenOptions) (transport.Listener, error) {
	if err := ep.Validate(); err != nil {
		return nil, err
	}
	pc, err := t.listen("udp", ep.String(), opts)
	if err != nil {
		return nil, err
	}
	if t.Trace != nil {
		pc = log.NewTracePacketConn(pc, t.Trace)
	}
	return newListener(pc, opts), nil
}

// listenPacket binds a UDP socket applying opts through socket options.
func listenPacket(network, address string, opts transport.ListenOptions) (net.PacketConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var serr error
			err := c.Control(func(fd uintptr) {
				if opts.ReuseAddr {
					if serr = setSockoptReuseAddr(fd); serr != nil {
						return
					}
					if serr = setSockoptReusePort(fd); serr != nil {
						return
					}
				}
				if opts.PeerToPeer {
					serr = setSockoptBroadcast(fd)
				}
			})
			if err != nil {
				return err
			}
			return serr
		},
	}
	return lc.ListenPacket(context.Background(), network, address)
}

var _ transport.Transport = (*Transport)(nil)
