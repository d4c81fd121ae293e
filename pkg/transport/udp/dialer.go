package udp

import (
	"dominicbreuker/marko/pkg/config"
	"dominicbreuker/marko/pkg/endpoint"
	"dominicbreuker/marko/pkg/log"
	"dominicbreuker/marko/pkg/transport"
	"fmt"
	"io"
	"net"
	"sync"
)

// dialConn is an outbound Conn backed by a connected UDP socket.
type dialConn struct {
	stateBox

	ep    endpoint.Endpoint
	dial  config.UDPDialerFunc
	trace io.Writer

	connMu sync.Mutex
	conn   net.Conn

	done      chan struct{}
	closeOnce sync.Once
}

func newDialConn(ep endpoint.Endpoint, dial config.UDPDialerFunc, trace io.Writer) *dialConn {
	return &dialConn{
		ep:    ep,
		dial:  dial,
		trace: trace,
		done:  make(chan struct{}),
	}
}

// Start resolves and dials the endpoint on a background goroutine.
func (c *dialConn) Start(h transport.StateHandler) {
	c.setHandler(h)
	go c.establish()
}

func (c *dialConn) establish() {
	if !c.set(transport.StateSetup, nil) {
		return
	}
	if !c.set(transport.StatePreparing, nil) {
		return
	}

	raddr, err := net.ResolveUDPAddr("udp", c.ep.String())
	if err != nil {
		c.set(transport.StateFailed, fmt.Errorf("net.ResolveUDPAddr(udp, %s): %w", c.ep, err))
		return
	}

	conn, err := c.dial("udp", nil, raddr)
	if err != nil {
		c.set(transport.StateFailed, fmt.Errorf("dial(udp, %s): %w", c.ep, err))
		return
	}
	if c.trace != nil {
		conn = log.NewTraceConn(conn, c.trace)
	}

	c.connMu.Lock()
	select {
	case <-c.done:
		// cancelled while dialing
		c.connMu.Unlock()
		_ = conn.Close()
		return
	default:
	}
	c.conn = conn
	c.connMu.Unlock()

	c.set(transport.StateReady, nil)
}

func (c *dialConn) SetStateHandler(h transport.StateHandler) {
	c.setHandler(h)
}

func (c *dialConn) State() transport.State {
	return c.get()
}

func (c *dialConn) socket() net.Conn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn
}

// Send writes one datagram and reports the result to done.
func (c *dialConn) Send(b []byte, done transport.SendHandler) {
	var err error
	conn := c.socket()
	if conn == nil || c.State() != transport.StateReady {
		err = ErrNotReady
	} else {
		_, err = conn.Write(b)
	}
	if done != nil {
		done(err)
	}
}

// Receive reads one datagram on a background goroutine.
func (c *dialConn) Receive(minLen, maxLen int, h transport.ReceiveHandler) {
	conn := c.socket()
	if conn == nil || c.State() != transport.StateReady {
		h(nil, true, ErrNotReady)
		return
	}

	go func() {
		buf := make([]byte, maxLen+1)
		n, err := conn.Read(buf)
		if err != nil {
			select {
			case <-c.done:
				h(nil, true, net.ErrClosed)
			default:
				h(nil, true, err)
			}
			return
		}
		deliver(buf[:n], minLen, maxLen, h)
	}()
}

// Cancel closes the socket and moves to Cancelled.
func (c *dialConn) Cancel() {
	c.closeOnce.Do(func() {
		c.connMu.Lock()
		close(c.done)
		conn := c.conn
		c.connMu.Unlock()

		if conn != nil {
			_ = conn.Close()
		}
		c.set(transport.StateCancelled, nil)
	})
}

func (c *dialConn) LocalAddr() net.Addr {
	if conn := c.socket(); conn != nil {
		return conn.LocalAddr()
	}
	return nil
}

func (c *dialConn) RemoteAddr() net.Addr {
	if conn := c.socket(); conn != nil {
		return conn.RemoteAddr()
	}
	return nil
}

// deliver applies the min/max bounds of a receive request to one datagram.
func deliver(pkt []byte, minLen, maxLen int, h transport.ReceiveHandler) {
	switch {
	case len(pkt) > maxLen:
		h(pkt[:maxLen], false, nil)
	case len(pkt) < minLen:
		h(nil, true, nil)
	default:
		h(pkt, true, nil)
	}
}

var _ transport.Conn = (*dialConn)(nil)
