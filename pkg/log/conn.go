package log

import (
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// tracer appends one record per datagram to w.
type tracer struct {
	mu sync.Mutex
	w  io.Writer
}

func (t *tracer) record(dir string, peer net.Addr, b []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, "%s %s %v %d\n%s", time.Now().Format(time.RFC3339Nano), dir, peer, len(b), hex.Dump(b))
}

// traceConn wraps a connected datagram socket and records every datagram.
type traceConn struct {
	net.Conn
	t *tracer
}

// NewTraceConn wraps conn so that every datagram read or written is appended
// to w as a hex dump.
func NewTraceConn(conn net.Conn, w io.Writer) net.Conn {
	return &traceConn{Conn: conn, t: &tracer{w: w}}
}

func (tc *traceConn) Read(b []byte) (int, error) {
	n, err := tc.Conn.Read(b)
	if n > 0 {
		tc.t.record("recv", tc.Conn.RemoteAddr(), b[:n])
	}
	return n, err
}

func (tc *traceConn) Write(b []byte) (int, error) {
	n, err := tc.Conn.Write(b)
	if n > 0 {
		tc.t.record("send", tc.Conn.RemoteAddr(), b[:n])
	}
	return n, err
}

// tracePacketConn wraps an unconnected datagram socket.
type tracePacketConn struct {
	net.PacketConn
	t *tracer
}

// NewTracePacketConn wraps pc so that every datagram read or written is
// appended to w as a hex dump.
func NewTracePacketConn(pc net.PacketConn, w io.Writer) net.PacketConn {
	return &tracePacketConn{PacketConn: pc, t: &tracer{w: w}}
}

func (tp *tracePacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	n, addr, err := tp.PacketConn.ReadFrom(b)
	if n > 0 {
		tp.t.record("recv", addr, b[:n])
	}
	return n, addr, err
}

func (tp *tracePacketConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	n, err := tp.PacketConn.WriteTo(b, addr)
	if n > 0 {
		tp.t.record("send", addr, b[:n])
	}
	return n, err
}
