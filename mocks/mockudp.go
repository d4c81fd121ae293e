package mocks

import (
	"dominicbreuker/marko/pkg/transport"
	"fmt"
	"net"
	"sync"
	"time"
)

// MockUDPNetwork simulates a UDP network for testing without real network connections.
// It allows creating UDP listeners and dialers that communicate through in-memory channels.
type MockUDPNetwork struct {
	listeners map[string][]*mockUDPListener
	nextPort  int
	mu        sync.Mutex
}

// NewMockUDPNetwork creates a new mock UDP network.
func NewMockUDPNetwork() *MockUDPNetwork {
	return &MockUDPNetwork{
		listeners: make(map[string][]*mockUDPListener),
		nextPort:  40000,
	}
}

// ListenPacket binds a mock UDP socket on address. A second bind of the same
// address succeeds only if every socket on it was bound with ReuseAddr, and
// datagrams go to the most recent one.
func (m *MockUDPNetwork) ListenPacket(network, address string, opts transport.ListenOptions) (net.PacketConn, error) {
	if network != "udp" {
		return nil, fmt.Errorf("unsupported network type: %s", network)
	}

	laddr, err := net.ResolveUDPAddr(network, address)
	if err != nil {
		return nil, err
	}

	return m.bind(laddr, opts.ReuseAddr)
}

func (m *MockUDPNetwork) bind(laddr *net.UDPAddr, reuse bool) (*mockUDPListener, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if laddr.Port == 0 {
		laddr = &net.UDPAddr{IP: laddr.IP, Port: m.nextPort}
		m.nextPort++
	}

	addr := laddr.String()
	for _, existing := range m.listeners[addr] {
		if !reuse || !existing.reuse {
			return nil, fmt.Errorf("address already in use: %s", addr)
		}
	}

	listener := &mockUDPListener{
		addr:    laddr,
		reuse:   reuse,
		packets: make(chan *mockUDPPacket, 100),
		closeCh: make(chan struct{}),
		network: m,
	}
	m.listeners[addr] = append(m.listeners[addr], listener)

	return listener, nil
}

// DialUDP returns a connected mock socket bound to an ephemeral loopback port.
func (m *MockUDPNetwork) DialUDP(network string, laddr, raddr *net.UDPAddr) (net.Conn, error) {
	if network != "udp" {
		return nil, fmt.Errorf("unsupported network type: %s", network)
	}
	if laddr == nil {
		laddr = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}
	}

	l, err := m.bind(laddr, false)
	if err != nil {
		return nil, err
	}
	return &mockUDPConn{mockUDPListener: l, raddr: raddr}, nil
}

func (m *MockUDPNetwork) lookup(addr string) *mockUDPListener {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls := m.listeners[addr]
	if len(ls) == 0 {
		return nil
	}
	return ls[len(ls)-1]
}

func (m *MockUDPNetwork) remove(l *mockUDPListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	addr := l.addr.String()
	ls := m.listeners[addr]
	for i, existing := range ls {
		if existing == l {
			ls = append(ls[:i], ls[i+1:]...)
			break
		}
	}
	if len(ls) == 0 {
		delete(m.listeners, addr)
	} else {
		m.listeners[addr] = ls
	}
}

// mockUDPPacket represents a UDP packet in the mock network.
type mockUDPPacket struct {
	data []byte
	addr *net.UDPAddr
}

// mockUDPListener is a mock implementation of net.PacketConn for UDP.
type mockUDPListener struct {
	addr    *net.UDPAddr
	reuse   bool
	packets chan *mockUDPPacket
	closeCh chan struct{}
	closed  bool
	mu      sync.Mutex
	network *MockUDPNetwork
}

// ReadFrom reads a packet from the connection.
func (l *mockUDPListener) ReadFrom(p []byte) (n int, addr net.Addr, err error) {
	select {
	case packet := <-l.packets:
		n = copy(p, packet.data)
		return n, packet.addr, nil
	case <-l.closeCh:
		return 0, nil, net.ErrClosed
	}
}

// WriteTo writes a packet to the specified address.
func (l *mockUDPListener) WriteTo(p []byte, addr net.Addr) (n int, err error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0, net.ErrClosed
	}
	l.mu.Unlock()

	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return 0, fmt.Errorf("address must be *net.UDPAddr")
	}

	destListener := l.network.lookup(udpAddr.String())
	if destListener == nil {
		// In real UDP, packets can be sent to non-listening addresses
		// For testing purposes, we'll just ignore them
		return len(p), nil
	}

	packet := &mockUDPPacket{
		data: make([]byte, len(p)),
		addr: l.addr,
	}
	copy(packet.data, p)

	select {
	case destListener.packets <- packet:
		return len(p), nil
	case <-destListener.closeCh:
		return len(p), nil // Destination closed, but we sent it
	case <-time.After(100 * time.Millisecond):
		return len(p), nil // Timeout, but pretend we sent it
	}
}

// Close closes the connection.
func (l *mockUDPListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	close(l.closeCh)

	l.network.remove(l)

	return nil
}

// LocalAddr returns the local network address.
func (l *mockUDPListener) LocalAddr() net.Addr {
	return l.addr
}

// SetDeadline sets the read and write deadlines.
func (l *mockUDPListener) SetDeadline(t time.Time) error {
	// Mock implementation - not used in tests
	return nil
}

// SetReadDeadline sets the read deadline.
func (l *mockUDPListener) SetReadDeadline(t time.Time) error {
	// Mock implementation - not used in tests
	return nil
}

// SetWriteDeadline sets the write deadline.
func (l *mockUDPListener) SetWriteDeadline(t time.Time) error {
	// Mock implementation - not used in tests
	return nil
}

// mockUDPConn is a connected mock socket. Reads only return datagrams from raddr.
type mockUDPConn struct {
	*mockUDPListener
	raddr *net.UDPAddr
}

func (c *mockUDPConn) Read(p []byte) (int, error) {
	for {
		n, addr, err := c.ReadFrom(p)
		if err != nil {
			return 0, err
		}
		if addr.String() == c.raddr.String() {
			return n, nil
		}
	}
}

func (c *mockUDPConn) Write(p []byte) (int, error) {
	return c.WriteTo(p, c.raddr)
}

func (c *mockUDPConn) RemoteAddr() net.Addr {
	return c.raddr
}

var (
	_ net.PacketConn = (*mockUDPListener)(nil)
	_ net.Conn       = (*mockUDPConn)(nil)
)
