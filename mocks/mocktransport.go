package mocks

import (
	"dominicbreuker/marko/pkg/endpoint"
	"dominicbreuker/marko/pkg/transport"
	"fmt"
	"net"
	"sync"
)

// MockTransport is a scriptable transport.Transport. Conns it opens stay in
// Setup until the test drives them with SetState, unless AutoReady is set.
type MockTransport struct {
	// AutoReady makes opened Conns report Preparing and Ready during Start.
	AutoReady bool
	// OpenErr and ListenErr, if set, are returned by Open and Listen.
	OpenErr   error
	ListenErr error

	mu        sync.Mutex
	conns     []*MockConn
	listeners map[endpoint.Endpoint][]*MockListener
}

// NewMockTransport creates an empty mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{listeners: make(map[endpoint.Endpoint][]*MockListener)}
}

// Open records and returns a new MockConn targeting ep.
func (m *MockTransport) Open(ep endpoint.Endpoint) (transport.Conn, error) {
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	c := NewMockConn(ep, m.AutoReady)

	m.mu.Lock()
	m.conns = append(m.conns, c)
	m.mu.Unlock()
	return c, nil
}

// Listen binds ep, refusing a second bind unless every bind used ReuseAddr.
func (m *MockTransport) Listen(ep endpoint.Endpoint, opts transport.ListenOptions) (transport.Listener, error) {
	if m.ListenErr != nil {
		return nil, m.ListenErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.listeners[ep] {
		if !opts.ReuseAddr || !existing.opts.ReuseAddr {
			return nil, fmt.Errorf("address already in use: %s", ep)
		}
	}
	l := &MockListener{ep: ep, opts: opts, owner: m}
	m.listeners[ep] = append(m.listeners[ep], l)
	return l, nil
}

// Conns returns every Conn opened so far.
func (m *MockTransport) Conns() []*MockConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockConn(nil), m.conns...)
}

// Listener returns the most recent listener bound to ep, or nil.
func (m *MockTransport) Listener(ep endpoint.Endpoint) *MockListener {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls := m.listeners[ep]
	if len(ls) == 0 {
		return nil
	}
	return ls[len(ls)-1]
}

func (m *MockTransport) unbind(l *MockListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls := m.listeners[l.ep]
	for i, existing := range ls {
		if existing == l {
			m.listeners[l.ep] = append(ls[:i], ls[i+1:]...)
			return
		}
	}
}

// pendingReceive is a Receive registration waiting for Deliver.
type pendingReceive struct {
	minLen, maxLen int
	h              transport.ReceiveHandler
}

// MockConn is a scriptable transport.Conn that counts primitive calls.
type MockConn struct {
	// SendErr, if set, is reported to every Send completion.
	SendErr error

	ep        endpoint.Endpoint
	autoReady bool

	mu       sync.Mutex
	state    transport.State
	handler  transport.StateHandler
	started  bool
	sends    [][]byte
	pending  []pendingReceive
	receives int
	cancels  int
}

// NewMockConn returns an unstarted MockConn for ep.
func NewMockConn(ep endpoint.Endpoint, autoReady bool) *MockConn {
	return &MockConn{ep: ep, autoReady: autoReady}
}

func (c *MockConn) Start(h transport.StateHandler) {
	c.mu.Lock()
	c.handler = h
	c.started = true
	c.mu.Unlock()

	c.SetState(transport.StateSetup, nil)
	if c.autoReady {
		c.SetState(transport.StatePreparing, nil)
		c.SetState(transport.StateReady, nil)
	}
}

// SetState moves the conn to s and notifies the handler. Terminal states
// are sticky.
func (c *MockConn) SetState(s transport.State, err error) {
	c.mu.Lock()
	if c.state.Terminal() {
		c.mu.Unlock()
		return
	}
	c.state = s
	h := c.handler
	c.mu.Unlock()

	if h != nil {
		h(s, err)
	}
}

func (c *MockConn) SetStateHandler(h transport.StateHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// HasStateHandler reports whether a state handler is registered.
func (c *MockConn) HasStateHandler() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler != nil
}

// Started reports whether Start was called.
func (c *MockConn) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

func (c *MockConn) State() transport.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send records a copy of b and completes with SendErr.
func (c *MockConn) Send(b []byte, done transport.SendHandler) {
	c.mu.Lock()
	c.sends = append(c.sends, append([]byte(nil), b...))
	err := c.SendErr
	c.mu.Unlock()

	if done != nil {
		done(err)
	}
}

// Sends returns every payload passed to Send.
func (c *MockConn) Sends() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sends...)
}

// SendCount returns the number of Send calls.
func (c *MockConn) SendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sends)
}

// Receive queues h until the test calls Deliver.
func (c *MockConn) Receive(minLen, maxLen int, h transport.ReceiveHandler) {
	c.mu.Lock()
	c.pending = append(c.pending, pendingReceive{minLen: minLen, maxLen: maxLen, h: h})
	c.receives++
	c.mu.Unlock()
}

// ReceiveCount returns the number of Receive calls.
func (c *MockConn) ReceiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receives
}

// PendingReceives returns the number of registrations not yet delivered.
func (c *MockConn) PendingReceives() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// LastReceiveBounds returns the min and max length of the newest pending
// registration.
func (c *MockConn) LastReceiveBounds() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return 0, 0
	}
	p := c.pending[len(c.pending)-1]
	return p.minLen, p.maxLen
}

// Deliver completes the oldest pending receive. It reports false if none is
// pending.
func (c *MockConn) Deliver(data []byte, complete bool, err error) bool {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return false
	}
	p := c.pending[0]
	c.pending = c.pending[1:]
	c.mu.Unlock()

	p.h(data, complete, err)
	return true
}

// Cancel counts the call and moves to Cancelled.
func (c *MockConn) Cancel() {
	c.mu.Lock()
	c.cancels++
	c.mu.Unlock()
	c.SetState(transport.StateCancelled, nil)
}

// Cancels returns the number of Cancel calls.
func (c *MockConn) Cancels() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancels
}

func (c *MockConn) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1}
}

func (c *MockConn) RemoteAddr() net.Addr {
	return &net.UDPAddr{IP: net.ParseIP(c.ep.Host), Port: c.ep.Port}
}

// MockListener is a scriptable transport.Listener. Tests inject peers with
// Accept.
type MockListener struct {
	ep    endpoint.Endpoint
	opts  transport.ListenOptions
	owner *MockTransport

	mu        sync.Mutex
	state     transport.State
	sh        transport.StateHandler
	ah        transport.AcceptHandler
	cancelled bool
}

// Options returns the options the listener was bound with.
func (l *MockListener) Options() transport.ListenOptions {
	return l.opts
}

func (l *MockListener) Start(sh transport.StateHandler, ah transport.AcceptHandler) {
	l.mu.Lock()
	l.sh = sh
	l.ah = ah
	l.mu.Unlock()
	l.setState(transport.StateReady, nil)
}

func (l *MockListener) setState(s transport.State, err error) {
	l.mu.Lock()
	if l.state.Terminal() {
		l.mu.Unlock()
		return
	}
	l.state = s
	sh := l.sh
	l.mu.Unlock()
	if sh != nil {
		sh(s, err)
	}
}

// Fail moves the listener to Failed.
func (l *MockListener) Fail(err error) {
	l.setState(transport.StateFailed, err)
}

// Accept hands a new Ready-on-start peer for host:port to the accept handler.
func (l *MockListener) Accept(host string, port int) *MockConn {
	c := NewMockConn(endpoint.Endpoint{Host: host, Port: port}, true)
	l.mu.Lock()
	ah := l.ah
	l.mu.Unlock()
	if ah != nil {
		ah(c)
	}
	return c
}

func (l *MockListener) Cancel() {
	l.mu.Lock()
	if l.cancelled {
		l.mu.Unlock()
		return
	}
	l.cancelled = true
	l.mu.Unlock()

	l.owner.unbind(l)
	l.setState(transport.StateCancelled, nil)
}

func (l *MockListener) Addr() net.Addr {
	return &net.UDPAddr{IP: net.ParseIP(l.ep.Host), Port: l.ep.Port}
}

var (
	_ transport.Transport = (*MockTransport)(nil)
	_ transport.Conn      = (*MockConn)(nil)
	_ transport.Listener  = (*MockListener)(nil)
)
