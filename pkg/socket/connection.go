package socket

import (
	"context"
	"dominicbreuker/marko/pkg/config"
	"dominicbreuker/marko/pkg/endpoint"
	"dominicbreuker/marko/pkg/format"
	"dominicbreuker/marko/pkg/log"
	"dominicbreuker/marko/pkg/metrics"
	"dominicbreuker/marko/pkg/transport"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"
)

// Connection is a datagram socket associated with one remote endpoint.
// Sends and receives attempted outside the Ready state are dropped and
// recorded as StatusInvalidContext.
type Connection struct {
	id    uint64
	owned bool

	mtu     int
	tr      transport.Transport
	logger  *log.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	ep         endpoint.Endpoint
	conn       transport.Conn
	state      transport.State
	status     Status
	stopped    bool
	lastActive time.Time
	changed    chan struct{} // closed on every state change

	// recv serializes ReceiveContext callers. pending is the armed receive
	// left behind by a caller whose ctx expired; the next caller picks it up.
	recv    chan struct{}
	pending chan received
}

type received struct {
	data []byte
	st   Status
}

// NewConnection returns an unconnected Connection in the Setup state.
// cfg may be nil.
func NewConnection(cfg *config.Config) *Connection {
	if cfg == nil {
		cfg = config.Default()
	}
	return newConnection(cfg.GetMTU(), transportFor(cfg), cfg.GetLogger(), cfg.GetMetrics())
}

func newConnection(mtu int, tr transport.Transport, logger *log.Logger, m *metrics.Metrics) *Connection {
	return &Connection{
		mtu:        mtu,
		tr:         tr,
		logger:     logger,
		metrics:    m,
		lastActive: time.Now(),
		changed:    make(chan struct{}),
		recv:       make(chan struct{}, 1),
	}
}

// Connect opens the transport towards ep and returns immediately. The
// Setup -> Preparing -> Ready progression completes in the background.
// Connect is a no-op if the Connection already has a transport or has been
// stopped.
func (c *Connection) Connect(ep endpoint.Endpoint) {
	c.mu.Lock()
	if c.conn != nil || c.stopped {
		c.mu.Unlock()
		return
	}
	c.ep = ep

	tc, err := c.tr.Open(ep)
	if err != nil {
		c.mu.Unlock()
		c.logger.ErrorMsg("Opening connection to %s: %s", ep, err)
		c.transition(transport.StateFailed)
		return
	}
	c.conn = tc
	c.mu.Unlock()

	tc.Start(c.handleState)
}

// attach adopts a transport Conn handed over by a Listener.
func (c *Connection) attach(tc transport.Conn) {
	c.mu.Lock()
	c.conn = tc
	if ep, err := endpoint.FromAddr(tc.RemoteAddr()); err == nil {
		c.ep = ep
	}
	c.mu.Unlock()

	tc.Start(c.handleState)
}

func (c *Connection) handleState(s transport.State, err error) {
	if !c.transition(s) {
		return
	}

	switch s {
	case transport.StateReady:
		c.mu.Lock()
		tc := c.conn
		c.mu.Unlock()
		if tc == nil {
			return
		}
		if c.owned {
			c.logger.VerboseMsg("Connection %d ready, remote: %v, local: %v", c.id, tc.RemoteAddr(), tc.LocalAddr())
		} else {
			c.logger.InfoMsg("Connection ready, remote: %v, local: %v", tc.RemoteAddr(), tc.LocalAddr())
		}
	case transport.StateFailed:
		c.logger.ErrorMsg("Connection to %s failed: %v", c.Endpoint(), err)
	case transport.StateWaiting:
		c.logger.VerboseMsg("Connection to %s waiting: %v", c.Endpoint(), err)
	default:
		c.logger.VerboseMsg("Connection to %s: %s", c.Endpoint(), s)
	}
}

// allowed reports whether the state machine may move from one state to
// another. Terminal states never change and Ready never regresses.
func allowed(from, to transport.State) bool {
	if from.Terminal() || from == to {
		return false
	}

	switch to {
	case transport.StateFailed, transport.StateCancelled:
		return true
	case transport.StatePreparing:
		return from == transport.StateSetup
	case transport.StateReady:
		return from == transport.StateSetup || from == transport.StatePreparing || from == transport.StateWaiting
	case transport.StateWaiting:
		return from == transport.StateReady
	default:
		return false
	}
}

func (c *Connection) transition(s transport.State) bool {
	c.mu.Lock()
	if !allowed(c.state, s) {
		c.mu.Unlock()
		return false
	}
	c.state = s
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()

	c.metrics.StateTransitions.WithLabelValues(s.String()).Inc()
	return true
}

func (c *Connection) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// ready returns the transport if the Connection is Ready. Otherwise it
// records StatusInvalidContext and returns nil.
func (c *Connection) ready() (transport.Conn, transport.State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.stopped || c.state != transport.StateReady {
		c.status = StatusInvalidContext
		return nil, c.state
	}
	return c.conn, c.state
}

// SendString sends s as UTF-8. Invalid UTF-8 is dropped.
func (c *Connection) SendString(s string) {
	if !utf8.ValidString(s) {
		c.logger.VerboseMsg("Dropping invalid UTF-8 string to %s", c.Endpoint())
		return
	}
	c.Send([]byte(s))
}

// Send hands one datagram to the transport. It is dropped unless the
// Connection is Ready. A transport send failure stops the Connection.
func (c *Connection) Send(b []byte) {
	if len(b) == 0 {
		c.setStatus(StatusNoData)
		return
	}

	tc, state := c.ready()
	if tc == nil {
		c.metrics.DatagramsDropped.WithLabelValues("invalid_context").Inc()
		c.logger.VerboseMsg("Dropping %s to %s: connection %s", format.Bytes(len(b)), c.Endpoint(), state)
		return
	}

	c.mu.Lock()
	c.lastActive = time.Now()
	c.mu.Unlock()

	tc.Send(b, func(err error) {
		if err != nil {
			c.setStatus(StatusSendError)
			c.logger.ErrorMsg("Send to %s: %s", c.Endpoint(), err)
			c.Stop()
			return
		}
		c.setStatus(StatusNoError)
		c.metrics.DatagramsSent.Inc()
		c.metrics.BytesSent.Add(float64(len(b)))
	})
}

// Receive requests exactly one datagram of up to MTU bytes and passes it to
// handler. handler is not called for empty, truncated or failed receives;
// the outcome is recorded in Status. A transport receive error stops the
// Connection.
func (c *Connection) Receive(handler func([]byte)) {
	c.receive(func(data []byte, st Status) {
		if st == StatusNoError {
			handler(data)
		}
	})
}

// ReceiveContext blocks until one datagram arrives or ctx is done. Failed
// receives return the sentinel error of the recorded Status, or ErrClosed
// once the Connection has reached a terminal state. At most one transport
// receive is armed at a time: if ctx expires first, the registration stays
// armed and whatever it delivers is returned by the next call.
func (c *Connection) ReceiveContext(ctx context.Context) ([]byte, error) {
	select {
	case c.recv <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.recv }()

	c.mu.Lock()
	ch := c.pending
	armed := ch != nil
	closed := c.stopped || c.state.Terminal()
	if !armed {
		ch = make(chan received, 1)
		c.pending = ch
	}
	c.mu.Unlock()

	switch {
	case !armed:
		c.receive(func(data []byte, st Status) {
			ch <- received{data, st}
		})
	case closed:
		// a registration left over from before Stop may never complete
		select {
		case r := <-ch:
			return c.collect(r)
		default:
			c.mu.Lock()
			c.pending = nil
			c.mu.Unlock()
			return nil, fmt.Errorf("connection %s: %w", c.State(), ErrClosed)
		}
	}

	select {
	case r := <-ch:
		return c.collect(r)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Connection) collect(r received) ([]byte, error) {
	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()

	if r.st == StatusInvalidContext && c.State().Terminal() {
		return nil, fmt.Errorf("connection %s: %w", c.State(), ErrClosed)
	}
	if err := r.st.Err(); err != nil {
		return nil, err
	}
	return r.data, nil
}

func (c *Connection) receive(done func([]byte, Status)) {
	tc, _ := c.ready()
	if tc == nil {
		done(nil, StatusInvalidContext)
		return
	}

	tc.Receive(1, c.mtu, func(data []byte, complete bool, err error) {
		if c.isStopped() {
			// pending receives short-circuit once stopped
			done(nil, StatusInvalidContext)
			return
		}

		var st Status
		switch {
		case err != nil:
			st = StatusReceiveError
		case !complete:
			st = StatusIncompleteData
		case len(data) == 0:
			st = StatusNoData
		default:
			st = StatusNoError
		}

		c.mu.Lock()
		c.status = st
		if st == StatusNoError {
			c.lastActive = time.Now()
		}
		c.mu.Unlock()
		c.metrics.ReceiveStatus.WithLabelValues(st.String()).Inc()

		switch st {
		case StatusReceiveError:
			c.logger.ErrorMsg("Receive from %s: %s", c.Endpoint(), err)
			c.Stop()
			done(nil, st)
		case StatusNoError:
			c.metrics.DatagramsReceived.Inc()
			c.metrics.BytesReceived.Add(float64(len(data)))
			done(data, st)
		default:
			done(nil, st)
		}
	})
}

// Stop cancels the transport. It unregisters the state handler first so
// that the cancellation does not re-enter the Connection. Stop is
// idempotent.
func (c *Connection) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	tc := c.conn
	c.mu.Unlock()

	if tc != nil {
		tc.SetStateHandler(nil)
		tc.Cancel()
	}
	if c.transition(transport.StateCancelled) {
		c.logger.VerboseMsg("Connection to %s cancelled", c.Endpoint())
	}
}

// WaitReady blocks until the Connection is Ready. It returns ErrClosed if a
// terminal state is reached first.
func (c *Connection) WaitReady(ctx context.Context) error {
	for {
		c.mu.Lock()
		s, ch := c.state, c.changed
		c.mu.Unlock()

		switch {
		case s == transport.StateReady:
			return nil
		case s.Terminal():
			return fmt.Errorf("connection %s: %w", s, ErrClosed)
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// State returns the current state.
func (c *Connection) State() transport.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the outcome of the most recent operation.
func (c *Connection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ID returns the listener-assigned id. ok is false for Connections that were
// not accepted by a Listener.
func (c *Connection) ID() (id uint64, ok bool) {
	return c.id, c.owned
}

// Endpoint returns the remote endpoint.
func (c *Connection) Endpoint() endpoint.Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ep
}

// MTU returns the maximum receive size.
func (c *Connection) MTU() int {
	return c.mtu
}

// LastActive returns the time of the last send or successful receive.
func (c *Connection) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}
