package socket

import (
	"context"
	"dominicbreuker/marko/pkg/config"
	"dominicbreuker/marko/pkg/endpoint"
	"dominicbreuker/marko/pkg/log"
	"dominicbreuker/marko/pkg/metrics"
	"dominicbreuker/marko/pkg/transport"
	"errors"
	"net"
	"sort"
	"sync"
	"unicode/utf8"
)

var errAlreadyBound = errors.New("listener already bound")

// inboxSize bounds the datagrams buffered for ReceiveFrom before peers wait.
const inboxSize = 64

// Datagram is one payload received by a Listener together with its sender.
type Datagram struct {
	ID   uint64
	From endpoint.Endpoint
	Data []byte
}

// Listener is a bound datagram socket that tracks one Connection per peer.
// The connection map is guarded by a single mutex shared by the accept path
// and the sweep.
type Listener struct {
	mtu      int
	opts     transport.ListenOptions
	maxPeers int
	eviction config.EvictionPolicy
	tr       transport.Transport
	logger   *log.Logger
	metrics  *metrics.Metrics
	exit     config.ExitFunc

	mu      sync.Mutex
	ln      transport.Listener
	ep      endpoint.Endpoint
	state   transport.State
	closing bool
	nextID  uint64
	conns   map[uint64]*Connection

	// inbox is created by the first ReceiveFrom. From then on every live
	// peer keeps one armed receive feeding it.
	inbox chan Datagram
	armed map[uint64]bool
	done  chan struct{}
}

// NewListener returns an unbound Listener. cfg may be nil.
func NewListener(cfg *config.Config) *Listener {
	if cfg == nil {
		cfg = config.Default()
	}
	maxPeers := cfg.MaxPeers
	if maxPeers < 1 {
		maxPeers = config.DefaultMaxPeers
	}
	return &Listener{
		mtu: cfg.GetMTU(),
		opts: transport.ListenOptions{
			ReuseAddr:  cfg.ReuseAddr,
			LocalOnly:  cfg.LocalOnly,
			PeerToPeer: cfg.PeerToPeer,
		},
		maxPeers: maxPeers,
		eviction: cfg.Eviction,
		tr:       transportFor(cfg),
		logger:   cfg.GetLogger(),
		metrics:  cfg.GetMetrics(),
		exit:     config.GetExitFunc(cfg.GetDeps()),
		conns:    make(map[uint64]*Connection),
		armed:    make(map[uint64]bool),
		done:     make(chan struct{}),
	}
}

// Bind acquires ep and starts accepting peers. It returns a *BindError if
// the transport rejects the endpoint. A transport failure after Bind has
// succeeded terminates the process.
func (l *Listener) Bind(ep endpoint.Endpoint) error {
	l.mu.Lock()
	if l.ln != nil {
		l.mu.Unlock()
		return &BindError{Endpoint: ep, Err: errAlreadyBound}
	}

	ln, err := l.tr.Listen(ep, l.opts)
	if err != nil {
		l.mu.Unlock()
		return &BindError{Endpoint: ep, Err: err}
	}
	l.ln = ln
	l.ep = ep
	l.mu.Unlock()

	ln.Start(l.handleState, l.accept)
	return nil
}

func (l *Listener) handleState(s transport.State, err error) {
	l.mu.Lock()
	if l.state.Terminal() {
		l.mu.Unlock()
		return
	}
	l.state = s
	closing := l.closing
	ep := l.ep
	l.mu.Unlock()

	switch s {
	case transport.StateReady:
		l.logger.VerboseMsg("Server ready on %s", ep)
	case transport.StateFailed:
		if closing {
			return
		}
		l.logger.ErrorMsg("Server failure on %s: %v", ep, err)
		l.exit(1)
	default:
		l.logger.VerboseMsg("Server on %s: %s", ep, s)
	}
}

// accept wraps a new peer in a Connection with the next id. At capacity the
// eviction policy either rejects the peer or evicts the least recently
// active connection.
func (l *Listener) accept(tc transport.Conn) {
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		tc.Cancel()
		return
	}

	var evicted *Connection
	if len(l.conns) >= l.maxPeers {
		if l.eviction == config.EvictReject {
			l.mu.Unlock()
			tc.Cancel()
			l.metrics.ConnectionsRejected.Inc()
			l.logger.VerboseMsg("Rejecting peer %v: %d connections", tc.RemoteAddr(), l.maxPeers)
			return
		}
		evicted = l.leastRecentlyActiveLocked()
		delete(l.conns, evicted.id)
	}

	id := l.nextID
	l.nextID++
	c := newConnection(l.mtu, l.tr, l.logger, l.metrics)
	c.id = id
	c.owned = true
	l.conns[id] = c
	l.mu.Unlock()

	if evicted != nil {
		evicted.Stop()
		l.metrics.ConnectionsEvicted.Inc()
		l.metrics.ConnectionsActive.Dec()
		l.logger.VerboseMsg("Evicted connection %d (%s)", evicted.id, evicted.Endpoint())
	}

	l.metrics.ConnectionsAccepted.Inc()
	l.metrics.ConnectionsActive.Inc()
	l.logger.VerboseMsg("New connection %d from %v", id, tc.RemoteAddr())

	c.attach(tc)
	l.arm(c)
}

// leastRecentlyActiveLocked picks the eviction victim. Terminal connections
// go first, then the oldest activity, then the lowest id. l.mu must be held
// and the map must not be empty.
func (l *Listener) leastRecentlyActiveLocked() *Connection {
	var victim *Connection
	for _, c := range l.conns {
		if victim == nil || evictsBefore(c, victim) {
			victim = c
		}
	}
	return victim
}

func evictsBefore(a, b *Connection) bool {
	at, bt := a.State().Terminal(), b.State().Terminal()
	if at != bt {
		return at
	}
	al, bl := a.LastActive(), b.LastActive()
	if !al.Equal(bl) {
		return al.Before(bl)
	}
	return a.id < b.id
}

// sweep prunes cancelled connections and returns the remaining ones ordered
// by id.
func (l *Listener) sweep() []*Connection {
	l.mu.Lock()
	live := make([]*Connection, 0, len(l.conns))
	pruned := 0
	for id, c := range l.conns {
		if c.State() == transport.StateCancelled {
			delete(l.conns, id)
			pruned++
			continue
		}
		live = append(live, c)
	}
	l.mu.Unlock()

	if pruned > 0 {
		l.metrics.ConnectionsPruned.Add(float64(pruned))
		l.metrics.ConnectionsActive.Sub(float64(pruned))
		l.logger.VerboseMsg("Pruned %d cancelled connections", pruned)
	}

	sort.Slice(live, func(i, j int) bool { return live[i].id < live[j].id })
	return live
}

// SendString sends s as UTF-8 to every connected peer.
func (l *Listener) SendString(s string) {
	if !utf8.ValidString(s) {
		l.logger.VerboseMsg("Dropping invalid UTF-8 string")
		return
	}
	l.Send([]byte(s))
}

// Send forwards b to every live peer. A failure on one peer does not affect
// the others.
func (l *Listener) Send(b []byte) {
	for _, c := range l.sweep() {
		c.Send(b)
	}
}

// Receive performs one single-shot receive on every live peer. handler may
// run concurrently for different peers. Once ReceiveFrom has been called,
// peers keep a receive armed for the inbox, so datagrams are split between
// the two paths; use one or the other on a given Listener.
func (l *Listener) Receive(handler func([]byte)) {
	for _, c := range l.sweep() {
		c.Receive(handler)
	}
}

// ReceiveFrom blocks until any peer delivers a non-empty datagram, ctx is
// done, or the Listener is closed. Receives armed here stay armed across
// calls, so datagrams arriving between calls are buffered. Mixing
// ReceiveFrom with Receive splits datagrams between the two.
func (l *Listener) ReceiveFrom(ctx context.Context) (Datagram, error) {
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		return Datagram{}, ErrClosed
	}
	if l.inbox == nil {
		l.inbox = make(chan Datagram, inboxSize)
	}
	inbox := l.inbox
	l.mu.Unlock()

	for _, c := range l.sweep() {
		l.arm(c)
	}

	select {
	case d := <-inbox:
		return d, nil
	case <-ctx.Done():
		return Datagram{}, ctx.Err()
	case <-l.done:
		return Datagram{}, ErrClosed
	}
}

// ReceiveContext is ReceiveFrom without the sender.
func (l *Listener) ReceiveContext(ctx context.Context) ([]byte, error) {
	d, err := l.ReceiveFrom(ctx)
	return d.Data, err
}

// arm registers one receive on c that feeds the inbox and re-arms itself
// until c stops being Ready.
func (l *Listener) arm(c *Connection) {
	l.mu.Lock()
	if l.inbox == nil || l.closing || l.armed[c.id] {
		l.mu.Unlock()
		return
	}
	l.armed[c.id] = true
	inbox := l.inbox
	l.mu.Unlock()

	c.receive(func(data []byte, st Status) {
		l.mu.Lock()
		delete(l.armed, c.id)
		l.mu.Unlock()

		switch st {
		case StatusNoError:
			select {
			case inbox <- Datagram{ID: c.id, From: c.Endpoint(), Data: data}:
			case <-l.done:
				return
			}
		case StatusNoData, StatusIncompleteData:
		default:
			return
		}
		l.arm(c)
	})
}

// Close stops every connection and the bound transport.
func (l *Listener) Close() {
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		return
	}
	l.closing = true
	close(l.done)
	ln := l.ln
	conns := make([]*Connection, 0, len(l.conns))
	for _, c := range l.conns {
		conns = append(conns, c)
	}
	l.conns = make(map[uint64]*Connection)
	l.mu.Unlock()

	for _, c := range conns {
		c.Stop()
	}
	l.metrics.ConnectionsActive.Sub(float64(len(conns)))

	if ln != nil {
		ln.Cancel()
	}
}

// Addr returns the address actually bound, or nil before Bind.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Endpoint returns the endpoint passed to Bind.
func (l *Listener) Endpoint() endpoint.Endpoint {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ep
}

// State returns the state of the bound transport.
func (l *Listener) State() transport.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Len returns the number of connections in the map, including cancelled
// ones not yet swept.
func (l *Listener) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.conns)
}

// IDs returns the ids in the map in ascending order.
func (l *Listener) IDs() []uint64 {
	l.mu.Lock()
	ids := make([]uint64, 0, len(l.conns))
	for id := range l.conns {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Connection returns the connection with the given id.
func (l *Listener) Connection(id uint64) (*Connection, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.conns[id]
	return c, ok
}
