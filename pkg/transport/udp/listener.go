package udp

import (
	"dominicbreuker/marko/pkg/transport"
	"net"
	"sync"
)

// peerQueue bounds the datagrams buffered per peer before Receive drains them.
const peerQueue = 64

// Listener is a bound UDP socket. Every new remote address becomes a peer
// Conn handed to the accept handler.
type Listener struct {
	stateBox

	pc   net.PacketConn
	opts transport.ListenOptions

	mu     sync.Mutex
	peers  map[string]*peerConn
	accept transport.AcceptHandler

	done      chan struct{}
	closeOnce sync.Once
}

func newListener(pc net.PacketConn, opts transport.ListenOptions) *Listener {
	return &Listener{
		pc:    pc,
		opts:  opts,
		peers: make(map[string]*peerConn),
		done:  make(chan struct{}),
	}
}

// Start begins reading datagrams on a background goroutine.
func (l *Listener) Start(sh transport.StateHandler, ah transport.AcceptHandler) {
	l.setHandler(sh)
	l.mu.Lock()
	l.accept = ah
	l.mu.Unlock()

	go l.readLoop()
}

// Addr returns the local address the socket is bound to.
func (l *Listener) Addr() net.Addr {
	return l.pc.LocalAddr()
}

// Cancel closes the socket and cancels every peer.
func (l *Listener) Cancel() {
	l.closeOnce.Do(func() {
		close(l.done)
		_ = l.pc.Close()
		l.cancelPeers()
		l.set(transport.StateCancelled, nil)
	})
}

func (l *Listener) closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (l *Listener) readLoop() {
	l.set(transport.StateSetup, nil)
	l.set(transport.StatePreparing, nil)
	if !l.set(transport.StateReady, nil) {
		return
	}

	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := l.pc.ReadFrom(buf)
		if err != nil {
			if l.closed() {
				return
			}
			l.cancelPeers()
			l.set(transport.StateFailed, err)
			return
		}

		if l.opts.LocalOnly && !isLoopback(addr) {
			continue
		}

		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		l.dispatch(addr, pkt)
	}
}

// dispatch queues pkt on the peer for addr, creating and accepting the peer
// if it is new.
func (l *Listener) dispatch(addr net.Addr, pkt []byte) {
	key := addr.String()

	l.mu.Lock()
	p, ok := l.peers[key]
	if !ok {
		p = newPeerConn(l, addr, key)
		l.peers[key] = p
	}
	accept := l.accept
	l.mu.Unlock()

	p.enqueue(pkt)

	if !ok && accept != nil {
		accept(p)
	}
}

func (l *Listener) forget(key string, p *peerConn) {
	l.mu.Lock()
	if l.peers[key] == p {
		delete(l.peers, key)
	}
	l.mu.Unlock()
}

func (l *Listener) cancelPeers() {
	l.mu.Lock()
	peers := make([]*peerConn, 0, len(l.peers))
	for _, p := range l.peers {
		peers = append(peers, p)
	}
	l.mu.Unlock()

	for _, p := range peers {
		p.Cancel()
	}
}

func isLoopback(addr net.Addr) bool {
	if ua, ok := addr.(*net.UDPAddr); ok {
		return ua.IP.IsLoopback()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// peerConn is one remote address seen by a Listener. It shares the
// listener's socket for sending.
type peerConn struct {
	stateBox

	l     *Listener
	raddr net.Addr
	key   string

	rx        chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newPeerConn(l *Listener, raddr net.Addr, key string) *peerConn {
	return &peerConn{
		l:     l,
		raddr: raddr,
		key:   key,
		rx:    make(chan []byte, peerQueue),
		done:  make(chan struct{}),
	}
}

// enqueue drops the datagram when the peer queue is full.
func (p *peerConn) enqueue(pkt []byte) {
	select {
	case p.rx <- pkt:
	default:
	}
}

// Start reports Ready synchronously since the shared socket is already bound.
func (p *peerConn) Start(h transport.StateHandler) {
	p.setHandler(h)
	p.set(transport.StatePreparing, nil)
	p.set(transport.StateReady, nil)
}

func (p *peerConn) SetStateHandler(h transport.StateHandler) {
	p.setHandler(h)
}

func (p *peerConn) State() transport.State {
	return p.get()
}

func (p *peerConn) Send(b []byte, done transport.SendHandler) {
	var err error
	if p.State() != transport.StateReady {
		err = ErrNotReady
	} else {
		_, err = p.l.pc.WriteTo(b, p.raddr)
	}
	if done != nil {
		done(err)
	}
}

func (p *peerConn) Receive(minLen, maxLen int, h transport.ReceiveHandler) {
	if p.State() != transport.StateReady {
		h(nil, true, ErrNotReady)
		return
	}

	go func() {
		select {
		case pkt := <-p.rx:
			deliver(pkt, minLen, maxLen, h)
		case <-p.done:
			h(nil, true, net.ErrClosed)
		}
	}()
}

// Cancel removes the peer from its listener so that a later datagram from
// the same address is accepted as a new peer.
func (p *peerConn) Cancel() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.l.forget(p.key, p)
		p.set(transport.StateCancelled, nil)
	})
}

func (p *peerConn) LocalAddr() net.Addr {
	return p.l.pc.LocalAddr()
}

func (p *peerConn) RemoteAddr() net.Addr {
	return p.raddr
}

var (
	_ transport.Listener = (*Listener)(nil)
	_ transport.Conn     = (*peerConn)(nil)
)
