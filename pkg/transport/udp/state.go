package udp

import (
	"dominicbreuker/marko/pkg/transport"
	"sync"
)

// stateBox tracks a lifecycle state and forwards changes to a handler.
// Once a terminal state is reached further changes are ignored.
type stateBox struct {
	mu      sync.Mutex
	state   transport.State
	handler transport.StateHandler
}

func (b *stateBox) get() transport.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *stateBox) setHandler(h transport.StateHandler) {
	b.mu.Lock()
	b.handler = h
	b.mu.Unlock()
}

// set moves to s and notifies the handler outside the lock. It reports
// whether the transition happened.
func (b *stateBox) set(s transport.State, err error) bool {
	b.mu.Lock()
	if b.state.Terminal() {
		b.mu.Unlock()
		return false
	}
	b.state = s
	h := b.handler
	b.mu.Unlock()

	if h != nil {
		h(s, err)
	}
	return true
}
