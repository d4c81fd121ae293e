// Package pubsub layers publish and subscribe roles over any socket.Socket,
// so the same code drives a point-to-point Connection or a Listener serving
// many peers.
package pubsub

import (
	"bytes"
	"context"
	"dominicbreuker/marko/pkg/socket"
	"errors"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

// handshakePrefix starts every subscription request.
var handshakePrefix = []byte("s:")

// notReadyBackoff paces Run while the socket is not yet Ready.
const notReadyBackoff = 50 * time.Millisecond

// Handshake returns the subscription request for topic.
func Handshake(topic string) []byte {
	b := make([]byte, 0, len(handshakePrefix)+len(topic))
	b = append(b, handshakePrefix...)
	return append(b, topic...)
}

// ParseHandshake reports whether b is a subscription request and returns its
// topic. The topic may be empty.
func ParseHandshake(b []byte) (string, bool) {
	if !bytes.HasPrefix(b, handshakePrefix) {
		return "", false
	}
	topic := b[len(handshakePrefix):]
	if !utf8.Valid(topic) {
		return "", false
	}
	return string(topic), true
}

// Publisher forwards payloads unchanged to its socket.
type Publisher[S socket.Socket] struct {
	socket S
}

func NewPublisher[S socket.Socket](s S) *Publisher[S] {
	return &Publisher[S]{socket: s}
}

// Publish sends payload as one datagram. There is no framing and no
// delivery confirmation.
func (p *Publisher[S]) Publish(payload []byte) {
	p.socket.Send(payload)
}

// Socket returns the underlying socket.
func (p *Publisher[S]) Socket() S {
	return p.socket
}

// Subscriber requests topics and relays inbound payloads to a handler.
type Subscriber[S socket.Socket] struct {
	socket S
}

func NewSubscriber[S socket.Socket](s S) *Subscriber[S] {
	return &Subscriber[S]{socket: s}
}

// Subscribe sends the handshake for topic. The request is not acknowledged.
func (s *Subscriber[S]) Subscribe(topic string) {
	s.socket.Send(Handshake(topic))
}

// Loop performs one single-shot receive and passes a non-empty payload to
// handler. Callers re-invoke it per iteration; Run loops internally.
func (s *Subscriber[S]) Loop(handler func([]byte)) {
	s.socket.Receive(func(b []byte) {
		if len(b) > 0 {
			handler(b)
		}
	})
}

// Socket returns the underlying socket.
func (s *Subscriber[S]) Socket() S {
	return s.socket
}

// contextReceiver is implemented by sockets that can block for a datagram.
type contextReceiver interface {
	ReceiveContext(ctx context.Context) ([]byte, error)
}

// Run calls handler for every non-empty payload until ctx is done or the
// socket closes. limiter paces the receives; nil means unlimited for
// sockets that can block and one receive per notReadyBackoff otherwise.
//
// Sockets without a blocking receive are driven through Loop, one
// registration per limiter token.
func (s *Subscriber[S]) Run(ctx context.Context, handler func([]byte), limiter *rate.Limiter) error {
	cr, blocking := any(s.socket).(contextReceiver)
	if limiter == nil {
		if blocking {
			limiter = rate.NewLimiter(rate.Inf, 0)
		} else {
			limiter = rate.NewLimiter(rate.Every(notReadyBackoff), 1)
		}
	}

	for {
		if err := limiter.Wait(ctx); err != nil {
			return ctxErr(ctx, err)
		}

		if !blocking {
			s.Loop(handler)
			continue
		}

		b, err := cr.ReceiveContext(ctx)
		switch {
		case err == nil:
			if len(b) > 0 {
				handler(b)
			}
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, socket.ErrClosed), errors.Is(err, socket.ErrReceive):
			return err
		case errors.Is(err, socket.ErrInvalidContext):
			select {
			case <-time.After(notReadyBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// ctxErr maps a limiter failure to the context error. Wait fails early when
// the next token lies past the deadline; the deadline is honoured anyway.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if _, ok := ctx.Deadline(); ok {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}
