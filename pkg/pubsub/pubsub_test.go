package pubsub

import (
	"bytes"
	"context"
	"dominicbreuker/marko/mocks"
	"dominicbreuker/marko/pkg/config"
	"dominicbreuker/marko/pkg/endpoint"
	"dominicbreuker/marko/pkg/metrics"
	"dominicbreuker/marko/pkg/socket"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// fakeSocket records sends and serves queued payloads to Receive.
type fakeSocket struct {
	mu    sync.Mutex
	sends [][]byte
	queue [][]byte
}

func (f *fakeSocket) SendString(s string) { f.Send([]byte(s)) }

func (f *fakeSocket) Send(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, b)
}

func (f *fakeSocket) Receive(handler func([]byte)) {
	f.mu.Lock()
	if len(f.queue) == 0 {
		f.mu.Unlock()
		return
	}
	b := f.queue[0]
	f.queue = f.queue[1:]
	f.mu.Unlock()
	handler(b)
}

func (f *fakeSocket) Sends() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sends...)
}

// blockingSocket serves payloads from a channel through ReceiveContext.
type blockingSocket struct {
	fakeSocket
	ch chan []byte
}

func (b *blockingSocket) ReceiveContext(ctx context.Context) ([]byte, error) {
	select {
	case p, ok := <-b.ch:
		if !ok {
			return nil, socket.ErrClosed
		}
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestHandshake(t *testing.T) {
	t.Parallel()

	tests := []struct {
		topic string
		want  []byte
	}{
		{"telemetry", []byte("s:telemetry")},
		{"", []byte("s:")},
		{"métriques", []byte("s:métriques")},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.topic, func(t *testing.T) {
			t.Parallel()
			if got := Handshake(tc.topic); !bytes.Equal(got, tc.want) {
				t.Errorf("Handshake(%q) = %q; want %q", tc.topic, got, tc.want)
			}
		})
	}
}

func TestParseHandshake(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    []byte
		topic string
		ok    bool
	}{
		{"topic", []byte("s:telemetry"), "telemetry", true},
		{"empty topic", []byte("s:"), "", true},
		{"no prefix", []byte("telemetry"), "", false},
		{"short", []byte("s"), "", false},
		{"invalid utf8", []byte{'s', ':', 0xff}, "", false},
		{"empty", nil, "", false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			topic, ok := ParseHandshake(tc.in)
			if topic != tc.topic || ok != tc.ok {
				t.Errorf("ParseHandshake(%q) = %q, %v; want %q, %v", tc.in, topic, ok, tc.topic, tc.ok)
			}
		})
	}
}

func TestPublisher_Publish(t *testing.T) {
	t.Parallel()

	fs := &fakeSocket{}
	p := NewPublisher(fs)
	p.Publish([]byte{0, 1, 2})
	p.Publish([]byte("s:not-a-subscription"))

	sends := fs.Sends()
	if len(sends) != 2 || !bytes.Equal(sends[0], []byte{0, 1, 2}) || string(sends[1]) != "s:not-a-subscription" {
		t.Errorf("sends = %q", sends)
	}
	if p.Socket() != fs {
		t.Error("Socket() returned a different socket")
	}
}

func TestSubscriber_Subscribe(t *testing.T) {
	t.Parallel()

	fs := &fakeSocket{}
	NewSubscriber(fs).Subscribe("telemetry")

	sends := fs.Sends()
	if len(sends) != 1 || !bytes.Equal(sends[0], []byte("s:telemetry")) {
		t.Errorf("sends = %q; want [s:telemetry]", sends)
	}
}

func TestSubscriber_Loop(t *testing.T) {
	t.Parallel()

	fs := &fakeSocket{queue: [][]byte{{}, []byte("a"), nil, []byte("b")}}
	sub := NewSubscriber(fs)

	var got []string
	for i := 0; i < 5; i++ {
		sub.Loop(func(b []byte) { got = append(got, string(b)) })
	}

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("handler got %q; want [a b]", got)
	}
}

func TestSubscriber_Run_Blocking(t *testing.T) {
	t.Parallel()

	bs := &blockingSocket{ch: make(chan []byte, 4)}
	bs.ch <- []byte("one")
	bs.ch <- []byte{}
	bs.ch <- []byte("two")
	close(bs.ch)

	var got []string
	err := NewSubscriber(bs).Run(context.Background(), func(b []byte) { got = append(got, string(b)) }, nil)

	if !errors.Is(err, socket.ErrClosed) {
		t.Errorf("Run() = %v; want ErrClosed", err)
	}
	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Errorf("handler got %q", got)
	}
}

func TestSubscriber_Run_Polling(t *testing.T) {
	t.Parallel()

	fs := &fakeSocket{queue: [][]byte{[]byte("x"), nil, []byte("y")}}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var mu sync.Mutex
	var got []string
	err := NewSubscriber(fs).Run(ctx, func(b []byte) {
		mu.Lock()
		got = append(got, string(b))
		mu.Unlock()
	}, rate.NewLimiter(rate.Every(time.Millisecond), 1))

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() = %v; want deadline exceeded", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Errorf("handler got %q; want [x y]", got)
	}
}

func TestSubscriber_Run_Cancel(t *testing.T) {
	t.Parallel()

	bs := &blockingSocket{ch: make(chan []byte)}
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- NewSubscriber(bs).Run(ctx, func([]byte) {}, nil)
	}()
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v; want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSubscriber_OverConnection(t *testing.T) {
	t.Parallel()

	tr := mocks.NewMockTransport()
	tr.AutoReady = true
	cfg := config.Default()
	cfg.Metrics = metrics.NewMetricsWithRegistry(prometheus.NewRegistry())
	cfg.Deps = &config.Dependencies{Transport: tr}

	conn := socket.NewConnection(cfg)
	conn.Connect(endpoint.Endpoint{Host: "127.0.0.1", Port: 5000})
	defer conn.Stop()

	sub := NewSubscriber(conn)
	sub.Subscribe("telemetry")

	mc := tr.Conns()[0]
	if sends := mc.Sends(); len(sends) != 1 || string(sends[0]) != "s:telemetry" {
		t.Fatalf("wire sends = %q; want [s:telemetry]", sends)
	}

	var got []byte
	calls := 0
	sub.Loop(func(b []byte) {
		calls++
		got = b
	})
	mc.Deliver([]byte{1, 2, 3}, true, nil)
	sub.Loop(func([]byte) { calls++ })
	mc.Deliver(nil, true, nil)

	if calls != 1 || !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("handler calls = %d, data = %v", calls, got)
	}
}
