package socket

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestUDP_ConnectBind(t *testing.T) {
	t.Parallel()

	ep := loopback(t)
	lcfg, rec := testConfig(t, nil)
	l := NewListener(lcfg)
	if err := l.Bind(ep); err != nil {
		t.Fatalf("Bind(%s): %v", ep, err)
	}
	defer l.Close()

	ccfg, _ := testConfig(t, nil)
	c := NewConnection(ccfg)
	c.Connect(ep)
	defer c.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady(): %v", err)
	}

	c.Send([]byte{1, 2, 3})
	waitFor(t, "peer", func() bool { return l.Len() == 1 })

	var mu sync.Mutex
	var received [][]byte
	got := make(chan struct{}, 4)
	l.Receive(func(data []byte) {
		mu.Lock()
		received = append(received, data)
		mu.Unlock()
		got <- struct{}{}
	})

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never received the datagram")
	}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	if len(received) != 1 || !bytes.Equal(received[0], []byte{1, 2, 3}) {
		t.Errorf("received = %v; want exactly [[1 2 3]]", received)
	}
	mu.Unlock()

	// reply travels back through the accepted peer
	l.Send([]byte("pong"))
	data, err := c.ReceiveContext(ctx)
	if err != nil {
		t.Fatalf("ReceiveContext(): %v", err)
	}
	if string(data) != "pong" {
		t.Errorf("client received %q; want pong", data)
	}
	if len(rec.Codes()) != 0 {
		t.Errorf("listener exited: %v", rec.Codes())
	}
}

func TestUDP_ReceiveAfterTimeout(t *testing.T) {
	t.Parallel()

	ep := loopback(t)
	lcfg, _ := testConfig(t, nil)
	l := NewListener(lcfg)
	if err := l.Bind(ep); err != nil {
		t.Fatalf("Bind(): %v", err)
	}
	defer l.Close()

	ccfg, _ := testConfig(t, nil)
	c := NewConnection(ccfg)
	c.Connect(ep)
	defer c.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady(): %v", err)
	}
	c.Send([]byte("hello"))
	waitFor(t, "peer", func() bool { return l.Len() == 1 })

	short, cancelShort := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelShort()
	if _, err := c.ReceiveContext(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("short ReceiveContext() error = %v; want deadline exceeded", err)
	}

	l.Send([]byte("pong"))
	data, err := c.ReceiveContext(ctx)
	if err != nil {
		t.Fatalf("ReceiveContext() after timeout: %v", err)
	}
	if string(data) != "pong" {
		t.Errorf("ReceiveContext() = %q; want pong", data)
	}
}

func TestUDP_BindTwice(t *testing.T) {
	t.Parallel()

	ep := loopback(t)
	cfg, _ := testConfig(t, nil)
	cfg.ReuseAddr = false

	first := NewListener(cfg)
	if err := first.Bind(ep); err != nil {
		t.Fatalf("first Bind(): %v", err)
	}
	defer first.Close()

	second := NewListener(cfg)
	defer second.Close()
	var be *BindError
	if err := second.Bind(ep); !errors.As(err, &be) {
		t.Errorf("second Bind() = %v; want *BindError", err)
	}
}

func TestUDP_RoundTripBytes(t *testing.T) {
	t.Parallel()

	ep := loopback(t)
	lcfg, _ := testConfig(t, nil)
	l := NewListener(lcfg)
	if err := l.Bind(ep); err != nil {
		t.Fatalf("Bind(): %v", err)
	}
	defer l.Close()

	ccfg, _ := testConfig(t, nil)
	c := NewConnection(ccfg)
	c.Connect(ep)
	defer c.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady(): %v", err)
	}

	payload := make([]byte, 1200)
	for i := range payload {
		payload[i] = byte(i)
	}
	c.Send(payload)
	waitFor(t, "peer", func() bool { return l.Len() == 1 })

	peer, ok := l.Connection(l.IDs()[0])
	if !ok {
		t.Fatal("peer connection missing")
	}
	data, err := peer.ReceiveContext(ctx)
	if err != nil {
		t.Fatalf("peer ReceiveContext(): %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("payload mismatch: got %d bytes", len(data))
	}
}
