package connect

import (
	"bytes"
	"context"
	"dominicbreuker/marko/mocks"
	"dominicbreuker/marko/pkg/config"
	"dominicbreuker/marko/pkg/endpoint"
	"dominicbreuker/marko/pkg/log"
	"dominicbreuker/marko/pkg/metrics"
	"dominicbreuker/marko/pkg/pipeio"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func testConfig(tr *mocks.MockTransport) *config.Config {
	cfg := config.Default()
	cfg.Endpoint = endpoint.Endpoint{Host: "127.0.0.1", Port: 5000}
	cfg.Timeout = 200 * time.Millisecond
	cfg.Logger = log.NewLoggerWithWriter(false, io.Discard)
	cfg.Metrics = metrics.NewMetricsWithRegistry(prometheus.NewRegistry())
	cfg.Deps = &config.Dependencies{Transport: tr}
	return cfg
}

func TestGetCommand(t *testing.T) {
	t.Parallel()

	cmd := GetCommand()

	if cmd == nil {
		t.Fatal("GetCommand() returned nil")
	}

	if cmd.Name != "connect" {
		t.Errorf("command name = %q; want %q", cmd.Name, "connect")
	}

	if cmd.Action == nil {
		t.Error("command action should not be nil")
	}

	names := make(map[string]bool)
	for _, flag := range getFlags() {
		names[flag.Names()[0]] = true
	}
	for _, name := range []string{"verbose", "topic", "rate", "timeout"} {
		if !names[name] {
			t.Errorf("expected flag %q not found", name)
		}
	}
}

func TestRun_PublishesLines(t *testing.T) {
	t.Parallel()

	tr := mocks.NewMockTransport()
	tr.AutoReady = true
	stdio := pipeio.NewStdio(strings.NewReader("hello\n\nworld\n"), &bytes.Buffer{})

	err := run(context.Background(), testConfig(tr), options{topic: "telemetry", rate: 100}, stdio)
	if err != nil {
		t.Fatalf("run() = %v", err)
	}

	conns := tr.Conns()
	if len(conns) != 1 {
		t.Fatalf("opened %d conns; want 1", len(conns))
	}
	var got []string
	for _, b := range conns[0].Sends() {
		got = append(got, string(b))
	}
	if strings.Join(got, ",") != "s:telemetry,hello,world" {
		t.Errorf("sends = %q", got)
	}
	if conns[0].Cancels() != 1 {
		t.Errorf("connection not stopped after EOF")
	}
}

func TestRun_ConnectTimeout(t *testing.T) {
	t.Parallel()

	tr := mocks.NewMockTransport()
	stdio := pipeio.NewStdio(strings.NewReader("never sent\n"), &bytes.Buffer{})

	if err := run(context.Background(), testConfig(tr), options{}, stdio); err == nil {
		t.Fatal("run() expected error when the connection never becomes ready")
	}
	if n := tr.Conns()[0].SendCount(); n != 0 {
		t.Errorf("sent %d datagrams before ready", n)
	}
}

func TestRun_PrintsInbound(t *testing.T) {
	t.Parallel()

	tr := mocks.NewMockTransport()
	tr.AutoReady = true
	mockStdio := mocks.NewMockStdio()
	defer mockStdio.Close()
	stdio := pipeio.NewStdio(mockStdio.Stdin(), mockStdio.Stdout())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx, testConfig(tr), options{}, stdio) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(tr.Conns()) == 0 || tr.Conns()[0].PendingReceives() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no receive registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	tr.Conns()[0].Deliver([]byte("pong"), true, nil)

	if err := mockStdio.WaitForOutput("pong\n", 2*time.Second); err != nil {
		t.Error(err)
	}

	cancel()
	mockStdio.CloseStdin()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("run() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
