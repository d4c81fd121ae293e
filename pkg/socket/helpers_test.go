package socket

import (
	"dominicbreuker/marko/mocks"
	"dominicbreuker/marko/pkg/config"
	"dominicbreuker/marko/pkg/endpoint"
	"dominicbreuker/marko/pkg/log"
	"dominicbreuker/marko/pkg/metrics"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// exitRecorder captures exit codes instead of terminating the test binary.
type exitRecorder struct {
	mu    sync.Mutex
	codes []int
}

func (e *exitRecorder) exit(code int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.codes = append(e.codes, code)
}

func (e *exitRecorder) Codes() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.codes...)
}

// testConfig returns a config with an isolated metrics registry. A nil tr
// selects the real UDP transport.
func testConfig(t *testing.T, tr *mocks.MockTransport) (*config.Config, *exitRecorder) {
	t.Helper()
	rec := &exitRecorder{}
	cfg := config.Default()
	cfg.Logger = log.NewLoggerWithWriter(true, io.Discard)
	cfg.Metrics = metrics.NewMetricsWithRegistry(prometheus.NewRegistry())
	cfg.Deps = &config.Dependencies{Exit: rec.exit}
	if tr != nil {
		cfg.Deps.Transport = tr
	}
	return cfg, rec
}

func freePort(t *testing.T) int {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer pc.Close()
	return pc.LocalAddr().(*net.UDPAddr).Port
}

func loopback(t *testing.T) endpoint.Endpoint {
	t.Helper()
	return endpoint.Endpoint{Host: "127.0.0.1", Port: freePort(t)}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
