package shared

import (
	"context"
	"dominicbreuker/marko/pkg/config"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v3"
)

func TestGetBaseDescription(t *testing.T) {
	t.Parallel()

	desc := GetBaseDescription()

	if desc == "" {
		t.Error("GetBaseDescription() should not return empty string")
	}

	if !strings.Contains(desc, "udp://") {
		t.Error("description should mention the udp transport")
	}
}

func TestGetArgsUsage(t *testing.T) {
	t.Parallel()

	usage := GetArgsUsage()

	if !strings.Contains(usage, "transport") {
		t.Error("usage should mention transport")
	}
}

func flagNames(flags []cli.Flag) map[string]bool {
	names := make(map[string]bool)
	for _, flag := range flags {
		if n := flag.Names(); len(n) > 0 {
			names[n[0]] = true
		}
	}
	return names
}

func TestFlagSets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		flags []cli.Flag
		want  []string
	}{
		{"common", GetCommonFlags(), []string{VerboseFlag, ConfigFlag, MTUFlag, TraceFlag, TimeoutFlag}},
		{"bind", GetBindFlags(), []string{MetricsFlag, MaxPeersFlag, EvictionFlag, LocalOnlyFlag, NoReuseFlag, NoBroadcastFlag, EchoFlag}},
		{"connect", GetConnectFlags(), []string{TopicFlag, RateFlag}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			names := flagNames(tt.flags)
			for _, name := range tt.want {
				if !names[name] {
					t.Errorf("expected flag %q not found", name)
				}
			}
		})
	}
}

// configure runs Configure inside a command parsing args.
func configure(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()

	var cfg *config.Config
	var cfgErr error
	cmd := &cli.Command{
		Name:  "test",
		Flags: append(GetCommonFlags(), GetBindFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var cleanup func()
			cfg, cleanup, cfgErr = Configure(cmd)
			cleanup()
			return nil
		},
	}
	if err := cmd.Run(context.Background(), append([]string{"test"}, args...)); err != nil {
		t.Fatalf("Run(): %v", err)
	}
	return cfg, cfgErr
}

func TestConfigure(t *testing.T) {
	t.Parallel()

	cfg, err := configure(t, "--mtu", "1500", "--max-peers", "8", "--eviction", "reject", "--no-reuse", "--timeout", "250", "udp://127.0.0.1:5000")
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}

	if cfg.Endpoint.String() != "127.0.0.1:5000" {
		t.Errorf("Endpoint = %s", cfg.Endpoint)
	}
	if cfg.MTU != 1500 || cfg.MaxPeers != 8 || cfg.Eviction != config.EvictReject {
		t.Errorf("limits = %d %d %s", cfg.MTU, cfg.MaxPeers, cfg.Eviction)
	}
	if cfg.ReuseAddr {
		t.Error("ReuseAddr = true with --no-reuse")
	}
	if !cfg.PeerToPeer {
		t.Error("PeerToPeer default changed without flag")
	}
	if cfg.Timeout != 250*time.Millisecond {
		t.Errorf("Timeout = %s", cfg.Timeout)
	}
	if cfg.Logger == nil {
		t.Error("Logger not set")
	}
}

func TestConfigure_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "marko.yaml")
	data := "endpoint:\n  host: 127.0.0.1\n  port: 6000\nmax_peers: 4\nlocal_only: true\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := configure(t, "--config", path, "--max-peers", "16")
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if cfg.Endpoint.Port != 6000 || !cfg.LocalOnly {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.MaxPeers != 16 {
		t.Errorf("MaxPeers = %d; flag should override file", cfg.MaxPeers)
	}
}

func TestConfigure_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{"missing transport", nil},
		{"bad transport", []string{"tcp://127.0.0.1:5000"}},
		{"bad eviction", []string{"--eviction", "random", "udp://127.0.0.1:5000"}},
		{"missing config file", []string{"--config", "/nonexistent/marko.yaml", "udp://127.0.0.1:5000"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := configure(t, tt.args...); err == nil {
				t.Error("Configure() expected error")
			}
		})
	}
}

func TestConfigure_TraceFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trace.log")
	cfg, err := configure(t, "--trace", path, "udp://127.0.0.1:5000")
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if cfg.TraceWriter == nil {
		t.Error("TraceWriter not set")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("trace file not created: %v", err)
	}
}
