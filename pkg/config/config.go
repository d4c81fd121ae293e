// Package config holds the socket configuration, its YAML loading, and the
// injectable dependencies used to replace OS primitives in tests.
package config

import (
	"dominicbreuker/marko/pkg/endpoint"
	"dominicbreuker/marko/pkg/log"
	"dominicbreuker/marko/pkg/metrics"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultMTU is the largest receive buffer a Connection allocates by default.
const DefaultMTU = 65535

// DefaultMaxPeers bounds the number of peer connections per listener.
const DefaultMaxPeers = 1024

// EvictionPolicy decides what a listener at capacity does with a new peer.
type EvictionPolicy string

const (
	// EvictReject cancels the new peer.
	EvictReject EvictionPolicy = "reject"
	// EvictIdle stops the least-recently-active connection to make room.
	EvictIdle EvictionPolicy = "evict-idle"
)

// Config configures connections and listeners.
type Config struct {
	Endpoint   endpoint.Endpoint `yaml:"endpoint"`
	MTU        int               `yaml:"mtu"`
	MaxPeers   int               `yaml:"max_peers"`
	Eviction   EvictionPolicy    `yaml:"eviction"`
	ReuseAddr  bool              `yaml:"reuse_addr"`
	LocalOnly  bool              `yaml:"local_only"`
	PeerToPeer bool              `yaml:"peer_to_peer"`
	Timeout    time.Duration     `yaml:"timeout"`

	Verbose     bool   `yaml:"verbose"`
	MetricsAddr string `yaml:"metrics_addr"`
	TraceFile   string `yaml:"trace_file"`

	Logger      *log.Logger      `yaml:"-"`
	Deps        *Dependencies    `yaml:"-"`
	Metrics     *metrics.Metrics `yaml:"-"`
	TraceWriter io.Writer        `yaml:"-"`
}

// Default returns a Config with the default MTU, capacity policy and
// listener options.
func Default() *Config {
	return &Config{
		MTU:        DefaultMTU,
		MaxPeers:   DefaultMaxPeers,
		Eviction:   EvictIdle,
		ReuseAddr:  true,
		PeerToPeer: true,
		Timeout:    5 * time.Second,
	}
}

// Load reads a YAML file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Validate checks every field and returns all problems found.
func (c *Config) Validate() []error {
	var errors []error

	if err := c.Endpoint.Validate(); err != nil {
		errors = append(errors, fmt.Errorf("endpoint: %w", err))
	}

	if c.MTU < 1 || c.MTU > DefaultMTU {
		errors = append(errors, fmt.Errorf("'mtu' must be in [1, %d]", DefaultMTU))
	}

	if c.MaxPeers < 1 {
		errors = append(errors, fmt.Errorf("'max_peers' must be at least 1"))
	}

	switch c.Eviction {
	case EvictReject, EvictIdle:
	default:
		errors = append(errors, fmt.Errorf("'eviction' must be %q or %q, got %q", EvictReject, EvictIdle, c.Eviction))
	}

	if c.Timeout < 0 {
		errors = append(errors, fmt.Errorf("'timeout' must not be negative"))
	}

	return errors
}

// GetMTU returns the configured MTU, or DefaultMTU when unset. A nil config
// is valid.
func (c *Config) GetMTU() int {
	if c == nil || c.MTU <= 0 || c.MTU > DefaultMTU {
		return DefaultMTU
	}
	return c.MTU
}

// GetLogger returns the configured logger. The nil logger is usable.
func (c *Config) GetLogger() *log.Logger {
	if c == nil {
		return nil
	}
	return c.Logger
}

// GetMetrics returns the configured metrics, falling back to the default
// registry.
func (c *Config) GetMetrics() *metrics.Metrics {
	if c == nil || c.Metrics == nil {
		return metrics.Default()
	}
	return c.Metrics
}

// GetDeps returns the configured dependencies, possibly nil.
func (c *Config) GetDeps() *Dependencies {
	if c == nil {
		return nil
	}
	return c.Deps
}
