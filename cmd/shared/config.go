package shared

import (
	"dominicbreuker/marko/pkg/config"
	"dominicbreuker/marko/pkg/log"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"
)

// Configure builds the socket config for cmd. It starts from --config, or
// the defaults, and applies every flag the user set explicitly. The
// transport argument, if given, overrides the configured endpoint. The
// returned cleanup closes the trace file and must always be called.
func Configure(cmd *cli.Command) (*config.Config, func(), error) {
	cleanup := func() {}

	cfg := config.Default()
	if path := cmd.String(ConfigFlag); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, cleanup, err
		}
		cfg = loaded
	}

	if cmd.Args().Len() > 0 {
		ep, err := ParseTransport(cmd.Args().First())
		if err != nil {
			return nil, cleanup, err
		}
		cfg.Endpoint = ep
	}

	applyFlags(cmd, cfg)
	cfg.Logger = log.NewLogger(cfg.Verbose)

	if errors := cfg.Validate(); len(errors) > 0 {
		cfg.Logger.ErrorMsg("Argument validation errors:")
		for _, err := range errors {
			cfg.Logger.ErrorMsg(" - %s", err)
		}
		return nil, cleanup, fmt.Errorf("exiting")
	}

	if cfg.TraceFile != "" {
		f, err := os.OpenFile(cfg.TraceFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, cleanup, fmt.Errorf("opening trace file: %w", err)
		}
		cfg.TraceWriter = f
		cleanup = func() { f.Close() }
	}

	return cfg, cleanup, nil
}

func applyFlags(cmd *cli.Command, cfg *config.Config) {
	if cmd.IsSet(VerboseFlag) {
		cfg.Verbose = cmd.Bool(VerboseFlag)
	}
	if cmd.IsSet(MTUFlag) {
		cfg.MTU = int(cmd.Int(MTUFlag))
	}
	if cmd.IsSet(TraceFlag) {
		cfg.TraceFile = cmd.String(TraceFlag)
	}
	if cmd.IsSet(TimeoutFlag) {
		cfg.Timeout = time.Duration(cmd.Int(TimeoutFlag)) * time.Millisecond
	}
	if cmd.IsSet(MetricsFlag) {
		cfg.MetricsAddr = cmd.String(MetricsFlag)
	}
	if cmd.IsSet(MaxPeersFlag) {
		cfg.MaxPeers = int(cmd.Int(MaxPeersFlag))
	}
	if cmd.IsSet(EvictionFlag) {
		cfg.Eviction = config.EvictionPolicy(cmd.String(EvictionFlag))
	}
	if cmd.IsSet(LocalOnlyFlag) {
		cfg.LocalOnly = cmd.Bool(LocalOnlyFlag)
	}
	if cmd.IsSet(NoReuseFlag) {
		cfg.ReuseAddr = !cmd.Bool(NoReuseFlag)
	}
	if cmd.IsSet(NoBroadcastFlag) {
		cfg.PeerToPeer = !cmd.Bool(NoBroadcastFlag)
	}
}
