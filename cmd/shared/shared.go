// Package shared provides common CLI flag definitions and utility functions
// used across marko's command-line interface.
package shared

import (
	"strings"

	"github.com/urfave/cli/v3"
)

const categoryCommon = "common"

// VerboseFlag is the name of the flag to enable verbose logging.
const VerboseFlag = "verbose"

// ConfigFlag is the name of the flag to load a YAML config file.
const ConfigFlag = "config"

// MTUFlag is the name of the flag to set the maximum receive size.
const MTUFlag = "mtu"

// TraceFlag is the name of the flag to write a hex trace of all datagrams.
const TraceFlag = "trace"

// TimeoutFlag is the name of the flag to specify the connect timeout in milliseconds.
const TimeoutFlag = "timeout"

// GetBaseDescription returns the base description text for transport
// strings used in CLI commands.
func GetBaseDescription() string {
	return strings.Join([]string{
		"Specify transport like this: udp://127.0.0.1:5000",
		"You can omit the host when binding to listen on all interfaces.",
		"Flags override values loaded with --config.",
	}, "\n")
}

// GetArgsUsage returns the arguments usage string for CLI commands.
func GetArgsUsage() string {
	return strings.Join([]string{
		"transport",
	}, " ")
}

// GetCommonFlags returns the common CLI flags used by both bind and connect.
func GetCommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:     VerboseFlag,
			Aliases:  []string{"v"},
			Usage:    "Verbose logging",
			Category: categoryCommon,
			Value:    false,
			Required: false,
		},
		&cli.StringFlag{
			Name:     ConfigFlag,
			Aliases:  []string{"c"},
			Usage:    "YAML config file",
			Category: categoryCommon,
			Value:    "",
			Required: false,
		},
		&cli.IntFlag{
			Name:     MTUFlag,
			Usage:    "Maximum datagram size accepted on receive",
			Category: categoryCommon,
			Value:    65535,
			Required: false,
		},
		&cli.StringFlag{
			Name:     TraceFlag,
			Usage:    "Append a hex dump of every datagram to this file",
			Category: categoryCommon,
			Value:    "",
			Required: false,
		},
		&cli.IntFlag{
			Name:     TimeoutFlag,
			Aliases:  []string{"t"},
			Usage:    "Connect timeout in milliseconds",
			Category: categoryCommon,
			Value:    5000, // 5 seconds default
			Required: false,
		},
	}
}

const categoryBind = "bind"

// MetricsFlag is the name of the flag to serve Prometheus metrics.
const MetricsFlag = "metrics"

// MaxPeersFlag is the name of the flag to limit tracked peers.
const MaxPeersFlag = "max-peers"

// EvictionFlag is the name of the flag selecting the policy at capacity.
const EvictionFlag = "eviction"

// LocalOnlyFlag is the name of the flag to accept loopback peers only.
const LocalOnlyFlag = "local-only"

// NoReuseFlag is the name of the flag to bind exclusively.
const NoReuseFlag = "no-reuse"

// NoBroadcastFlag is the name of the flag to disable peer-to-peer broadcast.
const NoBroadcastFlag = "no-broadcast"

// EchoFlag is the name of the flag to republish every payload to all peers.
const EchoFlag = "echo"

// GetBindFlags returns the CLI flags specific to bind mode.
func GetBindFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     MetricsFlag,
			Aliases:  []string{"m"},
			Usage:    "Serve Prometheus metrics on this address, e.g. 127.0.0.1:9100",
			Category: categoryBind,
			Value:    "",
			Required: false,
		},
		&cli.IntFlag{
			Name:     MaxPeersFlag,
			Usage:    "Maximum number of tracked peers",
			Category: categoryBind,
			Value:    1024,
			Required: false,
		},
		&cli.StringFlag{
			Name:     EvictionFlag,
			Usage:    "Policy at capacity: reject|evict-idle",
			Category: categoryBind,
			Value:    "evict-idle",
			Required: false,
		},
		&cli.BoolFlag{
			Name:     LocalOnlyFlag,
			Usage:    "Drop datagrams from non-loopback peers",
			Category: categoryBind,
			Value:    false,
			Required: false,
		},
		&cli.BoolFlag{
			Name:     NoReuseFlag,
			Usage:    "Do not share the port with other sockets",
			Category: categoryBind,
			Value:    false,
			Required: false,
		},
		&cli.BoolFlag{
			Name:     NoBroadcastFlag,
			Usage:    "Disable peer-to-peer broadcast",
			Category: categoryBind,
			Value:    false,
			Required: false,
		},
		&cli.BoolFlag{
			Name:     EchoFlag,
			Aliases:  []string{"e"},
			Usage:    "Republish every received payload to all peers",
			Category: categoryBind,
			Value:    false,
			Required: false,
		},
	}
}

const categoryConnect = "connect"

// TopicFlag is the name of the flag to subscribe to a topic.
const TopicFlag = "topic"

// RateFlag is the name of the flag to limit inbound datagrams per second.
const RateFlag = "rate"

// GetConnectFlags returns the CLI flags specific to connect mode.
func GetConnectFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     TopicFlag,
			Usage:    "Subscribe to this topic after connecting",
			Category: categoryConnect,
			Value:    "",
			Required: false,
		},
		&cli.FloatFlag{
			Name:     RateFlag,
			Usage:    "Maximum inbound datagrams per second, 0 for unlimited",
			Category: categoryConnect,
			Value:    0,
			Required: false,
		},
	}
}
