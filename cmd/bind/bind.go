package bind

import (
	"context"
	"dominicbreuker/marko/cmd/shared"
	"dominicbreuker/marko/pkg/config"
	"dominicbreuker/marko/pkg/format"
	"dominicbreuker/marko/pkg/metrics"
	"dominicbreuker/marko/pkg/pubsub"
	"dominicbreuker/marko/pkg/socket"
	"dominicbreuker/marko/pkg/terminal"
	"fmt"
	"io"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/urfave/cli/v3"
)

// GetCommand returns the bind command, which serves datagrams from any
// number of peers on one UDP port.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:        "bind",
		Usage:       "Bind a UDP port and print datagrams from all peers",
		Description: shared.GetBaseDescription(),
		ArgsUsage:   shared.GetArgsUsage(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			cfg, cleanup, err := shared.Configure(cmd)
			defer cleanup()
			if err != nil {
				return err
			}
			shared.SetupSignalHandling(cancel, cfg.GetLogger())

			stdout := config.GetStdoutFunc(cfg.Deps)()
			return serve(ctx, cfg, cmd.Bool(shared.EchoFlag), stdout)
		},
		Flags: getFlags(),
	}
}

func getFlags() []cli.Flag {
	flags := []cli.Flag{}

	flags = append(flags, shared.GetCommonFlags()...)
	flags = append(flags, shared.GetBindFlags()...)

	return flags
}

// serve binds cfg.Endpoint and prints every datagram to out until ctx is
// done. Subscription handshakes are logged instead of printed. With echo
// set every payload is republished to all peers.
func serve(ctx context.Context, cfg *config.Config, echo bool, out io.Writer) error {
	logger := cfg.GetLogger()

	l := socket.NewListener(cfg)
	if err := l.Bind(cfg.Endpoint); err != nil {
		return fmt.Errorf("binding: %w", err)
	}
	defer l.Close()

	if ip := format.LocalIP(); ip != "" {
		logger.InfoMsg("Listening on %s (local address %s)", l.Addr(), ip)
	} else {
		logger.InfoMsg("Listening on %s", l.Addr())
	}

	if cfg.MetricsAddr != "" {
		ms := metrics.NewServer(cfg.MetricsAddr, nil)
		if err := ms.Start(); err != nil {
			return fmt.Errorf("serving metrics: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			ms.Shutdown(shutdownCtx)
		}()
		logger.InfoMsg("Serving metrics on http://%s/metrics", ms.Addr())
	}

	pub := pubsub.NewPublisher(l)
	width := terminal.Width(80)

	for {
		d, err := l.ReceiveFrom(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receiving: %w", err)
		}

		if topic, ok := pubsub.ParseHandshake(d.Data); ok {
			logger.InfoMsg("Peer %d (%s) subscribed to %q", d.ID, d.From, topic)
			continue
		}

		fmt.Fprintf(out, "%d %s [%s] %s\n", d.ID, d.From, format.Bytes(len(d.Data)), preview(d.Data, width))
		if echo {
			pub.Publish(d.Data)
		}
	}
}

// preview renders text payloads verbatim and everything else as hex, cut to
// fit in width columns.
func preview(data []byte, width int) string {
	if width < 16 {
		width = 16
	}

	var s string
	if printable(data) {
		s = string(data)
	} else {
		s = fmt.Sprintf("%x", data)
	}

	if utf8.RuneCountInString(s) <= width {
		return s
	}
	r := []rune(s)
	return string(r[:width-3]) + "..."
}

func printable(data []byte) bool {
	if !utf8.Valid(data) {
		return false
	}
	for _, r := range string(data) {
		if !unicode.IsPrint(r) && r != '\t' {
			return false
		}
	}
	return true
}
