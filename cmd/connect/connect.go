package connect

import (
	"context"
	"dominicbreuker/marko/cmd/shared"
	"dominicbreuker/marko/pkg/config"
	"dominicbreuker/marko/pkg/pipeio"
	"dominicbreuker/marko/pkg/pubsub"
	"dominicbreuker/marko/pkg/socket"
	"dominicbreuker/marko/pkg/terminal"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"
)

// GetCommand returns the connect command, which publishes stdin lines to a
// bound peer and prints what comes back.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:        "connect",
		Usage:       "Connect to a UDP peer and exchange datagrams",
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

			deps := cfg.GetDeps()
			stdio := pipeio.NewStdio(config.GetStdinFunc(deps)(), config.GetStdoutFunc(deps)())
			defer stdio.Close()

			return run(ctx, cfg, options{
				topic: cmd.String(shared.TopicFlag),
				rate:  cmd.Float(shared.RateFlag),
			}, stdio)
		},
		Flags: getFlags(),
	}
}

func getFlags() []cli.Flag {
	flags := []cli.Flag{}

	flags = append(flags, shared.GetCommonFlags()...)
	flags = append(flags, shared.GetConnectFlags()...)

	return flags
}

type options struct {
	topic string
	rate  float64
}

// run connects to cfg.Endpoint, optionally subscribes, then publishes every
// non-empty stdin line until EOF or ctx is done. Inbound payloads are
// written to stdout as they arrive.
func run(ctx context.Context, cfg *config.Config, opts options, stdio *pipeio.Stdio) error {
	logger := cfg.GetLogger()

	conn := socket.NewConnection(cfg)
	conn.Connect(cfg.Endpoint)
	defer conn.Stop()

	readyCtx, cancelReady := context.WithTimeout(ctx, cfg.Timeout)
	err := conn.WaitReady(readyCtx)
	cancelReady()
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", cfg.Endpoint, err)
	}
	logger.InfoMsg("Connected to %s", cfg.Endpoint)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub := pubsub.NewSubscriber(conn)
	if opts.topic != "" {
		sub.Subscribe(opts.topic)
		logger.VerboseMsg("Subscribed to %q", opts.topic)
	}

	var limiter *rate.Limiter
	if opts.rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.rate), 1)
	}

	go func() {
		err := sub.Run(ctx, func(b []byte) {
			fmt.Fprintf(stdio, "%s\n", b)
		}, limiter)
		if err != nil && ctx.Err() == nil {
			logger.ErrorMsg("Receiving from %s: %s", cfg.Endpoint, err)
			cancel()
		}
	}()

	interactive := terminal.IsTerminal(stdio.Stdin())
	pub := pubsub.NewPublisher(conn)

	terminal.Prompt(stdio, interactive)
	err = stdio.Lines(ctx, func(line []byte) {
		if len(line) > 0 {
			pub.Publish(line)
		}
		terminal.Prompt(stdio, interactive)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("reading stdin: %w", err)
	}
	return nil
}
