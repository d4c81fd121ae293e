package shared

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"dominicbreuker/marko/pkg/log"
)

// shutdownGrace is how long sockets get to close after the first signal.
const shutdownGrace = 5 * time.Second

// SetupSignalHandling cancels the command context on the first interrupt or
// termination signal. A second signal, or the grace period running out,
// exits the process.
func SetupSignalHandling(cancel context.CancelFunc, logger *log.Logger) {
	sigCh := make(chan os.Signal, 2)

	sigs := []os.Signal{os.Interrupt}
	if runtime.GOOS != "windows" {
		sigs = append(sigs, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)
		// a peer going away must not kill the process
		signal.Ignore(syscall.SIGPIPE)
	}
	signal.Notify(sigCh, sigs...)

	go handleSignals(sigCh, cancel, logger, os.Exit, shutdownGrace)
}

func handleSignals(sigCh <-chan os.Signal, cancel context.CancelFunc, logger *log.Logger, exit func(int), grace time.Duration) {
	s := <-sigCh
	logger.InfoMsg("Received %s, closing sockets", s)
	cancel()

	select {
	case s2 := <-sigCh:
		logger.ErrorMsg("Received %s again, exiting now", s2)
		if ss, ok := s.(syscall.Signal); ok {
			exit(128 + int(ss))
			return
		}
		exit(1)
	case <-time.After(grace):
		logger.VerboseMsg("Shutdown grace period of %s elapsed", grace)
		exit(0)
	}
}
