// Package pipeio adapts the process stdio streams for the command line
// tools: stdin is read line by line and can be cancelled, stdout is shared.
package pipeio

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/muesli/cancelreader"
)

// Stdio provides a ReadWriteCloser interface over stdin and stdout.
// It uses cancelable reading from stdin when supported, allowing reads
// to be interrupted via Close.
type Stdio struct {
	stdin            io.Reader
	cancellableStdin cancelreader.CancelReader

	mu     sync.Mutex
	stdout io.Writer
}

// NewStdio creates a new Stdio. nil streams default to os.Stdin and
// os.Stdout.
func NewStdio(stdin io.Reader, stdout io.Writer) *Stdio {
	if stdin == nil {
		stdin = os.Stdin
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	out := Stdio{
		stdin:  stdin,
		stdout: stdout,
	}

	cancellableStdin, err := cancelreader.NewReader(stdin)
	if err != nil {
		return &out
	}

	out.cancellableStdin = cancellableStdin
	return &out
}

// Read reads from stdin, using the cancelable reader if available.
func (s *Stdio) Read(p []byte) (n int, err error) {
	if s.cancellableStdin != nil {
		return s.cancellableStdin.Read(p)
	}

	return s.stdin.Read(p)
}

// Write writes to stdout. Concurrent writes do not interleave.
func (s *Stdio) Write(p []byte) (n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stdout.Write(p)
}

// Close cancels any pending reads from stdin if using a cancelable reader.
func (s *Stdio) Close() error {
	if s.cancellableStdin != nil {
		s.cancellableStdin.Cancel()
	}
	return nil
}

// Stdin returns the underlying stdin stream.
func (s *Stdio) Stdin() io.Reader {
	return s.stdin
}

// Lines calls fn with every line read from stdin, without the line
// terminator, until EOF or ctx is done. A cancelled read returns ctx.Err().
func (s *Stdio) Lines(ctx context.Context, fn func(line []byte)) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	sc := bufio.NewScanner(s)
	sc.Buffer(make([]byte, 0, 4096), 64*1024)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fn(append([]byte(nil), sc.Bytes()...))
	}

	err := sc.Err()
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, cancelreader.ErrCanceled):
		return context.Canceled
	default:
		return err
	}
}
