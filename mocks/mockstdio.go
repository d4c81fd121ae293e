// Package mocks provides in-memory doubles for the transport, the network and
// the terminal.
package mocks

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// MockStdio stands in for the terminal of the connect command. Lines typed
// by the test arrive on Stdin; whatever the command prints is collected from
// Stdout.
type MockStdio struct {
	inR *io.PipeReader
	inW *io.PipeWriter

	mu  sync.Mutex
	out bytes.Buffer
}

// NewMockStdio returns a MockStdio with an open stdin.
func NewMockStdio() *MockStdio {
	r, w := io.Pipe()
	return &MockStdio{inR: r, inW: w}
}

// Stdin returns the reader the command consumes.
func (m *MockStdio) Stdin() io.Reader {
	return m.inR
}

// Stdout returns the writer the command prints to.
func (m *MockStdio) Stdout() io.Writer {
	return writerFunc(func(b []byte) (int, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.out.Write(b)
	})
}

// TypeLine writes line and a newline to stdin. It blocks until the command
// reads it.
func (m *MockStdio) TypeLine(line string) error {
	_, err := io.WriteString(m.inW, line+"\n")
	return err
}

// Output returns everything printed so far.
func (m *MockStdio) Output() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.out.String()
}

// WaitForOutput polls until want appears in the output or timeout expires.
func (m *MockStdio) WaitForOutput(want string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		got := m.Output()
		if strings.Contains(got, want) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for output %q, got: %q", want, got)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// CloseStdin makes pending and future reads return EOF.
func (m *MockStdio) CloseStdin() error {
	return m.inW.Close()
}

// Close is CloseStdin.
func (m *MockStdio) Close() error {
	return m.CloseStdin()
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) { return f(b) }
