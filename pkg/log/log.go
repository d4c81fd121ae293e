// Package log provides colored console logging and datagram tracing.
package log

import (
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

var red = color.New(color.FgRed).FprintfFunc()
var blue = color.New(color.FgBlue).FprintfFunc()
var yellow = color.New(color.FgYellow).FprintfFunc()

// Logger writes leveled messages. Verbose messages are only written when
// Verbose is set. A nil *Logger writes info and error messages to stderr and
// drops verbose messages.
type Logger struct {
	Verbose bool

	mu  sync.Mutex
	out io.Writer
}

// NewLogger returns a Logger writing to stderr.
func NewLogger(verbose bool) *Logger {
	return &Logger{Verbose: verbose, out: os.Stderr}
}

// NewLoggerWithWriter returns a Logger writing to w.
func NewLoggerWithWriter(verbose bool, w io.Writer) *Logger {
	return &Logger{Verbose: verbose, out: w}
}

func (l *Logger) writer() io.Writer {
	if l == nil || l.out == nil {
		return os.Stderr
	}
	return l.out
}

// InfoMsg prints an informational message in blue.
func (l *Logger) InfoMsg(format string, a ...interface{}) {
	l.print(blue, "[+] "+format, a...)
}

// ErrorMsg prints an error message in red.
func (l *Logger) ErrorMsg(format string, a ...interface{}) {
	l.print(red, "[!] Error: "+format, a...)
}

// VerboseMsg prints a debug message in yellow if verbose logging is enabled.
func (l *Logger) VerboseMsg(format string, a ...interface{}) {
	if l == nil || !l.Verbose {
		return
	}
	l.print(yellow, "[v] "+format, a...)
}

func (l *Logger) print(fn func(io.Writer, string, ...interface{}), format string, a ...interface{}) {
	format = ensureNewline(format)
	if l == nil {
		fn(os.Stderr, format, a...)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.writer(), format, a...)
}

func ensureNewline(s string) string {
	if len(s) == 0 || s[len(s)-1] != '\n' {
		return s + "\n"
	}
	return s
}

// ErrorMsg prints an error message to stderr in red color.
func ErrorMsg(format string, a ...interface{}) {
	red(os.Stderr, ensureNewline("[!] Error: "+format), a...)
}

// InfoMsg prints an informational message to stderr in blue color.
func InfoMsg(format string, a ...interface{}) {
	blue(os.Stderr, ensureNewline("[+] "+format), a...)
}
