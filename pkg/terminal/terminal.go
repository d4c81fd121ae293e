// Package terminal detects interactive use of the command line tools.
package terminal

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// fder is implemented by *os.File.
type fder interface {
	Fd() uintptr
}

// IsTerminal reports whether r is attached to a terminal.
func IsTerminal(r io.Reader) bool {
	f, ok := r.(fder)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width of os.Stdout, or fallback when stdout is
// not a terminal.
func Width(fallback int) int {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fallback
	}
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}

// Prompt writes the input prompt to w when interactive is set.
func Prompt(w io.Writer, interactive bool) {
	if interactive {
		fmt.Fprint(w, "> ")
	}
}
