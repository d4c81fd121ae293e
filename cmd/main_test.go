package main

import (
	"testing"
)

func TestNewCommand(t *testing.T) {
	t.Parallel()

	cmd := newCommand()
	if cmd.Name != "marko" {
		t.Errorf("command name = %q; want marko", cmd.Name)
	}

	names := make(map[string]bool)
	for _, sub := range cmd.Commands {
		names[sub.Name] = true
	}
	for _, want := range []string{"bind", "connect", "version"} {
		if !names[want] {
			t.Errorf("subcommand %q missing", want)
		}
	}
}
