package version

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/urfave/cli/v3"
)

// Version is set at build time via -ldflags "-X ...version.Version=".
var Version = "unknown"

// String renders the version line printed by the version command.
func String(program string) string {
	return fmt.Sprintf("%s %s (%s, %s/%s)", program, Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func GetCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print the marko version",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			w := cmd.Root().Writer
			if w == nil {
				w = os.Stdout
			}
			_, err := fmt.Fprintln(w, String(cmd.Root().Name))
			return err
		},
	}
}
