package main

import (
	"context"
	"dominicbreuker/marko/cmd/bind"
	"dominicbreuker/marko/cmd/connect"
	"dominicbreuker/marko/cmd/version"
	"dominicbreuker/marko/pkg/log"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		log.ErrorMsg("%s\n", err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "marko",
		Usage: "exchange UDP datagrams with one peer or many",
		Commands: []*cli.Command{
			bind.GetCommand(),
			connect.GetCommand(),
			version.GetCommand(),
		},
	}
}
