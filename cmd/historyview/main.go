package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

var version = "dev"

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		if exitErr, ok := err.(cli.ExitCoder); ok {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "historyview: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "historyview",
		Usage:   "time-travel through a playground document and share snapshots with peers",
		Version: version,
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a TOML config file"},
		}, runFlags()...),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if path := cmd.String("config"); path != "" {
				if err := os.Setenv("HISTORYVIEW_CONFIG", path); err != nil {
					return ctx, err
				}
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			runCommand(),
			peersCommand(),
			relayCommand(),
			encodeCommand(),
		},
		Action: runAction,
	}
}
