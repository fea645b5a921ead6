package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/loom/internal/version"
)

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print the loom version",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Println("loom " + version.String())
			return nil
		},
	}
}
