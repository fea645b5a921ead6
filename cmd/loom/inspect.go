package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/loom/internal/checkpoint"
)

func inspectCmd() *cli.Command {
	var path string

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print the contents of a checkpoint file",
		ArgsUsage: "<checkpoint.lcf>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "model",
				Aliases:     []string{"m"},
				Usage:       "path to .lcf checkpoint",
				Destination: &path,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if path == "" {
				path = cmd.Args().First()
			}
			if path == "" {
				return fmt.Errorf("no checkpoint given")
			}

			cf, err := checkpoint.Open(path)
			if err != nil {
				return err
			}
			defer func() { _ = cf.Close() }()

			cfg := cf.Meta.Config
			fmt.Printf("checkpoint: %s\n", path)
			fmt.Printf("step:       %d\n", cf.Meta.Step)
			fmt.Printf("cell:       %s\n", cfg.Cell)
			fmt.Printf("vocab:      %d\n", cfg.VocabSize)
			fmt.Printf("embed dim:  %d\n", cfg.EmbedDim)
			fmt.Printf("hidden dim: %d\n", cfg.HiddenDim)
			fmt.Printf("layers:     %d recurrent, %d linear\n", cfg.NumLayers, cfg.NumLinear)
			fmt.Printf("dropout:    %g\n", cfg.Dropout)
			fmt.Println()

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "TENSOR\tSHAPE\tPARAMS")
			total := 0
			for _, ti := range cf.Meta.Tensors {
				n := ti.Rows * ti.Cols
				total += n
				_, _ = fmt.Fprintf(w, "%s\t%dx%d\t%d\n", ti.Name, ti.Rows, ti.Cols, n)
			}
			_, _ = fmt.Fprintf(w, "total\t\t%d\n", total)
			return w.Flush()
		},
	}
}
