package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/loom/internal/engine"
)

func generateCmd() *cli.Command {
	var (
		seedText    string
		strategy    string
		beamWidth   int64
		maxLen      int64
		temperature float64
		topK        int64
		topP        float64
		rngSeed     int64
		showScores  bool
	)

	return &cli.Command{
		Name:  "generate",
		Usage: "Generate text continuations from a seed",
		Flags: append(append(commonModelFlags(), loggingFlags()...),
			&cli.StringFlag{
				Name:        "seed-text",
				Aliases:     []string{"s"},
				Usage:       "text to continue",
				Required:    true,
				Destination: &seedText,
			},
			&cli.StringFlag{
				Name:        "strategy",
				Usage:       "decoding strategy (beam, greedy, sample)",
				Value:       "beam",
				Destination: &strategy,
			},
			&cli.Int64Flag{
				Name:        "beam-width",
				Aliases:     []string{"b"},
				Value:       4,
				Destination: &beamWidth,
			},
			&cli.Int64Flag{
				Name:        "max-len",
				Usage:       "total sequence length cap, seed included",
				Value:       64,
				Destination: &maxLen,
			},
			&cli.Float64Flag{
				Name:        "temperature",
				Aliases:     []string{"t"},
				Usage:       "sampling temperature (0 is greedy)",
				Value:       1.0,
				Destination: &temperature,
			},
			&cli.Int64Flag{
				Name:        "top-k",
				Value:       40,
				Destination: &topK,
			},
			&cli.Float64Flag{
				Name:        "top-p",
				Value:       1.0,
				Destination: &topP,
			},
			&cli.Int64Flag{
				Name:        "rng-seed",
				Usage:       "random seed for the sample strategy",
				Destination: &rngSeed,
			},
			&cli.BoolFlag{
				Name:        "scores",
				Usage:       "print sequence scores",
				Destination: &showScores,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := LoadConfig()
			applyCommonConfig(cmd, cfg)
			applyGenerateConfig(cmd, cfg, &strategy, &beamWidth, &maxLen, &temperature, &topK, &topP)
			log := newLogger()

			parsed, err := engine.ParseStrategy(strategy)
			if err != nil {
				return err
			}
			eng, err := engine.Load(modelPath, tokenizerPath, log)
			if err != nil {
				return err
			}

			res, err := eng.Generate(ctx, engine.Request{
				Seed:        seedText,
				Strategy:    parsed,
				BeamWidth:   int(beamWidth),
				MaxLen:      int(maxLen),
				Temperature: float32(temperature),
				TopK:        int(topK),
				TopP:        float32(topP),
				RNGSeed:     rngSeed,
			})
			if err != nil {
				return err
			}

			for _, seq := range res.Sequences {
				if showScores {
					_, _ = fmt.Fprintf(os.Stdout, "%.4f\t%s\n", seq.Score, seq.Text)
				} else {
					_, _ = fmt.Fprintln(os.Stdout, seq.Text)
				}
			}
			log.Debug("generation finished", "duration", res.Duration)
			return nil
		},
	}
}
