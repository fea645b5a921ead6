package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/loom/internal/checkpoint"
	"github.com/samcharles93/loom/internal/corpus"
	"github.com/samcharles93/loom/internal/model"
	"github.com/samcharles93/loom/internal/tokenizer"
	"github.com/samcharles93/loom/internal/train"
)

func trainCmd() *cli.Command {
	var (
		corpusPath string
		csvColumn  string
		minCount   int64
		cased      bool

		cell      string
		embedDim  int64
		hiddenDim int64
		numLayers int64
		numLinear int64
		dropout   float64

		epochs          int64
		batchSize       int64
		learnRate       float64
		maxNorm         float64
		optimizer       string
		maxSeqLen       int64
		checkpointEvery int64
		seed            int64
		resume          bool
	)

	return &cli.Command{
		Name:  "train",
		Usage: "Train a model on a text corpus",
		Flags: append(append(commonModelFlags(), loggingFlags()...),
			&cli.StringFlag{
				Name:        "corpus",
				Usage:       "path to training corpus (.csv or plain text)",
				Required:    true,
				Destination: &corpusPath,
			},
			&cli.StringFlag{
				Name:        "csv-column",
				Usage:       "CSV column holding the text samples",
				Value:       "title",
				Destination: &csvColumn,
			},
			&cli.Int64Flag{
				Name:        "min-count",
				Usage:       "drop characters seen fewer times than this",
				Value:       1,
				Destination: &minCount,
			},
			&cli.BoolFlag{
				Name:        "cased",
				Usage:       "keep letter case instead of lowercasing",
				Destination: &cased,
			},
			&cli.StringFlag{
				Name:        "cell",
				Usage:       "recurrent cell (rnn, lstm, gru)",
				Value:       "lstm",
				Destination: &cell,
			},
			&cli.Int64Flag{
				Name:        "embed-dim",
				Value:       64,
				Destination: &embedDim,
			},
			&cli.Int64Flag{
				Name:        "hidden-dim",
				Value:       128,
				Destination: &hiddenDim,
			},
			&cli.Int64Flag{
				Name:        "layers",
				Usage:       "number of recurrent layers",
				Value:       1,
				Destination: &numLayers,
			},
			&cli.Int64Flag{
				Name:        "linear-layers",
				Usage:       "number of post-recurrent linear layers",
				Value:       1,
				Destination: &numLinear,
			},
			&cli.Float64Flag{
				Name:        "dropout",
				Value:       0.1,
				Destination: &dropout,
			},
			&cli.Int64Flag{
				Name:        "epochs",
				Value:       10,
				Destination: &epochs,
			},
			&cli.Int64Flag{
				Name:        "batch-size",
				Value:       32,
				Destination: &batchSize,
			},
			&cli.Float64Flag{
				Name:        "lr",
				Usage:       "learning rate",
				Value:       1e-3,
				Destination: &learnRate,
			},
			&cli.Float64Flag{
				Name:        "max-norm",
				Usage:       "gradient clipping threshold (0 disables)",
				Value:       1,
				Destination: &maxNorm,
			},
			&cli.StringFlag{
				Name:        "optimizer",
				Usage:       "optimizer (sgd, adam)",
				Value:       "adam",
				Destination: &optimizer,
			},
			&cli.Int64Flag{
				Name:        "max-seq-len",
				Usage:       "cap on input sequence length",
				Value:       64,
				Destination: &maxSeqLen,
			},
			&cli.Int64Flag{
				Name:        "checkpoint-every",
				Usage:       "steps between checkpoints (0 saves only at the end)",
				Destination: &checkpointEvery,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Value:       42,
				Destination: &seed,
			},
			&cli.BoolFlag{
				Name:        "resume",
				Usage:       "continue training from the existing checkpoint",
				Destination: &resume,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyCommonConfig(cmd, LoadConfig())
			log := newLogger()

			texts, err := corpus.Load(corpusPath, csvColumn)
			if err != nil {
				return fmt.Errorf("load corpus: %w", err)
			}
			log.Info("corpus loaded", "path", corpusPath, "samples", len(texts))

			var m *model.Model
			var tok *tokenizer.CharDict
			startStep := 0
			if resume {
				m, startStep, err = checkpoint.LoadModel(modelPath)
				if err != nil {
					return fmt.Errorf("resume: %w", err)
				}
				tok, err = tokenizer.LoadCharDict(tokenizerPath)
				if err != nil {
					return fmt.Errorf("resume: %w", err)
				}
				log.Info("resuming", "model", modelPath, "step", startStep)
			} else {
				tok = tokenizer.BuildCharDict(texts, int(minCount), !cased)
				if err := tok.Save(tokenizerPath); err != nil {
					return fmt.Errorf("save tokenizer: %w", err)
				}
				m, err = model.New(model.Config{
					VocabSize: tok.VocabSize(),
					PadID:     tok.PadID(),
					EmbedDim:  int(embedDim),
					HiddenDim: int(hiddenDim),
					NumLayers: int(numLayers),
					NumLinear: int(numLinear),
					Dropout:   float32(dropout),
					Cell:      model.CellKind(cell),
					Seed:      seed,
				})
				if err != nil {
					return err
				}
				log.Info("model initialised",
					"cell", cell,
					"vocab", tok.VocabSize(),
					"embed_dim", embedDim,
					"hidden_dim", hiddenDim,
				)
			}

			ds, err := train.NewDataset(texts, tok, int(maxSeqLen))
			if err != nil {
				return fmt.Errorf("build dataset: %w", err)
			}

			tr, err := train.New(m, train.Config{
				Epochs:          int(epochs),
				BatchSize:       int(batchSize),
				MaxSeqLen:       int(maxSeqLen),
				LearnRate:       learnRate,
				MaxNorm:         maxNorm,
				Optimizer:       optimizer,
				Seed:            seed,
				CheckpointEvery: int(checkpointEvery),
			}, log)
			if err != nil {
				return err
			}

			err = tr.Run(ctx, ds, func(step int) error {
				if err := checkpoint.Save(modelPath, m, startStep+step); err != nil {
					return err
				}
				log.Info("checkpoint saved", "path", modelPath, "step", startStep+step)
				return nil
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(os.Stdout, "trained model written to %s\n", modelPath)
			return nil
		},
	}
}
