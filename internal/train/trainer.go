package train

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/samcharles93/loom/internal/logger"
	"github.com/samcharles93/loom/internal/model"
)

// Config controls one training run.
type Config struct {
	Epochs          int
	BatchSize       int
	MaxSeqLen       int
	LearnRate       float64
	MaxNorm         float64 // gradient clipping threshold, <=0 disables
	Optimizer       string  // "sgd" or "adam"
	Seed            int64
	CheckpointEvery int // steps between checkpoint callbacks, <=0 saves only at the end
	LogEvery        int // steps between progress lines, <=0 picks a default
}

func (c Config) validate() error {
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.LearnRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %v", c.LearnRate)
	}
	return nil
}

// Trainer runs the optimisation loop.
type Trainer struct {
	model *model.Model
	cfg   Config
	opt   Optimizer
	rng   *rand.Rand
	log   logger.Logger
}

func New(m *model.Model, cfg Config, log logger.Logger) (*Trainer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	opt, err := NewOptimizer(cfg.Optimizer, cfg.LearnRate)
	if err != nil {
		return nil, err
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 10
	}
	if log == nil {
		log = logger.Default()
	}
	return &Trainer{
		model: m,
		cfg:   cfg,
		opt:   opt,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		log:   log,
	}, nil
}

// SaveFunc persists the model at the given global step.
type SaveFunc func(step int) error

// Run trains over ds for the configured number of epochs, shuffling
// each epoch and invoking save on the checkpoint cadence and once at
// the end. It stops early when ctx is cancelled, saving what it has.
func (t *Trainer) Run(ctx context.Context, ds *Dataset, save SaveFunc) error {
	step := 0
	start := time.Now()

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		ds.Shuffle(t.rng)
		var epochLoss float64
		var epochTokens int
		batches := 0

		for off := 0; off < ds.Len(); off += t.cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				t.log.Warn("training interrupted", "step", step, "err", err)
				return t.finish(step, save)
			}

			inputs, targets := ds.Batch(off, t.cfg.BatchSize)
			t.model.ZeroGrad()
			loss, tokens, err := t.model.ForwardBackward(inputs, targets, t.rng)
			if err != nil {
				return fmt.Errorf("step %d: %w", step, err)
			}
			norm := ClipGradNorm(t.model.Params(), t.cfg.MaxNorm)
			t.opt.Step(t.model.Params())

			step++
			batches++
			epochLoss += loss * float64(tokens)
			epochTokens += tokens

			if step%t.cfg.LogEvery == 0 {
				t.log.Info("train step",
					"step", step,
					"epoch", epoch,
					"loss", loss,
					"ppl", math.Exp(loss),
					"grad_norm", norm,
					"tokens", tokens,
				)
			}
			if save != nil && t.cfg.CheckpointEvery > 0 && step%t.cfg.CheckpointEvery == 0 {
				if err := save(step); err != nil {
					return fmt.Errorf("checkpoint at step %d: %w", step, err)
				}
			}
		}

		if epochTokens > 0 {
			t.log.Info("epoch done",
				"epoch", epoch,
				"mean_loss", epochLoss/float64(epochTokens),
				"batches", batches,
				"elapsed", time.Since(start).Round(time.Millisecond),
			)
		}
	}
	return t.finish(step, save)
}

func (t *Trainer) finish(step int, save SaveFunc) error {
	if save == nil {
		return nil
	}
	if err := save(step); err != nil {
		return fmt.Errorf("final checkpoint: %w", err)
	}
	return nil
}
