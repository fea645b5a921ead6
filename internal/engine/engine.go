// Package engine loads a trained checkpoint with its tokenizer and
// serves generation requests over the available decoding strategies.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samcharles93/loom/internal/beam"
	"github.com/samcharles93/loom/internal/checkpoint"
	"github.com/samcharles93/loom/internal/logger"
	"github.com/samcharles93/loom/internal/model"
	"github.com/samcharles93/loom/internal/sample"
	"github.com/samcharles93/loom/internal/tensor"
	"github.com/samcharles93/loom/internal/tokenizer"
)

// Strategy selects how the next token is chosen during generation.
type Strategy string

const (
	StrategyBeam   Strategy = "beam"
	StrategyGreedy Strategy = "greedy"
	StrategySample Strategy = "sample"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyBeam, StrategyGreedy, StrategySample:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("%w: unknown strategy %q", beam.ErrInvalidInput, s)
	}
}

// Request describes one generation call.
type Request struct {
	Seed      string
	Strategy  Strategy
	BeamWidth int
	MaxLen    int // total sequence length cap, including the seed

	// Sampling knobs, used only by StrategySample.
	Temperature float32
	TopK        int
	TopP        float32
	RNGSeed     int64
}

// Sequence is one generated continuation. Score is the sum of
// negative log probabilities of the generated tokens; lower is more
// likely.
type Sequence struct {
	Text  string
	Score float64
}

// Result carries the generated sequences and timing.
type Result struct {
	Sequences []Sequence
	Duration  time.Duration
}

// Engine binds a model to its tokenizer.
type Engine struct {
	Model *model.Model
	Tok   tokenizer.Tokenizer
	Step  int

	log logger.Logger
}

// New wraps an in-memory model and tokenizer.
func New(m *model.Model, tok tokenizer.Tokenizer, log logger.Logger) *Engine {
	if log == nil {
		log = logger.Default()
	}
	return &Engine{Model: m, Tok: tok, log: log}
}

// Load reads a checkpoint and its sibling tokenizer file.
func Load(modelPath, tokPath string, log logger.Logger) (*Engine, error) {
	m, step, err := checkpoint.LoadModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	tok, err := tokenizer.LoadCharDict(tokPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	if tok.VocabSize() != m.Cfg.VocabSize {
		return nil, fmt.Errorf("tokenizer vocab %d does not match model vocab %d",
			tok.VocabSize(), m.Cfg.VocabSize)
	}
	e := New(m, tok, log)
	e.Step = step
	return e, nil
}

// Generate runs one request and returns its sequences ordered as the
// strategy produced them.
func (e *Engine) Generate(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	var seqs []Sequence
	var err error
	switch req.Strategy {
	case StrategyBeam:
		seqs, err = e.beamSearch(req.Seed, req.BeamWidth, req.MaxLen)
	case StrategyGreedy:
		seqs, err = e.beamSearch(req.Seed, 1, req.MaxLen)
	case StrategySample:
		seqs, err = e.sampleOne(ctx, req)
	default:
		err = fmt.Errorf("%w: unknown strategy %q", beam.ErrInvalidInput, req.Strategy)
	}
	if err != nil {
		return nil, err
	}

	res := &Result{Sequences: seqs, Duration: time.Since(start)}
	e.log.Debug("generation done",
		"strategy", string(req.Strategy),
		"sequences", len(seqs),
		"duration", res.Duration,
	)
	return res, nil
}

func (e *Engine) beamSearch(seed string, width, maxLen int) ([]Sequence, error) {
	d := &beam.Decoder{Model: e.Model, Tok: e.Tok, Log: e.log}
	results, err := d.DecodeResults(seed, width, maxLen)
	if err != nil {
		return nil, err
	}
	seqs := make([]Sequence, len(results))
	for i, r := range results {
		seqs[i] = Sequence{Text: r.Text, Score: r.Score}
	}
	return seqs, nil
}

// sampleOne draws a single continuation token by token until eos or
// the length cap.
func (e *Engine) sampleOne(ctx context.Context, req Request) ([]Sequence, error) {
	if req.MaxLen <= 0 {
		return nil, fmt.Errorf("%w: max length %d", beam.ErrInvalidInput, req.MaxLen)
	}
	ids, err := e.Tok.Encode(req.Seed)
	if err != nil {
		if errors.Is(err, tokenizer.ErrEmptyInput) {
			return nil, fmt.Errorf("%w: %v", beam.ErrInvalidInput, err)
		}
		return nil, err
	}
	if n := len(ids); n > 0 && ids[n-1] == e.Tok.EosID() {
		ids = ids[:n-1]
	}

	s := sample.New(sample.Config{
		Seed:        req.RNGSeed,
		Temperature: req.Temperature,
		TopK:        req.TopK,
		TopP:        req.TopP,
	})

	var score float64
	for len(ids) < req.MaxLen {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logits, err := e.Model.Forward([][]int{ids})
		if err != nil {
			return nil, fmt.Errorf("sequence model forward: %w", err)
		}
		last := logits[0][len(ids)-1]
		next := s.Sample(last)
		score += negLogProb(last, next)
		ids = append(ids, next)
		if next == e.Tok.EosID() {
			break
		}
	}

	text, err := e.Tok.Decode(ids)
	if err != nil {
		return nil, fmt.Errorf("decode sampled sequence: %w", err)
	}
	return []Sequence{{Text: text, Score: score}}, nil
}

// negLogProb computes -log softmax(logits)[idx] without materialising
// the full distribution.
func negLogProb(logits []float32, idx int) float64 {
	return tensor.LogSumExp(logits) - float64(logits[idx])
}
