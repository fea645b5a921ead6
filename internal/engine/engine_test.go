package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/samcharles93/loom/internal/beam"
	"github.com/samcharles93/loom/internal/checkpoint"
	"github.com/samcharles93/loom/internal/logger"
	"github.com/samcharles93/loom/internal/model"
	"github.com/samcharles93/loom/internal/tokenizer"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	tok := tokenizer.BuildCharDict([]string{"abcabc", "cab"}, 1, true)
	m, err := model.New(model.Config{
		VocabSize: tok.VocabSize(),
		PadID:     tok.PadID(),
		EmbedDim:  6,
		HiddenDim: 8,
		NumLayers: 1,
		NumLinear: 1,
		Cell:      model.CellRNN,
		Seed:      21,
	})
	if err != nil {
		t.Fatal(err)
	}
	return New(m, tok, logger.Discard())
}

func TestParseStrategy(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"beam", "greedy", "sample"} {
		if _, err := ParseStrategy(name); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
	if _, err := ParseStrategy("viterbi"); !errors.Is(err, beam.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestGreedyMatchesBeamWidthOne(t *testing.T) {
	t.Parallel()
	e := testEngine(t)
	ctx := context.Background()

	greedy, err := e.Generate(ctx, Request{Seed: "ab", Strategy: StrategyGreedy, MaxLen: 12})
	if err != nil {
		t.Fatal(err)
	}
	beamOne, err := e.Generate(ctx, Request{Seed: "ab", Strategy: StrategyBeam, BeamWidth: 1, MaxLen: 12})
	if err != nil {
		t.Fatal(err)
	}
	if len(greedy.Sequences) != 1 || len(beamOne.Sequences) != 1 {
		t.Fatalf("got %d and %d sequences, want 1 each", len(greedy.Sequences), len(beamOne.Sequences))
	}
	if greedy.Sequences[0].Text != beamOne.Sequences[0].Text {
		t.Fatalf("greedy %q != width-1 beam %q", greedy.Sequences[0].Text, beamOne.Sequences[0].Text)
	}
}

func TestBeamReturnsAtMostWidth(t *testing.T) {
	t.Parallel()
	e := testEngine(t)
	res, err := e.Generate(context.Background(), Request{
		Seed: "a", Strategy: StrategyBeam, BeamWidth: 3, MaxLen: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Sequences) == 0 || len(res.Sequences) > 3 {
		t.Fatalf("got %d sequences, want 1..3", len(res.Sequences))
	}
	for _, s := range res.Sequences {
		if s.Score < 0 {
			t.Fatalf("score %v should be non-negative", s.Score)
		}
	}
}

func TestSampleDeterministicForSeed(t *testing.T) {
	t.Parallel()
	e := testEngine(t)
	req := Request{
		Seed: "ab", Strategy: StrategySample, MaxLen: 15,
		Temperature: 0.8, TopK: 5, TopP: 0.95, RNGSeed: 99,
	}
	a, err := e.Generate(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Generate(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if a.Sequences[0].Text != b.Sequences[0].Text {
		t.Fatalf("same rng seed produced %q and %q", a.Sequences[0].Text, b.Sequences[0].Text)
	}
}

func TestSampleRejectsEmptySeed(t *testing.T) {
	t.Parallel()
	e := testEngine(t)
	_, err := e.Generate(context.Background(), Request{
		Seed: "", Strategy: StrategySample, MaxLen: 10, Temperature: 1,
	})
	if !errors.Is(err, beam.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestSampleHonoursCancellation(t *testing.T) {
	t.Parallel()
	e := testEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Generate(ctx, Request{
		Seed: "ab", Strategy: StrategySample, MaxLen: 50, Temperature: 1,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	t.Parallel()
	e := testEngine(t)
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.lcf")
	tokPath := filepath.Join(dir, "tokenizer.json")
	if err := checkpoint.Save(modelPath, e.Model, 42); err != nil {
		t.Fatal(err)
	}
	if err := e.Tok.(*tokenizer.CharDict).Save(tokPath); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(modelPath, tokPath, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Step != 42 {
		t.Fatalf("step = %d, want 42", loaded.Step)
	}

	want, err := e.Generate(context.Background(), Request{Seed: "ab", Strategy: StrategyGreedy, MaxLen: 12})
	if err != nil {
		t.Fatal(err)
	}
	got, err := loaded.Generate(context.Background(), Request{Seed: "ab", Strategy: StrategyGreedy, MaxLen: 12})
	if err != nil {
		t.Fatal(err)
	}
	if got.Sequences[0].Text != want.Sequences[0].Text {
		t.Fatalf("loaded engine generated %q, want %q", got.Sequences[0].Text, want.Sequences[0].Text)
	}
}
