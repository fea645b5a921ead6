package train

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/samcharles93/loom/internal/logger"
	"github.com/samcharles93/loom/internal/model"
	"github.com/samcharles93/loom/internal/tokenizer"
)

func testTokenizer(t *testing.T) *tokenizer.CharDict {
	t.Helper()
	return tokenizer.BuildCharDict([]string{"abcabcabc", "aabb"}, 1, true)
}

func testModel(t *testing.T, tok tokenizer.Tokenizer) *model.Model {
	t.Helper()
	m, err := model.New(model.Config{
		VocabSize: tok.VocabSize(),
		PadID:     tok.PadID(),
		EmbedDim:  8,
		HiddenDim: 12,
		NumLayers: 1,
		NumLinear: 1,
		Cell:      model.CellGRU,
		Seed:      5,
	})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestDatasetTruncatesAndPads(t *testing.T) {
	t.Parallel()
	tok := testTokenizer(t)
	ds, err := NewDataset([]string{"abcabcabc", "ab"}, tok, 4)
	if err != nil {
		t.Fatal(err)
	}
	if ds.Len() != 2 {
		t.Fatalf("len = %d, want 2", ds.Len())
	}

	inputs, targets := ds.Batch(0, 2)
	if len(inputs) != 2 || len(targets) != 2 {
		t.Fatalf("batch sizes: %d inputs, %d targets", len(inputs), len(targets))
	}
	width := len(inputs[0])
	if width > 4 {
		t.Fatalf("input width %d exceeds cap 4", width)
	}
	for b := range inputs {
		if len(inputs[b]) != width || len(targets[b]) != width {
			t.Fatal("ragged batch")
		}
		for i := range inputs[b] {
			if i > 0 && inputs[b][i] == tok.PadID() && targets[b][i] != tok.PadID() {
				t.Fatal("target set for a padded input position")
			}
		}
	}
	// Targets are inputs shifted by one.
	ids, err := tok.Encode("abcabcabc")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < width && i+1 < len(ids); i++ {
		if targets[0][i] != ids[i+1] {
			t.Fatalf("target[%d] = %d, want %d", i, targets[0][i], ids[i+1])
		}
	}
}

func TestDatasetRejectsEmpty(t *testing.T) {
	t.Parallel()
	tok := testTokenizer(t)
	if _, err := NewDataset([]string{"", "   "}, tok, 8); err == nil {
		t.Fatal("expected error for unusable texts")
	}
}

func TestClipGradNorm(t *testing.T) {
	t.Parallel()
	tok := testTokenizer(t)
	m := testModel(t, tok)
	for _, p := range m.Params() {
		for i := range p.Grad.Data {
			p.Grad.Data[i] = 1
		}
	}
	before := ClipGradNorm(m.Params(), 0.5)
	if before <= 0.5 {
		t.Fatalf("pre-clip norm %v should exceed the threshold", before)
	}
	after := ClipGradNorm(m.Params(), 0)
	if after > 0.5+1e-4 {
		t.Fatalf("post-clip norm %v, want <= 0.5", after)
	}
}

func TestNewOptimizerUnknown(t *testing.T) {
	t.Parallel()
	if _, err := NewOptimizer("lbfgs", 0.1); err == nil {
		t.Fatal("expected error for unknown optimizer")
	}
}

func TestTrainingReducesLoss(t *testing.T) {
	t.Parallel()
	tok := testTokenizer(t)
	m := testModel(t, tok)
	ds, err := NewDataset([]string{"abcabcabc", "abcabc"}, tok, 16)
	if err != nil {
		t.Fatal(err)
	}

	lossOver := func() float64 {
		inputs, targets := ds.Batch(0, ds.Len())
		m.ZeroGrad()
		loss, _, err := m.ForwardBackward(inputs, targets, nil)
		if err != nil {
			t.Fatal(err)
		}
		return loss
	}

	first := lossOver()
	opt := &SGD{LR: 0.2}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 40; i++ {
		inputs, targets := ds.Batch(0, ds.Len())
		m.ZeroGrad()
		if _, _, err := m.ForwardBackward(inputs, targets, rng); err != nil {
			t.Fatal(err)
		}
		ClipGradNorm(m.Params(), 5)
		opt.Step(m.Params())
	}
	last := lossOver()
	if math.IsNaN(last) || last >= first {
		t.Fatalf("loss did not improve: %v -> %v", first, last)
	}
}

func TestAdamStepsChangeWeights(t *testing.T) {
	t.Parallel()
	tok := testTokenizer(t)
	m := testModel(t, tok)
	ds, err := NewDataset([]string{"abcabc"}, tok, 16)
	if err != nil {
		t.Fatal(err)
	}
	inputs, targets := ds.Batch(0, 1)
	m.ZeroGrad()
	if _, _, err := m.ForwardBackward(inputs, targets, nil); err != nil {
		t.Fatal(err)
	}
	before := append([]float32(nil), m.Params()[1].W.Data...)
	opt := NewAdam(0.01)
	opt.Step(m.Params())
	changed := false
	for i, v := range m.Params()[1].W.Data {
		if v != before[i] {
			changed = true
			break
		}
	}
	if !changed {
		t.Fatal("adam step left weights untouched")
	}
}

func TestTrainerRunSavesFinalCheckpoint(t *testing.T) {
	t.Parallel()
	tok := testTokenizer(t)
	m := testModel(t, tok)
	ds, err := NewDataset([]string{"abcabc", "aabb"}, tok, 8)
	if err != nil {
		t.Fatal(err)
	}
	tr, err := New(m, Config{
		Epochs:    2,
		BatchSize: 2,
		LearnRate: 0.1,
		MaxNorm:   5,
		Optimizer: "sgd",
		Seed:      3,
	}, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}

	var saves []int
	err = tr.Run(context.Background(), ds, func(step int) error {
		saves = append(saves, step)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(saves) != 1 || saves[0] != 2 {
		t.Fatalf("saves = %v, want one final save at step 2", saves)
	}
}

func TestTrainerStopsOnCancel(t *testing.T) {
	t.Parallel()
	tok := testTokenizer(t)
	m := testModel(t, tok)
	ds, err := NewDataset([]string{"abcabc", "aabb"}, tok, 8)
	if err != nil {
		t.Fatal(err)
	}
	tr, err := New(m, Config{
		Epochs:    100,
		BatchSize: 1,
		LearnRate: 0.1,
		Optimizer: "adam",
		Seed:      3,
	}, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	saved := false
	if err := tr.Run(ctx, ds, func(step int) error { saved = true; return nil }); err != nil {
		t.Fatal(err)
	}
	if !saved {
		t.Fatal("cancelled run should still save what it has")
	}
}
