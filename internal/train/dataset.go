// Package train turns encoded text into padded next-token batches and
// runs the optimisation loop over a recurrent language model.
package train

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/samcharles93/loom/internal/tokenizer"
)

var ErrEmptyDataset = errors.New("train: empty dataset")

// Dataset holds encoded samples ready for batching. Every sample keeps
// at least one input/target pair.
type Dataset struct {
	samples [][]int
	padID   int
}

// NewDataset encodes texts with tok, truncating each sample to
// maxSeqLen+1 ids so inputs are at most maxSeqLen long. Samples that
// cannot be encoded are skipped.
func NewDataset(texts []string, tok tokenizer.Tokenizer, maxSeqLen int) (*Dataset, error) {
	if maxSeqLen <= 0 {
		return nil, fmt.Errorf("max sequence length must be positive, got %d", maxSeqLen)
	}
	ds := &Dataset{padID: tok.PadID()}
	for _, text := range texts {
		ids, err := tok.Encode(text)
		if err != nil {
			continue
		}
		if len(ids) > maxSeqLen+1 {
			ids = ids[:maxSeqLen+1]
		}
		if len(ids) < 2 {
			continue
		}
		ds.samples = append(ds.samples, ids)
	}
	if len(ds.samples) == 0 {
		return nil, ErrEmptyDataset
	}
	return ds, nil
}

// Len returns the number of usable samples.
func (ds *Dataset) Len() int { return len(ds.samples) }

// Shuffle permutes the sample order in place.
func (ds *Dataset) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(ds.samples), func(i, j int) {
		ds.samples[i], ds.samples[j] = ds.samples[j], ds.samples[i]
	})
}

// Batch collates samples [start, start+size) into right-padded inputs
// and targets, each shifted by one token. Short final batches are
// returned as-is.
func (ds *Dataset) Batch(start, size int) (inputs, targets [][]int) {
	end := start + size
	if end > len(ds.samples) {
		end = len(ds.samples)
	}
	if start >= end {
		return nil, nil
	}

	width := 0
	for _, s := range ds.samples[start:end] {
		if len(s)-1 > width {
			width = len(s) - 1
		}
	}
	for _, s := range ds.samples[start:end] {
		in := make([]int, width)
		tgt := make([]int, width)
		for i := range in {
			in[i] = ds.padID
			tgt[i] = ds.padID
		}
		copy(in, s[:len(s)-1])
		copy(tgt, s[1:])
		inputs = append(inputs, in)
		targets = append(targets, tgt)
	}
	return inputs, targets
}
