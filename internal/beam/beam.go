// Package beam turns a sequence model's per-step next-token distributions
// into a bounded set of high-likelihood output sequences.
//
// A decode call keeps at most beamWidth live candidates. Each iteration
// batches the live candidates through the model once, selects the best
// next-token expansions across all of them, and retires candidates that
// emit the end-of-sequence token or reach the length cap. Scores are
// cumulative negative log-probabilities, so lower is better and a child's
// score is never below its parent's.
package beam

import "errors"

// ErrInvalidInput marks caller errors: an empty or unencodable seed, or a
// non-positive beam width or length cap. The model is never invoked when
// this is returned.
var ErrInvalidInput = errors.New("beam: invalid input")

// Tokenizer is the subset of tokenizer capabilities the decoder uses.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
	PadID() int
	EosID() int
	VocabSize() int
}

// SequenceModel scores a batch of equal-length, right-padded token-id
// sequences. Forward returns one logits row over the vocabulary for every
// position: [batch][seqLen][vocab]. It must not mutate model state; the
// decoder calls it once per iteration and treats any error as fatal to
// the decode call.
type SequenceModel interface {
	Forward(batch [][]int) ([][][]float32, error)
}
