// Package tokenizer maps text to integer token ids and back.
//
// The only implementation today is a character-level dictionary tokenizer
// built from a training corpus. Everything downstream (model, trainer,
// beam decoder) depends only on the Tokenizer interface.
package tokenizer

import "errors"

// Reserved token ids. These are fixed so that checkpoints, the model's
// padding row and the decoder's termination logic all agree without
// consulting the vocabulary.
const (
	PadID = 0
	BosID = 1
	EosID = 2
	UnkID = 3

	numSpecial = 4
)

// ErrEmptyInput is returned when encoding produces no token ids.
var ErrEmptyInput = errors.New("tokenizer: empty input")

// Tokenizer converts between text and token-id sequences.
type Tokenizer interface {
	// Encode tokenizes text into ids, wrapped in bos/eos markers.
	// It fails with ErrEmptyInput when nothing survives tokenization.
	Encode(text string) ([]int, error)
	// Decode renders ids back to text, dropping special ids.
	Decode(ids []int) (string, error)

	PadID() int
	BosID() int
	EosID() int
	UnkID() int
	VocabSize() int
}
