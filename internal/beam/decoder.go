package beam

import (
	"fmt"
	"math"

	"github.com/samcharles93/loom/internal/logger"
	"github.com/samcharles93/loom/internal/tensor"
)

// candidate is one partial or complete generated sequence. seq is
// append-only and score is the cumulative negative log-probability of the
// generated tokens (0 for the seed). Candidates are immutable once
// created; extension always builds a new candidate with a copied
// sequence.
type candidate struct {
	seq   []int
	score float64
}

// Result is one completed sequence with its decoded text.
type Result struct {
	Text   string
	Tokens []int
	Score  float64
}

// Decoder runs beam search against a sequence model. All working state
// lives inside a single Decode call, so one Decoder may serve concurrent
// calls as long as the model's Forward is safe for concurrent reads.
type Decoder struct {
	Model SequenceModel
	Tok   Tokenizer
	Log   logger.Logger
}

// New returns a decoder over the given model and tokenizer.
func New(model SequenceModel, tok Tokenizer) *Decoder {
	return &Decoder{Model: model, Tok: tok}
}

// Decode generates up to beamWidth sequences seeded from seed, each at
// most maxLen tokens long before end-of-sequence stripping, and returns
// their decoded text best-first in completion order.
func (d *Decoder) Decode(seed string, beamWidth, maxLen int) ([]string, error) {
	results, err := d.DecodeResults(seed, beamWidth, maxLen)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	return texts, nil
}

// DecodeResults is Decode with token ids and scores attached.
func (d *Decoder) DecodeResults(seed string, beamWidth, maxLen int) ([]Result, error) {
	if beamWidth < 1 {
		return nil, fmt.Errorf("%w: beam width %d", ErrInvalidInput, beamWidth)
	}
	if maxLen < 1 {
		return nil, fmt.Errorf("%w: max length %d", ErrInvalidInput, maxLen)
	}
	seedIDs, err := d.Tok.Encode(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: encode seed: %v", ErrInvalidInput, err)
	}
	eos := d.Tok.EosID()
	// The tokenizer terminates what it encodes; a seed for generation must
	// arrive open-ended or the search would finish before it starts.
	if n := len(seedIDs); n > 0 && seedIDs[n-1] == eos {
		seedIDs = seedIDs[:n-1]
	}
	if len(seedIDs) == 0 {
		return nil, fmt.Errorf("%w: seed tokenized to nothing", ErrInvalidInput)
	}

	log := d.Log
	if log == nil {
		log = logger.Discard()
	}

	pad := d.Tok.PadID()
	vocab := d.Tok.VocabSize()

	// Candidates live in an arena; active and completed hold indices into
	// it. Extension appends fresh entries, so nothing aliases across
	// iterations.
	arena := []candidate{{seq: seedIDs}}
	active := []int{0}
	var completed []int

	probs := make([]float32, vocab)

	for step := 0; ; step++ {
		// Retire finished candidates. Once the completed set is full,
		// further finishers are dropped rather than stored.
		live := active[:0]
		for _, idx := range active {
			if isComplete(arena[idx].seq, eos, maxLen) {
				if len(completed) < beamWidth {
					completed = append(completed, idx)
				}
			} else {
				live = append(live, idx)
			}
		}
		active = live

		if len(active) == 0 || len(completed) >= beamWidth {
			log.Debug("beam search finished", "steps", step, "completed", len(completed))
			break
		}

		batch := padBatch(arena, active, pad)
		out, err := d.Model.Forward(batch)
		if err != nil {
			return nil, fmt.Errorf("sequence model forward: %w", err)
		}
		if len(out) != len(batch) {
			return nil, fmt.Errorf("sequence model forward: %d output rows for batch of %d", len(out), len(batch))
		}

		// Bounded top-k per candidate, read at the candidate's true
		// (un-padded) last position.
		bufs := make([]*TopKBuffer, len(active))
		for i, idx := range active {
			last := len(arena[idx].seq) - 1
			if last >= len(out[i]) || len(out[i][last]) != vocab {
				return nil, fmt.Errorf("sequence model forward: bad output shape at row %d", i)
			}
			tensor.SoftmaxTo(probs, out[i][last])
			buf := NewTopKBuffer(beamWidth, eos)
			for v := 0; v < vocab; v++ {
				buf.Offer(v, probs[v])
			}
			bufs[i] = buf
		}

		next := d.expand(&arena, active, bufs, beamWidth)
		log.Debug("beam step", "step", step, "active", len(next), "completed", len(completed))
		active = next
	}

	results := make([]Result, 0, len(completed))
	for _, idx := range completed {
		seq := stripTrailingEos(arena[idx].seq, eos)
		text, err := d.Tok.Decode(seq)
		if err != nil {
			return nil, fmt.Errorf("decode tokens: %w", err)
		}
		results = append(results, Result{Text: text, Tokens: seq, Score: arena[idx].score})
	}
	return results, nil
}

// expand selects up to beamWidth expansions across the candidates' top-k
// buffers, appends the children to the arena, and returns their indices.
//
// Each round scans buffers in ascending candidate order and takes the
// option minimizing parent score plus -log(prob); a strict comparison
// keeps the first option seen on equal scores. The chosen option is
// popped from its buffer so it cannot be selected twice. Zero
// probabilities (sentinel slots, or a degenerate distribution) would have
// infinite cost and are skipped outright.
func (d *Decoder) expand(arena *[]candidate, active []int, bufs []*TopKBuffer, beamWidth int) []int {
	next := make([]int, 0, beamWidth)
	for len(next) < beamWidth {
		bestBuf := -1
		bestTok := 0
		bestScore := 0.0
		for i, buf := range bufs {
			id, p, ok := buf.PeekMax()
			if !ok || p <= 0 {
				continue
			}
			s := (*arena)[active[i]].score - math.Log(float64(p))
			if bestBuf == -1 || s < bestScore {
				bestBuf, bestTok, bestScore = i, id, s
			}
		}
		if bestBuf == -1 {
			break
		}
		bufs[bestBuf].PopMax()

		parent := (*arena)[active[bestBuf]]
		seq := make([]int, len(parent.seq)+1)
		copy(seq, parent.seq)
		seq[len(parent.seq)] = bestTok
		*arena = append(*arena, candidate{seq: seq, score: bestScore})
		next = append(next, len(*arena)-1)
	}
	return next
}

// padBatch right-pads the active candidates' sequences to the longest
// length in the batch.
func padBatch(arena []candidate, active []int, pad int) [][]int {
	maxSeq := 0
	for _, idx := range active {
		if n := len(arena[idx].seq); n > maxSeq {
			maxSeq = n
		}
	}
	batch := make([][]int, len(active))
	for i, idx := range active {
		row := make([]int, maxSeq)
		n := copy(row, arena[idx].seq)
		for j := n; j < maxSeq; j++ {
			row[j] = pad
		}
		batch[i] = row
	}
	return batch
}

func isComplete(seq []int, eos, maxLen int) bool {
	return len(seq) >= maxLen || (len(seq) > 0 && seq[len(seq)-1] == eos)
}

// stripTrailingEos removes a single trailing end-of-sequence token, so
// generated text never includes the terminator. Stripping an already
// stripped sequence is a no-op.
func stripTrailingEos(seq []int, eos int) []int {
	if n := len(seq); n > 0 && seq[n-1] == eos {
		return seq[:n-1]
	}
	return seq
}
