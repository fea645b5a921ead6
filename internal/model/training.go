package model

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/samcharles93/loom/internal/tensor"
)

// posCache records everything one timestep of one sequence needs for the
// backward pass.
type posCache struct {
	tok      int
	cells    []*stepCache
	cellDrop [][]float32 // dropout masks between cell layers (may hold nils)
	linIn    [][]float32 // input to each hidden linear layer
	linOut   [][]float32 // post-ReLU, pre-dropout outputs
	linDrop  [][]float32
	outIn    []float32 // input to the output projection
	proj     []float32 // output projection result
	probs    []float32 // softmax over the vocabulary
}

// ForwardBackward runs one training step over a right-padded batch:
// forward with dropout, mean cross-entropy over the positions whose
// target is not the pad id, and full backpropagation through time.
// Gradients are accumulated into the parameters; call ZeroGrad first
// when starting a fresh step. rng drives dropout; pass nil to disable
// dropout regardless of config.
//
// inputs and targets must have identical shapes; targets[b][t] is the
// token expected after inputs[b][t].
func (m *Model) ForwardBackward(inputs, targets [][]int, rng *rand.Rand) (loss float64, tokens int, err error) {
	if len(inputs) == 0 || len(inputs) != len(targets) {
		return 0, 0, fmt.Errorf("batch/target shape mismatch: %d vs %d", len(inputs), len(targets))
	}
	seqLen := len(inputs[0])
	for b := range inputs {
		if len(inputs[b]) != seqLen || len(targets[b]) != seqLen {
			return 0, 0, fmt.Errorf("ragged training batch at row %d", b)
		}
	}

	for b := range targets {
		for _, tok := range targets[b] {
			if tok != m.Cfg.PadID {
				tokens++
			}
		}
	}
	if tokens == 0 {
		return 0, 0, fmt.Errorf("batch contains no target tokens")
	}

	var total float64
	for b := range inputs {
		caches, seqLoss, ferr := m.forwardTrain(inputs[b], targets[b], rng)
		if ferr != nil {
			return 0, 0, ferr
		}
		total += seqLoss
		m.backwardSeq(caches, targets[b], tokens)
	}
	return total / float64(tokens), tokens, nil
}

func (m *Model) forwardTrain(seq, targets []int, rng *rand.Rand) ([]*posCache, float64, error) {
	states := m.newStates()
	caches := make([]*posCache, len(seq))
	var loss float64

	for t, tok := range seq {
		if tok < 0 || tok >= m.Cfg.VocabSize {
			return nil, 0, fmt.Errorf("token id out of range: %d", tok)
		}
		pc := &posCache{tok: tok}

		cur := cloneVec(m.embed.W.Row(tok))
		for l, cell := range m.cells {
			cache := &stepCache{}
			cell.Step(cur, states[l], cache)
			pc.cells = append(pc.cells, cache)
			cur = states[l].h
			if l < len(m.cells)-1 {
				dropped, mask := m.dropout(cur, rng)
				pc.cellDrop = append(pc.cellDrop, mask)
				cur = dropped
			}
		}

		cur = cloneVec(cur)
		for l := range m.linW {
			pc.linIn = append(pc.linIn, cloneVec(cur))
			m.linearReLU(l, cur)
			pc.linOut = append(pc.linOut, cloneVec(cur))
			dropped, mask := m.dropout(cur, rng)
			pc.linDrop = append(pc.linDrop, mask)
			cur = dropped
		}
		pc.outIn = cloneVec(cur)

		pc.proj = make([]float32, m.Cfg.EmbedDim)
		tensor.MatVec(pc.proj, &m.outW.W, pc.outIn)
		tensor.Add(pc.proj, m.outB.Vec())

		logits := make([]float32, m.Cfg.VocabSize)
		tensor.MatVec(logits, &m.embed.W, pc.proj)
		tensor.Softmax(logits)
		pc.probs = logits

		if targets[t] != m.Cfg.PadID {
			p := float64(pc.probs[targets[t]])
			if p < 1e-30 {
				p = 1e-30
			}
			loss -= math.Log(p)
		}
		caches[t] = pc
	}
	return caches, loss, nil
}

// dropout returns x with inverted dropout applied and the mask used, or
// (x, nil) when dropout is off. The returned slice is always safe for
// the caller to keep.
func (m *Model) dropout(x []float32, rng *rand.Rand) ([]float32, []float32) {
	if rng == nil || m.Cfg.Dropout <= 0 {
		return cloneVec(x), nil
	}
	keep := 1 - m.Cfg.Dropout
	mask := make([]float32, len(x))
	out := make([]float32, len(x))
	for i := range x {
		if rng.Float32() < keep {
			mask[i] = 1 / keep
			out[i] = x[i] * mask[i]
		}
	}
	return out, mask
}

func (m *Model) backwardSeq(caches []*posCache, targets []int, totalTokens int) {
	L := len(m.cells)
	H := m.Cfg.HiddenDim
	scale := float32(1) / float32(totalTokens)

	dh := make([][]float32, L)
	dc := make([][]float32, L)
	for l := 0; l < L; l++ {
		dh[l] = make([]float32, H)
		dc[l] = make([]float32, H)
	}

	for t := len(caches) - 1; t >= 0; t-- {
		pc := caches[t]

		var dtop []float32
		if targets[t] != m.Cfg.PadID {
			dlogits := cloneVec(pc.probs)
			dlogits[targets[t]] -= 1
			tensor.Scale(dlogits, scale)

			// Tied projection: logits = embed · proj, so the embedding
			// matrix collects an output-side gradient here and an
			// input-side one at the bottom of the cell stack.
			tensor.OuterAcc(&m.embed.Grad, dlogits, pc.proj)
			dproj := make([]float32, m.Cfg.EmbedDim)
			addMatVecT(dproj, &m.embed.W, dlogits)

			tensor.OuterAcc(&m.outW.Grad, dproj, pc.outIn)
			tensor.Add(m.outB.GradVec(), dproj)
			dcur := make([]float32, H)
			addMatVecT(dcur, &m.outW.W, dproj)

			for l := len(m.linW) - 1; l >= 0; l-- {
				if pc.linDrop[l] != nil {
					mulVec(dcur, pc.linDrop[l])
				}
				for i, v := range pc.linOut[l] {
					if v <= 0 {
						dcur[i] = 0
					}
				}
				tensor.OuterAcc(&m.linW[l].Grad, dcur, pc.linIn[l])
				tensor.Add(m.linB[l].GradVec(), dcur)
				prev := make([]float32, H)
				addMatVecT(prev, &m.linW[l].W, dcur)
				dcur = prev
			}
			dtop = dcur
		}

		for l := L - 1; l >= 0; l-- {
			if l == L-1 && dtop != nil {
				tensor.Add(dh[l], dtop)
			}
			cell := m.cells[l]
			dx := make([]float32, cell.InputSize())
			dhPrev := make([]float32, H)
			dcPrev := make([]float32, H)
			cell.StepGrad(pc.cells[l], dh[l], dc[l], dx, dhPrev, dcPrev)
			dh[l] = dhPrev
			dc[l] = dcPrev

			if l > 0 {
				if pc.cellDrop[l-1] != nil {
					mulVec(dx, pc.cellDrop[l-1])
				}
				tensor.Add(dh[l-1], dx)
			} else if pc.tok != m.Cfg.PadID {
				tensor.Add(m.embed.Grad.Row(pc.tok), dx)
			}
		}
	}
}

func mulVec(dst, mask []float32) {
	for i := range dst {
		dst[i] *= mask[i]
	}
}
