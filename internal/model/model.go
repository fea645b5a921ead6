package model

import (
	"fmt"

	"github.com/samcharles93/loom/internal/tensor"
)

// Model is the recurrent language model: token embedding, a stack of
// recurrent cells, a stack of ReLU linear layers, and a projection back
// to embedding dimension whose logits reuse the embedding matrix as the
// output vocabulary projection (weight tying).
type Model struct {
	Cfg Config

	embed  *Param
	cells  []Cell
	linW   []*Param
	linB   []*Param
	outW   *Param
	outB   *Param
	params []*Param
}

// New builds a model with deterministic random initialisation derived
// from cfg.Seed. The padding token's embedding row starts at zero.
func New(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("model config: %w", err)
	}
	m := &Model{Cfg: cfg}
	seed := cfg.Seed

	m.embed = newParam("embed", cfg.VocabSize, cfg.EmbedDim, seed, 0.02)
	tensor.Zero(m.embed.W.Row(cfg.PadID))
	m.params = append(m.params, m.embed)

	in := cfg.EmbedDim
	for l := 0; l < cfg.NumLayers; l++ {
		cell := newCell(cfg.Cell, in, cfg.HiddenDim, l, seed+int64(100*(l+1)))
		m.cells = append(m.cells, cell)
		m.params = append(m.params, cell.Params()...)
		in = cfg.HiddenDim
	}

	scale := initScale(cfg.HiddenDim)
	for l := 0; l < cfg.NumLinear; l++ {
		w := newParam(fmt.Sprintf("lin.%d.w", l), cfg.HiddenDim, cfg.HiddenDim, seed+int64(1000*(l+1)), scale)
		b := newVecParam(fmt.Sprintf("lin.%d.b", l), cfg.HiddenDim, 0, 0)
		m.linW = append(m.linW, w)
		m.linB = append(m.linB, b)
		m.params = append(m.params, w, b)
	}

	m.outW = newParam("out.w", cfg.EmbedDim, cfg.HiddenDim, seed+7000, scale)
	m.outB = newVecParam("out.b", cfg.EmbedDim, 0, 0)
	m.params = append(m.params, m.outW, m.outB)

	return m, nil
}

// Params returns every trainable parameter, stable in order and name.
func (m *Model) Params() []*Param { return m.params }

// Param looks a parameter up by name.
func (m *Model) Param(name string) (*Param, bool) {
	for _, p := range m.params {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// ZeroGrad clears all gradient accumulators.
func (m *Model) ZeroGrad() {
	for _, p := range m.params {
		p.Grad.Zero()
	}
}

// Forward scores a batch of equal-length, right-padded token-id
// sequences, returning logits with shape [batch][seqLen][vocab]. It runs
// in evaluation mode: no dropout, no gradient bookkeeping, fresh
// recurrent state per sequence. Forward never mutates weights, but the
// cells reuse scratch buffers, so a Model must not serve concurrent
// Forward calls.
func (m *Model) Forward(batch [][]int) ([][][]float32, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	seqLen := len(batch[0])
	for i, row := range batch {
		if len(row) != seqLen {
			return nil, fmt.Errorf("ragged batch: row %d has length %d, want %d", i, len(row), seqLen)
		}
		for _, tok := range row {
			if tok < 0 || tok >= m.Cfg.VocabSize {
				return nil, fmt.Errorf("token id out of range: %d", tok)
			}
		}
	}

	out := make([][][]float32, len(batch))
	x := make([]float32, m.Cfg.EmbedDim)
	hidden := make([]float32, m.Cfg.HiddenDim)
	proj := make([]float32, m.Cfg.EmbedDim)

	for b, row := range batch {
		states := m.newStates()
		out[b] = make([][]float32, seqLen)
		for t, tok := range row {
			m.embed.W.RowTo(x, tok)

			cur := x
			for l, cell := range m.cells {
				cell.Step(cur, states[l], nil)
				cur = states[l].h
			}

			copy(hidden, cur)
			for l := range m.linW {
				m.linearReLU(l, hidden)
			}

			tensor.MatVec(proj, &m.outW.W, hidden)
			tensor.Add(proj, m.outB.Vec())

			logits := make([]float32, m.Cfg.VocabSize)
			tensor.MatVec(logits, &m.embed.W, proj)
			out[b][t] = logits
		}
	}
	return out, nil
}

func (m *Model) newStates() []*cellState {
	states := make([]*cellState, len(m.cells))
	for l, cell := range m.cells {
		states[l] = cell.NewState()
	}
	return states
}

// linearReLU applies hidden linear layer l in place: x = relu(W·x + b).
func (m *Model) linearReLU(l int, x []float32) {
	tmp := make([]float32, m.Cfg.HiddenDim)
	tensor.MatVec(tmp, &m.linW[l].W, x)
	tensor.Add(tmp, m.linB[l].Vec())
	for i, v := range tmp {
		if v < 0 {
			v = 0
		}
		x[i] = v
	}
}
