package model

import "math"

// Cell is the strategy interface for the recurrent transition function.
// A cell is a layer's worth of weights; per-sequence state lives in
// cellState values owned by the caller, so one cell can serve many
// sequences in a batch.
type Cell interface {
	InputSize() int
	HiddenSize() int
	Params() []*Param

	// NewState returns a zeroed per-sequence state.
	NewState() *cellState

	// Step advances one timestep, updating st in place. When cache is
	// non-nil the activations needed for StepGrad are recorded in it.
	Step(x []float32, st *cellState, cache *stepCache)

	// StepGrad backpropagates one timestep. dh (and dc for cells with a
	// second state vector) carry gradients flowing into this step's
	// outputs; parameter gradients are accumulated in place and the
	// step's contributions are added into dx, dhPrev and dcPrev.
	StepGrad(cache *stepCache, dh, dc, dx, dhPrev, dcPrev []float32)
}

// cellState is one sequence's recurrent state for one layer. c is only
// used by the LSTM cell.
type cellState struct {
	h []float32
	c []float32
}

// stepCache records one forward timestep for backpropagation through
// time. The gate slices mean different things per cell; each cell
// documents its own layout.
type stepCache struct {
	x     []float32
	hPrev []float32
	cPrev []float32
	gates []float32 // post-activation gate values, cell-specific layout
	aux   []float32 // cell-specific extra (GRU: r⊙hPrev)
	hOut  []float32
	cOut  []float32
}

func newCell(kind CellKind, in, hidden, layer int, seed int64) Cell {
	switch kind {
	case CellLSTM:
		return newLSTMCell(in, hidden, layer, seed)
	case CellGRU:
		return newGRUCell(in, hidden, layer, seed)
	default:
		return newRNNCell(in, hidden, layer, seed)
	}
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

func tanhf(x float32) float32 {
	return float32(math.Tanh(float64(x)))
}

func cloneVec(x []float32) []float32 {
	out := make([]float32, len(x))
	copy(out, x)
	return out
}
