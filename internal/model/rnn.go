package model

import (
	"fmt"
	"math"

	"github.com/samcharles93/loom/internal/tensor"
)

// RNNCell is the plain Elman cell: h' = tanh(Wx·x + Wh·h + b).
type RNNCell struct {
	in, hidden int
	wx, wh, b  *Param
	pre        []float32 // scratch preactivation
}

func newRNNCell(in, hidden, layer int, seed int64) *RNNCell {
	scale := initScale(hidden)
	prefix := fmt.Sprintf("rnn.%d.", layer)
	return &RNNCell{
		in:     in,
		hidden: hidden,
		wx:     newParam(prefix+"wx", hidden, in, seed+1, scale),
		wh:     newParam(prefix+"wh", hidden, hidden, seed+2, scale),
		b:      newVecParam(prefix+"b", hidden, seed+3, 0),
		pre:    make([]float32, hidden),
	}
}

func (c *RNNCell) InputSize() int   { return c.in }
func (c *RNNCell) HiddenSize() int  { return c.hidden }
func (c *RNNCell) Params() []*Param { return []*Param{c.wx, c.wh, c.b} }

func (c *RNNCell) NewState() *cellState {
	return &cellState{h: make([]float32, c.hidden)}
}

func (c *RNNCell) Step(x []float32, st *cellState, cache *stepCache) {
	pre := c.pre
	tensor.MatVec(pre, &c.wx.W, x)
	for r := 0; r < c.hidden; r++ {
		pre[r] += tensor.Dot(c.wh.W.Row(r), st.h) + c.b.Vec()[r]
	}
	if cache != nil {
		cache.x = cloneVec(x)
		cache.hPrev = cloneVec(st.h)
	}
	for i := range pre {
		st.h[i] = tanhf(pre[i])
	}
	if cache != nil {
		cache.hOut = cloneVec(st.h)
	}
}

func (c *RNNCell) StepGrad(cache *stepCache, dh, _, dx, dhPrev, _ []float32) {
	da := make([]float32, c.hidden)
	for i := range da {
		h := cache.hOut[i]
		da[i] = dh[i] * (1 - h*h)
	}
	tensor.OuterAcc(&c.wx.Grad, da, cache.x)
	tensor.OuterAcc(&c.wh.Grad, da, cache.hPrev)
	tensor.Add(c.b.GradVec(), da)

	addMatVecT(dx, &c.wx.W, da)
	addMatVecT(dhPrev, &c.wh.W, da)
}

// addMatVecT computes dst += wᵀ·x without clobbering prior contents.
func addMatVecT(dst []float32, w *tensor.Mat, x []float32) {
	for r := 0; r < w.R; r++ {
		tensor.AddScaled(dst[:w.C], w.Row(r), x[r])
	}
}

// initScale is the usual 1/sqrt(fanIn) uniform bound recurrent cells
// initialize with.
func initScale(hidden int) float32 {
	return float32(1.0 / math.Sqrt(float64(hidden)))
}
