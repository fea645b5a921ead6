package model

import (
	"fmt"

	"github.com/samcharles93/loom/internal/tensor"
)

// LSTMCell packs the four gates (i, f, g, o in that order) into stacked
// 4H-row weight matrices, one matrix-vector product per step per input.
//
//	i = σ(a_i)   f = σ(a_f)   g = tanh(a_g)   o = σ(a_o)
//	c' = f⊙c + i⊙g
//	h' = o⊙tanh(c')
//
// The cache's gates slice holds the 4H post-activation gate values.
type LSTMCell struct {
	in, hidden int
	wx, wh, b  *Param
	pre        []float32
}

func newLSTMCell(in, hidden, layer int, seed int64) *LSTMCell {
	scale := initScale(hidden)
	prefix := fmt.Sprintf("lstm.%d.", layer)
	return &LSTMCell{
		in:     in,
		hidden: hidden,
		wx:     newParam(prefix+"wx", 4*hidden, in, seed+1, scale),
		wh:     newParam(prefix+"wh", 4*hidden, hidden, seed+2, scale),
		b:      newVecParam(prefix+"b", 4*hidden, seed+3, 0),
		pre:    make([]float32, 4*hidden),
	}
}

func (c *LSTMCell) InputSize() int   { return c.in }
func (c *LSTMCell) HiddenSize() int  { return c.hidden }
func (c *LSTMCell) Params() []*Param { return []*Param{c.wx, c.wh, c.b} }

func (c *LSTMCell) NewState() *cellState {
	return &cellState{h: make([]float32, c.hidden), c: make([]float32, c.hidden)}
}

func (c *LSTMCell) Step(x []float32, st *cellState, cache *stepCache) {
	H := c.hidden
	pre := c.pre
	tensor.MatVec(pre, &c.wx.W, x)
	for r := 0; r < 4*H; r++ {
		pre[r] += tensor.Dot(c.wh.W.Row(r), st.h) + c.b.Vec()[r]
	}

	gates := make([]float32, 4*H)
	for j := 0; j < H; j++ {
		gates[j] = sigmoid(pre[j])          // i
		gates[H+j] = sigmoid(pre[H+j])      // f
		gates[2*H+j] = tanhf(pre[2*H+j])    // g
		gates[3*H+j] = sigmoid(pre[3*H+j])  // o
	}

	if cache != nil {
		cache.x = cloneVec(x)
		cache.hPrev = cloneVec(st.h)
		cache.cPrev = cloneVec(st.c)
		cache.gates = gates
	}

	for j := 0; j < H; j++ {
		i, f, g, o := gates[j], gates[H+j], gates[2*H+j], gates[3*H+j]
		st.c[j] = f*st.c[j] + i*g
		st.h[j] = o * tanhf(st.c[j])
	}
	if cache != nil {
		cache.hOut = cloneVec(st.h)
		cache.cOut = cloneVec(st.c)
	}
}

func (c *LSTMCell) StepGrad(cache *stepCache, dh, dc, dx, dhPrev, dcPrev []float32) {
	H := c.hidden
	da := make([]float32, 4*H)
	for j := 0; j < H; j++ {
		i := cache.gates[j]
		f := cache.gates[H+j]
		g := cache.gates[2*H+j]
		o := cache.gates[3*H+j]
		tc := tanhf(cache.cOut[j])

		dcj := dc[j] + dh[j]*o*(1-tc*tc)
		doj := dh[j] * tc
		dij := dcj * g
		dfj := dcj * cache.cPrev[j]
		dgj := dcj * i
		dcPrev[j] += dcj * f

		da[j] = dij * i * (1 - i)
		da[H+j] = dfj * f * (1 - f)
		da[2*H+j] = dgj * (1 - g*g)
		da[3*H+j] = doj * o * (1 - o)
	}

	tensor.OuterAcc(&c.wx.Grad, da, cache.x)
	tensor.OuterAcc(&c.wh.Grad, da, cache.hPrev)
	tensor.Add(c.b.GradVec(), da)

	addMatVecT(dx, &c.wx.W, da)
	addMatVecT(dhPrev, &c.wh.W, da)
}
