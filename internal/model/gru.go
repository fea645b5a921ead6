package model

import (
	"fmt"

	"github.com/samcharles93/loom/internal/tensor"
)

// GRUCell packs the three gates (z, r, ĥ in that order) into stacked
// 3H-row weight matrices.
//
//	z = σ(a_z)   r = σ(a_r)   ĥ = tanh(Wx_h·x + Wh_h·(r⊙h) + b_h)
//	h' = (1−z)⊙h + z⊙ĥ
//
// The candidate row block of wh multiplies r⊙h rather than h, so the
// step computes the z and r preactivations first. The cache's gates
// slice holds [z r ĥ]; aux holds r⊙hPrev.
type GRUCell struct {
	in, hidden int
	wx, wh, b  *Param
	pre        []float32
	rh         []float32
}

func newGRUCell(in, hidden, layer int, seed int64) *GRUCell {
	scale := initScale(hidden)
	prefix := fmt.Sprintf("gru.%d.", layer)
	return &GRUCell{
		in:     in,
		hidden: hidden,
		wx:     newParam(prefix+"wx", 3*hidden, in, seed+1, scale),
		wh:     newParam(prefix+"wh", 3*hidden, hidden, seed+2, scale),
		b:      newVecParam(prefix+"b", 3*hidden, seed+3, 0),
		pre:    make([]float32, 3*hidden),
		rh:     make([]float32, hidden),
	}
}

func (c *GRUCell) InputSize() int   { return c.in }
func (c *GRUCell) HiddenSize() int  { return c.hidden }
func (c *GRUCell) Params() []*Param { return []*Param{c.wx, c.wh, c.b} }

func (c *GRUCell) NewState() *cellState {
	return &cellState{h: make([]float32, c.hidden)}
}

func (c *GRUCell) Step(x []float32, st *cellState, cache *stepCache) {
	H := c.hidden
	pre := c.pre
	tensor.MatVec(pre, &c.wx.W, x)
	for r := 0; r < 2*H; r++ {
		pre[r] += tensor.Dot(c.wh.W.Row(r), st.h) + c.b.Vec()[r]
	}

	gates := make([]float32, 3*H)
	for j := 0; j < H; j++ {
		gates[j] = sigmoid(pre[j])     // z
		gates[H+j] = sigmoid(pre[H+j]) // r
		c.rh[j] = gates[H+j] * st.h[j]
	}
	for r := 2 * H; r < 3*H; r++ {
		pre[r] += tensor.Dot(c.wh.W.Row(r), c.rh) + c.b.Vec()[r]
	}
	for j := 0; j < H; j++ {
		gates[2*H+j] = tanhf(pre[2*H+j]) // ĥ
	}

	if cache != nil {
		cache.x = cloneVec(x)
		cache.hPrev = cloneVec(st.h)
		cache.gates = gates
		cache.aux = cloneVec(c.rh)
	}

	for j := 0; j < H; j++ {
		z, hh := gates[j], gates[2*H+j]
		st.h[j] = (1-z)*st.h[j] + z*hh
	}
	if cache != nil {
		cache.hOut = cloneVec(st.h)
	}
}

func (c *GRUCell) StepGrad(cache *stepCache, dh, _, dx, dhPrev, _ []float32) {
	H := c.hidden
	da := make([]float32, 3*H)
	drh := make([]float32, H)

	// Candidate gate first: its input-side gradient fans out into r and
	// hPrev through the r⊙h product.
	for j := 0; j < H; j++ {
		z := cache.gates[j]
		hh := cache.gates[2*H+j]
		dhh := dh[j] * z
		da[2*H+j] = dhh * (1 - hh*hh)
		dhPrev[j] += dh[j] * (1 - z)
	}
	for r := 2 * H; r < 3*H; r++ {
		tensor.AddScaled(drh, c.wh.W.Row(r), da[r])
	}

	for j := 0; j < H; j++ {
		z := cache.gates[j]
		r := cache.gates[H+j]
		hh := cache.gates[2*H+j]

		dz := dh[j] * (hh - cache.hPrev[j])
		dr := drh[j] * cache.hPrev[j]
		dhPrev[j] += drh[j] * r

		da[j] = dz * z * (1 - z)
		da[H+j] = dr * r * (1 - r)
	}

	tensor.OuterAcc(&c.wx.Grad, da, cache.x)
	tensor.Add(c.b.GradVec(), da)
	// wh's z and r blocks saw hPrev; the candidate block saw r⊙hPrev.
	for r := 0; r < 2*H; r++ {
		tensor.AddScaled(c.wh.Grad.Row(r), cache.hPrev, da[r])
	}
	for r := 2 * H; r < 3*H; r++ {
		tensor.AddScaled(c.wh.Grad.Row(r), cache.aux, da[r])
	}

	addMatVecT(dx, &c.wx.W, da)
	for r := 0; r < 2*H; r++ {
		tensor.AddScaled(dhPrev, c.wh.W.Row(r), da[r])
	}
}
