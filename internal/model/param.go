package model

import "github.com/samcharles93/loom/internal/tensor"

// Param is one trainable tensor with its gradient accumulator. Vectors
// are single-row matrices so the optimizer and checkpoint code handle
// everything uniformly by name.
type Param struct {
	Name string
	W    tensor.Mat
	Grad tensor.Mat
}

func newParam(name string, r, c int, seed int64, scale float32) *Param {
	p := &Param{Name: name, W: tensor.NewMat(r, c), Grad: tensor.NewMat(r, c)}
	tensor.FillRand(&p.W, seed, scale)
	return p
}

func newVecParam(name string, n int, seed int64, scale float32) *Param {
	return newParam(name, 1, n, seed, scale)
}

// Vec returns the data of a single-row param.
func (p *Param) Vec() []float32 { return p.W.Row(0) }

// GradVec returns the gradient of a single-row param.
func (p *Param) GradVec() []float32 { return p.Grad.Row(0) }
