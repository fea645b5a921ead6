package train

import (
	"fmt"
	"math"

	"github.com/samcharles93/loom/internal/model"
)

// Optimizer applies accumulated gradients to parameters.
type Optimizer interface {
	Step(params []*model.Param)
}

// NewOptimizer builds an optimizer by name: "sgd" or "adam".
func NewOptimizer(name string, lr float64) (Optimizer, error) {
	switch name {
	case "sgd":
		return &SGD{LR: float32(lr)}, nil
	case "adam":
		return NewAdam(float32(lr)), nil
	default:
		return nil, fmt.Errorf("unknown optimizer %q", name)
	}
}

// SGD is plain stochastic gradient descent.
type SGD struct {
	LR float32
}

func (o *SGD) Step(params []*model.Param) {
	for _, p := range params {
		for i, g := range p.Grad.Data {
			p.W.Data[i] -= o.LR * g
		}
	}
}

// Adam keeps per-parameter first and second moment estimates, indexed
// by position in the params slice, which is stable for a model.
type Adam struct {
	LR    float32
	Beta1 float32
	Beta2 float32
	Eps   float32

	t int
	m [][]float32
	v [][]float32
}

func NewAdam(lr float32) *Adam {
	return &Adam{LR: lr, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8}
}

func (o *Adam) Step(params []*model.Param) {
	if o.m == nil {
		o.m = make([][]float32, len(params))
		o.v = make([][]float32, len(params))
		for i, p := range params {
			o.m[i] = make([]float32, len(p.W.Data))
			o.v[i] = make([]float32, len(p.W.Data))
		}
	}
	o.t++
	c1 := 1 - float32(math.Pow(float64(o.Beta1), float64(o.t)))
	c2 := 1 - float32(math.Pow(float64(o.Beta2), float64(o.t)))

	for i, p := range params {
		m, v := o.m[i], o.v[i]
		for j, g := range p.Grad.Data {
			m[j] = o.Beta1*m[j] + (1-o.Beta1)*g
			v[j] = o.Beta2*v[j] + (1-o.Beta2)*g*g
			mHat := m[j] / c1
			vHat := v[j] / c2
			p.W.Data[j] -= o.LR * mHat / (float32(math.Sqrt(float64(vHat))) + o.Eps)
		}
	}
}

// ClipGradNorm rescales all gradients so their global L2 norm does not
// exceed maxNorm, returning the norm before clipping. A non-positive
// maxNorm disables clipping.
func ClipGradNorm(params []*model.Param, maxNorm float64) float64 {
	var sq float64
	for _, p := range params {
		for _, g := range p.Grad.Data {
			sq += float64(g) * float64(g)
		}
	}
	norm := math.Sqrt(sq)
	if maxNorm <= 0 || norm <= maxNorm {
		return norm
	}
	scale := float32(maxNorm / norm)
	for _, p := range params {
		for i := range p.Grad.Data {
			p.Grad.Data[i] *= scale
		}
	}
	return norm
}
