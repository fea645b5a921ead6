package tensor

import "math"

// Add adds src to dst element-wise.
func Add(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// AddScaled computes dst += a*src element-wise.
func AddScaled(dst, src []float32, a float32) {
	for i := range dst {
		dst[i] += a * src[i]
	}
}

// Scale multiplies every element of x by a.
func Scale(x []float32, a float32) {
	for i := range x {
		x[i] *= a
	}
}

// Zero clears x.
func Zero(x []float32) {
	for i := range x {
		x[i] = 0
	}
}

// Dot computes the dot product of a and b.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// MatVec computes dst = w*x. dst has length w.R, x has length w.C.
func MatVec(dst []float32, w *Mat, x []float32) {
	for r := 0; r < w.R; r++ {
		dst[r] = Dot(w.Row(r), x)
	}
}

// MatVecT computes dst = wᵀ*x. dst has length w.C, x has length w.R.
// Accumulating column-wise over rows keeps the row-major access pattern.
func MatVecT(dst []float32, w *Mat, x []float32) {
	Zero(dst[:w.C])
	for r := 0; r < w.R; r++ {
		AddScaled(dst[:w.C], w.Row(r), x[r])
	}
}

// OuterAcc accumulates the rank-1 update dw += dy⊗x, where dw is
// len(dy)-by-len(x). Used for weight gradients.
func OuterAcc(dw *Mat, dy, x []float32) {
	for r := range dy {
		AddScaled(dw.Row(r), x, dy[r])
	}
}

// Softmax applies the softmax function to x in place, with the usual
// max subtraction for numerical stability.
func Softmax(x []float32) {
	if len(x) == 0 {
		return
	}
	maxv := x[0]
	for _, v := range x[1:] {
		if v > maxv {
			maxv = v
		}
	}
	var sum float64
	for i := range x {
		e := math.Exp(float64(x[i] - maxv))
		x[i] = float32(e)
		sum += e
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / sum)
	for i := range x {
		x[i] *= inv
	}
}

// SoftmaxTo writes softmax(src) into dst without modifying src.
func SoftmaxTo(dst, src []float32) {
	copy(dst, src)
	Softmax(dst)
}

// LogSumExp returns log(sum(exp(x))) computed stably.
func LogSumExp(x []float32) float64 {
	if len(x) == 0 {
		return math.Inf(-1)
	}
	maxv := x[0]
	for _, v := range x[1:] {
		if v > maxv {
			maxv = v
		}
	}
	var sum float64
	for _, v := range x {
		sum += math.Exp(float64(v - maxv))
	}
	return float64(maxv) + math.Log(sum)
}

// Argmax returns the index of the largest value. Ties go to the lowest
// index. Panics on an empty slice.
func Argmax(x []float32) int {
	if len(x) == 0 {
		panic("argmax: empty slice")
	}
	best := 0
	for i := 1; i < len(x); i++ {
		if x[i] > x[best] {
			best = i
		}
	}
	return best
}
