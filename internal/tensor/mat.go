package tensor

import "math/rand"

// Mat is a dense row-major matrix of float32 values.
//
// R and C are the number of rows and columns. Stride is the number of
// elements between the starts of two consecutive rows; for matrices
// allocated here it equals C. Data holds the flattened values.
//
// Mat performs no bounds checking beyond what Go slices provide;
// out-of-range indices panic.
type Mat struct {
	R, C   int
	Stride int
	Data   []float32
}

// NewMat allocates a zero-initialised matrix with r rows and c columns.
func NewMat(r, c int) Mat {
	if r < 0 || c < 0 {
		panic("negative dimension for matrix")
	}
	return Mat{R: r, C: c, Stride: c, Data: make([]float32, r*c)}
}

// NewMatFromData wraps existing data as an r-by-c matrix. The data length
// must equal r*c.
func NewMatFromData(r, c int, data []float32) (Mat, error) {
	if r < 0 || c < 0 {
		return Mat{}, errNegativeDim
	}
	if r*c != len(data) {
		return Mat{}, errDataSizeMismatch
	}
	return Mat{R: r, C: c, Stride: c, Data: data}, nil
}

// Row returns a view of the i-th row. Writes through the returned slice
// update the matrix.
func (m *Mat) Row(i int) []float32 {
	if i < 0 || i >= m.R {
		panic("row index out of range")
	}
	start := i * m.Stride
	return m.Data[start : start+m.C]
}

// RowTo copies the i-th row into dst. dst must have length >= C.
func (m *Mat) RowTo(dst []float32, i int) {
	if len(dst) < m.C {
		panic("row buffer too small")
	}
	copy(dst[:m.C], m.Row(i))
}

// Zero resets every element to 0.
func (m *Mat) Zero() {
	for i := range m.Data {
		m.Data[i] = 0
	}
}

// FillRand fills the matrix with reproducible pseudo-random values drawn
// uniformly from (-scale, scale). The same seed always produces the same
// matrix, which keeps model initialisation deterministic.
func FillRand(m *Mat, seed int64, scale float32) {
	rng := rand.New(rand.NewSource(seed))
	for i := range m.Data {
		m.Data[i] = (rng.Float32()*2 - 1) * scale
	}
}

var (
	errNegativeDim      = matError("negative dimension for matrix")
	errDataSizeMismatch = matError("data length mismatch")
)

type matError string

func (e matError) Error() string { return string(e) }
