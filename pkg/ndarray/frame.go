package ndarray

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrNotPlanar is returned when an extracted array still has more than two axes.
var ErrNotPlanar = errors.New("array is not planar")

// Frame is a 2D plane of an array. Exactly one of Real and Complex is set.
type Frame struct {
	Real    *mat.Dense
	Complex *mat.CDense
}

// ToFrame converts an array of rank at most two into a Frame. Rank 1 arrays are
// promoted to a 1xN strip and rank 0 arrays to a single pixel.
func ToFrame(a *Array) (*Frame, error) {
	var rows, cols int
	switch a.Rank() {
	case 0:
		rows, cols = 1, 1
	case 1:
		rows, cols = 1, a.shape[0]
	case 2:
		rows, cols = a.shape[0], a.shape[1]
	default:
		return nil, fmt.Errorf("%w: shape %v", ErrNotPlanar, a.shape)
	}

	if a.cplx != nil {
		data := make([]complex128, len(a.cplx))
		copy(data, a.cplx)
		return &Frame{Complex: mat.NewCDense(rows, cols, data)}, nil
	}
	data := make([]float64, len(a.real))
	copy(data, a.real)
	return &Frame{Real: mat.NewDense(rows, cols, data)}, nil
}

// Dims returns the number of rows and columns.
func (f *Frame) Dims() (r, c int) {
	if f.Complex != nil {
		return f.Complex.Dims()
	}
	return f.Real.Dims()
}

// IsComplex reports whether the frame holds complex values.
func (f *Frame) IsComplex() bool { return f.Complex != nil }

// At returns the element at (i, j) as a complex value.
func (f *Frame) At(i, j int) complex128 {
	if f.Complex != nil {
		return f.Complex.At(i, j)
	}
	return complex(f.Real.At(i, j), 0)
}

// AsComplex returns the frame as a complex matrix, converting real frames.
func (f *Frame) AsComplex() *mat.CDense {
	if f.Complex != nil {
		return f.Complex
	}
	r, c := f.Real.Dims()
	out := mat.NewCDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, complex(f.Real.At(i, j), 0))
		}
	}
	return out
}
