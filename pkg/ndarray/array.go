// Package ndarray provides the immutable N-dimensional array handle displayed
// by the viewer, and the slicing used to pull 2D frames out of it.
package ndarray

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

var (
	// ErrInvalidShape is returned for a shape of rank 0, with an extent below 1,
	// or whose element count does not fit in an int.
	ErrInvalidShape = errors.New("invalid shape")

	// ErrShapeMismatch is returned when the data length does not match the shape.
	ErrShapeMismatch = errors.New("data length does not match shape")
)

// Array is a dense, row-major N-dimensional array holding either float64 or
// complex128 elements. It is never modified after construction, so it can be
// shared freely between readers.
type Array struct {
	shape   []int
	strides []int
	real    []float64
	cplx    []complex128
}

// NewReal creates a real-valued array. The data slice is used as is.
func NewReal(shape []int, data []float64) (*Array, error) {
	n, err := checkShape(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("%w: shape %v needs %d elements, got %d", ErrShapeMismatch, shape, n, len(data))
	}
	return newArray(shape, data, nil), nil
}

// NewComplex creates a complex-valued array. The data slice is used as is.
func NewComplex(shape []int, data []complex128) (*Array, error) {
	n, err := checkShape(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("%w: shape %v needs %d elements, got %d", ErrShapeMismatch, shape, n, len(data))
	}
	return newArray(shape, nil, data), nil
}

// NumElements validates a shape and returns its element count.
func NumElements(shape []int) (int, error) {
	return checkShape(shape)
}

func checkShape(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("%w: rank must be at least 1", ErrInvalidShape)
	}
	n := 1
	for axis, extent := range shape {
		if extent < 1 {
			return 0, fmt.Errorf("%w: axis %d has extent %d", ErrInvalidShape, axis, extent)
		}
		if extent > math.MaxInt/n {
			return 0, fmt.Errorf("%w: %v overflows the element count", ErrInvalidShape, shape)
		}
		n *= extent
	}
	return n, nil
}

// newArray skips validation; squeezing may legitimately produce rank 0.
func newArray(shape []int, real []float64, cplx []complex128) *Array {
	return &Array{
		shape:   slices.Clone(shape),
		strides: RowMajorStrides(shape...),
		real:    real,
		cplx:    cplx,
	}
}

// RowMajorStrides returns the element strides for the given extents, with the
// last axis varying fastest.
func RowMajorStrides(sizes ...int) []int {
	strides := make([]int, len(sizes))
	acc := 1
	for i := len(sizes) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= sizes[i]
	}
	return strides
}

// Shape returns a copy of the per-axis extents.
func (a *Array) Shape() []int { return slices.Clone(a.shape) }

// Rank returns the number of axes.
func (a *Array) Rank() int { return len(a.shape) }

// Extent returns the size of one axis.
func (a *Array) Extent(axis int) int { return a.shape[axis] }

// Len returns the total number of elements.
func (a *Array) Len() int {
	if a.cplx != nil {
		return len(a.cplx)
	}
	return len(a.real)
}

// IsComplex reports whether the elements are complex128.
func (a *Array) IsComplex() bool { return a.cplx != nil }

// Float64s returns the backing data of a real array, nil for complex arrays.
// Callers must not modify it.
func (a *Array) Float64s() []float64 { return a.real }

// Complex128s returns the backing data of a complex array, nil for real arrays.
// Callers must not modify it.
func (a *Array) Complex128s() []complex128 { return a.cplx }

// Offset converts a multi-index into a flat row-major offset.
func (a *Array) Offset(index ...int) int {
	off := 0
	for i, v := range index {
		off += v * a.strides[i]
	}
	return off
}

// At returns the element at the given multi-index as a complex value.
// Real arrays return a zero imaginary part.
func (a *Array) At(index ...int) complex128 {
	off := a.Offset(index...)
	if a.cplx != nil {
		return a.cplx[off]
	}
	return complex(a.real[off], 0)
}

// DType returns the element type name.
func (a *Array) DType() string {
	if a.cplx != nil {
		return "complex128"
	}
	return "float64"
}

func (a *Array) String() string {
	return fmt.Sprintf("ndarray(%s, shape=%v)", a.DType(), a.shape)
}
