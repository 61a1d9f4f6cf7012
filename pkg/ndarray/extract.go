package ndarray

import (
	"errors"
	"fmt"
)

var (
	// ErrSliceMismatch is returned when the slice tuple length differs from the rank.
	ErrSliceMismatch = errors.New("slice count does not match rank")

	// ErrSliceOutOfRange is returned for an empty or out-of-bounds slice.
	ErrSliceOutOfRange = errors.New("slice out of range")
)

// Slice selects the half-open range [Start, Stop) along one axis.
type Slice struct {
	Start int
	Stop  int
}

// All returns the full-range slice for an axis of the given extent.
func All(extent int) Slice { return Slice{Start: 0, Stop: extent} }

// Single returns the one-element slice [i, i+1).
func Single(i int) Slice { return Slice{Start: i, Stop: i + 1} }

// Len returns the number of selected elements.
func (s Slice) Len() int { return s.Stop - s.Start }

func (s Slice) String() string {
	if s.Len() == 1 {
		return fmt.Sprintf("%d", s.Start)
	}
	return fmt.Sprintf("%d:%d", s.Start, s.Stop)
}

// Sub copies the region selected by one slice per axis. The result keeps the
// rank of the source; selected axes of length one are not removed.
func (a *Array) Sub(slices []Slice) (*Array, error) {
	if len(slices) != len(a.shape) {
		return nil, fmt.Errorf("%w: got %d slices for rank %d", ErrSliceMismatch, len(slices), len(a.shape))
	}

	outShape := make([]int, len(slices))
	n := 1
	for axis, s := range slices {
		if s.Start < 0 || s.Stop > a.shape[axis] || s.Len() < 1 {
			return nil, fmt.Errorf("%w: axis %d slice %v for extent %d", ErrSliceOutOfRange, axis, s, a.shape[axis])
		}
		outShape[axis] = s.Len()
		n *= s.Len()
	}

	var real []float64
	var cplx []complex128
	if a.cplx != nil {
		cplx = make([]complex128, n)
	} else {
		real = make([]float64, n)
	}

	// Odometer over the output index, tracking the matching source offset.
	idx := make([]int, len(slices))
	src := 0
	for axis, s := range slices {
		src += s.Start * a.strides[axis]
	}
	for dst := 0; dst < n; dst++ {
		if cplx != nil {
			cplx[dst] = a.cplx[src]
		} else {
			real[dst] = a.real[src]
		}
		for axis := len(idx) - 1; axis >= 0; axis-- {
			idx[axis]++
			src += a.strides[axis]
			if idx[axis] < outShape[axis] {
				break
			}
			src -= idx[axis] * a.strides[axis]
			idx[axis] = 0
		}
	}

	return newArray(outShape, real, cplx), nil
}

// Squeeze removes every axis of extent one. The data is shared with the source.
func (a *Array) Squeeze() *Array {
	shape := make([]int, 0, len(a.shape))
	for _, extent := range a.shape {
		if extent != 1 {
			shape = append(shape, extent)
		}
	}
	return newArray(shape, a.real, a.cplx)
}

// Extract applies the slice tuple and squeezes the result. With two full-range
// axes and every other axis selected at a single index, the result is 2D.
func Extract(a *Array, slices []Slice) (*Array, error) {
	sub, err := a.Sub(slices)
	if err != nil {
		return nil, err
	}
	return sub.Squeeze(), nil
}
