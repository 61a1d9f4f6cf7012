package arrayio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/btasdelen/arrview/pkg/ndarray"
)

// Level 5 MAT-file constants.
const (
	miInt8   = 1
	miInt32  = 5
	miUint32 = 6
	miDouble = 9
	miMatrix = 14

	mxDoubleClass = 6
	mxComplexFlag = 0x0800

	matHeaderSize = 128
	matTextSize   = 116
)

// DefaultMATVariable is the variable name used when saving frames.
const DefaultMATVariable = "data"

func pad8(n int) int {
	if r := n % 8; r != 0 {
		return n + 8 - r
	}
	return n
}

// WriteMAT writes a as a single double-precision variable in a MATLAB Level 5
// file. Data is stored column-major. Rank 0 and rank 1 arrays become 1xN
// row vectors.
func WriteMAT(w io.Writer, name string, a *ndarray.Array) error {
	if name == "" {
		name = DefaultMATVariable
	}
	dims := a.Shape()
	switch len(dims) {
	case 0:
		dims = []int{1, 1}
	case 1:
		dims = []int{1, dims[0]}
	}

	n := a.Len()
	var re, im []float64
	if a.IsComplex() {
		re, im = make([]float64, n), make([]float64, n)
		for i, z := range cToFortran(a.Complex128s(), dims) {
			re[i], im[i] = real(z), imag(z)
		}
	} else {
		re = cToFortran(a.Float64s(), dims)
	}

	flags := uint32(mxDoubleClass)
	if im != nil {
		flags |= mxComplexFlag
	}

	dimBytes := 4 * len(dims)
	body := 8 + 8 + // array flags
		8 + pad8(dimBytes) + // dimensions
		8 + pad8(len(name)) + // name
		8 + 8*n // real part
	if im != nil {
		body += 8 + 8*n
	}

	bw := bufio.NewWriter(w)
	le := binary.LittleEndian

	text := fmt.Sprintf("MATLAB 5.0 MAT-file, Platform: GO, Created on: %s",
		time.Now().Format("Mon Jan 2 15:04:05 2006"))
	header := make([]byte, matHeaderSize)
	for i := range header[:matTextSize] {
		header[i] = ' '
	}
	copy(header[:matTextSize], text)
	le.PutUint16(header[124:], 0x0100)
	header[126], header[127] = 'I', 'M'
	bw.Write(header)

	tag := func(typ uint32, size int) {
		binary.Write(bw, le, typ)
		binary.Write(bw, le, uint32(size))
	}
	padding := func(size int) {
		bw.Write(make([]byte, pad8(size)-size))
	}

	tag(miMatrix, body)

	tag(miUint32, 8)
	binary.Write(bw, le, flags)
	binary.Write(bw, le, uint32(0))

	tag(miInt32, dimBytes)
	for _, d := range dims {
		binary.Write(bw, le, int32(d))
	}
	padding(dimBytes)

	tag(miInt8, len(name))
	bw.WriteString(name)
	padding(len(name))

	buf := make([]byte, 8)
	writeDoubles := func(values []float64) {
		tag(miDouble, 8*len(values))
		for _, v := range values {
			le.PutUint64(buf, math.Float64bits(v))
			bw.Write(buf)
		}
	}
	writeDoubles(re)
	if im != nil {
		writeDoubles(im)
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write mat file: %w", err)
	}
	return nil
}

// cToFortran reorders row-major data into column-major order.
func cToFortran[T any](data []T, shape []int) []T {
	if len(shape) < 2 {
		return data
	}
	out := make([]T, len(data))
	cstrides := ndarray.RowMajorStrides(shape...)
	index := make([]int, len(shape))
	for k := range out {
		off := 0
		for ax, i := range index {
			off += i * cstrides[ax]
		}
		out[k] = data[off]
		// Column-major odometer: the first axis varies fastest.
		for ax := 0; ax < len(index); ax++ {
			index[ax]++
			if index[ax] < shape[ax] {
				break
			}
			index[ax] = 0
		}
	}
	return out
}
