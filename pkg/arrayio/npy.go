// Package arrayio reads and writes the array containers used for export and
// loading: NumPy .npy files (optionally zstd-compressed) and MATLAB Level 5
// .mat files.
package arrayio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/btasdelen/arrview/pkg/ndarray"
)

var (
	// ErrUnsupportedDType is returned for NPY element types that cannot be
	// represented as float64 or complex128.
	ErrUnsupportedDType = errors.New("unsupported dtype")
	// ErrBadHeader is returned when an NPY preamble or header cannot be parsed.
	ErrBadHeader = errors.New("malformed npy header")
)

var npyMagic = []byte("\x93NUMPY")

var (
	descrRe   = regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	fortranRe = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	shapeRe   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

type npyHeader struct {
	order   binary.ByteOrder
	kind    byte
	size    int
	fortran bool
	shape   []int
}

// ReadNPY decodes an .npy stream. Boolean, integer and float data become a real
// array, complex data a complex array. Rank-0 arrays are returned with shape [1].
func ReadNPY(r io.Reader) (*ndarray.Array, error) {
	br := bufio.NewReader(r)
	h, err := readNPYHeader(br)
	if err != nil {
		return nil, err
	}

	shape := h.shape
	if len(shape) == 0 {
		shape = []int{1}
	}
	n, err := ndarray.NumElements(shape)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadHeader, err)
	}
	if n > math.MaxInt/h.size {
		return nil, fmt.Errorf("%w: shape %v is too large", ErrBadHeader, shape)
	}

	// The buffer grows with the bytes actually present, so a header that
	// overstates its shape cannot force a large allocation.
	want := n * h.size
	raw, err := io.ReadAll(io.LimitReader(br, int64(want)))
	if err != nil {
		return nil, fmt.Errorf("failed to read npy data: %w", err)
	}
	if len(raw) != want {
		return nil, fmt.Errorf("failed to read npy data: %w: got %d of %d bytes", io.ErrUnexpectedEOF, len(raw), want)
	}

	if h.kind == 'c' {
		data := make([]complex128, n)
		half := h.size / 2
		for i := range data {
			re := decodeFloat(raw[i*h.size:], half, h.order)
			im := decodeFloat(raw[i*h.size+half:], half, h.order)
			data[i] = complex(re, im)
		}
		if h.fortran {
			data = fortranToC(data, shape)
		}
		return ndarray.NewComplex(shape, data)
	}

	data := make([]float64, n)
	for i := range data {
		data[i] = decodeScalar(raw[i*h.size:], h)
	}
	if h.fortran {
		data = fortranToC(data, shape)
	}
	return ndarray.NewReal(shape, data)
}

func readNPYHeader(br *bufio.Reader) (*npyHeader, error) {
	pre := make([]byte, 8)
	if _, err := io.ReadFull(br, pre); err != nil {
		return nil, fmt.Errorf("failed to read npy preamble: %w", err)
	}
	if !bytes.Equal(pre[:6], npyMagic) {
		return nil, fmt.Errorf("%w: bad magic %q", ErrBadHeader, pre[:6])
	}

	var hlen int
	switch pre[6] {
	case 1:
		b := make([]byte, 2)
		if _, err := io.ReadFull(br, b); err != nil {
			return nil, fmt.Errorf("failed to read npy header length: %w", err)
		}
		hlen = int(binary.LittleEndian.Uint16(b))
	case 2, 3:
		b := make([]byte, 4)
		if _, err := io.ReadFull(br, b); err != nil {
			return nil, fmt.Errorf("failed to read npy header length: %w", err)
		}
		hlen = int(binary.LittleEndian.Uint32(b))
	default:
		return nil, fmt.Errorf("%w: version %d.%d", ErrBadHeader, pre[6], pre[7])
	}

	text := make([]byte, hlen)
	if _, err := io.ReadFull(br, text); err != nil {
		return nil, fmt.Errorf("failed to read npy header: %w", err)
	}
	return parseNPYHeader(string(text))
}

func parseNPYHeader(text string) (*npyHeader, error) {
	m := descrRe.FindStringSubmatch(text)
	if m == nil {
		return nil, fmt.Errorf("%w: missing descr", ErrBadHeader)
	}
	h, err := parseDescr(m[1])
	if err != nil {
		return nil, err
	}

	if m := fortranRe.FindStringSubmatch(text); m != nil {
		h.fortran = m[1] == "True"
	}

	m = shapeRe.FindStringSubmatch(text)
	if m == nil {
		return nil, fmt.Errorf("%w: missing shape", ErrBadHeader)
	}
	for _, part := range strings.Split(m[1], ",") {
		part = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), "L"))
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("%w: bad extent %q", ErrBadHeader, part)
		}
		h.shape = append(h.shape, d)
	}
	return h, nil
}

func parseDescr(descr string) (*npyHeader, error) {
	if len(descr) < 3 {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDType, descr)
	}
	h := &npyHeader{order: binary.LittleEndian, kind: descr[1]}
	switch descr[0] {
	case '<', '|', '=':
	case '>':
		h.order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDType, descr)
	}
	size, err := strconv.Atoi(descr[2:])
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDType, descr)
	}
	h.size = size

	ok := false
	switch h.kind {
	case 'b':
		ok = size == 1
	case 'i', 'u':
		ok = size == 1 || size == 2 || size == 4 || size == 8
	case 'f':
		ok = size == 4 || size == 8
	case 'c':
		ok = size == 8 || size == 16
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDType, descr)
	}
	return h, nil
}

func decodeFloat(b []byte, size int, order binary.ByteOrder) float64 {
	if size == 4 {
		return float64(math.Float32frombits(order.Uint32(b)))
	}
	return math.Float64frombits(order.Uint64(b))
}

func decodeScalar(b []byte, h *npyHeader) float64 {
	switch h.kind {
	case 'f':
		return decodeFloat(b, h.size, h.order)
	case 'b':
		if b[0] != 0 {
			return 1
		}
		return 0
	}

	var u uint64
	switch h.size {
	case 1:
		u = uint64(b[0])
	case 2:
		u = uint64(h.order.Uint16(b))
	case 4:
		u = uint64(h.order.Uint32(b))
	case 8:
		u = h.order.Uint64(b)
	}
	if h.kind == 'u' {
		return float64(u)
	}
	// Sign-extend from the element width.
	shift := 64 - 8*uint(h.size)
	return float64(int64(u<<shift) >> shift)
}

// fortranToC reorders column-major data into row-major order.
func fortranToC[T any](data []T, shape []int) []T {
	if len(shape) < 2 {
		return data
	}
	out := make([]T, len(data))
	fstrides := make([]int, len(shape))
	s := 1
	for i := range shape {
		fstrides[i] = s
		s *= shape[i]
	}
	index := make([]int, len(shape))
	for k := range out {
		off := 0
		for ax, i := range index {
			off += i * fstrides[ax]
		}
		out[k] = data[off]
		for ax := len(index) - 1; ax >= 0; ax-- {
			index[ax]++
			if index[ax] < shape[ax] {
				break
			}
			index[ax] = 0
		}
	}
	return out
}

// WriteNPY encodes a as a version 1.0 .npy stream in C order, as '<f8' for
// real data and '<c16' for complex data.
func WriteNPY(w io.Writer, a *ndarray.Array) error {
	descr := "<f8"
	if a.IsComplex() {
		descr = "<c16"
	}
	dims := make([]string, a.Rank())
	for i, d := range a.Shape() {
		dims[i] = strconv.Itoa(d)
	}
	shape := strings.Join(dims, ", ")
	if a.Rank() == 1 {
		shape += ","
	}
	header := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%s), }", descr, shape)

	// Preamble (10 bytes) plus header and newline pad to a multiple of 64.
	total := 10 + len(header) + 1
	if rem := total % 64; rem != 0 {
		header += strings.Repeat(" ", 64-rem)
	}
	header += "\n"
	if len(header) > math.MaxUint16 {
		return fmt.Errorf("%w: header too long for version 1.0", ErrBadHeader)
	}

	bw := bufio.NewWriter(w)
	bw.Write(npyMagic)
	bw.Write([]byte{1, 0})
	binary.Write(bw, binary.LittleEndian, uint16(len(header)))
	bw.WriteString(header)

	buf := make([]byte, 8)
	if a.IsComplex() {
		for _, z := range a.Complex128s() {
			binary.LittleEndian.PutUint64(buf, math.Float64bits(real(z)))
			bw.Write(buf)
			binary.LittleEndian.PutUint64(buf, math.Float64bits(imag(z)))
			bw.Write(buf)
		}
	} else {
		for _, v := range a.Float64s() {
			binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
			bw.Write(buf)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write npy data: %w", err)
	}
	return nil
}
