// Package display turns an extracted frame into the image that is shown: it
// applies the view mode, then the geometric transforms, in a fixed order.
package display

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/btasdelen/arrview/pkg/colormap"
	"github.com/btasdelen/arrview/pkg/ndarray"
)

// ErrInvalidViewMode is returned for an unknown mode or for Complex on a real frame.
var ErrInvalidViewMode = errors.New("invalid view mode")

// ViewMode selects which real-valued quantity of a frame is shown.
type ViewMode int

const (
	Magnitude ViewMode = iota
	Real
	Imag
	Phase
	Complex
)

var viewModeNames = [...]string{"Magnitude", "Real", "Imag", "Phase", "Complex"}

func (m ViewMode) String() string {
	if m < 0 || int(m) >= len(viewModeNames) {
		return fmt.Sprintf("ViewMode(%d)", int(m))
	}
	return viewModeNames[m]
}

// ParseViewMode resolves a mode name, case-insensitively.
func ParseViewMode(s string) (ViewMode, error) {
	for i, name := range viewModeNames {
		if strings.EqualFold(s, name) {
			return ViewMode(i), nil
		}
	}
	switch strings.ToLower(s) {
	case "mag", "abs":
		return Magnitude, nil
	case "imaginary":
		return Imag, nil
	case "angle":
		return Phase, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidViewMode, s)
}

// DefaultMode is Magnitude for complex data and Real otherwise.
func DefaultMode(isComplex bool) ViewMode {
	if isComplex {
		return Magnitude
	}
	return Real
}

// Transform is the geometric display state. Rotation counts counter-clockwise
// quarter turns.
type Transform struct {
	Transpose bool `json:"transpose"`
	FlipH     bool `json:"flipH"`
	FlipV     bool `json:"flipV"`
	Rotation  int  `json:"rotation"`
	FFT       bool `json:"fft"`
}

// QuarterTurns returns Rotation normalized into [0, 4).
func (t Transform) QuarterTurns() int {
	return ((t.Rotation % 4) + 4) % 4
}

// RotateClockwise turns the view a quarter turn clockwise.
func (t *Transform) RotateClockwise() {
	t.Rotation = (t.QuarterTurns() + 3) % 4
}

// RotateCounterClockwise turns the view a quarter turn counter-clockwise.
func (t *Transform) RotateCounterClockwise() {
	t.Rotation = (t.QuarterTurns() + 1) % 4
}

// Image is a prepared frame: either a scalar field or three RGB channels in [0, 1].
type Image struct {
	Scalar *mat.Dense
	RGB    [3]*mat.Dense
	// Clim is the magnitude range used by the complex mapper.
	Clim [2]float64
}

// IsRGB reports whether the image holds colour channels.
func (img *Image) IsRGB() bool { return img.Scalar == nil }

// Dims returns rows and columns.
func (img *Image) Dims() (r, c int) {
	if img.Scalar != nil {
		return img.Scalar.Dims()
	}
	return img.RGB[0].Dims()
}

// Values returns the pixel values in row-major order. RGB images return the
// three channels back to back.
func (img *Image) Values() []float64 {
	if img.Scalar != nil {
		return denseValues(img.Scalar)
	}
	var out []float64
	for _, ch := range img.RGB {
		out = append(out, denseValues(ch)...)
	}
	return out
}

func denseValues(m *mat.Dense) []float64 {
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, m.RawRowView(i)...)
	}
	return out
}

// Pipeline prepares frames for display.
type Pipeline struct {
	mapper *colormap.ComplexMapper
}

// NewPipeline returns a pipeline whose complex mapper uses the given number of
// phase samples.
func NewPipeline(samples int, magnitudeWeighted bool) *Pipeline {
	m := colormap.NewComplexMapper(samples)
	m.MagnitudeWeighted = magnitudeWeighted
	return &Pipeline{mapper: m}
}

// Prepare applies, in order: the optional FFT, the view mode, transpose,
// vertical flip, horizontal flip and rotation. clim is only used by Complex.
func (p *Pipeline) Prepare(frame *ndarray.Frame, mode ViewMode, tr Transform, clim *[2]float64) (*Image, error) {
	if tr.FFT {
		frame = &ndarray.Frame{Complex: FFT2(frame.AsComplex())}
	}

	img := &Image{}
	switch mode {
	case Magnitude:
		img.Scalar = apply(frame, cmplx.Abs)
	case Real:
		img.Scalar = apply(frame, func(z complex128) float64 { return real(z) })
	case Imag:
		img.Scalar = apply(frame, func(z complex128) float64 { return imag(z) })
	case Phase:
		img.Scalar = apply(frame, phase)
	case Complex:
		if !frame.IsComplex() {
			return nil, fmt.Errorf("%w: complex view of real data", ErrInvalidViewMode)
		}
		img.RGB, img.Clim = p.mapper.Map(frame.Complex, clim)
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidViewMode, mode)
	}

	geometry := func(m *mat.Dense) *mat.Dense {
		if tr.Transpose {
			m = transpose(m)
		}
		if tr.FlipV {
			m = flipRows(m)
		}
		if tr.FlipH {
			m = flipCols(m)
		}
		return rot90(m, tr.QuarterTurns())
	}
	if img.Scalar != nil {
		img.Scalar = geometry(img.Scalar)
	} else {
		for c := range img.RGB {
			img.RGB[c] = geometry(img.RGB[c])
		}
	}
	return img, nil
}

// phase maps -pi onto +pi so the result lies in (-pi, pi].
func phase(z complex128) float64 {
	p := cmplx.Phase(z)
	if p == -math.Pi {
		return math.Pi
	}
	return p
}

func apply(f *ndarray.Frame, fn func(complex128) float64) *mat.Dense {
	r, c := f.Dims()
	out := mat.NewDense(r, c, nil)
	if f.Real != nil {
		out.Apply(func(i, j int, v float64) float64 { return fn(complex(v, 0)) }, f.Real)
		return out
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, fn(f.Complex.At(i, j)))
		}
	}
	return out
}

func transpose(m *mat.Dense) *mat.Dense {
	return mat.DenseCopyOf(m.T())
}

func flipRows(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		out.SetRow(i, m.RawRowView(r-1-i))
	}
	return out
}

func flipCols(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, m.At(i, c-1-j))
		}
	}
	return out
}

// rot90 rotates k quarter turns counter-clockwise.
func rot90(m *mat.Dense, k int) *mat.Dense {
	for ; k > 0; k-- {
		r, c := m.Dims()
		out := mat.NewDense(c, r, nil)
		for i := 0; i < c; i++ {
			for j := 0; j < r; j++ {
				out.Set(i, j, m.At(j, c-1-i))
			}
		}
		m = out
	}
	return m
}
