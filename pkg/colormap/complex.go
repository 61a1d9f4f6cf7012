package colormap

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// DefaultSamples is the default length of the phase colour table.
const DefaultSamples = 256

// PhaseTable is a cyclic hue table sampled over one phase turn. Channel k at
// sample i is (sin(phi_i + k*2pi/3) + 1) / 2 with phi_i evenly spaced over
// [0, 2pi] including both ends.
type PhaseTable struct {
	R, G, B []float64
}

// NewPhaseTable builds a table with n samples (at least 2).
func NewPhaseTable(n int) *PhaseTable {
	if n < 2 {
		n = 2
	}
	t := &PhaseTable{
		R: make([]float64, n),
		G: make([]float64, n),
		B: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		phi := 2 * math.Pi * float64(i) / float64(n-1)
		t.R[i] = (math.Sin(phi) + 1) / 2
		t.G[i] = (math.Sin(phi+2*math.Pi/3) + 1) / 2
		t.B[i] = (math.Sin(phi+4*math.Pi/3) + 1) / 2
	}
	return t
}

// Len returns the number of samples.
func (t *PhaseTable) Len() int { return len(t.R) }

// Lookup interpolates the table at phase p, with the samples placed evenly
// over [-pi, pi]. Phases outside that domain take the end samples.
func (t *PhaseTable) Lookup(p float64) (r, g, b float64) {
	n := len(t.R)
	pos := (p + math.Pi) / (2 * math.Pi) * float64(n-1)
	if !(pos > 0) {
		return t.R[0], t.G[0], t.B[0]
	}
	if pos >= float64(n-1) {
		return t.R[n-1], t.G[n-1], t.B[n-1]
	}
	i := int(pos)
	f := pos - float64(i)
	r = t.R[i] + f*(t.R[i+1]-t.R[i])
	g = t.G[i] + f*(t.G[i+1]-t.G[i])
	b = t.B[i] + f*(t.B[i+1]-t.B[i])
	return r, g, b
}

// ComplexMapper turns a complex frame into an RGB image whose hue encodes the
// phase. Magnitude only selects the degenerate branch unless MagnitudeWeighted
// is set, in which case the channels are scaled by the normalized magnitude.
type ComplexMapper struct {
	table             *PhaseTable
	MagnitudeWeighted bool
}

// NewComplexMapper returns a mapper with an n-sample phase table.
func NewComplexMapper(n int) *ComplexMapper {
	return &ComplexMapper{table: NewPhaseTable(n)}
}

// Table returns the phase table used by the mapper.
func (m *ComplexMapper) Table() *PhaseTable { return m.table }

// Map converts frame into three channel matrices with values in [0, 1]. A nil
// clim defaults to the magnitude bounds of the frame. The clim actually used is
// returned alongside.
func (m *ComplexMapper) Map(frame *mat.CDense, clim *[2]float64) ([3]*mat.Dense, [2]float64) {
	rows, cols := frame.Dims()
	mag := make([]float64, rows*cols)
	mi, ma := math.Inf(1), math.Inf(-1)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := cmplx.Abs(frame.At(i, j))
			mag[i*cols+j] = v
			mi = math.Min(mi, v)
			ma = math.Max(ma, v)
		}
	}

	var lim [2]float64
	if clim != nil {
		lim = *clim
	} else {
		lim = [2]float64{mi, ma}
	}

	if math.Round(mi*1e12) == math.Round(ma*1e12) && ma != 0 {
		// Constant magnitude: show a pure phase map.
		for k := range mag {
			mag[k] = 1
		}
	} else {
		for k, v := range mag {
			if v < lim[0] {
				v = lim[0]
			}
			// Divisor is clim[1], kept for parity with the reference viewer.
			v = (v - lim[0]) / lim[1]
			if v > 1 {
				v = 1
			}
			if v < 0 || math.IsNaN(v) {
				v = 0
			}
			mag[k] = v
		}
	}

	var rgb [3]*mat.Dense
	for c := range rgb {
		rgb[c] = mat.NewDense(rows, cols, nil)
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			r, g, b := m.table.Lookup(cmplx.Phase(frame.At(i, j)))
			if m.MagnitudeWeighted {
				w := mag[i*cols+j]
				r, g, b = r*w, g*w, b*w
			}
			rgb[0].Set(i, j, r)
			rgb[1].Set(i, j, g)
			rgb[2].Set(i, j, b)
		}
	}
	return rgb, lim
}
