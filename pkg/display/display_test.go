package display

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/btasdelen/arrview/pkg/colormap"
	"github.com/btasdelen/arrview/pkg/ndarray"
)

func realFrame() *ndarray.Frame {
	return &ndarray.Frame{Real: mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})}
}

func prepare(t *testing.T, f *ndarray.Frame, mode ViewMode, tr Transform) *Image {
	t.Helper()
	img, err := NewPipeline(colormap.DefaultSamples, false).Prepare(f, mode, tr, nil)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	return img
}

// TestTransforms verifies each geometric step against hand-computed results
func TestTransforms(t *testing.T) {
	tests := []struct {
		name string
		tr   Transform
		rows int
		want []float64
	}{
		{"identity", Transform{}, 2, []float64{1, 2, 3, 4, 5, 6}},
		{"transpose", Transform{Transpose: true}, 3, []float64{1, 4, 2, 5, 3, 6}},
		{"flipV", Transform{FlipV: true}, 2, []float64{4, 5, 6, 1, 2, 3}},
		{"flipH", Transform{FlipH: true}, 2, []float64{3, 2, 1, 6, 5, 4}},
		{"ccw", Transform{Rotation: 1}, 3, []float64{3, 6, 2, 5, 1, 4}},
		{"cw", Transform{Rotation: -1}, 3, []float64{4, 1, 5, 2, 6, 3}},
		{"half", Transform{Rotation: 2}, 2, []float64{6, 5, 4, 3, 2, 1}},
		{"transpose then flipV", Transform{Transpose: true, FlipV: true}, 3, []float64{3, 6, 2, 5, 1, 4}},
	}
	for _, tt := range tests {
		img := prepare(t, realFrame(), Real, tt.tr)
		r, c := img.Dims()
		if r != tt.rows || r*c != 6 {
			t.Errorf("%s: expected %d rows, got %dx%d", tt.name, tt.rows, r, c)
			continue
		}
		got := img.Values()
		for k := range tt.want {
			if got[k] != tt.want[k] {
				t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
				break
			}
		}
	}
}

// TestTransformInvolutions verifies transforms that cancel out
func TestTransformInvolutions(t *testing.T) {
	m := realFrame().Real
	if !mat.Equal(transpose(transpose(m)), m) {
		t.Error("Expected double transpose to be identity")
	}
	if !mat.Equal(flipCols(flipCols(m)), m) {
		t.Error("Expected double horizontal flip to be identity")
	}
	if !mat.Equal(flipRows(flipRows(m)), m) {
		t.Error("Expected double vertical flip to be identity")
	}
	if !mat.Equal(rot90(m, 4), m) {
		t.Error("Expected four quarter turns to be identity")
	}
}

// TestRotationNormalization verifies the rotation counter stays in [0, 4)
func TestRotationNormalization(t *testing.T) {
	var tr Transform
	tr.RotateClockwise()
	if tr.Rotation != 3 {
		t.Errorf("Expected rotation 3 after clockwise turn, got %d", tr.Rotation)
	}
	for i := 0; i < 5; i++ {
		tr.RotateCounterClockwise()
	}
	if tr.Rotation != 0 {
		t.Errorf("Expected rotation 0, got %d", tr.Rotation)
	}
	if (Transform{Rotation: -7}).QuarterTurns() != 1 {
		t.Errorf("Expected -7 to normalize to 1")
	}
}

// TestViewModes verifies the scalar view modes on complex data
func TestViewModes(t *testing.T) {
	f := &ndarray.Frame{Complex: mat.NewCDense(1, 2, []complex128{3 + 4i, -1})}

	if v := prepare(t, f, Magnitude, Transform{}).Values(); v[0] != 5 || v[1] != 1 {
		t.Errorf("Expected magnitudes [5 1], got %v", v)
	}
	if v := prepare(t, f, Real, Transform{}).Values(); v[0] != 3 || v[1] != -1 {
		t.Errorf("Expected real parts [3 -1], got %v", v)
	}
	if v := prepare(t, f, Imag, Transform{}).Values(); v[0] != 4 || v[1] != 0 {
		t.Errorf("Expected imaginary parts [4 0], got %v", v)
	}
	v := prepare(t, f, Phase, Transform{}).Values()
	if math.Abs(v[0]-cmplx.Phase(3+4i)) > 1e-12 || v[1] != math.Pi {
		t.Errorf("Expected phases [%f pi], got %v", cmplx.Phase(3+4i), v)
	}
	if p := phase(complex(-1, math.Copysign(0, -1))); p != math.Pi {
		t.Errorf("Expected -pi to fold onto pi, got %f", p)
	}

	img := prepare(t, f, Complex, Transform{Transpose: true})
	if !img.IsRGB() {
		t.Fatal("Expected RGB output for complex mode")
	}
	if r, c := img.Dims(); r != 2 || c != 1 {
		t.Errorf("Expected transformed RGB to be 2x1, got %dx%d", r, c)
	}
}

// TestComplexOnRealFails verifies the complex view is rejected for real frames
func TestComplexOnRealFails(t *testing.T) {
	_, err := NewPipeline(8, false).Prepare(realFrame(), Complex, Transform{}, nil)
	if !errors.Is(err, ErrInvalidViewMode) {
		t.Errorf("Expected ErrInvalidViewMode, got %v", err)
	}
	if _, err := ParseViewMode("sepia"); !errors.Is(err, ErrInvalidViewMode) {
		t.Errorf("Expected ErrInvalidViewMode for unknown name, got %v", err)
	}
	if m, err := ParseViewMode("phase"); err != nil || m != Phase {
		t.Errorf("Expected Phase, got %v (%v)", m, err)
	}
	if DefaultMode(true) != Magnitude || DefaultMode(false) != Real {
		t.Error("Expected Magnitude for complex and Real for real data")
	}
}

// TestFFT2 verifies the centred spectrum of a constant frame
func TestFFT2(t *testing.T) {
	in := mat.NewCDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			in.Set(i, j, 1)
		}
	}
	out := FFT2(in)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			want := complex128(0)
			if i == 2 && j == 2 {
				want = 16
			}
			if cmplx.Abs(out.At(i, j)-want) > 1e-9 {
				t.Errorf("Expected %v at (%d,%d), got %v", want, i, j, out.At(i, j))
			}
		}
	}

	img := prepare(t, &ndarray.Frame{Complex: in}, Magnitude, Transform{FFT: true})
	if math.Abs(img.Scalar.At(2, 2)-16) > 1e-9 {
		t.Errorf("Expected DC magnitude 16, got %f", img.Scalar.At(2, 2))
	}
}

// TestImageStats verifies the summary statistics
func TestImageStats(t *testing.T) {
	s := ValueStats([]float64{1, 2, 3, 4, math.NaN()})
	if s.Min != 1 || s.Max != 4 || s.Mean != 2.5 || s.NonFinite != 1 {
		t.Errorf("Unexpected stats %+v", s)
	}
	if math.Abs(s.StdDev-math.Sqrt(5.0/3.0)) > 1e-12 {
		t.Errorf("Expected sample std %f, got %f", math.Sqrt(5.0/3.0), s.StdDev)
	}
	if s := ValueStats(nil); s != (Stats{}) {
		t.Errorf("Expected zero stats for empty input, got %+v", s)
	}
}

// TestToImage verifies scalar windowing and the threshold fallback
func TestToImage(t *testing.T) {
	img := prepare(t, realFrame(), Real, Transform{})

	out := ToImage(img, 1, 6, nil)
	if b := out.Bounds(); b.Dx() != 3 || b.Dy() != 2 {
		t.Fatalf("Expected 3x2 image, got %v", b)
	}
	if out.RGBAAt(0, 0).R != 0 || out.RGBAAt(2, 1).R != 255 {
		t.Errorf("Expected black at min and white at max, got %v %v", out.RGBAAt(0, 0), out.RGBAAt(2, 1))
	}

	out = ToImage(img, 4, 4, colormap.Gray)
	if out.RGBAAt(2, 0).R != 0 || out.RGBAAt(0, 1).R != 255 {
		t.Errorf("Expected threshold at 4, got %v %v", out.RGBAAt(2, 0), out.RGBAAt(0, 1))
	}
}
