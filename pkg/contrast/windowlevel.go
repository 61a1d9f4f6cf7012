// Package contrast implements the window/level model that turns the values of a
// displayed frame into a display range.
package contrast

import (
	"errors"
	"math"
	"sort"
)

const (
	// DefaultLowPercentile and DefaultHighPercentile bound auto-levelling.
	DefaultLowPercentile  = 2.0
	DefaultHighPercentile = 98.0

	// DefaultSensitivity scales mouse-drag deltas into window/level fractions.
	DefaultSensitivity = 0.01

	maxWindow = 2.0
	maxLevel  = 1.0
)

// ErrDegenerateRange is returned when the frame has no spread (max == min) or
// no finite values. The model stays usable with a unit scale.
var ErrDegenerateRange = errors.New("degenerate value range")

// WindowLevel holds the contrast state. Window and level are fractions of the
// data range; min, max and range come from the last auto-level.
type WindowLevel struct {
	min    float64
	max    float64
	rng    float64
	window float64
	level  float64
}

// New returns a model with window 1 and level 0.5 over a unit range.
func New() *WindowLevel {
	return &WindowLevel{max: 1, rng: 1, window: 1, level: 0.5}
}

// scale is the divisor used for every fractional conversion.
func (w *WindowLevel) scale() float64 {
	if w.rng > 0 && !math.IsInf(w.rng, 0) {
		return w.rng
	}
	return 1
}

// AutoLevel sets min, max and range from values and derives window and level
// from the given percentiles. Non-finite values are ignored.
func (w *WindowLevel) AutoLevel(values []float64, lowPct, highPct float64) error {
	sorted := finiteSorted(values)
	if len(sorted) == 0 {
		w.min, w.max, w.rng = 0, 0, 0
		w.window, w.level = 1, 0
		return ErrDegenerateRange
	}

	w.min = sorted[0]
	w.max = sorted[len(sorted)-1]
	w.rng = w.max - w.min
	if w.rng <= 0 {
		w.window, w.level = 1, 0
		return ErrDegenerateRange
	}
	w.fromPercentiles(sorted, lowPct, highPct)
	return nil
}

// Relevel recomputes window and level from the given percentiles while keeping
// the current min, max and range.
func (w *WindowLevel) Relevel(values []float64, lowPct, highPct float64) error {
	sorted := finiteSorted(values)
	if len(sorted) == 0 {
		return ErrDegenerateRange
	}
	if w.rng <= 0 {
		w.window, w.level = 1, 0
		return ErrDegenerateRange
	}
	w.fromPercentiles(sorted, lowPct, highPct)
	return nil
}

func (w *WindowLevel) fromPercentiles(sorted []float64, lowPct, highPct float64) {
	v1 := Percentile(sorted, lowPct)
	v2 := Percentile(sorted, highPct)
	w.window = (v2 - v1) / w.rng
	w.level = (v2 + v1) / 2 / w.rng
}

// DisplayRange returns the (low, high) values mapped to the ends of the display.
func (w *WindowLevel) DisplayRange() (low, high float64) {
	s := w.scale()
	low = w.level*s - w.window/2*s + w.min
	high = w.level*s + w.window/2*s + w.min
	return low, high
}

// AdjustRelative applies a drag delta. Window is clamped to [0, 2] and level
// to [0, 1].
func (w *WindowLevel) AdjustRelative(dx, dy, sensitivity float64) {
	w.window = clamp(w.window-dx*sensitivity, 0, maxWindow)
	w.level = clamp(w.level-dy*sensitivity, 0, maxLevel)
}

// SetWindowAbsolute sets the window from a value in data units.
func (w *WindowLevel) SetWindowAbsolute(v float64) { w.window = v / w.scale() }

// SetLevelAbsolute sets the level from a value in data units.
func (w *WindowLevel) SetLevelAbsolute(v float64) { w.level = v / w.scale() }

// WindowAbsolute returns the window in data units.
func (w *WindowLevel) WindowAbsolute() float64 { return w.window * w.scale() }

// LevelAbsolute returns the level in data units.
func (w *WindowLevel) LevelAbsolute() float64 { return w.level * w.scale() }

func (w *WindowLevel) Window() float64 { return w.window }
func (w *WindowLevel) Level() float64  { return w.level }
func (w *WindowLevel) Min() float64    { return w.min }
func (w *WindowLevel) Max() float64    { return w.max }
func (w *WindowLevel) Range() float64  { return w.rng }

// Degenerate reports whether the last auto-level found no spread.
func (w *WindowLevel) Degenerate() bool { return w.rng <= 0 }

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func finiteSorted(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

// Percentile returns the p-th percentile (0..100) of sorted data, linearly
// interpolating between closest ranks.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	pos := clamp(p, 0, 100) / 100 * float64(n-1)
	lo := int(math.Floor(pos))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
