package display

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarises the finite values of a prepared image.
type Stats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
	// NonFinite counts NaN and Inf pixels left out of the summary.
	NonFinite int `json:"nonFinite"`
}

// ImageStats computes Stats over img.Values().
func ImageStats(img *Image) Stats {
	return ValueStats(img.Values())
}

// ValueStats computes Stats over values, skipping NaN and Inf.
func ValueStats(values []float64) Stats {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	s := Stats{NonFinite: len(values) - len(finite)}
	if len(finite) == 0 {
		return s
	}
	s.Min = floats.Min(finite)
	s.Max = floats.Max(finite)
	if len(finite) == 1 {
		s.Mean = finite[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(finite, nil)
	return s
}
