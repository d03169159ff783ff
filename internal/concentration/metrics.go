package concentration

import (
	"errors"
	"fmt"
	"sort"
)

// HHI band thresholds follow the common antitrust convention.
const (
	hhiModerateThreshold = 0.15
	hhiHighThreshold     = 0.25
)

// Concentration bands reported alongside HHI.
const (
	BandUnconcentrated = "unconcentrated"
	BandModerate       = "moderately_concentrated"
	BandHigh           = "highly_concentrated"
)

// ErrInsufficientData is returned when fewer than two positive values remain
// after filtering. It is the explicit undefined sentinel: callers must branch
// on it and never substitute zero.
var ErrInsufficientData = errors.New("fewer than 2 positive values")

// Point is a single Lorenz curve coordinate.
type Point struct {
	PopFraction   float64 `json:"pop_fraction"`
	ValueFraction float64 `json:"value_fraction"`
}

// Result bundles every concentration measure computed from one value
// sequence. Defined is false when the inputs held fewer than two positive
// values; in that case all other fields are zero and must not be read as
// metric values.
type Result struct {
	Gini     float64         `json:"gini"`
	Defined  bool            `json:"defined"`
	Lorenz   []Point         `json:"lorenz_points,omitempty"`
	TopShare map[int]float64 `json:"top_n_share,omitempty"`
	HHI      float64         `json:"hhi"`
	Band     string          `json:"band,omitempty"`
	N        int             `json:"n"` // positive values used
	Total    float64         `json:"total"`
}

// positives filters out values <= 0 and returns the survivors sorted
// ascending. NaN and Inf never survive the comparison against zero on the
// low side; +Inf inputs are the caller's bug and propagate.
func positives(values []float64) []float64 {
	kept := make([]float64, 0, len(values))
	for _, v := range values {
		if v > 0 {
			kept = append(kept, v)
		}
	}
	sort.Float64s(kept)
	return kept
}

// giniSorted computes the finite-sample Gini estimator over values that are
// already sorted ascending with at least two entries.
func giniSorted(sorted []float64) float64 {
	n := len(sorted)
	var total, weighted float64
	for i, v := range sorted {
		total += v
		weighted += float64(i+1) * v
	}
	return (2*weighted)/(float64(n)*total) - float64(n+1)/float64(n)
}

// Gini computes the Gini coefficient of the positive entries of values.
// Values <= 0 are excluded, never coerced. Fewer than two positive entries
// returns ErrInsufficientData.
func Gini(values []float64) (float64, error) {
	sorted := positives(values)
	if len(sorted) < 2 {
		return 0, ErrInsufficientData
	}
	return giniSorted(sorted), nil
}

// Lorenz computes the Lorenz curve of the positive entries of values: n+1
// points from (0,0) to (1,1), value fractions non-decreasing. Fewer than two
// positive entries returns ErrInsufficientData.
func Lorenz(values []float64) ([]Point, error) {
	sorted := positives(values)
	if len(sorted) < 2 {
		return nil, ErrInsufficientData
	}
	return lorenzSorted(sorted), nil
}

func lorenzSorted(sorted []float64) []Point {
	n := len(sorted)
	var total float64
	for _, v := range sorted {
		total += v
	}

	points := make([]Point, 0, n+1)
	points = append(points, Point{PopFraction: 0, ValueFraction: 0})
	var cum float64
	for i, v := range sorted {
		cum += v
		points = append(points, Point{
			PopFraction:   float64(i+1) / float64(n),
			ValueFraction: cum / total,
		})
	}
	// Pin the endpoint so accumulated rounding never leaves the curve short
	// of (1,1).
	points[n].PopFraction = 1
	points[n].ValueFraction = 1
	return points
}

// TopShare computes the fraction of total value held by the n largest
// positive entries. n is clamped to the number of positive values; n <= 0 is
// a programmer error and fails immediately. Fewer than two positive entries
// returns ErrInsufficientData.
func TopShare(values []float64, n int) (float64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("top-n share: n must be positive, got %d", n)
	}
	sorted := positives(values)
	if len(sorted) < 2 {
		return 0, ErrInsufficientData
	}
	return topShareSorted(sorted, n), nil
}

// topShareSorted sums the tail of the ascending sort. n covering every value
// is exactly 1.0 rather than a ratio of two separately rounded sums.
func topShareSorted(sorted []float64, n int) float64 {
	if n >= len(sorted) {
		return 1.0
	}
	var total float64
	for _, v := range sorted {
		total += v
	}
	var top float64
	for _, v := range sorted[len(sorted)-n:] {
		top += v
	}
	return top / total
}

// HHI computes the Herfindahl-Hirschman index (sum of squared value shares)
// of the positive entries of values. Fewer than two positive entries returns
// ErrInsufficientData.
func HHI(values []float64) (float64, error) {
	sorted := positives(values)
	if len(sorted) < 2 {
		return 0, ErrInsufficientData
	}
	return hhiSorted(sorted), nil
}

func hhiSorted(sorted []float64) float64 {
	var total float64
	for _, v := range sorted {
		total += v
	}
	var hhi float64
	for _, v := range sorted {
		share := v / total
		hhi += share * share
	}
	return hhi
}

// BandForHHI maps an HHI value to its qualitative concentration band.
func BandForHHI(hhi float64) string {
	switch {
	case hhi < hhiModerateThreshold:
		return BandUnconcentrated
	case hhi < hhiHighThreshold:
		return BandModerate
	default:
		return BandHigh
	}
}

// Measure computes every concentration metric from one shared ascending sort
// of the positive entries of values. topNs selects which top-N shares to
// include; any n <= 0 fails immediately. When fewer than two positive values
// remain, Measure returns a Result with Defined set to false and no error so
// batch callers can carry the undefined marker through without aborting.
func Measure(values []float64, topNs ...int) (Result, error) {
	for _, n := range topNs {
		if n <= 0 {
			return Result{}, fmt.Errorf("top-n share: n must be positive, got %d", n)
		}
	}

	sorted := positives(values)
	if len(sorted) < 2 {
		return Result{Defined: false, N: len(sorted)}, nil
	}

	var total float64
	for _, v := range sorted {
		total += v
	}

	res := Result{
		Gini:    giniSorted(sorted),
		Defined: true,
		Lorenz:  lorenzSorted(sorted),
		N:       len(sorted),
		Total:   total,
	}
	res.HHI = hhiSorted(sorted)
	res.Band = BandForHHI(res.HHI)

	if len(topNs) > 0 {
		res.TopShare = make(map[int]float64, len(topNs))
		for _, n := range topNs {
			res.TopShare[n] = topShareSorted(sorted, n)
		}
	}
	return res, nil
}
