package concentration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Golden tests pin the metrics to independently computed reference values so
// any drift in the shared formulas is caught immediately.

// twentyAppRevenues holds 360-day revenue totals (millions) for a tracked
// cohort of twenty apps. The expected values below were computed by hand from
// the closed-form definitions, not by running this code.
var twentyAppRevenues = []float64{
	13, 51, 156, 30, 28, 112, 51, 24, 35, 135,
	36, 115, 83, 195, 117, 90, 85, 67, 421, 40,
}

func TestGoldenGiniTwentyAppCohort(t *testing.T) {
	// Ascending sort gives sum(v) = 1884 and sum(i*v_i) = 27969, so
	// G = 55938/37680 - 21/20 = 2729/6280.
	const expected = 0.4345541401273885

	g, err := Gini(twentyAppRevenues)
	require.NoError(t, err)
	assert.InDelta(t, expected, g, 1e-12)
}

func TestGoldenGiniClosedForm(t *testing.T) {
	// G = (2*5500)/(5*1500) - 6/5 for the uniform 100..500 spread.
	expected := (2.0 * 5500.0) / (5.0 * 1500.0) - 6.0/5.0

	g, err := Gini([]float64{100, 200, 300, 400, 500})
	require.NoError(t, err)
	assert.InDelta(t, expected, g, 1e-15)
	assert.InDelta(t, 0.26666666666666666, g, 1e-12)
}

func TestGoldenTopSharesTwentyAppCohort(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		expected float64
	}{
		{name: "top 1", n: 1, expected: 421.0 / 1884.0},
		{name: "top 3", n: 3, expected: 772.0 / 1884.0},
		{name: "top 5", n: 5, expected: 1024.0 / 1884.0},
		{name: "full cohort", n: 20, expected: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			share, err := TopShare(twentyAppRevenues, tt.n)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, share, 1e-12)
		})
	}
}

func TestGoldenHHITwentyAppCohort(t *testing.T) {
	// sum(v^2) = 335740 over total 1884, so HHI = 335740/3549456.
	const expected = 0.09458914

	hhi, err := HHI(twentyAppRevenues)
	require.NoError(t, err)
	assert.InDelta(t, expected, hhi, 1e-8)
	assert.Equal(t, BandUnconcentrated, BandForHHI(hhi))
}

func TestGoldenMeasureTwentyAppCohort(t *testing.T) {
	res, err := Measure(twentyAppRevenues, 1, 3, 5)
	require.NoError(t, err)
	require.True(t, res.Defined)

	assert.InDelta(t, 0.4345541401273885, res.Gini, 1e-12)
	assert.InDelta(t, 1884.0, res.Total, 1e-9)
	assert.Equal(t, 20, res.N)
	require.Len(t, res.Lorenz, 21)

	// Smallest contributor: 13/1884 after the (0,0) origin.
	assert.InDelta(t, 13.0/1884.0, res.Lorenz[1].ValueFraction, 1e-12)
	assert.Equal(t, 1.0, res.Lorenz[20].ValueFraction)
}
