package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamepulse/internal/identity"
	"gamepulse/internal/series"
	"gamepulse/internal/source"
)

func entity(id, category, publisher string) identity.Entity {
	return identity.Entity{
		CanonicalID: id,
		DisplayName: id,
		Category:    category,
		Publisher:   publisher,
	}
}

func revenueSeries(id string, values ...float64) series.TimeSeries {
	ts := series.TimeSeries{CanonicalID: id, Kind: source.MetricRevenue}
	for i, v := range values {
		ts.Observations = append(ts.Observations, series.Observation{
			CanonicalID: id,
			Kind:        source.MetricRevenue,
			Date:        time.Date(2025, 7, i+1, 0, 0, 0, 0, time.UTC),
			Value:       v,
		})
	}
	return ts
}

func TestGroupByValidation(t *testing.T) {
	t.Run("nil key function", func(t *testing.T) {
		_, err := GroupBy(nil, nil, nil, source.MetricRevenue)
		assert.Error(t, err)
	})

	t.Run("invalid kind", func(t *testing.T) {
		_, err := GroupBy(All, nil, nil, source.Metric("bogus"))
		assert.Error(t, err)
	})
}

func TestGroupByCategories(t *testing.T) {
	entities := []identity.Entity{
		entity("app:a", "puzzle", "acme"),
		entity("app:b", "puzzle", "acme"),
		entity("app:c", "racing", "zoom"),
	}
	seriesList := []series.TimeSeries{
		revenueSeries("app:a", 100, 50),
		revenueSeries("app:b", 300),
		revenueSeries("app:c", 40),
	}

	groups, err := GroupBy(ByCategory, entities, seriesList, source.MetricRevenue)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	// Sorted by key.
	puzzle, racing := groups[0], groups[1]
	assert.Equal(t, "puzzle", puzzle.Key)
	assert.Equal(t, "racing", racing.Key)

	assert.Equal(t, []string{"app:a", "app:b"}, puzzle.Members)
	assert.Equal(t, 450.0, puzzle.Total)
	assert.Equal(t, 150.0, puzzle.Totals["app:a"])
	assert.Equal(t, 300.0, puzzle.Totals["app:b"])

	require.Len(t, puzzle.Rankings, 2)
	assert.Equal(t, 1, puzzle.Rankings[0].Rank)
	assert.Equal(t, "app:b", puzzle.Rankings[0].CanonicalID)
	assert.InDelta(t, 300.0/450.0, puzzle.Rankings[0].Share, 1e-12)
	assert.Equal(t, "app:a", puzzle.Rankings[1].CanonicalID)

	assert.True(t, puzzle.Concentration.Defined)
	assert.False(t, racing.Concentration.Defined, "one member cannot define a concentration figure")
}

func TestGroupByBreaksTiesByCanonicalID(t *testing.T) {
	entities := []identity.Entity{
		entity("app:z", "puzzle", ""),
		entity("app:a", "puzzle", ""),
		entity("app:m", "puzzle", ""),
	}
	seriesList := []series.TimeSeries{
		revenueSeries("app:z", 100),
		revenueSeries("app:a", 100),
		revenueSeries("app:m", 100),
	}

	groups, err := GroupBy(ByCategory, entities, seriesList, source.MetricRevenue)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	got := make([]string, 0, 3)
	for _, r := range groups[0].Rankings {
		got = append(got, r.CanonicalID)
	}
	assert.Equal(t, []string{"app:a", "app:m", "app:z"}, got)
	assert.Equal(t, []int{1, 2, 3}, []int{
		groups[0].Rankings[0].Rank,
		groups[0].Rankings[1].Rank,
		groups[0].Rankings[2].Rank,
	})
}

func TestGroupByMemberWithoutDataStaysUnranked(t *testing.T) {
	entities := []identity.Entity{
		entity("app:a", "puzzle", ""),
		entity("app:silent", "puzzle", ""),
	}
	seriesList := []series.TimeSeries{revenueSeries("app:a", 10)}

	groups, err := GroupBy(ByCategory, entities, seriesList, source.MetricRevenue)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	g := groups[0]
	assert.Equal(t, []string{"app:a", "app:silent"}, g.Members)
	_, hasTotal := g.Totals["app:silent"]
	assert.False(t, hasTotal, "absence of data must not be coerced to zero")
	require.Len(t, g.Rankings, 1)
	assert.Equal(t, "app:a", g.Rankings[0].CanonicalID)
}

func TestGroupByIgnoresOtherKindsAndEmptyKeys(t *testing.T) {
	keyFn := func(e identity.Entity) string {
		if e.CanonicalID == "app:hidden" {
			return ""
		}
		return "all"
	}
	entities := []identity.Entity{
		entity("app:a", "puzzle", ""),
		entity("app:hidden", "puzzle", ""),
	}
	seriesList := []series.TimeSeries{
		revenueSeries("app:a", 10),
		{CanonicalID: "app:a", Kind: source.MetricDownloads, Observations: []series.Observation{
			{CanonicalID: "app:a", Kind: source.MetricDownloads, Date: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), Value: 9999},
		}},
	}

	groups, err := GroupBy(keyFn, entities, seriesList, source.MetricRevenue)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"app:a"}, groups[0].Members)
	assert.Equal(t, 10.0, groups[0].Total, "downloads rows must not leak into revenue totals")
}

func TestNewDelta(t *testing.T) {
	tests := []struct {
		name        string
		prior       float64
		current     float64
		wantAbs     float64
		wantPercent float64
		wantDefined bool
	}{
		{name: "growth", prior: 100, current: 150, wantAbs: 50, wantPercent: 50, wantDefined: true},
		{name: "decline", prior: 200, current: 150, wantAbs: -50, wantPercent: -25, wantDefined: true},
		{name: "zero prior undefined", prior: 0, current: 150, wantAbs: 150, wantDefined: false},
		{name: "both zero undefined", prior: 0, current: 0, wantAbs: 0, wantDefined: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDelta(tt.prior, tt.current)
			assert.Equal(t, tt.wantAbs, d.Absolute)
			assert.Equal(t, tt.wantDefined, d.Defined)
			if tt.wantDefined {
				assert.InDelta(t, tt.wantPercent, d.Percent, 1e-12)
			} else {
				assert.Zero(t, d.Percent)
			}
		})
	}
}

func TestCompareRankMovement(t *testing.T) {
	prior := Group{
		Key: "puzzle",
		Rankings: []Ranking{
			{Rank: 1, CanonicalID: "app:a", Value: 300},
			{Rank: 2, CanonicalID: "app:b", Value: 200},
			{Rank: 3, CanonicalID: "app:gone", Value: 100},
		},
		Total: 600,
	}
	current := Group{
		Key: "puzzle",
		Rankings: []Ranking{
			{Rank: 1, CanonicalID: "app:b", Value: 400},
			{Rank: 2, CanonicalID: "app:a", Value: 250},
			{Rank: 3, CanonicalID: "app:new", Value: 50},
		},
		Total: 700,
	}

	delta, err := Compare(prior, current)
	require.NoError(t, err)

	byID := make(map[string]EntityDelta)
	for _, ed := range delta.Entities {
		byID[ed.CanonicalID] = ed
	}

	// app:b climbed from 2 to 1: positive change.
	b := byID["app:b"]
	assert.Equal(t, 1, b.RankChange)
	assert.False(t, b.NewEntrant)
	assert.Equal(t, 200.0, b.Value.Absolute)
	assert.True(t, b.Value.Defined)

	// app:a slipped from 1 to 2: negative change.
	a := byID["app:a"]
	assert.Equal(t, -1, a.RankChange)

	// app:new has no prior rank and is flagged, not zeroed.
	n := byID["app:new"]
	assert.True(t, n.NewEntrant)
	assert.Zero(t, n.PriorRank)
	assert.False(t, n.Value.Defined, "percent change from nothing is undefined")
	assert.Equal(t, 50.0, n.Value.Absolute)

	// app:gone left the tracked set, which is not the same as entering it.
	assert.Equal(t, []string{"app:gone"}, delta.Departed)

	assert.Equal(t, 100.0, delta.Total.Absolute)
	assert.True(t, delta.Total.Defined)
}

func TestCompareRejectsMismatchedKeys(t *testing.T) {
	_, err := Compare(Group{Key: "puzzle"}, Group{Key: "racing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "puzzle")
}
