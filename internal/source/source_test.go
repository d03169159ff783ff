package source

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func validSpec() QuerySpec {
	return QuerySpec{
		EntityIDs:   []string{"app-1", "app-2"},
		Metric:      MetricRevenue,
		Range:       DateRange{From: day(2025, 1, 1), To: day(2025, 12, 31)},
		Granularity: GranularityDaily,
		Country:     "US",
	}
}

func TestQuerySpecKeyStableUnderIDOrder(t *testing.T) {
	a := validSpec()
	a.EntityIDs = []string{"app-2", "app-1", "app-3"}

	b := validSpec()
	b.EntityIDs = []string{"app-3", "app-2", "app-1"}

	assert.Equal(t, a.Canonical(), b.Canonical())
	assert.Equal(t, a.Key(), b.Key())
}

func TestQuerySpecKeyIgnoresCountryCase(t *testing.T) {
	a := validSpec()
	a.Country = "us"
	b := validSpec()
	b.Country = "US"

	assert.Equal(t, a.Key(), b.Key())
}

func TestQuerySpecKeyDistinguishesQueries(t *testing.T) {
	base := validSpec()

	byMetric := validSpec()
	byMetric.Metric = MetricDownloads

	byRange := validSpec()
	byRange.Range.To = day(2026, 1, 31)

	byGranularity := validSpec()
	byGranularity.Granularity = GranularityMonthly

	byCountry := validSpec()
	byCountry.Country = "JP"

	keys := map[string]string{
		"base":        base.Key(),
		"metric":      byMetric.Key(),
		"range":       byRange.Key(),
		"granularity": byGranularity.Key(),
		"country":     byCountry.Key(),
	}
	seen := make(map[string]string)
	for name, key := range keys {
		require.Len(t, key, 64, "key should be hex sha256")
		if prev, dup := seen[key]; dup {
			t.Fatalf("specs %q and %q collided on key %s", prev, name, key)
		}
		seen[key] = name
	}
}

func TestQuerySpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*QuerySpec)
		wantErr bool
	}{
		{name: "valid", mutate: func(qs *QuerySpec) {}, wantErr: false},
		{name: "no entity ids", mutate: func(qs *QuerySpec) { qs.EntityIDs = nil }, wantErr: true},
		{name: "blank entity id", mutate: func(qs *QuerySpec) { qs.EntityIDs = []string{"app-1", ""} }, wantErr: true},
		{name: "unknown metric", mutate: func(qs *QuerySpec) { qs.Metric = "sentiment" }, wantErr: true},
		{name: "unknown granularity", mutate: func(qs *QuerySpec) { qs.Granularity = "hourly" }, wantErr: true},
		{name: "inverted range", mutate: func(qs *QuerySpec) { qs.Range = DateRange{From: day(2025, 6, 1), To: day(2025, 1, 1)} }, wantErr: true},
		{name: "missing range", mutate: func(qs *QuerySpec) { qs.Range = DateRange{} }, wantErr: true},
		{name: "malformed country", mutate: func(qs *QuerySpec) { qs.Country = "USA" }, wantErr: true},
		{name: "country optional", mutate: func(qs *QuerySpec) { qs.Country = "" }, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			tt.mutate(&spec)
			err := spec.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDateRangeContains(t *testing.T) {
	r := DateRange{From: day(2025, 3, 1), To: day(2025, 3, 31)}

	assert.True(t, r.Contains(day(2025, 3, 1)), "inclusive on the left")
	assert.True(t, r.Contains(day(2025, 3, 31)), "inclusive on the right")
	assert.True(t, r.Contains(day(2025, 3, 15)))
	assert.False(t, r.Contains(day(2025, 2, 28)))
	assert.False(t, r.Contains(day(2025, 4, 1)))
}

func TestMetricIsValid(t *testing.T) {
	for _, m := range []Metric{MetricRevenue, MetricDownloads, MetricDAU, MetricMAU} {
		assert.True(t, m.IsValid(), "%s should be valid", m)
	}
	assert.False(t, Metric("sessions").IsValid())
	assert.False(t, Metric("").IsValid())
}
