// Package series turns raw per-platform rows into canonical time series.
// Unit scaling is declared by the caller, duplicate observations are merged
// under one policy per metric kind, and gaps are preserved: a missing date
// means no data, never zero.
package series

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"gamepulse/internal/identity"
	"gamepulse/internal/source"
)

// Observation is one normalized data point for a canonical entity.
type Observation struct {
	CanonicalID string        `json:"canonical_id"`
	Date        time.Time     `json:"date"`
	Kind        source.Metric `json:"kind"`
	Value       float64       `json:"value"`
	// SourcePlatform is empty when the point merges rows from more than one
	// platform.
	SourcePlatform identity.Platform `json:"source_platform,omitempty"`
	IsEstimated    bool              `json:"is_estimated,omitempty"`
}

// IsValid checks the minimum shape required of an observation.
func (o Observation) IsValid() bool {
	return o.CanonicalID != "" && !o.Date.IsZero() && o.Kind.IsValid() && o.Value >= 0
}

// TimeSeries holds the ordered observations of one entity and metric kind.
// Dates are strictly increasing and unique.
type TimeSeries struct {
	CanonicalID  string        `json:"canonical_id"`
	Kind         source.Metric `json:"kind"`
	Observations []Observation `json:"observations"`
}

// Len returns the number of observations.
func (s TimeSeries) Len() int {
	return len(s.Observations)
}

// Total sums all observation values.
func (s TimeSeries) Total() float64 {
	var total float64
	for _, o := range s.Observations {
		total += o.Value
	}
	return total
}

// Values returns the observation values in date order.
func (s TimeSeries) Values() []float64 {
	values := make([]float64, len(s.Observations))
	for i, o := range s.Observations {
		values[i] = o.Value
	}
	return values
}

// Window returns the sub-series whose dates fall inside [from, to],
// inclusive on both ends. Bounds are compared by calendar day.
func (s TimeSeries) Window(from, to time.Time) TimeSeries {
	lo, hi := DateUTC(from), DateUTC(to)
	out := TimeSeries{CanonicalID: s.CanonicalID, Kind: s.Kind}
	for _, o := range s.Observations {
		if o.Date.Before(lo) || o.Date.After(hi) {
			continue
		}
		out.Observations = append(out.Observations, o)
	}
	return out
}

// DateUTC anchors the calendar date of t at UTC midnight. The reported date
// is kept as-is; only the time-of-day and zone are discarded.
func DateUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Options declares how raw values are scaled. Scaling is never inferred
// from magnitude: silent heuristics have misscaled revenue by factors of
// 10x to 100x in practice, so the caller must state the unit.
type Options struct {
	// MinorUnit marks revenue rows as minor currency units (cents); they
	// are divided by 100 during normalization. Other kinds are unaffected.
	MinorUnit bool `json:"minor_unit"`
}

// CanonicalFunc maps a raw row to its canonical entity id. Returning false
// marks the row unresolvable; the normalizer skips it and reports the count.
type CanonicalFunc func(row source.RawRow) (string, bool)

// Normalizer converts raw provider rows into merged canonical time series.
type Normalizer struct {
	opts   Options
	logger *slog.Logger
}

// NewNormalizer creates a Normalizer. A nil logger falls back to
// slog.Default().
func NewNormalizer(opts Options, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{opts: opts, logger: logger}
}

type seriesKey struct {
	canonicalID string
	kind        source.Metric
}

// Normalize groups rows by canonical entity and metric kind, scales revenue
// when the minor-unit flag is set, and merges duplicate dates per kind
// policy. Rows the canonical function cannot place are skipped with a
// warning. A negative value aborts with an error naming the row.
func (n *Normalizer) Normalize(rows []source.RawRow, canonical CanonicalFunc) ([]TimeSeries, error) {
	if canonical == nil {
		return nil, fmt.Errorf("normalize: canonical function is required")
	}

	grouped := make(map[seriesKey][]Observation)
	skipped := 0
	for i, row := range rows {
		if !row.IsValid() {
			return nil, fmt.Errorf("normalize: row %d (%s/%s) is malformed", i, row.Platform, row.NativeID)
		}
		if row.Value < 0 {
			return nil, fmt.Errorf("normalize: row %d (%s/%s %s): negative value %v",
				i, row.Platform, row.NativeID, row.Date.Format("2006-01-02"), row.Value)
		}
		id, ok := canonical(row)
		if !ok || id == "" {
			skipped++
			n.logger.Warn("skipping unresolvable row",
				slog.String("native_id", row.NativeID),
				slog.String("platform", string(row.Platform)))
			continue
		}

		value := row.Value
		if n.opts.MinorUnit && row.Metric == source.MetricRevenue {
			value /= 100
		}
		key := seriesKey{canonicalID: id, kind: row.Metric}
		grouped[key] = append(grouped[key], Observation{
			CanonicalID:    id,
			Date:           DateUTC(row.Date),
			Kind:           row.Metric,
			Value:          value,
			SourcePlatform: row.Platform,
			IsEstimated:    row.IsEstimated,
		})
	}
	if skipped > 0 {
		n.logger.Warn("rows skipped during normalization", slog.Int("count", skipped))
	}

	out := make([]TimeSeries, 0, len(grouped))
	for _, obs := range grouped {
		ts, err := NewSeries(obs)
		if err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CanonicalID != out[j].CanonicalID {
			return out[i].CanonicalID < out[j].CanonicalID
		}
		return out[i].Kind < out[j].Kind
	})
	return out, nil
}

// NewSeries builds one TimeSeries from observations sharing a canonical id
// and kind. Observations on the same date are merged: revenue and downloads
// add up across platforms, while dau and mau keep the maximum because the
// same user may be counted on several platforms and a sum would inflate the
// audience. A merged point is estimated when any constituent was.
func NewSeries(obs []Observation) (TimeSeries, error) {
	if len(obs) == 0 {
		return TimeSeries{}, fmt.Errorf("series: no observations")
	}

	id, kind := obs[0].CanonicalID, obs[0].Kind
	byDate := make(map[time.Time]Observation, len(obs))
	for i, o := range obs {
		if !o.IsValid() {
			return TimeSeries{}, fmt.Errorf("series: observation %d (%s %s) is malformed",
				i, o.CanonicalID, o.Date.Format("2006-01-02"))
		}
		if o.CanonicalID != id || o.Kind != kind {
			return TimeSeries{}, fmt.Errorf("series: observation %d (%s/%s) does not belong to %s/%s",
				i, o.CanonicalID, o.Kind, id, kind)
		}
		date := DateUTC(o.Date)
		existing, ok := byDate[date]
		if !ok {
			o.Date = date
			byDate[date] = o
			continue
		}
		existing.Value = mergeValue(kind, existing.Value, o.Value)
		existing.IsEstimated = existing.IsEstimated || o.IsEstimated
		if existing.SourcePlatform != o.SourcePlatform {
			existing.SourcePlatform = ""
		}
		byDate[date] = existing
	}

	merged := make([]Observation, 0, len(byDate))
	for _, o := range byDate {
		merged = append(merged, o)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Date.Before(merged[j].Date) })

	return TimeSeries{CanonicalID: id, Kind: kind, Observations: merged}, nil
}

// mergeValue folds a colliding value into an existing one under the kind's
// policy.
func mergeValue(kind source.Metric, existing, incoming float64) float64 {
	switch kind {
	case source.MetricRevenue, source.MetricDownloads:
		return existing + incoming
	default:
		return math.Max(existing, incoming)
	}
}
