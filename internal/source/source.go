// Package source defines the upstream contract of the analytics core: the
// query shape sent to a metric provider and the raw rows that come back.
// Transport, authentication, and retries belong to the adapter behind the
// Provider interface, never to this package.
package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"gamepulse/internal/identity"
)

// Metric names one measurable quantity reported by the upstream source.
type Metric string

const (
	MetricRevenue   Metric = "revenue"
	MetricDownloads Metric = "downloads"
	MetricDAU       Metric = "dau"
	MetricMAU       Metric = "mau"
)

// IsValid checks if the metric is one of the supported kinds.
func (m Metric) IsValid() bool {
	switch m {
	case MetricRevenue, MetricDownloads, MetricDAU, MetricMAU:
		return true
	default:
		return false
	}
}

// Granularity is the reporting interval of fetched rows.
type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
)

// IsValid checks if the granularity is one of the supported intervals.
func (g Granularity) IsValid() bool {
	switch g {
	case GranularityDaily, GranularityWeekly, GranularityMonthly:
		return true
	default:
		return false
	}
}

// DateRange is an inclusive date interval.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// IsValid checks that both endpoints are set and ordered.
func (dr DateRange) IsValid() bool {
	return !dr.From.IsZero() && !dr.To.IsZero() && !dr.To.Before(dr.From)
}

// Contains reports whether t falls inside the range, inclusive on both ends.
func (dr DateRange) Contains(t time.Time) bool {
	return !t.Before(dr.From) && !t.After(dr.To)
}

// QuerySpec describes one upstream query. Two specs asking for the same data
// canonicalize to the same Key regardless of entity id order or country
// casing.
type QuerySpec struct {
	EntityIDs   []string    `json:"entity_ids" validate:"required,min=1,dive,required"`
	Metric      Metric      `json:"metric" validate:"required"`
	Range       DateRange   `json:"date_range"`
	Granularity Granularity `json:"granularity" validate:"required"`
	Country     string      `json:"country,omitempty" validate:"omitempty,len=2"`
}

var validate = validator.New()

// Validate fails fast on malformed specs before any fetch is attempted.
func (qs QuerySpec) Validate() error {
	if err := validate.Struct(qs); err != nil {
		return fmt.Errorf("query spec: %w", err)
	}
	if !qs.Metric.IsValid() {
		return fmt.Errorf("query spec: unknown metric %q", qs.Metric)
	}
	if !qs.Granularity.IsValid() {
		return fmt.Errorf("query spec: unknown granularity %q", qs.Granularity)
	}
	if !qs.Range.IsValid() {
		return fmt.Errorf("query spec: date range %s..%s is invalid",
			qs.Range.From.Format("2006-01-02"), qs.Range.To.Format("2006-01-02"))
	}
	return nil
}

// Canonical serializes the spec with entity ids sorted and fields in a fixed
// order. The serialization is versioned so a layout change can never collide
// with keys minted before it.
func (qs QuerySpec) Canonical() string {
	ids := append([]string(nil), qs.EntityIDs...)
	sort.Strings(ids)
	return strings.Join([]string{
		"v1",
		strings.Join(ids, ","),
		string(qs.Metric),
		qs.Range.From.Format("2006-01-02"),
		qs.Range.To.Format("2006-01-02"),
		string(qs.Granularity),
		strings.ToUpper(qs.Country),
	}, "|")
}

// Key is the stable cache key: hex SHA-256 over the canonical serialization.
func (qs QuerySpec) Key() string {
	sum := sha256.Sum256([]byte(qs.Canonical()))
	return hex.EncodeToString(sum[:])
}

// RawRow is one observation exactly as the upstream source reported it,
// before identity resolution or unit normalization.
type RawRow struct {
	NativeID    string            `json:"native_id"`
	Platform    identity.Platform `json:"platform"`
	UnifiedID   string            `json:"unified_id,omitempty"`
	DisplayName string            `json:"display_name,omitempty"`
	Category    string            `json:"category,omitempty"`
	Publisher   string            `json:"publisher,omitempty"`
	Country     string            `json:"country,omitempty"`
	Date        time.Time         `json:"date"`
	Metric      Metric            `json:"metric"`
	Value       float64           `json:"value"`
	IsEstimated bool              `json:"is_estimated"`
}

// IsValid checks the minimum shape required for downstream processing.
func (r RawRow) IsValid() bool {
	return r.NativeID != "" && r.Platform != "" && !r.Date.IsZero() && r.Metric.IsValid()
}

// Provider fetches raw metric rows from an upstream analytics source. Any
// adapter satisfying this shape is acceptable; implementations must honor
// context cancellation and deadlines.
type Provider interface {
	Fetch(ctx context.Context, spec QuerySpec) ([]RawRow, error)
}

// ProviderFunc adapts a plain function to the Provider interface.
type ProviderFunc func(ctx context.Context, spec QuerySpec) ([]RawRow, error)

// Fetch implements Provider.
func (f ProviderFunc) Fetch(ctx context.Context, spec QuerySpec) ([]RawRow, error) {
	return f(ctx, spec)
}
