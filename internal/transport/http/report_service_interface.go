package http

import (
	"context"

	"gamepulse/internal/aggregate"
	"gamepulse/internal/fetchcache"
	"gamepulse/internal/identity"
	"gamepulse/internal/pipeline"
	"gamepulse/internal/series"
	"gamepulse/internal/services"
)

// ReportServiceInterface defines the report operations the HTTP layer needs
type ReportServiceInterface interface {
	Run(ctx context.Context, opts services.RunOptions) (*pipeline.RunResult, error)
	Running() bool
	Latest() (*services.RunRecord, error)
	Deltas() ([]aggregate.GroupDelta, error)
	Groups() ([]aggregate.Group, error)
	Group(key string) (aggregate.Group, error)
	Entities() ([]identity.Entity, error)
	Entity(canonicalID string) (identity.Entity, []series.TimeSeries, error)
	CacheStats() fetchcache.Stats
}
