package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gamepulse/internal/aggregate"
	"gamepulse/internal/fetchcache"
	"gamepulse/internal/identity"
	"gamepulse/internal/infrastructure"
	"gamepulse/internal/pipeline"
	"gamepulse/internal/series"
	"gamepulse/internal/source"
)

// RunOptions selects what one report run computes on top of the base
// pipeline configuration. Zero values keep the configured defaults.
type RunOptions struct {
	Specs   []source.QuerySpec
	GroupBy string
	TopN    []int
}

// RunRecord pairs a finished run with the moment it finished.
type RunRecord struct {
	Result     *pipeline.RunResult `json:"result"`
	FinishedAt time.Time           `json:"finished_at"`
}

// ReportService runs the concentration pipeline and keeps the two most
// recent results in memory for the read endpoints. Runs are serialized: a
// second Run while one is active fails with ErrRunInProgress instead of
// queueing, so callers always know whether their request started work.
type ReportService struct {
	provider source.Provider
	cache    *fetchcache.Cache
	base     pipeline.Config
	logger   *slog.Logger
	metrics  *infrastructure.BusinessMetrics

	mu      sync.Mutex
	running bool
	latest  *RunRecord
	prior   *RunRecord
}

// NewReportService creates a report service. The provider and cache are
// handed through to each pipeline run; base supplies the defaults a run can
// override via RunOptions.
func NewReportService(provider source.Provider, cache *fetchcache.Cache, base pipeline.Config, logger *slog.Logger, metrics *infrastructure.BusinessMetrics) *ReportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportService{
		provider: provider,
		cache:    cache,
		base:     base,
		logger:   logger.With(slog.String("service", "report")),
		metrics:  metrics,
	}
}

// GroupKeyFunc maps a grouping dimension name to its key function. The empty
// name means one market-wide group.
func GroupKeyFunc(name string) (aggregate.KeyFunc, error) {
	switch name {
	case "", "all":
		return aggregate.All, nil
	case "category":
		return aggregate.ByCategory, nil
	case "publisher":
		return aggregate.ByPublisher, nil
	default:
		return nil, fmt.Errorf("%w: unknown grouping %q", ErrInvalidInput, name)
	}
}

// Run executes one report run. On success the result replaces the latest
// record and the previous latest becomes the prior, which feeds Deltas.
func (s *ReportService) Run(ctx context.Context, opts RunOptions) (*pipeline.RunResult, error) {
	groupBy, err := GroupKeyFunc(opts.GroupBy)
	if err != nil {
		return nil, err
	}

	if err := s.begin(ctx); err != nil {
		return nil, err
	}

	cfg := s.base
	cfg.GroupBy = groupBy
	if len(opts.TopN) > 0 {
		cfg.TopN = opts.TopN
	}

	p, err := pipeline.New(s.provider, s.cache, cfg, s.logger, s.metrics)
	if err != nil {
		s.end(nil)
		return nil, err
	}

	result, err := p.Run(ctx, opts.Specs)
	s.end(result)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "report run stored",
		slog.Int("entities", len(result.Entities)),
		slog.Int("groups", len(result.Groups)),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// begin claims the single run slot.
func (s *ReportService) begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.WarnContext(ctx, "report run rejected, another run is active")
		return ErrRunInProgress
	}
	s.running = true
	return nil
}

// end releases the run slot and stores the result when the run produced one.
func (s *ReportService) end(result *pipeline.RunResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	if result != nil {
		s.prior = s.latest
		s.latest = &RunRecord{Result: result, FinishedAt: time.Now()}
	}
}

// Running reports whether a run is currently active.
func (s *ReportService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Latest returns the most recent completed run.
func (s *ReportService) Latest() (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return nil, ErrNoRuns
	}
	return s.latest, nil
}

// Deltas compares the prior run against the latest one, group by group.
func (s *ReportService) Deltas() ([]aggregate.GroupDelta, error) {
	s.mu.Lock()
	latest, prior := s.latest, s.prior
	s.mu.Unlock()

	if latest == nil {
		return nil, ErrNoRuns
	}
	if prior == nil {
		return nil, ErrNoPriorRun
	}
	return pipeline.CompareRuns(prior.Result, latest.Result)
}

// Groups lists the groups of the latest run.
func (s *ReportService) Groups() ([]aggregate.Group, error) {
	record, err := s.Latest()
	if err != nil {
		return nil, err
	}
	return record.Result.Groups, nil
}

// Group returns one group of the latest run by key.
func (s *ReportService) Group(key string) (aggregate.Group, error) {
	groups, err := s.Groups()
	if err != nil {
		return aggregate.Group{}, err
	}
	for _, g := range groups {
		if g.Key == key {
			return g, nil
		}
	}
	return aggregate.Group{}, fmt.Errorf("%w: %q", ErrGroupNotFound, key)
}

// Entities lists the resolved entities of the latest run.
func (s *ReportService) Entities() ([]identity.Entity, error) {
	record, err := s.Latest()
	if err != nil {
		return nil, err
	}
	return record.Result.Entities, nil
}

// Entity returns one entity of the latest run together with its normalized
// series.
func (s *ReportService) Entity(canonicalID string) (identity.Entity, []series.TimeSeries, error) {
	record, err := s.Latest()
	if err != nil {
		return identity.Entity{}, nil, err
	}

	for _, e := range record.Result.Entities {
		if e.CanonicalID != canonicalID {
			continue
		}
		var owned []series.TimeSeries
		for _, ts := range record.Result.Series {
			if ts.CanonicalID == canonicalID {
				owned = append(owned, ts)
			}
		}
		return e, owned, nil
	}
	return identity.Entity{}, nil, fmt.Errorf("%w: %q", ErrEntityNotFound, canonicalID)
}

// CacheStats snapshots the fetch cache counters.
func (s *ReportService) CacheStats() fetchcache.Stats {
	return s.cache.Stats()
}
