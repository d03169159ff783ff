package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"gamepulse/internal/aggregate"
	"gamepulse/internal/concentration"
	"gamepulse/internal/fetchcache"
	"gamepulse/internal/identity"
	"gamepulse/internal/infrastructure"
	"gamepulse/internal/series"
	"gamepulse/internal/source"
)

// Config tunes a pipeline run.
type Config struct {
	// Concurrency caps parallel fetches.
	Concurrency int
	// FetchTimeout bounds each upstream fetch.
	FetchTimeout time.Duration
	// RatePerSecond and RateBurst throttle outbound requests. A zero rate
	// disables throttling.
	RatePerSecond float64
	RateBurst     int
	// MinorUnit declares upstream revenue as minor currency units.
	MinorUnit bool
	// MatchPublisher tightens name-based identity resolution.
	MatchPublisher bool
	// Metric selects the kind that is measured and ranked.
	Metric source.Metric
	// GroupBy assigns entities to groups. Nil means one market-wide group.
	GroupBy aggregate.KeyFunc
	// TopN lists the leader-share cutoffs to compute.
	TopN []int
	// SuggestionThreshold enables near-duplicate name suggestions when
	// positive.
	SuggestionThreshold float64
}

// RunResult carries everything a run produced. Failures holds the soft
// errors that did not stop the run; callers decide whether a partial result
// is acceptable.
type RunResult struct {
	Entities    []identity.Entity     `json:"entities"`
	Conflicts   []identity.Conflict   `json:"conflicts,omitempty"`
	Suggestions []identity.Suggestion `json:"suggestions,omitempty"`
	Series      []series.TimeSeries   `json:"series"`
	Market      concentration.Result  `json:"market"`
	Groups      []aggregate.Group     `json:"groups"`
	Failures    *ErrorList            `json:"failures,omitempty"`
	CacheStats  fetchcache.Stats      `json:"cache_stats"`
	RowCount    int                   `json:"row_count"`
	Duration    time.Duration         `json:"duration"`
}

// Pipeline orchestrates one batch: fetch through the cache, resolve
// identities, normalize series, measure concentration, and aggregate.
// Fetching is the only concurrent stage; everything after it is synchronous
// and side-effect-free.
type Pipeline struct {
	provider source.Provider
	cache    *fetchcache.Cache
	cfg      Config
	limiter  *rate.Limiter
	logger   *slog.Logger
	metrics  *infrastructure.BusinessMetrics
}

// New creates a Pipeline. The provider and cache are required; a nil logger
// falls back to slog.Default() and nil metrics disable instrumentation.
func New(provider source.Provider, cache *fetchcache.Cache, cfg Config, logger *slog.Logger, metrics *infrastructure.BusinessMetrics) (*Pipeline, error) {
	if provider == nil {
		return nil, NewValidationError("", "provider is required")
	}
	if cache == nil {
		return nil, NewValidationError("", "cache is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.Metric == "" {
		cfg.Metric = source.MetricRevenue
	}
	if !cfg.Metric.IsValid() {
		return nil, NewValidationError("", fmt.Sprintf("invalid metric %q", cfg.Metric))
	}
	if cfg.GroupBy == nil {
		cfg.GroupBy = aggregate.All
	}
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &Pipeline{
		provider: provider,
		cache:    cache,
		cfg:      cfg,
		limiter:  limiter,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Run executes the batch for specs. Fetch failures are recorded in the
// result's Failures list and the run continues with what it has; only
// cancellation and malformed input abort the whole run.
func (p *Pipeline) Run(ctx context.Context, specs []source.QuerySpec) (*RunResult, error) {
	start := time.Now()
	if len(specs) == 0 {
		return nil, NewValidationError(StageFetch, "at least one query spec is required")
	}
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return nil, WrapError(err, StageFetch, "invalid query spec")
		}
	}
	unique := dedupe(specs)

	p.logger.InfoContext(ctx, "pipeline run started",
		slog.Int("specs", len(unique)),
		slog.String("metric", string(p.cfg.Metric)))

	statsBefore := p.cache.Stats()
	failures := &ErrorList{}

	rows, err := p.fetchAll(ctx, unique, failures)
	if err != nil {
		return nil, err
	}
	p.logger.InfoContext(ctx, "fetch stage complete",
		slog.Int("rows", len(rows)),
		slog.Int("failures", len(failures.GetByStage(StageFetch))))

	resolver := identity.NewResolver(identity.Options{MatchPublisher: p.cfg.MatchPublisher}, p.logger)
	canonical := p.resolveAll(resolver, rows, failures)
	entities := resolver.Entities()
	p.logger.InfoContext(ctx, "resolve stage complete",
		slog.Int("entities", len(entities)),
		slog.Int("conflicts", len(resolver.Conflicts())))

	normalizer := series.NewNormalizer(series.Options{MinorUnit: p.cfg.MinorUnit}, p.logger)
	seriesList, err := normalizer.Normalize(rows, canonical)
	if err != nil {
		return nil, WrapError(err, StageNormalize, "normalization failed")
	}
	observations := 0
	for _, ts := range seriesList {
		observations += ts.Len()
	}
	p.logger.InfoContext(ctx, "normalize stage complete",
		slog.Int("series", len(seriesList)),
		slog.Int("observations", observations))

	groups, err := aggregate.GroupBy(p.cfg.GroupBy, entities, seriesList, p.cfg.Metric, p.cfg.TopN...)
	if err != nil {
		return nil, WrapError(err, StageAggregate, "aggregation failed")
	}
	market, err := p.measureMarket(entities, seriesList)
	if err != nil {
		return nil, WrapError(err, StageMeasure, "market measurement failed")
	}
	p.logger.InfoContext(ctx, "aggregate stage complete",
		slog.Int("groups", len(groups)),
		slog.Bool("market_defined", market.Defined))

	var suggestions []identity.Suggestion
	if p.cfg.SuggestionThreshold > 0 {
		suggestions, err = resolver.Suggestions(p.cfg.SuggestionThreshold)
		if err != nil {
			p.logger.WarnContext(ctx, "skipping identity suggestions",
				slog.String("error", err.Error()))
		}
	}

	result := &RunResult{
		Entities:    entities,
		Conflicts:   resolver.Conflicts(),
		Suggestions: suggestions,
		Series:      seriesList,
		Market:      market,
		Groups:      groups,
		Failures:    failures,
		CacheStats:  p.cache.Stats(),
		RowCount:    len(rows),
		Duration:    time.Since(start),
	}
	p.record(ctx, result, statsBefore, observations)

	p.logger.InfoContext(ctx, "pipeline run complete",
		slog.Int("entities", len(entities)),
		slog.Int("groups", len(groups)),
		slog.Int("failures", len(failures.Errors)),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// fetchAll pulls every spec through the cache with bounded concurrency and
// rate limiting. Failed specs are recorded and skipped; cancellation aborts
// the remaining work.
func (p *Pipeline) fetchAll(ctx context.Context, specs []source.QuerySpec, failures *ErrorList) ([]source.RawRow, error) {
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(p.cfg.Concurrency)

	results := make([][]source.RawRow, len(specs))
	var mu sync.Mutex

	for i, spec := range specs {
		i, spec := i, spec
		eg.Go(func() error {
			// Once the run is cancelled, specs that have not started yet
			// stay unfetched.
			if gctx.Err() != nil {
				return NewCancellationError(StageFetch)
			}
			if p.limiter != nil {
				if err := p.limiter.Wait(gctx); err != nil {
					return NewCancellationError(StageFetch)
				}
			}

			// Cancellation only stops work that has not started. A fetch
			// already in flight finishes or times out, so the upstream call
			// and the store write are never torn mid-way.
			fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), p.cfg.FetchTimeout)
			defer cancel()

			if p.metrics != nil {
				p.metrics.FetchesTotal.Add(gctx, 1)
				p.metrics.FetchesInFlight.Add(gctx, 1)
				defer p.metrics.FetchesInFlight.Add(gctx, -1)
			}

			fetchStart := time.Now()
			rows, err := p.cache.GetOrFetch(fetchCtx, spec, p.provider.Fetch)
			if p.metrics != nil {
				p.metrics.FetchDuration.Record(gctx, time.Since(fetchStart).Seconds())
			}
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return NewCancellationError(StageFetch)
				}
				mu.Lock()
				failures.Add(NewFetchError(spec.Key(), err))
				mu.Unlock()
				if p.metrics != nil {
					p.metrics.FetchErrors.Add(gctx, 1)
				}
				p.logger.WarnContext(gctx, "fetch failed, continuing without this batch",
					slog.String("key", spec.Key()),
					slog.String("metric", string(spec.Metric)),
					slog.String("error", err.Error()))
				return nil
			}
			results[i] = rows
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var all []source.RawRow
	for _, rows := range results {
		all = append(all, rows...)
	}
	return all, nil
}

type nativePair struct {
	platform identity.Platform
	nativeID string
}

// resolveAll resolves every distinct platform identity in rows and returns
// a lookup for the normalizer. Aliases from late-arriving unified ids are
// chased after the last row so the mapping is stable regardless of row
// order.
func (p *Pipeline) resolveAll(resolver *identity.Resolver, rows []source.RawRow, failures *ErrorList) series.CanonicalFunc {
	resolved := make(map[nativePair]string)
	for _, row := range rows {
		key := nativePair{platform: row.Platform, nativeID: row.NativeID}
		if _, ok := resolved[key]; ok {
			continue
		}
		id, err := resolver.Resolve(row.NativeID, row.Platform, identity.Metadata{
			UnifiedID:   row.UnifiedID,
			DisplayName: row.DisplayName,
			Category:    row.Category,
			Publisher:   row.Publisher,
		})
		if err != nil {
			failures.Add(WrapError(err, StageResolve, "failed to resolve identity"))
			resolved[key] = ""
			continue
		}
		resolved[key] = id
	}
	for key, id := range resolved {
		if id != "" {
			resolved[key] = resolver.Canonical(id)
		}
	}

	return func(row source.RawRow) (string, bool) {
		id := resolved[nativePair{platform: row.Platform, nativeID: row.NativeID}]
		return id, id != ""
	}
}

// measureMarket computes the concentration result over every entity's total
// of the configured metric.
func (p *Pipeline) measureMarket(entities []identity.Entity, seriesList []series.TimeSeries) (concentration.Result, error) {
	groups, err := aggregate.GroupBy(aggregate.All, entities, seriesList, p.cfg.Metric, p.cfg.TopN...)
	if err != nil {
		return concentration.Result{}, err
	}
	if len(groups) == 0 {
		return concentration.Result{}, nil
	}
	return groups[0].Concentration, nil
}

// record emits run-level metrics, including cache counter deltas for this
// run.
func (p *Pipeline) record(ctx context.Context, result *RunResult, before fetchcache.Stats, observations int) {
	if p.metrics == nil {
		return
	}
	after := result.CacheStats
	p.metrics.CacheHits.Add(ctx, after.Hits-before.Hits)
	p.metrics.CacheMisses.Add(ctx, after.Misses-before.Misses)
	p.metrics.CacheStaleServes.Add(ctx, after.StaleServes-before.StaleServes)
	p.metrics.CacheSharedWaits.Add(ctx, after.SharedWaits-before.SharedWaits)
	p.metrics.EntitiesResolved.Add(ctx, int64(len(result.Entities)))
	p.metrics.IdentityConflicts.Add(ctx, int64(len(result.Conflicts)))
	p.metrics.ObservationsNormalized.Add(ctx, int64(observations))
	p.metrics.PipelineRunsTotal.Add(ctx, 1)
	p.metrics.PipelineRunDuration.Record(ctx, result.Duration.Seconds())
	p.metrics.PipelineErrors.Add(ctx, int64(len(result.Failures.Errors)))
}

// dedupe drops specs whose canonical key repeats, keeping first occurrence
// order.
func dedupe(specs []source.QuerySpec) []source.QuerySpec {
	seen := make(map[string]bool, len(specs))
	out := make([]source.QuerySpec, 0, len(specs))
	for _, spec := range specs {
		key := spec.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, spec)
	}
	return out
}

// CompareRuns matches groups by key across two runs and reports rank and
// value movement from prior to current. Groups present in only one run are
// compared against an empty snapshot, so a vanished group shows all members
// departed and a brand-new group shows all members as entrants.
func CompareRuns(prior, current *RunResult) ([]aggregate.GroupDelta, error) {
	if prior == nil || current == nil {
		return nil, NewValidationError(StageAggregate, "both runs are required")
	}

	priorByKey := make(map[string]aggregate.Group, len(prior.Groups))
	for _, g := range prior.Groups {
		priorByKey[g.Key] = g
	}

	var deltas []aggregate.GroupDelta
	seen := make(map[string]bool, len(current.Groups))
	for _, cur := range current.Groups {
		seen[cur.Key] = true
		prev, ok := priorByKey[cur.Key]
		if !ok {
			prev = aggregate.Group{Key: cur.Key}
		}
		delta, err := aggregate.Compare(prev, cur)
		if err != nil {
			return nil, WrapError(err, StageAggregate, "group comparison failed")
		}
		deltas = append(deltas, delta)
	}
	for _, prev := range prior.Groups {
		if seen[prev.Key] {
			continue
		}
		delta, err := aggregate.Compare(prev, aggregate.Group{Key: prev.Key})
		if err != nil {
			return nil, WrapError(err, StageAggregate, "group comparison failed")
		}
		deltas = append(deltas, delta)
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i].Key < deltas[j].Key })
	return deltas, nil
}
