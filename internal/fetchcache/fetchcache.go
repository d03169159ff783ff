// Package fetchcache memoizes remote metric queries keyed by their canonical
// query spec. It guarantees at most one in-flight fetch per key, serves stale
// entries when a refresh fails, and decides staleness from an injected
// clock: an entry is valid until the next local-day boundary after it was
// fetched, mirroring the upstream convention of publishing one figure per
// day.
package fetchcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"gamepulse/internal/source"
)

// FetchFunc produces rows for a spec. It must honor context cancellation
// and deadlines.
type FetchFunc func(ctx context.Context, spec source.QuerySpec) ([]source.RawRow, error)

// FetchFailure is returned when a fetch fails and no stale entry can cover
// for it. It is recoverable: batch orchestration records it and continues.
type FetchFailure struct {
	Spec  source.QuerySpec
	Cause error
}

// Error implements the error interface.
func (e *FetchFailure) Error() string {
	return fmt.Sprintf("fetch %s %s..%s: %v",
		e.Spec.Metric,
		e.Spec.Range.From.Format("2006-01-02"),
		e.Spec.Range.To.Format("2006-01-02"),
		e.Cause)
}

// Unwrap returns the underlying fetch error.
func (e *FetchFailure) Unwrap() error {
	return e.Cause
}

// Config tunes cache policy.
type Config struct {
	// Location fixes the timezone of the day boundary. Nil means time.Local.
	Location *time.Location
	// MaxAge optionally bounds entry age inside the day. Zero disables the
	// bound; negative is a configuration error.
	MaxAge time.Duration
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Fetches     int64 `json:"fetches"`
	FetchErrors int64 `json:"fetch_errors"`
	StaleServes int64 `json:"stale_serves"`
	SharedWaits int64 `json:"shared_waits"`
}

// Cache coordinates lookups, fetches, and staleness over a Store.
type Cache struct {
	store  Store
	clock  Clock
	loc    *time.Location
	maxAge time.Duration
	logger *slog.Logger
	group  singleflight.Group

	hits        atomic.Int64
	misses      atomic.Int64
	fetches     atomic.Int64
	fetchErrors atomic.Int64
	staleServes atomic.Int64
	sharedWaits atomic.Int64
}

// New creates a cache over store. The clock defaults to SystemClock and the
// logger to slog.Default(); the store is required.
func New(store Store, clock Clock, cfg Config, logger *slog.Logger) (*Cache, error) {
	if store == nil {
		return nil, fmt.Errorf("fetch cache: store is required")
	}
	if cfg.MaxAge < 0 {
		return nil, fmt.Errorf("fetch cache: max age must not be negative, got %s", cfg.MaxAge)
	}
	if clock == nil {
		clock = SystemClock
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:  store,
		clock:  clock,
		loc:    loc,
		maxAge: cfg.MaxAge,
		logger: logger,
	}, nil
}

// GetOrFetch returns the cached rows for spec, fetching through fetchFn on a
// miss. Concurrent callers of the same key share one fetch; distinct keys
// fetch independently. A failed or timed-out fetch falls back to a stale
// entry when one exists, otherwise a FetchFailure is returned. Cancelling
// ctx abandons the wait but never aborts a fetch already in flight.
func (c *Cache) GetOrFetch(ctx context.Context, spec source.QuerySpec, fetchFn FetchFunc) ([]source.RawRow, error) {
	if fetchFn == nil {
		return nil, fmt.Errorf("fetch cache: fetch function is required")
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	key := spec.Key()
	if entry, ok := c.store.Get(key); ok && c.fresh(entry) {
		c.hits.Add(1)
		return entry.Rows, nil
	}
	c.misses.Add(1)

	// The flight outlives the callers that are waiting on it: it keeps the
	// caller's deadline but not its cancellation, so an abandoned fetch
	// still completes and lands in the store.
	flightCtx := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		flightCtx, cancel = context.WithDeadline(flightCtx, deadline)
		defer cancel()
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		c.fetches.Add(1)
		rows, err := fetchFn(flightCtx, spec)
		if err != nil {
			return nil, err
		}
		entry := Entry{Key: key, Rows: rows, FetchedAt: c.clock.Now()}
		if err := c.store.Put(key, entry); err != nil {
			c.logger.WarnContext(flightCtx, "failed to persist cache entry",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
		return rows, nil
	})

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return c.recover(ctx, spec, key, ctx.Err())
		}
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.sharedWaits.Add(1)
		}
		if res.Err != nil {
			return c.recover(ctx, spec, key, res.Err)
		}
		return res.Val.([]source.RawRow), nil
	}
}

// recover serves a stale entry after a failed fetch, or surfaces the typed
// failure when nothing is cached.
func (c *Cache) recover(ctx context.Context, spec source.QuerySpec, key string, cause error) ([]source.RawRow, error) {
	c.fetchErrors.Add(1)
	if entry, ok := c.store.Get(key); ok {
		c.staleServes.Add(1)
		c.logger.WarnContext(ctx, "fetch failed, serving stale cache entry",
			slog.String("key", key),
			slog.String("metric", string(spec.Metric)),
			slog.Time("fetched_at", entry.FetchedAt),
			slog.String("error", cause.Error()))
		return entry.Rows, nil
	}
	return nil, &FetchFailure{Spec: spec, Cause: cause}
}

// fresh reports whether the entry is still inside its validity window: the
// local calendar day it was fetched on, optionally tightened by MaxAge.
func (c *Cache) fresh(entry Entry) bool {
	now := c.clock.Now().In(c.loc)
	fetched := entry.FetchedAt.In(c.loc)
	if now.Year() != fetched.Year() || now.YearDay() != fetched.YearDay() {
		return false
	}
	if c.maxAge > 0 && now.Sub(fetched) > c.maxAge {
		return false
	}
	return true
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Fetches:     c.fetches.Load(),
		FetchErrors: c.fetchErrors.Load(),
		StaleServes: c.staleServes.Load(),
		SharedWaits: c.sharedWaits.Load(),
	}
}
