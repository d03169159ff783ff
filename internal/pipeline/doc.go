// Package pipeline orchestrates a full analytics batch: fetch raw rows
// through the cache, resolve platform identities, normalize time series,
// measure revenue concentration, and aggregate groups.
//
// The pipeline is deliberately lopsided: fetching is the only concurrent
// stage, bounded by a worker limit and an outbound rate limiter, while
// every later stage is synchronous and side-effect-free. That keeps the
// interesting failure modes (timeouts, partial batches, cancellation) in
// one place.
//
// Failure policy:
//
//   - A failed or timed-out fetch is a soft failure. It is recorded in the
//     run's ErrorList and the batch continues with the specs that
//     succeeded; callers inspect Failures to decide whether the partial
//     result is acceptable.
//   - Cancellation aborts the run. Fetches not yet scheduled never start;
//     fetches already in flight run to their own timeout and land in the
//     cache for the next run.
//   - Malformed input (invalid specs, negative values) aborts the run with
//     a validation error, because continuing would misstate the results.
//
// Example usage:
//
//	pipe, err := pipeline.New(provider, cache, pipeline.Config{
//		Concurrency:  4,
//		FetchTimeout: 30 * time.Second,
//		Metric:       source.MetricRevenue,
//		GroupBy:      aggregate.ByCategory,
//		TopN:         []int{1, 3, 5},
//	}, logger, metrics)
//	if err != nil {
//		return err
//	}
//	result, err := pipe.Run(ctx, specs)
//	if err != nil {
//		return err
//	}
//	if result.Failures.HasErrors() {
//		// partial batch
//	}
//
// Period-over-period comparison runs the pipeline once per window and then
// diffs the group snapshots with CompareRuns.
package pipeline
