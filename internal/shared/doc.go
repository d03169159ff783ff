// Package shared holds cross-cutting test helpers that do not belong to any
// specific domain package.
//
// # Structure
//
//   - testutil: log capture and assertion helpers for slog-based tests
//
// # Usage Guidelines
//
// This package should only contain utilities used by multiple packages with
// no domain-specific logic. Business logic belongs in the domain packages.
//
// # Test Utilities
//
// The testutil subpackage provides a BufferedSlogHandler that records log
// output in memory so tests can assert on structured log records:
//
//	func TestSomething(t *testing.T) {
//	    logger, handler := testutil.NewTestLogger(t)
//
//	    doWork(logger)
//
//	    testutil.AssertLogContains(t, handler, slog.LevelWarn, "stale data served")
//	}
package shared
