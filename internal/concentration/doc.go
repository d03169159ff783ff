// Package concentration implements the inequality and concentration statistics
// shared by the per-entity analytics and the group aggregator.
//
// # Core Metrics
//
// The package computes four measures from a single value sequence:
//
//  1. Gini coefficient: the standard finite-sample estimator over an ascending
//     sort, in [0, 1) where 0 is perfect equality
//  2. Lorenz curve: cumulative value share by cumulative population share
//  3. Top-N share: fraction of total value held by the N largest contributors
//  4. HHI: Herfindahl-Hirschman index with a qualitative concentration band
//
// All measures derive from one ascending sort of the positive inputs so they
// remain mutually consistent for the same sequence.
//
// # Input Policy
//
// Values less than or equal to zero are excluded before any computation. They
// are never coerced to small positives or counted as population. When fewer
// than two positive values remain the metrics are undefined and every
// function reports ErrInsufficientData; callers must branch on it rather than
// treat the result as zero.
//
// # Usage Example
//
//	res, err := concentration.Measure(revenues, 1, 3, 5)
//	if err != nil {
//	    return err
//	}
//	if !res.Defined {
//	    // fewer than two positive contributors, nothing to report
//	    return nil
//	}
//	fmt.Printf("gini=%.4f top3=%.1f%%\n", res.Gini, res.TopShare[3]*100)
//
// # Mathematical Foundation
//
// For ascending values v_1 <= ... <= v_n the Gini estimator is
//
//	G = (2 * Σ i*v_i) / (n * Σ v_i) - (n+1)/n
//
// It is scale invariant (G(k*v) = G(v) for k > 0), exactly zero when all
// values are equal, and bounded above by (n-1)/n.
package concentration
