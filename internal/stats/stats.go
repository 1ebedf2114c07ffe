/*
PURPOSE:
  Summary statistics for comparing benchmark modes.

REQUIREMENTS:
  User-specified:
  - Percentiles use the nearest-rank method on successful latencies.
  - Standard deviation is the population form (0 for one sample).
  - Score = mean + 0.5 x p95 + 0.2 x stddev; lower is better.
  - Convergence step: first step completing k equal consecutive values.
  - Oscillation count: number of changes between consecutive values.

  Implementation-discovered:
  - Empty input is common (a mode where every step failed), so each
    undefined statistic reports ok=false instead of a zero.

ARCHITECTURE INTEGRATION:
  - Used by: internal/engine/controller.go, internal/output/summary.go
  - Dependencies: github.com/montanaflynn/stats

ERROR HANDLING:
  - No errors returned; library errors map to ok=false.

IMPLEMENTATION RULES:
  - Pure functions, no logging.

RELATED FILES:
  - internal/output/summary.go
*/

// Package stats holds the pure statistics used to compare benchmark modes:
// nearest-rank percentiles, population standard deviation, throughput,
// composite score and control-value stability diagnostics.
//
// Every function that can be undefined for its input returns a comma-ok pair
// instead of a sentinel value.
package stats

import (
	"math"
	"time"

	mstats "github.com/montanaflynn/stats"
)

// Composite score weights. Lower scores are better.
const (
	ScoreP95Weight    = 0.5
	ScoreStdDevWeight = 0.2
)

// Millis converts durations to float64 milliseconds.
func Millis(ds []time.Duration) []float64 {
	out := make([]float64, len(ds))
	for i, d := range ds {
		out[i] = float64(d) / float64(time.Millisecond)
	}
	return out
}

// Percentile returns the nearest-rank percentile of values: the value at
// index ceil(pct/100*n)-1 of the sorted data, clamped to the valid range.
func Percentile(values []float64, pct float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	if pct <= 0 {
		return Min(values)
	}
	if pct > 100 {
		pct = 100
	}
	v, err := mstats.PercentileNearestRank(values, pct)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Mean returns the arithmetic mean.
func Mean(values []float64) (float64, bool) {
	v, err := mstats.Mean(values)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Min returns the smallest value.
func Min(values []float64) (float64, bool) {
	v, err := mstats.Min(values)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Max returns the largest value.
func Max(values []float64) (float64, bool) {
	v, err := mstats.Max(values)
	if err != nil {
		return 0, false
	}
	return v, true
}

// StdDev returns the population standard deviation. It is 0 for a single
// value and undefined for an empty input.
func StdDev(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	if len(values) == 1 {
		return 0, true
	}
	v, err := mstats.StandardDeviationPopulation(values)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Throughput returns generated tokens per second over successful requests.
func Throughput(tokens []int, latencies []time.Duration) (float64, bool) {
	if len(latencies) == 0 {
		return 0, false
	}
	var total time.Duration
	for _, d := range latencies {
		total += d
	}
	if total <= 0 {
		return 0, false
	}
	sum := 0
	for _, n := range tokens {
		sum += n
	}
	return float64(sum) / total.Seconds(), true
}

// Score combines mean, p95 and standard deviation of latencies (ms) into a
// single ranking value: mean + 0.5*p95 + 0.2*stddev.
func Score(values []float64) (float64, bool) {
	mean, ok := Mean(values)
	if !ok {
		return 0, false
	}
	p95, _ := Percentile(values, 95)
	sd, _ := StdDev(values)
	s := mean + ScoreP95Weight*p95 + ScoreStdDevWeight*sd
	if math.IsNaN(s) {
		return 0, false
	}
	return s, true
}

// ConvergenceStep returns the first 1-based step at which the k most recent
// values are identical.
func ConvergenceStep[T comparable](values []T, k int) (int, bool) {
	if k <= 0 || len(values) < k {
		return 0, false
	}
	run := 1
	for i := 1; i <= len(values); i++ {
		if i > 1 && values[i-1] == values[i-2] {
			run++
		} else if i > 1 {
			run = 1
		}
		if run >= k {
			return i, true
		}
	}
	return 0, false
}

// OscillationCount returns how many adjacent pairs hold different values.
func OscillationCount[T comparable](values []T) int {
	n := 0
	for i := 1; i < len(values); i++ {
		if values[i] != values[i-1] {
			n++
		}
	}
	return n
}
