/*
PURPOSE:
  Adaptive draft-length controller.
  Turns the smoothed request latency into the next draft length using
  thresholds calibrated from the warmup phase.

REQUIREMENTS:
  User-specified:
  - Low threshold = 0.85 x warmup p50, high threshold = 1.05 x warmup p95.
  - Defaults apply when warmup produced no successful sample.
  - Below low: grow by 1. Above high: shrink. In between: drift up to
    the exploration ceiling, then hold.
  - Latency is smoothed with an EMA (alpha 0.4) before comparison.

  Implementation-discovered:
  - The shrink step and EMA reset-on-failure are tunables (config.Adaptive).
  - Policy is pure; the runner owns the EMA and the current value.

ARCHITECTURE INTEGRATION:
  - Used by: internal/engine/runner.go
  - Uses: internal/stats (percentiles)

ERROR HANDLING:
  - None. Every output is clamped to [1,8].

IMPLEMENTATION RULES:
  - Never return a draft length outside [MinDraftLength, MaxDraftLength].
  - No observation yet means keep the current value.

RELATED FILES:
  - internal/engine/runner.go
  - internal/config/config.go (Adaptive)

MAINTENANCE:
  - Update the runner tests when the policy rules change.
*/

package engine

import (
	"time"

	"github.com/daryltucker/halospec-bench/internal/config"
	"github.com/daryltucker/halospec-bench/internal/model"
	"github.com/daryltucker/halospec-bench/internal/stats"
)

// Thresholds bound the stable latency band of the adaptive policy.
type Thresholds struct {
	Low  time.Duration
	High time.Duration
	// Calibrated is false when the defaults were used for lack of warmup samples.
	Calibrated bool
}

// Policy is the hysteresis rule that picks the next draft length from a
// smoothed latency. It holds only constants; all state lives in the caller.
type Policy struct {
	// DecreaseStep is subtracted when latency exceeds the high threshold.
	DecreaseStep int
	// ExploreCeiling caps the upward drift inside the stable band.
	ExploreCeiling model.DraftLength

	LowFactor   float64
	HighFactor  float64
	DefaultLow  time.Duration
	DefaultHigh time.Duration
}

// NewPolicy builds a Policy from the adaptive section of the config.
func NewPolicy(a config.Adaptive) Policy {
	return Policy{
		DecreaseStep:   a.DecreaseStep,
		ExploreCeiling: model.DraftLength(a.ExploreCeiling),
		LowFactor:      a.LowFactor,
		HighFactor:     a.HighFactor,
		DefaultLow:     a.DefaultLow,
		DefaultHigh:    a.DefaultHigh,
	}
}

// Next returns the draft length for the following step. observed is false
// until the first successful request of the run, in which case current is kept.
func (p Policy) Next(smoothed time.Duration, observed bool, current model.DraftLength, th Thresholds) model.DraftLength {
	if !observed {
		return current
	}
	switch {
	case smoothed < th.Low:
		return model.ClampDraftLength(int(current) + 1)
	case smoothed > th.High:
		step := p.DecreaseStep
		if step < 1 {
			step = 1
		}
		return model.ClampDraftLength(int(current) - step)
	case current < p.ExploreCeiling:
		return model.ClampDraftLength(int(current) + 1)
	default:
		return model.ClampDraftLength(int(current))
	}
}

// Calibrate derives thresholds from the successful warmup latencies:
// low = p50*LowFactor, high = p95*HighFactor. With no samples the defaults apply.
func (p Policy) Calibrate(warmup []time.Duration) Thresholds {
	ms := stats.Millis(warmup)
	p50, ok50 := stats.Percentile(ms, 50)
	p95, ok95 := stats.Percentile(ms, 95)
	if !ok50 || !ok95 {
		return Thresholds{Low: p.DefaultLow, High: p.DefaultHigh}
	}
	return Thresholds{
		Low:        time.Duration(p50 * p.LowFactor * float64(time.Millisecond)),
		High:       time.Duration(p95 * p.HighFactor * float64(time.Millisecond)),
		Calibrated: true,
	}
}

// EMA is an exponential moving average of latency, seeded by its first
// observation. The zero value (with Alpha set) holds no observation.
type EMA struct {
	Alpha  float64
	value  float64
	seeded bool
}

// Observe folds d into the average.
func (e *EMA) Observe(d time.Duration) {
	if !e.seeded {
		e.value = float64(d)
		e.seeded = true
		return
	}
	e.value = e.Alpha*float64(d) + (1-e.Alpha)*e.value
}

// Value returns the current estimate and whether any observation was made.
func (e *EMA) Value() (time.Duration, bool) {
	return time.Duration(e.value), e.seeded
}

// Reset forgets every observation.
func (e *EMA) Reset() {
	e.value = 0
	e.seeded = false
}
