/*
PURPOSE:
  Defines the core data structures used throughout HaloSpec Bench.
  These models represent single request outcomes, logged steps and
  the per-mode aggregate consumed by the summary reporter.

REQUIREMENTS:
  User-specified:
  - Draft length is an integer in [1,8].
  - Record latency, token count and success for every measured step.
  - Tag each step with a phase (steady, load, recovery).

  Implementation-discovered:
  - Mode results are folded from step records so that a run and a
    re-read CSV log produce the same aggregate.
  - Latencies and tokens must stay index-aligned (successful steps only).

ARCHITECTURE INTEGRATION:
  - Used by: internal/engine, internal/output, internal/cli
  - Shared across boundaries.

ERROR HANDLING:
  - None (pure data structs).

IMPLEMENTATION RULES:
  - Keep structs simple and public.
  - Use time.Duration for latencies; convert to milliseconds only at the edges.

USAGE:
  b := model.NewResultBuilder("adaptive")
  b.Add(rec)
  res := b.Build()

SELF-HEALING INSTRUCTIONS:
  - If new per-step fields are needed, add them to StepRecord and update
    the CSV writer and reader.

RELATED FILES:
  - internal/output/csv.go
  - internal/output/summary.go

MAINTENANCE:
  - Update when adding new metrics to capture.
*/

package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	// MinDraftLength is the smallest draft length the target server accepts.
	MinDraftLength DraftLength = 1
	// MaxDraftLength is the largest draft length the target server accepts.
	MaxDraftLength DraftLength = 8

	// FailedReply is the reply preview recorded for a request that never succeeded.
	FailedReply = "FAILED"

	// AdaptiveModeName names the adaptive mode in logs and summaries.
	AdaptiveModeName = "adaptive"
)

// DraftLength is the speculative draft length sent to the target server.
type DraftLength int

// ClampDraftLength bounds n to [MinDraftLength, MaxDraftLength].
func ClampDraftLength(n int) DraftLength {
	if n < int(MinDraftLength) {
		return MinDraftLength
	}
	if n > int(MaxDraftLength) {
		return MaxDraftLength
	}
	return DraftLength(n)
}

// Valid reports whether d is within the accepted range.
func (d DraftLength) Valid() bool {
	return d >= MinDraftLength && d <= MaxDraftLength
}

// Phase labels a measured step relative to background load injection.
type Phase string

const (
	PhaseSteady   Phase = "steady"
	PhaseLoad     Phase = "load"
	PhaseRecovery Phase = "recovery"
)

// Phases lists every phase in reporting order.
var Phases = []Phase{PhaseSteady, PhaseLoad, PhaseRecovery}

// ParsePhase converts a logged phase tag back into a Phase.
func ParsePhase(s string) (Phase, error) {
	switch p := Phase(strings.TrimSpace(s)); p {
	case PhaseSteady, PhaseLoad, PhaseRecovery:
		return p, nil
	case "":
		return PhaseSteady, nil
	default:
		return "", fmt.Errorf("unknown phase %q", s)
	}
}

// Outcome is the immutable result of one measured request.
type Outcome struct {
	Success bool          `json:"success"`
	Latency time.Duration `json:"latency"`
	Tokens  int           `json:"tokens"`
	Reply   string        `json:"reply"`
}

// FailedOutcome is returned once every delivery attempt has failed.
func FailedOutcome() Outcome {
	return Outcome{Reply: FailedReply}
}

// StepRecord is one measured step. It is the unit persisted to the step log.
type StepRecord struct {
	GlobalStep  int           `json:"global_step"`
	Step        int           `json:"step"`
	Mode        string        `json:"mode"`
	Phase       Phase         `json:"phase"`
	DraftLength DraftLength   `json:"draft_length"`
	Success     bool          `json:"success"`
	Latency     time.Duration `json:"latency"`
	Tokens      int           `json:"tokens"`
}

// ModeResult aggregates every step of one mode run.
type ModeResult struct {
	Mode         string
	Steps        int
	Successes    int
	Failures     int
	Latencies    []time.Duration // successful steps only
	Tokens       []int           // aligned with Latencies
	DraftLengths []DraftLength   // one per step, failed steps included
	Records      []StepRecord
}

// SuccessRate returns the fraction of steps that succeeded.
func (r ModeResult) SuccessRate() float64 {
	if r.Steps == 0 {
		return 0
	}
	return float64(r.Successes) / float64(r.Steps)
}

// LatenciesFor returns the successful latencies recorded during phase p.
func (r ModeResult) LatenciesFor(p Phase) []time.Duration {
	var out []time.Duration
	for _, rec := range r.Records {
		if rec.Success && rec.Phase == p {
			out = append(out, rec.Latency)
		}
	}
	return out
}

// ResultBuilder folds step records into a ModeResult. It is owned by a
// single mode run and must not be shared.
type ResultBuilder struct {
	res ModeResult
}

// NewResultBuilder starts an empty aggregate for mode.
func NewResultBuilder(mode string) *ResultBuilder {
	return &ResultBuilder{res: ModeResult{Mode: mode}}
}

// Add folds one step into the aggregate.
func (b *ResultBuilder) Add(rec StepRecord) {
	b.res.Steps++
	b.res.DraftLengths = append(b.res.DraftLengths, rec.DraftLength)
	b.res.Records = append(b.res.Records, rec)
	if !rec.Success {
		b.res.Failures++
		return
	}
	b.res.Successes++
	b.res.Latencies = append(b.res.Latencies, rec.Latency)
	b.res.Tokens = append(b.res.Tokens, rec.Tokens)
}

// Build returns the aggregate. The builder must not be used afterwards.
func (b *ResultBuilder) Build() ModeResult {
	res := b.res
	b.res = ModeResult{}
	return res
}
