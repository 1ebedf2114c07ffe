/*
PURPOSE:
  Per-mode summary and winner selection.
  Reduces each ModeResult to comparable statistics and prints the
  comparison table shown at the end of a run and by 'analyze'.

REQUIREMENTS:
  User-specified:
  - Report steps, success rate, mean, p50, p95, min, max, stddev,
    throughput and score for every mode.
  - For adaptive: oscillation count and convergence step.
  - The mode with the lowest score wins.

  Implementation-discovered:
  - Adaptive latency is also broken down by load phase.
  - A mode with no successful step has no score and cannot win.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/runner.go (Run), internal/cli/analyze.go
  - Uses: internal/stats
  - Dependencies: github.com/fatih/color (winner line)

ERROR HANDLING:
  - RenderSummary returns write errors.

IMPLEMENTATION RULES:
  - Undefined statistics are nil and render as "-".

RELATED FILES:
  - internal/output/json.go (same ModeSummary, as JSON lines)
*/

package output

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/daryltucker/halospec-bench/internal/model"
	"github.com/daryltucker/halospec-bench/internal/stats"
)

// ModeSummary is the comparable digest of one mode. Nil fields are undefined
// for the mode (e.g. no successful step).
type ModeSummary struct {
	Mode        string   `json:"mode"`
	Steps       int      `json:"steps"`
	Successes   int      `json:"successes"`
	Failures    int      `json:"failures"`
	SuccessRate float64  `json:"success_rate"`
	MeanMS      *float64 `json:"mean_ms,omitempty"`
	P50MS       *float64 `json:"p50_ms,omitempty"`
	P95MS       *float64 `json:"p95_ms,omitempty"`
	MinMS       *float64 `json:"min_ms,omitempty"`
	MaxMS       *float64 `json:"max_ms,omitempty"`
	StdDevMS    *float64 `json:"stddev_ms,omitempty"`
	Throughput  *float64 `json:"tokens_per_sec,omitempty"`
	Score       *float64 `json:"score,omitempty"`

	// Adaptive mode only.
	Oscillations    *int           `json:"oscillations,omitempty"`
	ConvergenceStep *int           `json:"convergence_step,omitempty"`
	Phases          []PhaseSummary `json:"phases,omitempty"`
}

// PhaseSummary breaks adaptive latency down by load phase.
type PhaseSummary struct {
	Phase  model.Phase `json:"phase"`
	Count  int         `json:"count"`
	MeanMS *float64    `json:"mean_ms,omitempty"`
	P95MS  *float64    `json:"p95_ms,omitempty"`
}

// Summary compares every mode of a run.
type Summary struct {
	Modes []ModeSummary
	// Winner is the mode with the lowest score; empty when no mode scored.
	Winner string
	// ConvergenceWindow is the k used for ConvergenceStep.
	ConvergenceWindow int
}

// Summarize computes the per-mode statistics and picks the winner.
func Summarize(results []model.ModeResult, convergenceWindow int) Summary {
	s := Summary{ConvergenceWindow: convergenceWindow}
	var best *float64
	for _, res := range results {
		ms := summarizeMode(res, convergenceWindow)
		s.Modes = append(s.Modes, ms)
		if ms.Score != nil && (best == nil || *ms.Score < *best) {
			best = ms.Score
			s.Winner = ms.Mode
		}
	}
	return s
}

func summarizeMode(res model.ModeResult, k int) ModeSummary {
	lat := stats.Millis(res.Latencies)
	ms := ModeSummary{
		Mode:        res.Mode,
		Steps:       res.Steps,
		Successes:   res.Successes,
		Failures:    res.Failures,
		SuccessRate: res.SuccessRate(),
		MeanMS:      opt(stats.Mean(lat)),
		P50MS:       opt(stats.Percentile(lat, 50)),
		P95MS:       opt(stats.Percentile(lat, 95)),
		MinMS:       opt(stats.Min(lat)),
		MaxMS:       opt(stats.Max(lat)),
		StdDevMS:    opt(stats.StdDev(lat)),
		Throughput:  opt(stats.Throughput(res.Tokens, res.Latencies)),
		Score:       opt(stats.Score(lat)),
	}

	if res.Mode == model.AdaptiveModeName {
		osc := stats.OscillationCount(res.DraftLengths)
		ms.Oscillations = &osc
		ms.ConvergenceStep = opt(stats.ConvergenceStep(res.DraftLengths, k))
		for _, p := range model.Phases {
			pl := stats.Millis(res.LatenciesFor(p))
			if len(pl) == 0 {
				continue
			}
			ms.Phases = append(ms.Phases, PhaseSummary{
				Phase:  p,
				Count:  len(pl),
				MeanMS: opt(stats.Mean(pl)),
				P95MS:  opt(stats.Percentile(pl, 95)),
			})
		}
	}
	return ms
}

func opt[T any](v T, ok bool) *T {
	if !ok {
		return nil
	}
	return &v
}

// RenderSummary prints the comparison table, adaptive diagnostics and winner.
func RenderSummary(w io.Writer, s Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "mode\tsteps\tsuccess\tfail\tmean_ms\tp50_ms\tp95_ms\tmin_ms\tmax_ms\tstddev\ttok/s\tscore\t")
	for _, m := range s.Modes {
		fmt.Fprintf(tw, "%s\t%d\t%.1f%%\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			m.Mode, m.Steps, m.SuccessRate*100, m.Failures,
			num(m.MeanMS, 0), num(m.P50MS, 0), num(m.P95MS, 0), num(m.MinMS, 0), num(m.MaxMS, 0),
			num(m.StdDevMS, 1), num(m.Throughput, 2), num(m.Score, 1),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, m := range s.Modes {
		if m.Oscillations == nil {
			continue
		}
		conv := "never"
		if m.ConvergenceStep != nil {
			conv = fmt.Sprintf("step %d", *m.ConvergenceStep)
		}
		fmt.Fprintf(w, "\n%s: oscillations=%d convergence(k=%d)=%s\n", m.Mode, *m.Oscillations, s.ConvergenceWindow, conv)
		for _, p := range m.Phases {
			fmt.Fprintf(w, "  %-9s n=%-3d mean_ms=%s p95_ms=%s\n", p.Phase, p.Count, num(p.MeanMS, 0), num(p.P95MS, 0))
		}
	}

	fmt.Fprintln(w)
	if s.Winner == "" {
		_, err := color.New(color.FgYellow).Fprintln(w, "No winner: no mode completed a successful step")
		return err
	}
	var score float64
	for _, m := range s.Modes {
		if m.Mode == s.Winner {
			score = *m.Score
		}
	}
	_, err := color.New(color.FgGreen, color.Bold).Fprintf(w, "Winner: %s (score %.1f, lower is better)\n", s.Winner, score)
	return err
}

func num(v *float64, prec int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.*f", prec, *v)
}
