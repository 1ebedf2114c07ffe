/*
PURPOSE:
  High-level runner that orchestrates the benchmarking process.
  Runs every mode (fixed draft lengths, then adaptive) against the target
  server, one request at a time, and logs every measured step.

REQUIREMENTS:
  User-specified:
  - Unlogged warmup before measurement.
  - Adaptive thresholds calibrated once per run from warmup percentiles.
  - Optional background CPU load during the adaptive run, with phase tags.
    The mode waits for the load to finish before it completes.
  - Force the next draft length to 1 after any failed step.
  - Cooldown between steps to protect a shared local server.

  Implementation-discovered:
  - The global step counter spans all modes of a run.
  - Host CPU and load average are logged next to steps to explain load-phase latency.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli
  - Uses: internal/engine (client, controller, loadgen), internal/output

ERROR HANDLING:
  - A failed step never aborts a mode.
  - Step log open failure is fatal; later write failures are logged (resilience).
  - Context cancellation stops the run and returns the partial results;
    modes without a measured step are left out.

IMPLEMENTATION RULES:
  - Modes run sequentially, never concurrently.
  - One in-flight request at a time.
  - The load generator is the only concurrent work.

USAGE:
  engine.Run(ctx, cfg, metrics, os.Stdout)

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - internal/engine/client.go
  - internal/engine/controller.go
  - internal/engine/loadgen.go

MAINTENANCE:
  - Update iteration logic if new modes are introduced.
*/

package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/daryltucker/halospec-bench/internal/config"
	"github.com/daryltucker/halospec-bench/internal/model"
	"github.com/daryltucker/halospec-bench/internal/output"
)

// Mode is one benchmark configuration.
type Mode struct {
	Name     string
	Fixed    model.DraftLength
	Adaptive bool
}

// FixedMode holds draft length d constant for the whole run.
func FixedMode(d model.DraftLength) Mode {
	return Mode{Name: fmt.Sprintf("fixed_%d", d), Fixed: d}
}

// AdaptiveMode lets the Policy pick the draft length every step.
func AdaptiveMode() Mode {
	return Mode{Name: model.AdaptiveModeName, Adaptive: true}
}

// ModesFromConfig lists the fixed sweep followed by the adaptive mode.
func ModesFromConfig(cfg *config.Config) []Mode {
	var modes []Mode
	for _, d := range cfg.FixedDraftLengths {
		modes = append(modes, FixedMode(model.ClampDraftLength(d)))
	}
	if cfg.Adaptive.Enabled {
		modes = append(modes, AdaptiveMode())
	}
	return modes
}

// StepSink receives every measured step. It is written by a single goroutine.
type StepSink interface {
	Write(rec model.StepRecord) error
}

type runState int

const (
	stateWarmup runState = iota
	stateCalibrating
	stateMeasuring
	stateDone
)

func (s runState) String() string {
	switch s {
	case stateWarmup:
		return "warmup"
	case stateCalibrating:
		return "calibrating"
	case stateMeasuring:
		return "measuring"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Runner drives modes against a Sender.
type Runner struct {
	Sender  Sender
	Sink    StepSink
	Policy  Policy
	Metrics *Metrics
	Host    *HostSampler

	Prompt      string
	Steps       int
	WarmupSteps int
	// WarmupDraft is the draft length used to warm up and start the adaptive mode.
	WarmupDraft       model.DraftLength
	Cooldown          time.Duration
	EMAAlpha          float64
	ResetEMAOnFailure bool
	Load              config.LoadInjection

	globalStep int
}

// NewRunner wires a Runner from cfg.
func NewRunner(cfg *config.Config, sender Sender, sink StepSink, m *Metrics, host *HostSampler) *Runner {
	return &Runner{
		Sender:            sender,
		Sink:              sink,
		Policy:            NewPolicy(cfg.Adaptive),
		Metrics:           m,
		Host:              host,
		Prompt:            cfg.Prompt,
		Steps:             cfg.Steps,
		WarmupSteps:       cfg.WarmupSteps,
		WarmupDraft:       model.ClampDraftLength(cfg.Adaptive.WarmupDraftLength),
		Cooldown:          cfg.Cooldown,
		EMAAlpha:          cfg.Adaptive.EMAAlpha,
		ResetEMAOnFailure: cfg.Adaptive.ResetEMAOnFailure,
		Load:              cfg.Load,
	}
}

// Run executes modes in order and returns their results. On cancellation it
// returns the results gathered so far together with the context error. A mode
// interrupted before its first measured step contributes no result.
func (r *Runner) Run(ctx context.Context, modes []Mode) ([]model.ModeResult, error) {
	var results []model.ModeResult
	for _, mode := range modes {
		res, err := r.RunMode(ctx, mode)
		if res.Steps > 0 {
			results = append(results, res)
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// RunMode runs one mode through warmup, calibration and measurement.
func (r *Runner) RunMode(ctx context.Context, mode Mode) (model.ModeResult, error) {
	start := mode.Fixed
	if mode.Adaptive {
		start = r.WarmupDraft
	}

	r.transition(mode, stateWarmup)
	warm := r.warmup(ctx, start)
	if err := ctx.Err(); err != nil {
		return model.NewResultBuilder(mode.Name).Build(), err
	}

	var th Thresholds
	if mode.Adaptive {
		r.transition(mode, stateCalibrating)
		th = r.Policy.Calibrate(warm)
		output.Logger.Info("Thresholds set",
			"mode", mode.Name,
			"low_ms", th.Low.Milliseconds(),
			"high_ms", th.High.Milliseconds(),
			"calibrated", th.Calibrated,
			"warmup_samples", len(warm),
		)
	}

	r.transition(mode, stateMeasuring)
	b := model.NewResultBuilder(mode.Name)
	ema := EMA{Alpha: r.EMAAlpha}
	current := start
	fallback := false
	var load *LoadHandle
	var runErr error

	for step := 1; step <= r.Steps; step++ {
		if runErr = ctx.Err(); runErr != nil {
			break
		}

		if mode.Adaptive && r.Load.Enabled && load == nil && step == r.Load.TriggerStep {
			load = StartLoad(ctx, r.Load.Duration, r.Load.Workers)
			r.Metrics.setLoadActive(true)
			output.Logger.Info("Background load started", "mode", mode.Name, "step", step, "duration", r.Load.Duration, "workers", r.Load.Workers)
		}
		phase := phaseOf(load)

		switch {
		case fallback:
			current = model.MinDraftLength
		case mode.Adaptive:
			smoothed, observed := ema.Value()
			current = r.Policy.Next(smoothed, observed, current, th)
		default:
			current = mode.Fixed
		}
		fallback = false

		out := r.Sender.Send(ctx, r.Prompt, current)
		if out.Success {
			ema.Observe(out.Latency)
		} else {
			fallback = true
			if r.ResetEMAOnFailure {
				ema.Reset()
			}
		}

		r.globalStep++
		rec := model.StepRecord{
			GlobalStep:  r.globalStep,
			Step:        step,
			Mode:        mode.Name,
			Phase:       phase,
			DraftLength: current,
			Success:     out.Success,
			Latency:     out.Latency,
			Tokens:      out.Tokens,
		}
		b.Add(rec)
		r.record(rec, out, load)

		if runErr = sleepCtx(ctx, r.Cooldown); runErr != nil {
			break
		}
	}

	if load != nil {
		// The load runs its full duration even if the measured steps finish
		// first; cancellation has already reached it through ctx.
		if load.Active() {
			output.Logger.Info("Waiting for background load to finish", "mode", mode.Name)
		}
		load.Wait()
		r.Metrics.setLoadActive(false)
	}
	r.transition(mode, stateDone)

	res := b.Build()
	attrs := []any{"mode", mode.Name, "steps", res.Steps, "successes", res.Successes, "failures", res.Failures}
	if l1, ok := r.Host.Load1(ctx); ok {
		attrs = append(attrs, "load1", fmt.Sprintf("%.2f", l1))
	}
	output.Logger.Info("Mode complete", attrs...)
	return res, runErr
}

// warmup sends unlogged requests at draft and keeps the successful latencies.
func (r *Runner) warmup(ctx context.Context, draft model.DraftLength) []time.Duration {
	var lat []time.Duration
	for i := 0; i < r.WarmupSteps; i++ {
		if ctx.Err() != nil {
			break
		}
		out := r.Sender.Send(ctx, r.Prompt, draft)
		if out.Success {
			lat = append(lat, out.Latency)
		}
		if sleepCtx(ctx, r.Cooldown) != nil {
			break
		}
	}
	return lat
}

func (r *Runner) record(rec model.StepRecord, out model.Outcome, load *LoadHandle) {
	if err := r.Sink.Write(rec); err != nil {
		output.Logger.Error("Failed to write step to log", "global_step", rec.GlobalStep, "error", err)
	}
	r.Metrics.observeStep(rec)
	if load != nil && !load.Active() {
		r.Metrics.setLoadActive(false)
	}

	attrs := []any{
		"step", rec.Step,
		"mode", rec.Mode,
		"phase", rec.Phase,
		"draft_length", rec.DraftLength,
		"success", rec.Success,
		"latency_ms", rec.Latency.Milliseconds(),
		"tokens", rec.Tokens,
		"reply", out.Reply,
	}
	if pct, ok := r.Host.CPUBusy(); ok {
		r.Metrics.setHostCPU(pct)
		attrs = append(attrs, "host_cpu_pct", fmt.Sprintf("%.1f", pct))
	}
	output.Logger.Info("Step", attrs...)
}

func (r *Runner) transition(mode Mode, s runState) {
	output.Logger.Debug("Mode state", "mode", mode.Name, "state", s.String())
}

// phaseOf tags a step from the load handle: steady before load starts,
// load while it runs, recovery once it has finished.
func phaseOf(load *LoadHandle) model.Phase {
	switch {
	case load == nil:
		return model.PhaseSteady
	case load.Active():
		return model.PhaseLoad
	default:
		return model.PhaseRecovery
	}
}

// Run executes the full benchmark suite described by cfg, appends every step
// to the CSV log, writes per-mode summaries as JSON lines and prints the
// comparison to w. m may be nil.
func Run(ctx context.Context, cfg *config.Config, m *Metrics, w io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", cfg.OutputDir, err)
	}

	csvPath := filepath.Join(cfg.OutputDir, cfg.OutputFile)
	stepLog, err := output.NewCSVWriter(csvPath)
	if err != nil {
		return fmt.Errorf("failed to open step log at %s: %w", csvPath, err)
	}
	defer stepLog.Close()

	var jsonWriter *output.JSONWriter
	if cfg.SummaryFile != "" {
		jsonPath := filepath.Join(cfg.OutputDir, cfg.SummaryFile)
		jsonWriter, err = output.NewJSONWriter(jsonPath)
		if err != nil {
			return fmt.Errorf("failed to init JSON writer at %s: %w", jsonPath, err)
		}
		defer jsonWriter.Close()
		output.Logger.Info("Mode summaries enabled", "path", jsonPath, "run_id", jsonWriter.RunID())
	}

	modes := ModesFromConfig(cfg)
	output.Logger.Info("Starting benchmark",
		"url", cfg.URL,
		"model", cfg.Model,
		"modes", len(modes),
		"steps", cfg.Steps,
		"load_injection", cfg.Load.Enabled,
		"step_log", csvPath,
	)

	runner := NewRunner(cfg, NewClient(cfg, m), stepLog, m, NewHostSampler())
	results, runErr := runner.Run(ctx, modes)

	summary := output.Summarize(results, cfg.ConvergenceWindow)
	if jsonWriter != nil {
		for _, ms := range summary.Modes {
			if err := jsonWriter.Write(ms); err != nil {
				output.Logger.Error("Failed to write mode summary to JSON", "mode", ms.Mode, "error", err)
			}
		}
	}
	if err := output.RenderSummary(w, summary); err != nil {
		return fmt.Errorf("failed to print summary: %w", err)
	}

	return runErr
}
