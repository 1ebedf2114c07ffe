/*
PURPOSE:
  Defines the 'run' subcommand.
  Executes the full benchmark suite: every fixed draft length, then adaptive.

REQUIREMENTS:
  User-specified:
  - Run the benchmarks.
  - Flags for common overrides.

  Implementation-discovered:
  - Load config first, then apply flag overrides.
  - Ctrl-C must stop the run but still print the partial summary.
  - Optional Prometheus endpoint for watching a long run.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.Run()
  - Uses: internal/config

ERROR HANDLING:
  - Returns error if config load fails or engine run fails.
  - Metrics server failures are logged, never fatal.

IMPLEMENTATION RULES:
  - Setup flags in init().
  - Logic: Load Config -> Override -> Engine.Run.

USAGE:
  halospec run --url http://localhost:8000/api/v1/chat/completions

SELF-HEALING INSTRUCTIONS:
  - Check flag names match config keys.

RELATED FILES:
  - internal/cli/root.go
  - internal/engine/runner.go

MAINTENANCE:
  - Update when adding new CLI overrides.
*/

package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/daryltucker/halospec-bench/internal/config"
	"github.com/daryltucker/halospec-bench/internal/engine"
	"github.com/daryltucker/halospec-bench/internal/output"
)

var (
	urlOverride     string
	outputOverride  string
	promptFile      string
	stepsOverride   int
	loadOverride    bool
	noLoadOverride  bool
	decreaseStep    int
	metricsOverride string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the benchmark suite",
	Long: `Runs every fixed draft length, then the adaptive controller, against
the target server. Each mode is:
1. Warmup: unlogged requests; for adaptive these calibrate the thresholds.
2. Measurement: one request per step, logged to the step CSV.
3. Summary: latency percentiles, throughput and score per mode.

The adaptive run can inject background CPU load to measure how the
controller reacts. Steps are tagged steady, load or recovery.`,
	Example: `  # Run with defaults (uses halospec.yaml if present)
  halospec run

  # Short run against another server, results in ./bench
  halospec run --url http://gpu-box:8000/api/v1/chat/completions --steps 10 -o ./bench

  # Inject background load, back off by 2 on slow steps
  halospec run --load --decrease-step 2

  # Expose Prometheus metrics while running
  halospec run --metrics-addr :9109`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if err := applyRunOverrides(cmd, cfg); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var m *engine.Metrics
		if cfg.MetricsAddr != "" {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector())
			m = engine.NewMetrics(reg)
			srv := serveMetrics(cfg.MetricsAddr, reg)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		err = engine.Run(ctx, cfg, m, cmd.OutOrStdout())
		if errors.Is(err, context.Canceled) {
			output.Logger.Warn("Benchmark interrupted; summary covers completed steps")
			return nil
		}
		return err
	},
}

func applyRunOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if urlOverride != "" {
		cfg.URL = urlOverride
	}
	if outputOverride != "" {
		cfg.OutputDir = outputOverride
	}
	if promptFile != "" {
		data, err := os.ReadFile(promptFile)
		if err != nil {
			return fmt.Errorf("failed to read prompt file: %w", err)
		}
		cfg.Prompt = string(data)
	}
	if flags.Changed("steps") {
		cfg.Steps = stepsOverride
	}
	if loadOverride {
		cfg.Load.Enabled = true
	}
	if noLoadOverride {
		cfg.Load.Enabled = false
	}
	if flags.Changed("decrease-step") {
		cfg.Adaptive.DecreaseStep = decreaseStep
	}
	if metricsOverride != "" {
		cfg.MetricsAddr = metricsOverride
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		output.Logger.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			output.Logger.Error("Metrics server failed", "addr", addr, "error", err)
		}
	}()
	return srv
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&urlOverride, "url", "", "Chat completions endpoint of the target server")
	runCmd.Flags().StringVarP(&outputOverride, "output-dir", "o", "", "Output directory for the step log and summaries")
	runCmd.Flags().StringVarP(&promptFile, "prompt-file", "p", "", "Path to a text file containing the prompt (overrides config)")
	runCmd.Flags().IntVar(&stepsOverride, "steps", 0, "Measured steps per mode")
	runCmd.Flags().BoolVar(&loadOverride, "load", false, "Inject background CPU load during the adaptive run")
	runCmd.Flags().BoolVar(&noLoadOverride, "no-load", false, "Disable background load injection")
	runCmd.Flags().IntVar(&decreaseStep, "decrease-step", 1, "Draft length decrement when latency is high (1 or 2)")
	runCmd.Flags().StringVar(&metricsOverride, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9109)")
	runCmd.MarkFlagsMutuallyExclusive("load", "no-load")
}
