/*
PURPOSE:
  Defines the 'analyze' subcommand.
  Rebuilds the summary table from an existing step log.

REQUIREMENTS:
  Implementation-discovered:
  - The step log is appended to by every run, so one run is picked
    (the last by default) before summarizing. Convergence and
    oscillation only make sense within a single run.

ARCHITECTURE INTEGRATION:
  - Calls: internal/output (ReadSteps, SplitRuns, GroupByMode, Summarize)

ERROR HANDLING:
  - Returns error on unreadable logs, malformed rows or an unknown run.

USAGE:
  halospec analyze ./results/results_phase0.csv --run 2
*/

package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/daryltucker/halospec-bench/internal/config"
	"github.com/daryltucker/halospec-bench/internal/output"
)

var (
	analyzeWindow int
	analyzeRun    int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [step-log.csv]",
	Short: "Summarize a previously written step log",
	Long: `Reads a step log and prints the per-mode summary of one run.
Runs are numbered from 1 in the order they were appended; the last run
is used unless --run is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		path := filepath.Join(cfg.OutputDir, cfg.OutputFile)
		if len(args) == 1 {
			path = args[0]
		}
		k := cfg.ConvergenceWindow
		if cmd.Flags().Changed("window") {
			k = analyzeWindow
		}
		if k < 1 {
			return fmt.Errorf("%w: window must be >= 1", config.ErrInvalidConfig)
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open step log: %w", err)
		}
		defer f.Close()

		records, err := output.ReadSteps(f)
		if err != nil {
			return err
		}
		runs := output.SplitRuns(records)
		if len(runs) == 0 {
			return fmt.Errorf("step log %s has no steps", path)
		}

		n := analyzeRun
		if n == 0 {
			n = len(runs)
		}
		if n < 1 || n > len(runs) {
			return fmt.Errorf("run %d not found: %s holds %d runs", analyzeRun, path, len(runs))
		}
		output.Logger.Info("Loaded step log", "path", path, "records", len(records), "runs", len(runs), "run", n)

		fmt.Fprintf(cmd.OutOrStdout(), "Run %d of %d\n\n", n, len(runs))
		summary := output.Summarize(output.GroupByMode(runs[n-1]), k)
		return output.RenderSummary(cmd.OutOrStdout(), summary)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().IntVar(&analyzeWindow, "window", 5, "Consecutive equal draft lengths that count as converged")
	analyzeCmd.Flags().IntVar(&analyzeRun, "run", 0, "Run to summarize, counted from 1 (default: last run)")
}
