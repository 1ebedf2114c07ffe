/*
PURPOSE:
  Defines the root Cobra command for the HaloSpec Bench CLI.
  Handles global flags (config file, logging) and command initialization.

REQUIREMENTS:
  User-specified:
  - Support a --config flag.

  Implementation-discovered:
  - Logging must be configured before any subcommand runs, so it
    happens in PersistentPreRunE.

ARCHITECTURE INTEGRATION:
  - Called by: cmd/halospec/main.go
  - Calls: Child commands (run, probe, analyze)

ERROR HANDLING:
  - Returns error to main.go for exit code handling.

IMPLEMENTATION RULES:
  - Use `PersistentFlags()` for flags available to all subcommands.

USAGE:
  Called by main.go.

SELF-HEALING INSTRUCTIONS:
  - If adding new global flags, add them to init().

RELATED FILES:
  - cmd/halospec/main.go

MAINTENANCE:
  - Update when adding global configuration options.
*/

package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/daryltucker/halospec-bench/internal/output"
)

var (
	// cfgFile stores the path to the config file (if specified via flag)
	cfgFile   string
	logLevel  string
	logFormat string

	rootCmd = &cobra.Command{
		Use:   "halospec",
		Short: "Speculative decoding draft-length benchmark",
		Long: `Benchmarks fixed speculative draft lengths against an adaptive
controller on an OpenAI-compatible chat completions server.
Use 'run --help' for benchmark options.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return output.Configure(os.Stderr, logLevel, logFormat)
		},
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./halospec.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
}
