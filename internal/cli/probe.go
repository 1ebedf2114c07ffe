/*
PURPOSE:
  Defines the 'probe' subcommand.
  Sends a single request to the target server and prints the outcome.
  Helps debug connectivity, the payload and reply parsing before a full run.

ARCHITECTURE INTEGRATION:
  - Calls: internal/engine.Client.Send()

ERROR HANDLING:
  - Returns an error when the request fails after every retry.

USAGE:
  halospec probe --url ... --draft-length 4
*/

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daryltucker/halospec-bench/internal/config"
	"github.com/daryltucker/halospec-bench/internal/engine"
	"github.com/daryltucker/halospec-bench/internal/model"
)

var (
	probeURL   string
	probeDraft int
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Send one request to the target server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if probeURL != "" {
			cfg.URL = probeURL
		}

		d := model.DraftLength(probeDraft)
		if !d.Valid() {
			return fmt.Errorf("%w: draft length %d outside [%d,%d]", config.ErrInvalidConfig, probeDraft, model.MinDraftLength, model.MaxDraftLength)
		}

		out := engine.NewClient(cfg, nil).Send(cmd.Context(), cfg.Prompt, d)
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "url:          %s\n", cfg.URL)
		fmt.Fprintf(w, "draft_length: %d\n", d)
		fmt.Fprintf(w, "success:      %t\n", out.Success)
		fmt.Fprintf(w, "latency_ms:   %d\n", out.Latency.Milliseconds())
		fmt.Fprintf(w, "tokens:       %d\n", out.Tokens)
		fmt.Fprintf(w, "reply:        %s\n", out.Reply)
		if !out.Success {
			return fmt.Errorf("probe of %s failed after %d attempts", cfg.URL, cfg.MaxAttempts)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().StringVar(&probeURL, "url", "", "Chat completions endpoint of the target server")
	probeCmd.Flags().IntVar(&probeDraft, "draft-length", 4, "Speculative draft length to request")
}
