package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/blazewatch/internal/client"
)

var (
	analyzeQualifying bool
	analyzeTimeout    time.Duration
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file...]",
	Short: "Run a one-shot analysis of log files",
	Long: `Ask the server to classify the given log files in one pass, or every
enabled log file when none are given, and print the matching alerts.
The result does not touch the live tailing session.

Examples:
  # Analyze every enabled file
  blazewatch analyze

  # Analyze one file and show only critical and high alerts
  blazewatch analyze /var/log/nginx/error.log --qualifying`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		// Analysis reads whole files; allow it more than a routine request.
		if analyzeTimeout > 0 {
			cfg.Server.Timeout = analyzeTimeout
		}
		api, err := client.New(cfg.ClientConfig())
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
		defer cancel()

		res, err := api.Analyze(ctx, args)
		if err != nil {
			return fmt.Errorf("analyze: %w", err)
		}
		entries := selectAlerts(res.Entries, analyzeQualifying)
		PrintVerbose("server matched %d alerts, showing %d", res.Count, len(entries))

		writeAlerts(os.Stdout, GetOutput(), entries, cfg.Notify.Locale)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().BoolVar(&analyzeQualifying, "qualifying", false, "only show critical and high alerts")
	analyzeCmd.Flags().DurationVar(&analyzeTimeout, "timeout", time.Minute, "how long to wait for the analysis (0: server.timeout)")
}
