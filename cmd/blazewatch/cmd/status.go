package cmd

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server statistics and tailing status",
	Long: `Fetch the dashboard statistics once and print them, including the
severity histogram and the files currently being tailed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		api, cfg, err := newClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
		defer cancel()

		stats, err := api.Stats(ctx)
		if err != nil {
			return err
		}
		status := stats.TailingStatus()
		status.UpdatedAt = time.Now()

		writeStats(os.Stdout, GetOutput(), stats, status, cfg.Notify.Locale)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
