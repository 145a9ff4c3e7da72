package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/blazewatch/internal/history"
	"github.com/good-yellow-bee/blazewatch/internal/models"
)

var (
	alertsLast       int
	alertsQualifying bool
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show recent alerts",
	Long: `Fetch the server's alert history once and print the most recent
alerts, oldest first. Malformed records are skipped.

Examples:
  # Show the 20 most recent alerts
  blazewatch alerts --last 20

  # Show only critical and high alerts as JSON
  blazewatch alerts --qualifying -o json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		api, cfg, err := newClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
		defer cancel()

		recs, err := api.Alerts(ctx)
		if err != nil {
			return err
		}

		buf := history.New(history.DefaultCapacity)
		buf.ReplaceAll(selectAlerts(recs, alertsQualifying))
		PrintVerbose("fetched %d alerts, kept %d", len(recs), buf.Len())

		writeAlerts(os.Stdout, GetOutput(), buf.LastN(alertsLast), cfg.Notify.Locale)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(alertsCmd)

	alertsCmd.Flags().IntVarP(&alertsLast, "last", "n", 50, "number of alerts to show")
	alertsCmd.Flags().BoolVar(&alertsQualifying, "qualifying", false, "only show critical and high alerts")
}

// selectAlerts drops malformed records and, if qualifying is set, those
// below high severity.
func selectAlerts(recs []models.AlertRecord, qualifying bool) []models.AlertRecord {
	out := make([]models.AlertRecord, 0, len(recs))
	for _, rec := range recs {
		if rec.Validate() != nil {
			continue
		}
		if qualifying && !rec.Level().Qualifies() {
			continue
		}
		out = append(out, rec)
	}
	return out
}
