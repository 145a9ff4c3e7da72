package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

const maxMessageLen = 100

// writeAlert renders one alert in the given output format.
func writeAlert(w io.Writer, format string, rec models.AlertRecord, locale string) {
	switch format {
	case "json":
		data, err := json.Marshal(rec)
		if err != nil {
			fmt.Fprintln(w, rec.Line)
			return
		}
		fmt.Fprintln(w, string(data))
	case "plain":
		fmt.Fprintf(w, "%s %s\n", rec.Source, rec.Line)
	default:
		timestamp := rec.Timestamp.Local().Format("2006-01-02 15:04:05")
		label := models.SeverityLabel(rec.Severity, locale)
		fmt.Fprintf(w, "%s [%-8s] [%s] %s\n", timestamp, label, rec.Source, truncate(rec.Text(), maxMessageLen))
	}
}

// writeAlerts renders a list of alerts. JSON output is a single array.
func writeAlerts(w io.Writer, format string, recs []models.AlertRecord, locale string) {
	if format == "json" {
		if recs == nil {
			recs = []models.AlertRecord{}
		}
		data, _ := json.MarshalIndent(recs, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}
	for _, rec := range recs {
		writeAlert(w, format, rec, locale)
	}
}

// statusReport is the JSON form of the status command.
type statusReport struct {
	Stats     models.Stats            `json:"stats"`
	Tailing   models.TailingStatus    `json:"tailing"`
	Histogram map[models.Severity]int `json:"histogram"`
}

// writeStats renders server statistics in the given output format.
func writeStats(w io.Writer, format string, stats models.Stats, status models.TailingStatus, locale string) {
	hist := stats.Histogram()

	switch format {
	case "json":
		data, _ := json.MarshalIndent(statusReport{Stats: stats, Tailing: status, Histogram: hist}, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	case "plain":
		fmt.Fprintf(w, "alerts=%d rules=%d files=%d tailing=%t\n",
			stats.TotalAlerts, stats.ActiveRules, status.WatchedFileCount, status.Active)
		for _, sev := range histogramOrder(hist) {
			fmt.Fprintf(w, "%s=%d\n", sev, hist[sev])
		}
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Total alerts:\t%d\n", stats.TotalAlerts)
	fmt.Fprintf(tw, "Active rules:\t%d\n", stats.ActiveRules)
	fmt.Fprintf(tw, "Tailing:\t%s\n", yesNo(status.Active))
	fmt.Fprintf(tw, "Watched files:\t%d\n", status.WatchedFileCount)
	for _, p := range status.WatchedFilePaths {
		fmt.Fprintf(tw, "\t%s\n", p)
	}
	if !status.UpdatedAt.IsZero() {
		fmt.Fprintf(tw, "Updated:\t%s\n", status.UpdatedAt.Local().Format(time.RFC3339))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "SEVERITY\tCOUNT")
	for _, sev := range histogramOrder(hist) {
		fmt.Fprintf(tw, "%s\t%d\n", sev.Label(locale), hist[sev])
	}
	tw.Flush()
}

// writeTailResult renders the outcome of a start command.
func writeTailResult(w io.Writer, format string, res models.TailStartResult) {
	switch format {
	case "json":
		data, _ := json.MarshalIndent(res, "", "  ")
		fmt.Fprintln(w, string(data))
	default:
		for _, f := range res.Started {
			fmt.Fprintf(w, "started %s\n", f)
		}
		for _, f := range res.Failed {
			fmt.Fprintf(w, "failed  %s\n", f)
		}
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// histogramOrder lists known buckets first, then unknown if present.
func histogramOrder(hist map[models.Severity]int) []models.Severity {
	order := append([]models.Severity(nil), models.Severities...)
	if hist[models.SeverityUnknown] > 0 {
		order = append(order, models.SeverityUnknown)
	}
	return order
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
