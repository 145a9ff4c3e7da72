package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/blazewatch/internal/client"
	"github.com/good-yellow-bee/blazewatch/internal/models"
	"github.com/good-yellow-bee/blazewatch/internal/reconcile"
)

var startCmd = &cobra.Command{
	Use:   "start [file...]",
	Short: "Ask the server to start tailing",
	Long: `Ask the server to start tailing the given files, or every enabled
log file when none are given. Files the server could not open are listed
but do not fail the command.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		api, cfg, err := newClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
		defer cancel()

		files, err := targetFiles(ctx, api, args)
		if err != nil {
			return err
		}
		res, err := api.StartTailing(ctx, files)
		if err != nil {
			return &reconcile.CommandError{Op: "start", Err: err}
		}
		writeTailResult(os.Stdout, GetOutput(), res)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop [file...]",
	Short: "Ask the server to stop tailing",
	Long:  `Ask the server to stop tailing the given files, or every enabled log file when none are given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		api, cfg, err := newClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
		defer cancel()

		files, err := targetFiles(ctx, api, args)
		if err != nil {
			return err
		}
		if err := api.StopTailing(ctx, files); err != nil {
			return &reconcile.CommandError{Op: "stop", Err: err}
		}
		PrintVerbose("stopped %d file(s)", len(files))
		return nil
	},
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List configured log files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		api, cfg, err := newClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
		defer cancel()

		files, err := api.LogFiles(ctx)
		if err != nil {
			return err
		}

		if GetOutput() == "json" {
			return writeJSON(os.Stdout, files)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "PATH\tNAME\tTYPE\tENABLED")
		for _, f := range files {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Path, f.Name, f.Type, yesNo(f.Enabled))
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(filesCmd)
}

// targetFiles returns args, or the enabled log files when args is empty.
func targetFiles(ctx context.Context, api *client.Client, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	files, err := api.LogFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list log files: %w", err)
	}
	paths := models.EnabledPaths(files)
	if len(paths) == 0 {
		return nil, reconcile.ErrNoFiles
	}
	return paths, nil
}
