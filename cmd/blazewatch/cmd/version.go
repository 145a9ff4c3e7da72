package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/blazewatch/pkg/config"
)

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the version, commit, and build time of blazewatch.

The user agent shown is the one sent with every dashboard request.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeVersion(os.Stdout, GetOutput(), versionShort)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "print the version number only")
}

func writeVersion(w io.Writer, format string, short bool) error {
	switch {
	case short:
		_, err := fmt.Fprintln(w, config.ShortVersionString())
		return err
	case format == "json":
		return writeJSON(w, config.GetBuildInfo())
	default:
		if _, err := fmt.Fprintln(w, config.VersionString()); err != nil {
			return err
		}
		if IsVerbose() {
			fmt.Fprintf(w, "user agent: %s\n", config.UserAgent())
		}
		return nil
	}
}
