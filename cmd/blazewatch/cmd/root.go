// Package cmd contains the CLI commands for blazewatch.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/blazewatch/internal/client"
)

const defaultConfigFile = "blazewatch.yaml"

var (
	// Used for flags
	verbose    bool
	output     string
	configFile string
	serverURL  string
	token      string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "blazewatch",
	Short: "blazewatch - live alert console for the log analyzer dashboard",
	Long: `blazewatch follows the alerts of a log analyzer dashboard from the
terminal. It merges the real-time alert channel with periodic snapshots of
the server state, so no alert is shown twice and none is lost while the
channel reconnects.

Examples:
  # Follow alerts, resuming the server's tailing session if one is running
  blazewatch watch --server http://localhost:8080/api

  # Start tailing every enabled log file and follow alerts
  blazewatch watch --start

  # Show server statistics
  blazewatch status

  # Show the 20 most recent alerts as JSON
  blazewatch alerts --last 20 -o json

  # Classify a log file once, outside the tailing session
  blazewatch analyze /var/log/app.log`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		PrintError(err.Error(), false)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json, plain)")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default: ./"+defaultConfigFile+" if present)")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "dashboard API base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "API credential (overrides config and $"+TokenEnv+")")
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

// GetOutput returns the output format.
func GetOutput() string {
	return output
}

// PrintError prints an error message and exits if fatal is true.
func PrintError(msg string, fatal bool) {
	fmt.Fprintln(os.Stderr, "Error:", msg)
	if fatal {
		os.Exit(1)
	}
}

// PrintVerbose prints a message only if verbose mode is enabled.
func PrintVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// loadConfig reads the config file, if any, and applies flag overrides.
// The default file may be absent; an explicitly named one may not.
func loadConfig() (*Config, error) {
	path := configFile
	if path == "" {
		path = defaultConfigFile
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		if configFile != "" || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = DefaultConfig()
	} else {
		PrintVerbose("using config %s", path)
	}

	if serverURL != "" {
		cfg.Server.BaseURL = serverURL
	}
	if token != "" {
		cfg.Server.Token = token
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newClient builds an API client from the effective configuration.
func newClient() (*client.Client, *Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	c, err := client.New(cfg.ClientConfig())
	if err != nil {
		return nil, nil, err
	}
	return c, cfg, nil
}
