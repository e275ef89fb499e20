// Package main is the entry point for the sensorcheck CLI.
//
// Usage:
//
//	sensorcheck run -c config.yaml                 # Run every scenario
//	sensorcheck run -c config.yaml -s reboot       # Run selected scenarios
//	sensorcheck history -c config.yaml --limit 20  # Show recorded runs
//	sensorcheck list                               # List scenarios
//	sensorcheck validate -c config.yaml            # Validate configuration
//	sensorcheck version                            # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time via -ldflags "-X main.version=..."
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "sensorcheck",
	Short: "Remote-operation checks for networked temperature sensors",
	Long: `sensorcheck connects to a temperature sensor over WebSocket and runs a
suite of checks against its remote operations: info, readings, naming,
reading interval, firmware update, reboot and factory reset.

Operations that take effect asynchronously are verified by polling the
sensor a bounded number of times. Results are recorded per run.

Quick start:
  1. Create a config file (see configs/sensorcheck.yaml)
  2. Run: sensorcheck validate -c sensorcheck.yaml
  3. Run: sensorcheck run -c sensorcheck.yaml`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sensorcheck %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
		fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
