package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/afroash/sensorcheck/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a sensorcheck configuration file without contacting the sensor.

Environment overrides (SENSOR_URL, SENSOR_AUTH_TOKEN, POLL_TRIES, LOG_LEVEL)
are applied before validation.

Example:
  sensorcheck validate -c sensorcheck.yaml`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Sensor:   %s\n", cfg.Sensor.URL)
	fmt.Fprintf(out, "  Poll:     %d tries, %s apart, %s\n", cfg.Poll.Tries, cfg.Poll.Timeout, cfg.Poll.Policy)
	fmt.Fprintf(out, "  Firmware: max version %d\n", cfg.Firmware.MaxVersion)
	if cfg.Storage.Enabled {
		fmt.Fprintf(out, "  Storage:  %s (%d day retention)\n", cfg.Storage.DBPath, cfg.Storage.RetentionDays)
	} else {
		fmt.Fprintf(out, "  Storage:  in memory (%d records)\n", cfg.Storage.MemoryCapacity)
	}
	return nil
}
