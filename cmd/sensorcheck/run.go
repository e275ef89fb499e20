package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/afroash/sensorcheck/internal/client"
	"github.com/afroash/sensorcheck/internal/config"
	"github.com/afroash/sensorcheck/internal/logging"
	"github.com/afroash/sensorcheck/internal/runner"
	"github.com/afroash/sensorcheck/internal/scenario"
	"github.com/afroash/sensorcheck/internal/storage"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run checks against the sensor",
	Long: `Run the check scenarios against the configured sensor.

Scenarios run one after the other under a single run ID. A failing scenario
does not stop the run. The command exits non-zero if any scenario failed.

Example:
  sensorcheck run -c sensorcheck.yaml
  sensorcheck run -c sensorcheck.yaml -s reboot -s update-firmware`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	runCmd.Flags().StringSliceP("scenario", "s", nil, "scenario to run (repeatable, default all)")
	_ = runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	names, _ := cmd.Flags().GetStringSlice("scenario")

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}

	selected, err := scenario.Lookup(names...)
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	logger.Info().
		Str("version", version).
		Str("sensor", cfg.Sensor.URL).
		Int("scenarios", len(selected)).
		Msg("Starting sensorcheck")
	logger.Debug().Str("config", cfg.String()).Msg("Loaded configuration")

	store, err := openStore(cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Storage.Enabled {
		cleaner := storage.NewRetentionCleaner(store, storage.RetentionCleanerConfig{
			RetentionDays: cfg.Storage.RetentionDays,
			CleanupPeriod: cfg.Storage.CleanupPeriod,
		}, logger)
		defer cleaner.Stop()
	}

	writer := storage.NewRunWriter(store, storage.DefaultRunWriterConfig(), logger)
	// Registered after store.Close, so the queue is flushed before the store closes
	defer writer.Stop()

	conn := client.NewConnection(client.ConnectionConfig{
		URL:            cfg.Sensor.URL,
		AuthToken:      cfg.Sensor.AuthToken,
		ConnectTimeout: cfg.Sensor.ConnectTimeout,
		CallTimeout:    cfg.Sensor.CallTimeout,
	}, logger)
	defer conn.Close()

	env := scenario.NewEnv(conn, logger)
	env.Poll = scenario.PollSettings{
		Tries:   cfg.Poll.Tries,
		Timeout: cfg.Poll.Timeout,
		Policy:  cfg.PollPolicy(),
	}
	env.MaxFirmwareVersion = cfg.Firmware.MaxVersion

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary := runner.New(writer, logger).Run(ctx, env, selected)
	printSummary(cmd.OutOrStdout(), summary)

	if !summary.OK() {
		return fmt.Errorf("%d of %d scenario(s) failed", summary.Failed, len(summary.Results))
	}
	if len(summary.Results) < len(selected) {
		return fmt.Errorf("run interrupted after %d of %d scenario(s)", len(summary.Results), len(selected))
	}
	return nil
}

func printSummary(out io.Writer, summary *runner.Summary) {
	fmt.Fprintf(out, "\nRun %s\n", summary.RunID)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, r := range summary.Results {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", r.Status(), r.Scenario, r.Duration.Round(time.Millisecond), r.Error)
	}
	w.Flush()

	fmt.Fprintf(out, "\n%d passed, %d failed in %s\n", summary.Passed, summary.Failed, summary.Duration.Round(time.Millisecond))
}
