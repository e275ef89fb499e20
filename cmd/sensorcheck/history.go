package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/afroash/sensorcheck/internal/config"
	"github.com/afroash/sensorcheck/internal/storage"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded runs",
	Long: `Show scenario results recorded by previous runs.

History is only kept across invocations when storage is enabled.

Example:
  sensorcheck history -c sensorcheck.yaml
  sensorcheck history -c sensorcheck.yaml --scenario reboot --limit 5
  sensorcheck history -c sensorcheck.yaml --run 7f0c2b9e-1a4d-4c55-9d0e-6b3f8a2e51c7
  sensorcheck history -c sensorcheck.yaml --stats`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	historyCmd.Flags().String("scenario", "", "only show this scenario")
	historyCmd.Flags().String("run", "", "show every result of one run")
	historyCmd.Flags().Int("limit", 20, "maximum number of results")
	historyCmd.Flags().Bool("stats", false, "show pass/fail counts per scenario")
	_ = historyCmd.MarkFlagRequired("config")
}

func runHistory(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	scenarioName, _ := cmd.Flags().GetString("scenario")
	runID, _ := cmd.Flags().GetString("run")
	limit, _ := cmd.Flags().GetInt("limit")
	showStats, _ := cmd.Flags().GetBool("stats")

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}
	if !cfg.Storage.Enabled {
		return fmt.Errorf("storage is disabled in %s, no history is kept", configFile)
	}

	store, err := openStore(cfg.Storage, zerolog.Nop())
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer w.Flush()

	if showStats {
		stats, err := store.GetScenarioStats()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "SCENARIO\tRUNS\tPASSED\tFAILED\tPASS RATE\tAVG\tLAST RUN\n")
		for _, s := range stats {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.0f%%\t%s\t%s\n",
				s.Scenario, s.Runs, s.Passed, s.Failed, s.PassRate()*100,
				s.AvgDuration.Round(time.Millisecond), s.LastRun.Local().Format("2006-01-02 15:04:05"))
		}
		return nil
	}

	var records []*storage.RunRecord
	if runID != "" {
		rs, err := store.GetRun(runID)
		if err != nil {
			return err
		}
		records = rs
	} else {
		rs, err := store.GetRuns(scenarioName, limit)
		if err != nil {
			return err
		}
		records = rs
	}

	if len(records) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}

	fmt.Fprintf(w, "STARTED\tRUN\tSCENARIO\tRESULT\tDURATION\tPOLLS\tERROR\n")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.RunID, r.Scenario, r.Status(),
			r.Duration.Round(time.Millisecond), r.PollAttempts, r.Error)
	}
	return nil
}

