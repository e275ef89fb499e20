// Package runner executes scenarios against a sensor and records the outcome
// of each one.
package runner

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/afroash/sensorcheck/internal/scenario"
	"github.com/afroash/sensorcheck/internal/storage"
)

// Recorder accepts run records. storage.RunWriter implements it.
type Recorder interface {
	Write(record *storage.RunRecord) bool
}

// Summary is the outcome of one run
type Summary struct {
	RunID    string
	Results  []*storage.RunRecord
	Passed   int
	Failed   int
	Duration time.Duration
}

// OK reports whether every scenario passed
func (s *Summary) OK() bool {
	return s.Failed == 0
}

// Runner runs scenarios one after the other
type Runner struct {
	recorder Recorder
	logger   zerolog.Logger
	now      func() time.Time
	newID    func() string
}

// New creates a Runner. recorder may be nil, in which case nothing is recorded.
func New(recorder Recorder, logger zerolog.Logger) *Runner {
	return &Runner{
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Run executes scenarios in order under a single run ID. A failing scenario
// does not stop the run. Run only returns early if ctx is cancelled.
func (r *Runner) Run(ctx context.Context, env *scenario.Env, scenarios []scenario.Scenario) *Summary {
	runID := r.newID()
	logger := r.logger.With().Str("run_id", runID).Logger()
	summary := &Summary{RunID: runID}
	runStart := r.now()

	logger.Info().Int("scenarios", len(scenarios)).Msg("Starting run")

	for _, sc := range scenarios {
		if err := ctx.Err(); err != nil {
			logger.Warn().Err(err).Msg("Run cancelled")
			break
		}

		record := r.runOne(ctx, env, sc, logger)
		record.RunID = runID
		summary.Results = append(summary.Results, record)
		if record.Passed {
			summary.Passed++
		} else {
			summary.Failed++
		}

		if r.recorder != nil && !r.recorder.Write(record) {
			logger.Warn().Str("scenario", sc.Name).Msg("Failed to record scenario result")
		}
	}

	summary.Duration = r.now().Sub(runStart)

	logger.Info().
		Int("passed", summary.Passed).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration).
		Msg("Run finished")

	return summary
}

func (r *Runner) runOne(ctx context.Context, env *scenario.Env, sc scenario.Scenario, logger zerolog.Logger) *storage.RunRecord {
	scLogger := logger.With().Str("scenario", sc.Name).Logger()
	scEnv := *env
	scEnv.Logger = scLogger
	scEnv.PollAttempts = 0

	scLogger.Info().Str("description", sc.Description).Msg("Running scenario")

	start := r.now()
	err := sc.Run(ctx, &scEnv)

	record := &storage.RunRecord{
		Scenario:     sc.Name,
		Passed:       err == nil,
		StartedAt:    start,
		Duration:     r.now().Sub(start),
		PollAttempts: scEnv.PollAttempts,
	}

	if err != nil {
		record.Error = err.Error()
		scLogger.Error().Err(err).Dur("duration", record.Duration).Msg("Scenario failed")
	} else {
		scLogger.Info().Dur("duration", record.Duration).Int("poll_attempts", record.PollAttempts).Msg("Scenario passed")
	}

	return record
}
