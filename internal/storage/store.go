package storage

import (
	"fmt"
	"time"
)

// Store defines the interface for scenario run history
type Store interface {
	Close() error
	Migrate() error
	InsertRun(record *RunRecord) error
	InsertBatch(records []*RunRecord) error
	GetRuns(scenario string, limit int) ([]*RunRecord, error)
	GetRun(runID string) ([]*RunRecord, error)
	GetScenarioStats() ([]ScenarioStat, error)
	DeleteOlderThan(days int) (int64, error)
	GetStorageStats() (*StorageStats, error)
}

// Compile-time interface checks
var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// RunRecord is the outcome of one scenario within a run
type RunRecord struct {
	RunID        string        `json:"run_id"`
	Scenario     string        `json:"scenario"`
	Passed       bool          `json:"passed"`
	Error        string        `json:"error,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	PollAttempts int           `json:"poll_attempts"`
}

// Status returns PASS or FAIL
func (r *RunRecord) Status() string {
	if r.Passed {
		return "PASS"
	}
	return "FAIL"
}

func (r *RunRecord) String() string {
	s := fmt.Sprintf("%s %-24s %s %s", r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Scenario, r.Status(), r.Duration.Round(time.Millisecond))
	if r.Error != "" {
		s += ": " + r.Error
	}
	return s
}

// Copy returns a copy of the record
func (r *RunRecord) Copy() *RunRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// ScenarioStat aggregates the recorded runs of a single scenario
type ScenarioStat struct {
	Scenario    string        `json:"scenario"`
	Runs        int           `json:"runs"`
	Passed      int           `json:"passed"`
	Failed      int           `json:"failed"`
	AvgDuration time.Duration `json:"avg_duration"`
	LastRun     time.Time     `json:"last_run"`
}

// PassRate returns the share of passing runs between 0 and 1
func (s ScenarioStat) PassRate() float64 {
	if s.Runs == 0 {
		return 0
	}
	return float64(s.Passed) / float64(s.Runs)
}

// StorageStats contains information about the stored history
type StorageStats struct {
	TotalRecords   int64     `json:"total_records"`
	TotalRuns      int64     `json:"total_runs"`
	OldestRecord   time.Time `json:"oldest_record,omitempty"`
	NewestRecord   time.Time `json:"newest_record,omitempty"`
	DatabaseSizeMB float64   `json:"database_size_mb"`
}
