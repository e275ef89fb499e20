package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// timestampFormat sorts lexically, so range queries work on the text column
const timestampFormat = "2006-01-02 15:04:05.000"

// SQLiteStore handles persistent storage of scenario runs
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=10000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info().Str("path", dbPath).Msg("SQLite store initialized")

	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate creates the database schema if it doesn't exist
func (s *SQLiteStore) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		scenario TEXT NOT NULL,
		passed INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL,
		poll_attempts INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_run_id ON runs(run_id);
	CREATE INDEX IF NOT EXISTS idx_runs_scenario_time ON runs(scenario, started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_time ON runs(started_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Debug().Msg("Database schema migrated")
	return nil
}

const insertRunQuery = `
	INSERT INTO runs (run_id, scenario, passed, error, started_at, duration_ms, poll_attempts)
	VALUES (?, ?, ?, ?, ?, ?, ?)
`

func runArgs(r *RunRecord) []interface{} {
	return []interface{}{
		r.RunID,
		r.Scenario,
		r.Passed,
		r.Error,
		r.StartedAt.UTC().Format(timestampFormat),
		r.Duration.Milliseconds(),
		r.PollAttempts,
	}
}

// InsertRun inserts a single record
func (s *SQLiteStore) InsertRun(record *RunRecord) error {
	if record == nil {
		return errors.New("nil run record")
	}
	if _, err := s.db.Exec(insertRunQuery, runArgs(record)...); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// InsertBatch inserts multiple records in a single transaction
func (s *SQLiteStore) InsertBatch(records []*RunRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertRunQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		if record == nil {
			continue
		}
		if _, err := stmt.Exec(runArgs(record)...); err != nil {
			return fmt.Errorf("failed to insert run in batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug().Int("count", len(records)).Msg("Batch insert completed")
	return nil
}

// GetRuns returns the most recent records, newest first.
// An empty scenario matches every scenario and a limit of 0 or less means no limit.
func (s *SQLiteStore) GetRuns(scenario string, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}

	var query string
	var args []interface{}

	if scenario == "" {
		query = `
			SELECT run_id, scenario, passed, error, started_at, duration_ms, poll_attempts
			FROM runs
			ORDER BY started_at DESC, id DESC
			LIMIT ?
		`
		args = []interface{}{limit}
	} else {
		query = `
			SELECT run_id, scenario, passed, error, started_at, duration_ms, poll_attempts
			FROM runs
			WHERE scenario = ?
			ORDER BY started_at DESC, id DESC
			LIMIT ?
		`
		args = []interface{}{scenario, limit}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	return s.scanRuns(rows)
}

// GetRun returns every record of one run in execution order
func (s *SQLiteStore) GetRun(runID string) ([]*RunRecord, error) {
	rows, err := s.db.Query(`
		SELECT run_id, scenario, passed, error, started_at, duration_ms, poll_attempts
		FROM runs
		WHERE run_id = ?
		ORDER BY started_at ASC, id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run %s: %w", runID, err)
	}
	defer rows.Close()

	return s.scanRuns(rows)
}

// GetScenarioStats returns pass/fail counts per scenario, ordered by name
func (s *SQLiteStore) GetScenarioStats() ([]ScenarioStat, error) {
	rows, err := s.db.Query(`
		SELECT
			scenario,
			COUNT(*) as runs,
			SUM(passed) as passed,
			AVG(duration_ms) as avg_duration,
			MAX(started_at) as last_run
		FROM runs
		GROUP BY scenario
		ORDER BY scenario
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenario stats: %w", err)
	}
	defer rows.Close()

	var stats []ScenarioStat
	for rows.Next() {
		var stat ScenarioStat
		var avgMs float64
		var lastRun string

		if err := rows.Scan(&stat.Scenario, &stat.Runs, &stat.Passed, &avgMs, &lastRun); err != nil {
			return nil, fmt.Errorf("failed to scan scenario stat: %w", err)
		}

		stat.Failed = stat.Runs - stat.Passed
		stat.AvgDuration = time.Duration(avgMs * float64(time.Millisecond))
		stat.LastRun, err = parseTimestamp(lastRun)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last run: %w", err)
		}

		stats = append(stats, stat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return stats, nil
}

// DeleteOlderThan removes records whose run started more than days ago
func (s *SQLiteStore) DeleteOlderThan(days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	result, err := s.db.Exec(
		"DELETE FROM runs WHERE started_at < ?",
		cutoff.Format(timestampFormat),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old runs: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Info().
		Int("days", days).
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("Deleted old runs")

	return deleted, nil
}

// GetStorageStats returns statistics about the database
func (s *SQLiteStore) GetStorageStats() (*StorageStats, error) {
	stats := &StorageStats{}

	err := s.db.QueryRow("SELECT COUNT(*), COUNT(DISTINCT run_id) FROM runs").
		Scan(&stats.TotalRecords, &stats.TotalRuns)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	if stats.TotalRecords > 0 {
		var oldestStr, newestStr string
		err = s.db.QueryRow("SELECT MIN(started_at), MAX(started_at) FROM runs").
			Scan(&oldestStr, &newestStr)
		if err != nil {
			return nil, fmt.Errorf("failed to get timestamp range: %w", err)
		}

		stats.OldestRecord, _ = parseTimestamp(oldestStr)
		stats.NewestRecord, _ = parseTimestamp(newestStr)
	}

	var pageCount, pageSize int64
	s.db.QueryRow("PRAGMA page_count").Scan(&pageCount)
	s.db.QueryRow("PRAGMA page_size").Scan(&pageSize)
	stats.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)

	return stats, nil
}

// scanRuns scans multiple rows into a slice of records
func (s *SQLiteStore) scanRuns(rows *sql.Rows) ([]*RunRecord, error) {
	var records []*RunRecord

	for rows.Next() {
		var r RunRecord
		var startedAt string
		var durationMs int64

		err := rows.Scan(&r.RunID, &r.Scenario, &r.Passed, &r.Error, &startedAt, &durationMs, &r.PollAttempts)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		r.StartedAt, err = parseTimestamp(startedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse started_at: %w", err)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond

		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// parseTimestamp tries multiple formats to parse a SQLite timestamp
func parseTimestamp(ts string) (time.Time, error) {
	formats := []string{
		timestampFormat,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z07:00",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, ts); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", ts)
}
