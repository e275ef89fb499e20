package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// testLogger creates a logger for tests
func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(zerolog.DebugLevel)
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*SQLiteStore, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "sensorcheck-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	store, err := NewSQLiteStore(dbPath, testLogger())
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create store: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}

	return store, cleanup
}

// createTestRecord creates a record with specified parameters
func createTestRecord(runID, scenario string, passed bool, startedAt time.Time) *RunRecord {
	r := &RunRecord{
		RunID:        runID,
		Scenario:     scenario,
		Passed:       passed,
		StartedAt:    startedAt,
		Duration:     1500 * time.Millisecond,
		PollAttempts: 3,
	}
	if !passed {
		r.Error = "sensor did not come back online"
	}
	return r
}

func TestNewSQLiteStore(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	if store == nil {
		t.Fatal("Expected non-nil store")
	}
	if store.db == nil {
		t.Fatal("Expected non-nil database connection")
	}
}

func TestNewSQLiteStore_InvalidPath(t *testing.T) {
	_, err := NewSQLiteStore("/nonexistent/path/that/cannot/exist/test.db", testLogger())
	if err == nil {
		t.Fatal("Expected error for invalid path")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	for i := 0; i < 3; i++ {
		if err := store.Migrate(); err != nil {
			t.Fatalf("Migrate() call %d failed: %v", i+1, err)
		}
	}

	var count int
	err := store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='runs'").Scan(&count)
	if err != nil {
		t.Fatalf("Failed to query schema: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected runs table to exist, got count=%d", count)
	}
}

func TestInsertRun(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	started := time.Date(2024, 6, 1, 10, 30, 15, 250*int(time.Millisecond), time.UTC)
	record := createTestRecord("run-1", "reboot", false, started)

	if err := store.InsertRun(record); err != nil {
		t.Fatalf("InsertRun failed: %v", err)
	}

	records, err := store.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	got := records[0]
	if got.Scenario != "reboot" || got.Passed {
		t.Errorf("got %s passed=%v, want reboot failed", got.Scenario, got.Passed)
	}
	if got.Error != record.Error {
		t.Errorf("Error = %q, want %q", got.Error, record.Error)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.Duration != record.Duration {
		t.Errorf("Duration = %v, want %v", got.Duration, record.Duration)
	}
	if got.PollAttempts != 3 {
		t.Errorf("PollAttempts = %d, want 3", got.PollAttempts)
	}
}

func TestInsertRun_Nil(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	if err := store.InsertRun(nil); err == nil {
		t.Error("Expected error for nil record")
	}
}

func TestInsertBatch(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now().UTC()
	var records []*RunRecord
	for i, name := range []string{"sanity", "reboot", "set-name"} {
		records = append(records, createTestRecord("run-1", name, true, now.Add(time.Duration(i)*time.Second)))
	}

	if err := store.InsertBatch(records); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	got, err := store.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(got))
	}
	// execution order
	for i, want := range []string{"sanity", "reboot", "set-name"} {
		if got[i].Scenario != want {
			t.Errorf("record %d = %s, want %s", i, got[i].Scenario, want)
		}
	}
}

func TestInsertBatch_Empty(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	if err := store.InsertBatch([]*RunRecord{}); err != nil {
		t.Errorf("InsertBatch with empty slice should not error: %v", err)
	}
	if err := store.InsertBatch(nil); err != nil {
		t.Errorf("InsertBatch with nil should not error: %v", err)
	}
}

func TestGetRuns(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		runID := fmt.Sprintf("run-%d", i)
		store.InsertRun(createTestRecord(runID, "reboot", i%2 == 0, base.Add(time.Duration(i)*time.Minute)))
		store.InsertRun(createTestRecord(runID, "sanity", true, base.Add(time.Duration(i)*time.Minute+time.Second)))
	}

	all, err := store.GetRuns("", 0)
	if err != nil {
		t.Fatalf("GetRuns failed: %v", err)
	}
	if len(all) != 10 {
		t.Errorf("Expected 10 records, got %d", len(all))
	}

	reboots, err := store.GetRuns("reboot", 3)
	if err != nil {
		t.Fatalf("GetRuns failed: %v", err)
	}
	if len(reboots) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(reboots))
	}
	for i := 1; i < len(reboots); i++ {
		if reboots[i].StartedAt.After(reboots[i-1].StartedAt) {
			t.Error("Records should be ordered newest first")
		}
	}
	if reboots[0].RunID != "run-4" {
		t.Errorf("Newest reboot run = %s, want run-4", reboots[0].RunID)
	}
	for _, r := range reboots {
		if r.Scenario != "reboot" {
			t.Errorf("Unexpected scenario %s", r.Scenario)
		}
	}
}

func TestGetRun_Unknown(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	records, err := store.GetRun("missing")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no records, got %d", len(records))
	}
}

func TestGetScenarioStats(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now().UTC()
	store.InsertRun(createTestRecord("run-1", "reboot", true, now.Add(-2*time.Minute)))
	store.InsertRun(createTestRecord("run-2", "reboot", false, now.Add(-time.Minute)))
	store.InsertRun(createTestRecord("run-2", "reboot", true, now))
	store.InsertRun(createTestRecord("run-1", "empty-name", true, now))

	stats, err := store.GetScenarioStats()
	if err != nil {
		t.Fatalf("GetScenarioStats failed: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("Expected 2 stats, got %d", len(stats))
	}

	if stats[0].Scenario != "empty-name" || stats[1].Scenario != "reboot" {
		t.Errorf("Stats should be ordered by name, got %s, %s", stats[0].Scenario, stats[1].Scenario)
	}

	reboot := stats[1]
	if reboot.Runs != 3 || reboot.Passed != 2 || reboot.Failed != 1 {
		t.Errorf("reboot stats = %+v, want 3 runs, 2 passed, 1 failed", reboot)
	}
	if reboot.AvgDuration != 1500*time.Millisecond {
		t.Errorf("AvgDuration = %v, want 1.5s", reboot.AvgDuration)
	}
	if reboot.LastRun.Sub(now).Abs() > time.Millisecond {
		t.Errorf("LastRun = %v, want %v", reboot.LastRun, now)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now().UTC()
	for i := 0; i < 4; i++ {
		store.InsertRun(createTestRecord("old", "sanity", true, now.AddDate(0, 0, -40).Add(time.Duration(i)*time.Minute)))
	}
	for i := 0; i < 3; i++ {
		store.InsertRun(createTestRecord("new", "sanity", true, now.Add(-time.Duration(i)*time.Hour)))
	}

	deleted, err := store.DeleteOlderThan(30)
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if deleted != 4 {
		t.Errorf("Deleted = %d, want 4", deleted)
	}

	remaining, _ := store.GetRuns("", 0)
	if len(remaining) != 3 {
		t.Errorf("Expected 3 remaining records, got %d", len(remaining))
	}
}

func TestGetStorageStats(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	stats, err := store.GetStorageStats()
	if err != nil {
		t.Fatalf("GetStorageStats failed: %v", err)
	}
	if stats.TotalRecords != 0 {
		t.Errorf("Empty store TotalRecords = %d", stats.TotalRecords)
	}

	now := time.Now().UTC()
	store.InsertRun(createTestRecord("run-1", "sanity", true, now.Add(-time.Hour)))
	store.InsertRun(createTestRecord("run-1", "reboot", true, now.Add(-time.Hour+time.Second)))
	store.InsertRun(createTestRecord("run-2", "sanity", false, now))

	stats, err = store.GetStorageStats()
	if err != nil {
		t.Fatalf("GetStorageStats failed: %v", err)
	}
	if stats.TotalRecords != 3 {
		t.Errorf("TotalRecords = %d, want 3", stats.TotalRecords)
	}
	if stats.TotalRuns != 2 {
		t.Errorf("TotalRuns = %d, want 2", stats.TotalRuns)
	}
	if !stats.OldestRecord.Before(stats.NewestRecord) {
		t.Errorf("OldestRecord %v should be before NewestRecord %v", stats.OldestRecord, stats.NewestRecord)
	}
	if stats.DatabaseSizeMB <= 0 {
		t.Error("DatabaseSizeMB should be positive")
	}
}

func TestConcurrentInserts(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for g := 0; g < 5; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if err := store.InsertRun(createTestRecord(fmt.Sprintf("run-%d", g), "sanity", true, time.Now().UTC())); err != nil {
					errs <- err
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent insert failed: %v", err)
	}

	stats, _ := store.GetStorageStats()
	if stats.TotalRecords != 50 {
		t.Errorf("TotalRecords = %d, want 50", stats.TotalRecords)
	}
}

func TestClose(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := store.InsertRun(createTestRecord("run-1", "sanity", true, time.Now())); err == nil {
		t.Error("Expected error when inserting after close")
	}
}

func BenchmarkInsertBatch(b *testing.B) {
	tmpDir := b.TempDir()
	store, err := NewSQLiteStore(filepath.Join(tmpDir, "bench.db"), zerolog.Nop())
	if err != nil {
		b.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	records := make([]*RunRecord, 8)
	for i := range records {
		records[i] = createTestRecord("bench", "sanity", true, time.Now().UTC())
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.InsertBatch(records)
	}
}
