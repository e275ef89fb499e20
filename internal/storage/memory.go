package storage

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory ring buffer of run records, used when the
// database is disabled. History is lost when the process exits.
type MemoryStore struct {
	capacity     int
	records      []*RunRecord
	mutex        sync.RWMutex
	totalRecords int64
	now          func() time.Time
}

// NewMemoryStore creates a store holding at most capacity records
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryStore{
		capacity: capacity,
		records:  make([]*RunRecord, 0, capacity),
		now:      time.Now,
	}
}

func (ms *MemoryStore) Close() error   { return nil }
func (ms *MemoryStore) Migrate() error { return nil }

// InsertRun adds a record, evicting the oldest when full
func (ms *MemoryStore) InsertRun(record *RunRecord) error {
	if record == nil {
		return errors.New("nil run record")
	}

	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	ms.add(record)
	return nil
}

// InsertBatch adds several records
func (ms *MemoryStore) InsertBatch(records []*RunRecord) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	for _, r := range records {
		if r != nil {
			ms.add(r)
		}
	}
	return nil
}

func (ms *MemoryStore) add(record *RunRecord) {
	if len(ms.records) >= ms.capacity {
		ms.records = ms.records[1:] // Remove oldest
	}
	ms.records = append(ms.records, record.Copy())
	ms.totalRecords++
}

// GetRuns returns copies of the most recent records, newest first
func (ms *MemoryStore) GetRuns(scenario string, limit int) ([]*RunRecord, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	var result []*RunRecord
	for i := len(ms.records) - 1; i >= 0; i-- {
		r := ms.records[i]
		if scenario != "" && r.Scenario != scenario {
			continue
		}
		result = append(result, r.Copy())
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// GetRun returns copies of every record of one run in execution order
func (ms *MemoryStore) GetRun(runID string) ([]*RunRecord, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	var result []*RunRecord
	for _, r := range ms.records {
		if r.RunID == runID {
			result = append(result, r.Copy())
		}
	}
	return result, nil
}

// GetScenarioStats returns pass/fail counts per scenario, ordered by name
func (ms *MemoryStore) GetScenarioStats() ([]ScenarioStat, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	byName := make(map[string]*ScenarioStat)
	totals := make(map[string]time.Duration)
	for _, r := range ms.records {
		stat, ok := byName[r.Scenario]
		if !ok {
			stat = &ScenarioStat{Scenario: r.Scenario}
			byName[r.Scenario] = stat
		}
		stat.Runs++
		if r.Passed {
			stat.Passed++
		} else {
			stat.Failed++
		}
		totals[r.Scenario] += r.Duration
		if r.StartedAt.After(stat.LastRun) {
			stat.LastRun = r.StartedAt
		}
	}

	stats := make([]ScenarioStat, 0, len(byName))
	for name, stat := range byName {
		stat.AvgDuration = totals[name] / time.Duration(stat.Runs)
		stats = append(stats, *stat)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Scenario < stats[j].Scenario })
	return stats, nil
}

// DeleteOlderThan drops records whose run started more than days ago
func (ms *MemoryStore) DeleteOlderThan(days int) (int64, error) {
	cutoff := ms.now().AddDate(0, 0, -days)

	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	kept := ms.records[:0]
	var deleted int64
	for _, r := range ms.records {
		if r.StartedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	ms.records = kept
	return deleted, nil
}

// GetStorageStats returns statistics about the store
func (ms *MemoryStore) GetStorageStats() (*StorageStats, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	stats := &StorageStats{TotalRecords: int64(len(ms.records))}
	runs := make(map[string]struct{})
	for _, r := range ms.records {
		runs[r.RunID] = struct{}{}
		if stats.OldestRecord.IsZero() || r.StartedAt.Before(stats.OldestRecord) {
			stats.OldestRecord = r.StartedAt
		}
		if r.StartedAt.After(stats.NewestRecord) {
			stats.NewestRecord = r.StartedAt
		}
	}
	stats.TotalRuns = int64(len(runs))
	return stats, nil
}

// TotalInserted returns how many records were ever added, including evicted ones
func (ms *MemoryStore) TotalInserted() int64 {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()
	return ms.totalRecords
}
