package storage

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RetentionCleanerConfig holds configuration for the cleaner
type RetentionCleanerConfig struct {
	RetentionDays int
	CleanupPeriod time.Duration
}

// DefaultRetentionCleanerConfig keeps 90 days of history, checked daily
func DefaultRetentionCleanerConfig() RetentionCleanerConfig {
	return RetentionCleanerConfig{
		RetentionDays: 90,
		CleanupPeriod: 24 * time.Hour,
	}
}

// RetentionCleanerStats summarises what the cleaner has removed so far
type RetentionCleanerStats struct {
	RetentionDays    int       `json:"retention_days"`
	Passes           int64     `json:"passes"`
	FailedPasses     int64     `json:"failed_passes"`
	RunsDeleted      int64     `json:"runs_deleted"`
	LastPass         time.Time `json:"last_pass,omitempty"`
	LastPassDeleted  int64     `json:"last_pass_deleted"`
	RecordsRemaining int64     `json:"records_remaining"`
}

// RetentionCleaner deletes run records older than the retention window.
// It makes one pass on start and then one per cleanup period until stopped.
type RetentionCleaner struct {
	store  Store
	logger zerolog.Logger
	cfg    RetentionCleanerConfig

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu    sync.Mutex
	stats RetentionCleanerStats
}

// NewRetentionCleaner creates and starts a retention cleaner for store
func NewRetentionCleaner(store Store, config RetentionCleanerConfig, logger zerolog.Logger) *RetentionCleaner {
	defaults := DefaultRetentionCleanerConfig()

	// time.NewTicker panics on a non-positive period
	if config.CleanupPeriod <= 0 {
		logger.Warn().
			Dur("cleanup_period", config.CleanupPeriod).
			Dur("default", defaults.CleanupPeriod).
			Msg("Cleanup period must be positive, using default")
		config.CleanupPeriod = defaults.CleanupPeriod
	}
	if config.RetentionDays <= 0 {
		config.RetentionDays = defaults.RetentionDays
	}

	c := &RetentionCleaner{
		store:    store,
		logger:   logger.With().Str("component", "retention").Logger(),
		cfg:      config,
		stopChan: make(chan struct{}),
	}
	c.stats.RetentionDays = config.RetentionDays

	c.wg.Add(1)
	go c.loop()

	c.logger.Info().
		Int("retention_days", config.RetentionDays).
		Dur("cleanup_period", config.CleanupPeriod).
		Msg("Retention cleaner started")

	return c
}

func (c *RetentionCleaner) loop() {
	defer c.wg.Done()

	c.pass()

	ticker := time.NewTicker(c.cfg.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.pass()
		case <-c.stopChan:
			c.logger.Info().Msg("Retention cleaner stopped")
			return
		}
	}
}

// pass deletes expired runs once and records the outcome
func (c *RetentionCleaner) pass() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Passes++
	c.stats.LastPass = time.Now()

	deleted, err := c.store.DeleteOlderThan(c.cfg.RetentionDays)
	if err != nil {
		c.stats.FailedPasses++
		c.logger.Error().Err(err).Msg("Retention pass failed")
		return
	}
	c.stats.RunsDeleted += deleted
	c.stats.LastPassDeleted = deleted

	if remaining, err := c.store.GetStorageStats(); err == nil {
		c.stats.RecordsRemaining = remaining.TotalRecords
	}

	if deleted == 0 {
		c.logger.Debug().Msg("Retention pass found nothing to delete")
		return
	}
	c.logger.Info().
		Int64("deleted", deleted).
		Int64("remaining", c.stats.RecordsRemaining).
		Int("retention_days", c.cfg.RetentionDays).
		Msg("Expired run records deleted")
}

// Stop ends the background loop. Safe to call more than once.
func (c *RetentionCleaner) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
	})
}

// Stats returns a snapshot of the cleaner's counters
func (c *RetentionCleaner) Stats() RetentionCleanerStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// RunNow makes a retention pass immediately on the calling goroutine
func (c *RetentionCleaner) RunNow() {
	c.pass()
}
