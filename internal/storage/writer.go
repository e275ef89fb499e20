package storage

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RunWriterConfig holds configuration for the writer
type RunWriterConfig struct {
	BatchSize   int
	FlushPeriod time.Duration
	ChannelSize int
}

// DefaultRunWriterConfig returns the defaults used by the CLI
func DefaultRunWriterConfig() RunWriterConfig {
	return RunWriterConfig{
		BatchSize:   16,
		FlushPeriod: 2 * time.Second,
		ChannelSize: 256,
	}
}

// RunWriterStats counts what happened to the records handed to a RunWriter
type RunWriterStats struct {
	Written       int64     `json:"written"`
	Batches       int64     `json:"batches"`
	FailedBatches int64     `json:"failed_batches"`
	Dropped       int64     `json:"dropped"`
	Refused       int64     `json:"refused"`
	LastFlush     time.Time `json:"last_flush,omitempty"`
	Queued        int       `json:"queued"`
}

// RunWriter sits between the runner and a Store. Write never blocks: records
// are queued and a background goroutine inserts them in batches, either when
// a batch fills up or when the flush period elapses.
type RunWriter struct {
	store  Store
	logger zerolog.Logger
	cfg    RunWriterConfig
	queue  chan *RunRecord

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu      sync.Mutex
	stopped bool
	stats   RunWriterStats
}

// NewRunWriter creates and starts a writer for store
func NewRunWriter(store Store, config RunWriterConfig, logger zerolog.Logger) *RunWriter {
	defaults := DefaultRunWriterConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.FlushPeriod <= 0 {
		config.FlushPeriod = defaults.FlushPeriod
	}
	if config.ChannelSize <= 0 {
		config.ChannelSize = defaults.ChannelSize
	}

	w := &RunWriter{
		store:    store,
		logger:   logger.With().Str("component", "run_writer").Logger(),
		cfg:      config,
		queue:    make(chan *RunRecord, config.ChannelSize),
		stopChan: make(chan struct{}),
	}

	w.wg.Add(1)
	go w.loop()

	w.logger.Debug().
		Int("batch_size", config.BatchSize).
		Dur("flush_period", config.FlushPeriod).
		Int("queue_size", config.ChannelSize).
		Msg("Run writer started")

	return w
}

// Write queues record for insertion. It returns false when the record will
// not be stored: the queue is full or the writer has been stopped.
func (w *RunWriter) Write(record *RunRecord) bool {
	if record == nil {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		w.stats.Refused++
		w.logger.Warn().Str("run_id", record.RunID).Str("scenario", record.Scenario).Msg("Run writer stopped, refusing record")
		return false
	}

	select {
	case w.queue <- record:
		return true
	default:
		w.stats.Dropped++
		w.logger.Warn().Str("run_id", record.RunID).Str("scenario", record.Scenario).Msg("Run writer queue full, dropping record")
		return false
	}
}

func (w *RunWriter) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushPeriod)
	defer ticker.Stop()

	var pending []*RunRecord
	flushPending := func() {
		if len(pending) == 0 {
			return
		}
		w.insert(pending)
		pending = nil
	}

	for {
		select {
		case record := <-w.queue:
			pending = append(pending, record)
			if len(pending) >= w.cfg.BatchSize {
				flushPending()
			}

		case <-ticker.C:
			flushPending()

		case <-w.stopChan:
			// Write refuses records once stopped, so the queue only shrinks from here
			for len(w.queue) > 0 {
				pending = append(pending, <-w.queue)
			}
			flushPending()
			w.logger.Debug().Msg("Run writer stopped")
			return
		}
	}
}

// insert writes one batch and updates the counters
func (w *RunWriter) insert(batch []*RunRecord) {
	err := w.store.InsertBatch(batch)

	w.mu.Lock()
	defer w.mu.Unlock()

	if err != nil {
		w.stats.FailedBatches++
		w.logger.Error().Err(err).Int("records", len(batch)).Msg("Failed to store run records")
		return
	}
	w.stats.Written += int64(len(batch))
	w.stats.Batches++
	w.stats.LastFlush = time.Now()
	w.logger.Debug().Int("records", len(batch)).Msg("Stored run records")
}

// Stop refuses further writes, stores everything still queued and waits
// for the background goroutine to exit. Safe to call more than once.
func (w *RunWriter) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		w.mu.Unlock()

		close(w.stopChan)
		w.wg.Wait()
	})
}

// Stats returns a snapshot of the writer's counters
func (w *RunWriter) Stats() RunWriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	stats := w.stats
	stats.Queued = len(w.queue)
	return stats
}
