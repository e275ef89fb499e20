package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/afroash/sensorcheck/internal/config"
	"github.com/afroash/sensorcheck/internal/storage"
)

// openStore opens the SQLite history when storage is enabled, otherwise an
// in-memory store that lives as long as the process
func openStore(cfg config.StorageConfig, logger zerolog.Logger) (storage.Store, error) {
	if !cfg.Enabled {
		logger.Debug().Int("capacity", cfg.MemoryCapacity).Msg("Storage disabled, keeping run history in memory")
		return storage.NewMemoryStore(cfg.MemoryCapacity), nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := storage.NewSQLiteStore(cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	return store, nil
}
