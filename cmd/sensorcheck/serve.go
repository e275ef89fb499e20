package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/afroash/sensorcheck/internal/config"
	"github.com/afroash/sensorcheck/internal/logging"
	"github.com/afroash/sensorcheck/internal/server"
	"github.com/afroash/sensorcheck/internal/storage"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve recorded run history over HTTP",
	Long: `Serve the recorded run history as a JSON API.

Endpoints:
  GET /api/runs?scenario=&limit=   recent results, newest first
  GET /api/runs/{id}               every result of one run
  GET /api/stats                   pass/fail counts per scenario
  GET /api/dashboard               latest run with overall statistics
  GET /health

Requires storage to be enabled. The retention cleaner runs while serving.

Example:
  sensorcheck serve -c sensorcheck.yaml --addr :8081`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	serveCmd.Flags().String("addr", "localhost:8081", "listen address")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	addr, _ := cmd.Flags().GetString("addr")

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}
	if !cfg.Storage.Enabled {
		return fmt.Errorf("storage is disabled in %s, there is no history to serve", configFile)
	}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	store, err := openStore(cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	cleaner := storage.NewRetentionCleaner(store, storage.RetentionCleanerConfig{
		RetentionDays: cfg.Storage.RetentionDays,
		CleanupPeriod: cfg.Storage.CleanupPeriod,
	}, logger)
	defer cleaner.Stop()

	srv := &http.Server{
		Addr:         addr,
		Handler:      server.NewAPIHandler(store, logger).Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Str("version", version).Msg("History API listening")
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
	}

	logger.Info().Msg("Server stopped")
	return nil
}
