// Package server exposes recorded run history over HTTP as JSON.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/sensorcheck/internal/storage"
)

// HistoryStore is the read side of storage.Store
type HistoryStore interface {
	GetRuns(scenario string, limit int) ([]*storage.RunRecord, error)
	GetRun(runID string) ([]*storage.RunRecord, error)
	GetScenarioStats() ([]storage.ScenarioStat, error)
	GetStorageStats() (*storage.StorageStats, error)
}

// APIHandler handles HTTP API requests for run history
type APIHandler struct {
	store  HistoryStore
	logger zerolog.Logger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(store HistoryStore, logger zerolog.Logger) *APIHandler {
	return &APIHandler{
		store:  store,
		logger: logger,
	}
}

// Routes registers the API on a new mux
func (api *APIHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/runs", api.HandleRuns)
	mux.HandleFunc("GET /api/runs/{id}", api.HandleRun)
	mux.HandleFunc("GET /api/stats", api.HandleStats)
	mux.HandleFunc("GET /api/dashboard", api.HandleDashboardData)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// HandleRuns returns recent results, optionally for one scenario
func (api *APIHandler) HandleRuns(w http.ResponseWriter, r *http.Request) {
	scenario := r.URL.Query().Get("scenario")

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := api.store.GetRuns(scenario, limit)
	if err != nil {
		api.fail(w, err, "Failed to load runs")
		return
	}
	if records == nil {
		records = []*storage.RunRecord{}
	}
	api.writeJSON(w, records)
}

// HandleRun returns every result of one run
func (api *APIHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	records, err := api.store.GetRun(runID)
	if err != nil {
		api.fail(w, err, "Failed to load run")
		return
	}
	if len(records) == 0 {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	api.writeJSON(w, records)
}

// HandleStats returns pass/fail counts per scenario
func (api *APIHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := api.store.GetScenarioStats()
	if err != nil {
		api.fail(w, err, "Failed to load stats")
		return
	}
	if stats == nil {
		stats = []storage.ScenarioStat{}
	}
	api.writeJSON(w, stats)
}

// DashboardData contains everything a status page needs in one request
type DashboardData struct {
	LatestRun  []*storage.RunRecord   `json:"latest_run"`
	Scenarios  []storage.ScenarioStat `json:"scenarios"`
	Storage    *storage.StorageStats  `json:"storage"`
	LastUpdate time.Time              `json:"last_update"`
}

// HandleDashboardData returns the latest run with overall statistics
func (api *APIHandler) HandleDashboardData(w http.ResponseWriter, r *http.Request) {
	data := DashboardData{
		LatestRun:  []*storage.RunRecord{},
		Scenarios:  []storage.ScenarioStat{},
		LastUpdate: time.Now(),
	}

	latest, err := api.store.GetRuns("", 1)
	if err != nil {
		api.fail(w, err, "Failed to load runs")
		return
	}
	if len(latest) > 0 {
		run, err := api.store.GetRun(latest[0].RunID)
		if err != nil {
			api.fail(w, err, "Failed to load run")
			return
		}
		data.LatestRun = run
	}

	stats, err := api.store.GetScenarioStats()
	if err != nil {
		api.fail(w, err, "Failed to load stats")
		return
	}
	if stats != nil {
		data.Scenarios = stats
	}

	data.Storage, err = api.store.GetStorageStats()
	if err != nil {
		api.fail(w, err, "Failed to load storage stats")
		return
	}

	api.writeJSON(w, data)
}

func (api *APIHandler) fail(w http.ResponseWriter, err error, msg string) {
	api.logger.Error().Err(err).Msg(msg)
	http.Error(w, msg, http.StatusInternalServerError)
}

func (api *APIHandler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Error().Err(err).Msg("Failed to encode response")
	}
}
