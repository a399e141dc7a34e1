// Package server exposes the HTTP surface: on-demand refresh, the cached
// latest cycle, the live websocket feed, health and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crypto_tracker/cache"
	"crypto_tracker/middleware"
	"crypto_tracker/models"
	"crypto_tracker/scheduler"
	"crypto_tracker/sheets"
	"crypto_tracker/utils"
)

// LatestSource returns the most recently persisted cycle.
type LatestSource interface {
	Latest(ctx context.Context) (*models.RefreshCycleResult, error)
}

type Deps struct {
	Fetcher       scheduler.Fetcher
	Analyzer      scheduler.Analyzer
	Live          http.Handler // websocket endpoint, optional
	Health        http.Handler
	Latest        LatestSource // optional
	SpreadsheetID string
}

type handlers struct {
	deps Deps
}

// NewHandler builds the routed, logged and panic-safe handler.
func NewHandler(d Deps) http.Handler {
	h := &handlers{deps: d}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.index)
	mux.HandleFunc("GET /crypto-data", h.cryptoData)
	mux.HandleFunc("GET /crypto-data/latest", h.latest)
	if d.Live != nil {
		mux.Handle("GET /ws", d.Live)
	}
	if d.Health != nil {
		mux.Handle("GET /health", d.Health)
	}
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/", notFound)

	return utils.RequestLogger(middleware.RecoverHandler(mux))
}

// NewServer wraps the handler with the timeouts used in production.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

type cryptoDataResponse struct {
	Data      models.MarketBatch       `json:"data"`
	Analysis  models.StatisticsSummary `json:"analysis"`
	Timestamp float64                  `json:"timestamp"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Message string `json:"message,omitempty"`
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{}
	if h.deps.SpreadsheetID != "" {
		resp["spreadsheet_url"] = sheets.SpreadsheetURL(h.deps.SpreadsheetID)
	}
	writeJSON(w, http.StatusOK, resp)
}

// cryptoData runs one fetch and analyze outside the background cadence.
func (h *handlers) cryptoData(w http.ResponseWriter, r *http.Request) {
	result, err := scheduler.Collect(r.Context(), h.deps.Fetcher, h.deps.Analyzer)
	if err != nil && !errors.Is(err, scheduler.ErrEmptyBatch) {
		utils.Error(err, "Error fetching crypto data", "request_id", utils.RequestID(r.Context()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "Failed to fetch crypto data",
			Details: err.Error(),
		})
		return
	}
	if result.Batch == nil {
		result.Batch = models.MarketBatch{}
	}

	writeJSON(w, http.StatusOK, cryptoDataResponse{
		Data:      result.Batch,
		Analysis:  result.Summary,
		Timestamp: float64(result.FetchedAt.UnixNano()) / 1e9,
	})
}

func (h *handlers) latest(w http.ResponseWriter, r *http.Request) {
	if h.deps.Latest == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "No cached snapshot", Message: "snapshot cache is disabled"})
		return
	}

	result, err := h.deps.Latest.Latest(r.Context())
	switch {
	case errors.Is(err, cache.ErrNoSnapshot):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "No cached snapshot"})
		return
	case err != nil:
		utils.Error(err, "Error reading cached snapshot")
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "Failed to read cached snapshot",
			Details: err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, cryptoDataResponse{
		Data:      result.Batch,
		Analysis:  result.Summary,
		Timestamp: float64(result.FetchedAt.UnixNano()) / 1e9,
	})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	utils.Logger.Warnw("Resource Not Found", "path", r.URL.Path)
	writeJSON(w, http.StatusNotFound, errorResponse{
		Error:   "Resource Not Found",
		Message: "The requested endpoint does not exist",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.Error(err, "Failed to encode response")
	}
}
