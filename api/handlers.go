/*
handlers.go - HTTP API handlers for the forecasting service

PURPOSE:
  Exposes the forecasting pipeline via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Forecast:
    POST   /api/forecast          Run a batch from uploaded CSV tables

  Runs:
    GET    /api/runs              List saved runs (newest first)
    GET    /api/runs/{id}         Fetch one full batch report

  Sites:
    GET    /api/sites/{id}/history  One site's reports across runs

  Misc:
    GET    /api/health            Liveness probe
    POST   /api/reset             Clear run history (dev only)

REQUEST FLOW:
  1. Parse HTTP request (multipart CSV upload for /forecast)
  2. Validate input
  3. Call domain logic (dataset load, pipeline run)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Structural validation failures (missing table/column, empty
         site registry). Per-site data problems are NOT 400s; they ride
         inside a 200 response as per-site error markers.
  - 404: Unknown run id
  - 500: Internal errors

SEE ALSO:
  - dto.go: Envelope data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/supply-engine/dataset"
	"github.com/warp/supply-engine/pipeline"
	"github.com/warp/supply-engine/store/sqlite"
	"github.com/warp/supply-engine/supply"
)

// maxUploadBytes bounds one forecast upload (all six tables).
const maxUploadBytes = 32 << 20

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        *sqlite.Store
	Orchestrator *pipeline.Orchestrator
	Log          *zap.Logger

	// Credentials is the configured key-pool size, surfaced on /health.
	Credentials int

	// now supplies the default reference date; injectable for tests.
	now func() time.Time
}

// NewHandler creates a new handler.
func NewHandler(store *sqlite.Store, orch *pipeline.Orchestrator, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Store:        store,
		Orchestrator: orch,
		Log:          log,
		now:          time.Now,
	}
}

// =============================================================================
// FORECAST
// =============================================================================

// RunForecast runs one batch from a multipart upload. Each form file is
// named after its table (sites, enrollment, dispense, inventory,
// shipment_logs, waste). An optional reference_date form value
// (YYYY-MM-DD) anchors date arithmetic; it defaults to today.
func (h *Handler) RunForecast(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart upload", err)
		return
	}

	referenceDate := h.now().UTC().Truncate(24 * time.Hour)
	if v := r.FormValue("reference_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid reference_date format (use YYYY-MM-DD)", err)
			return
		}
		referenceDate = t
	}

	readers := make(map[string]io.Reader, len(dataset.Tables))
	var open []io.Closer
	defer func() {
		for _, c := range open {
			c.Close()
		}
	}()
	for _, table := range dataset.Tables {
		f, _, err := r.FormFile(table)
		if err != nil {
			continue // dataset.Load reports the missing table
		}
		open = append(open, f)
		readers[table] = f
	}

	ds, err := dataset.Load(readers)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid upload", err)
		return
	}

	report, err := h.Orchestrator.Run(r.Context(), ds, referenceDate)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, supply.ErrValidation) ||
			errors.Is(err, supply.ErrNoSites) ||
			errors.Is(err, supply.ErrConfiguration) {
			status = http.StatusBadRequest
		}
		writeError(w, status, "Forecast failed", err)
		return
	}

	// Most urgent sites first, matching how coordinators read the report.
	sort.SliceStable(report.Results, func(i, j int) bool {
		return report.Results[i].UrgencyScore > report.Results[j].UrgencyScore
	})

	if h.Store != nil {
		if err := h.Store.SaveRun(r.Context(), report, referenceDate); err != nil {
			// The report is still good; history is best-effort.
			h.Log.Error("failed to save run",
				zap.String("session_id", report.SessionID), zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, report)
}

// =============================================================================
// RUN HISTORY
// =============================================================================

// storeReady guards the history endpoints. The server can run without a
// store (forecast-only mode); history is then 503, not a panic.
func (h *Handler) storeReady(w http.ResponseWriter) bool {
	if h.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "Run history unavailable", nil)
		return false
	}
	return true
}

// ListRuns returns recent runs, newest first. Optional ?limit=N.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if !h.storeReady(w) {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}
	if runs == nil {
		runs = []sqlite.RunSummary{}
	}
	writeJSON(w, http.StatusOK, RunListResponse{Runs: runs})
}

// GetRun returns one saved batch report.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	if !h.storeReady(w) {
		return
	}
	id := chi.URLParam(r, "id")
	report, err := h.Store.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get run", err)
		return
	}
	if report == nil {
		writeError(w, http.StatusNotFound, "Run not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// SiteHistory returns one site's reports across past runs.
func (h *Handler) SiteHistory(w http.ResponseWriter, r *http.Request) {
	if !h.storeReady(w) {
		return
	}
	id := supply.SiteID(chi.URLParam(r, "id"))
	reports, err := h.Store.SiteHistory(r.Context(), id, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get site history", err)
		return
	}
	if reports == nil {
		reports = []supply.SiteReport{}
	}
	writeJSON(w, http.StatusOK, reports)
}

// =============================================================================
// MISC
// =============================================================================

// Health is the liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Credentials: h.Credentials})
}

// ResetDatabase clears run history (for testing/demo).
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if !h.storeReady(w) {
		return
	}
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
