package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/serverpulse/serverpulse/internal/alert"
	"github.com/serverpulse/serverpulse/internal/collector"
	"github.com/serverpulse/serverpulse/internal/coordinator"
)

const defaultLimit = 50

// Handler is the HTTP handler for all /api/v1/* endpoints.
// It reads the coordinator's last published state and returns JSON responses.
type Handler struct {
	coord *coordinator.Coordinator
	mux   *http.ServeMux
}

// New creates a Handler wired to the given coordinator and registers all routes.
func New(c *coordinator.Coordinator) http.Handler {
	h := &Handler{coord: c, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/status", h.status)
	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)
	h.mux.HandleFunc("/api/v1/heap-trend", h.heapTrend)
	h.mux.HandleFunc("/api/v1/slow-requests", h.slowRequests)
	h.mux.HandleFunc("/api/v1/requests", h.requests)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// status returns GET /api/v1/status — the full state of the last tick.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	st := h.coord.Status()
	if st == nil {
		jsonErr(w, http.StatusServiceUnavailable, "no monitoring cycle completed yet")
		return
	}
	jsonResp(w, http.StatusOK, st)
}

// health returns GET /api/v1/health — the latest composite health score.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.coord.Health())
}

// alerts returns GET /api/v1/alerts — active alerts plus recent history.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := AlertsResponse{
		Active:  h.coord.Alerts(),
		History: h.coord.AlertHistory(limitParam(r)),
	}
	if resp.Active == nil {
		resp.Active = []alert.Alert{}
	}
	if resp.History == nil {
		resp.History = []alert.Alert{}
	}
	jsonResp(w, http.StatusOK, resp)
}

// heapTrend returns GET /api/v1/heap-trend — retained heap samples and the
// current exhaustion prediction, if any.
func (h *Handler) heapTrend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := HeapTrendResponse{Points: h.coord.HeapTrend()}
	if st := h.coord.Status(); st != nil && st.Snapshot != nil {
		resp.Prediction = st.Snapshot.OOMPrediction
	}
	jsonResp(w, http.StatusOK, resp)
}

// slowRequests returns GET /api/v1/slow-requests — recent requests over the
// slow threshold, newest first.
func (h *Handler) slowRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	reqs := h.coord.SlowRequests(limitParam(r))
	if reqs == nil {
		reqs = []collector.RequestEntry{}
	}
	jsonResp(w, http.StatusOK, SlowRequestsResponse{Requests: reqs})
}

// requests returns GET /api/v1/requests — aggregate access-log statistics.
func (h *Handler) requests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats := h.coord.RequestStats()
	if stats == nil {
		jsonErr(w, http.StatusNotFound, "access log collection not enabled")
		return
	}
	jsonResp(w, http.StatusOK, stats)
}

// --- helpers ----------------------------------------------------------------

// limitParam parses ?limit= with a sane default; invalid values fall back.
func limitParam(r *http.Request) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return defaultLimit
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
