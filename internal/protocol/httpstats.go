package protocol

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/etbroker/et/internal/registry"
)

// HTTPStats exposes a small operator-facing HTTP surface over the same
// Dispatcher the wire protocol and local fast path use: a liveness probe
// and JSON dumps of system/station statistics and input-occupancy
// histograms.
type HTTPStats struct {
	dispatch *Dispatcher
	router   chi.Router
}

// NewHTTPStats builds the router. Callers mount it with http.Serve or
// embed it as a sub-route of a larger mux.
func NewHTTPStats(dispatch *Dispatcher) *HTTPStats {
	h := &HTTPStats{dispatch: dispatch}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", h.handleHealthz)
	r.Get("/stats", h.handleStats)
	r.Get("/histogram", h.handleHistogram)
	h.router = r
	return h
}

func (h *HTTPStats) ServeHTTP(w http.ResponseWriter, r *http.Request) { h.router.ServeHTTP(w, r) }

func (h *HTTPStats) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !h.dispatch.Alive() {
		http.Error(w, "not serving", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type statsResponse struct {
	System   registry.SystemStats     `json:"system"`
	Stations []registry.StationStats `json:"stations"`
}

func (h *HTTPStats) handleStats(w http.ResponseWriter, r *http.Request) {
	sys, stations := h.dispatch.SysData()
	writeJSON(w, statsResponse{System: sys, Stations: stations})
}

func (h *HTTPStats) handleHistogram(w http.ResponseWriter, r *http.Request) {
	buckets := sysHistogramBuckets
	if q := r.URL.Query().Get("buckets"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			buckets = n
		}
	}
	writeJSON(w, h.dispatch.SysHistogram(buckets))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
