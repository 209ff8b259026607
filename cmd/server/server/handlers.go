package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"verisimdb/core"
)

// Server bundles the dependencies the health/ready/metrics/feed handlers
// need. The full query/mutation HTTP surface is not wired here; this is
// a thin liveness and observability demonstration.
type Server struct {
	Store  *core.HexadStore
	Health *core.HealthLogger
	Feed   *core.NormalizerFeed

	ready atomic.Bool
}

// SetReady flips the readiness flag reported by /ready.
func (s *Server) SetReady(v bool) { s.ready.Store(v) }

// HandleHealth reports liveness: the process is up and able to serve
// requests at all.
func (s *Server) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HandleReady reports readiness: 503 until SetReady(true) has been called,
// then 200 with the health snapshot. serve sets the flag as soon as the
// store and its dependencies are constructed; no WAL replay runs first.
func (s *Server) HandleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	snapshot := s.Health.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "health": snapshot})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
