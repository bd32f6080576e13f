package api

import (
	"net/http"

	"iconserve/internal/httpx"
)

// handleMetricsJSON serves GET /metrics: the registry snapshot as JSON.
func (s *Server) handleMetricsJSON(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, requestIDFrom(r), s.Metrics.Snapshot(), nil)
}

// handleMetricsPrometheus serves GET /metrics/prometheus: the registry
// in Prometheus text exposition format.
func (s *Server) handleMetricsPrometheus(w http.ResponseWriter, r *http.Request) {
	httpx.SetSecurityHeaders(w, false)
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(s.Metrics.Prometheus()))
}
