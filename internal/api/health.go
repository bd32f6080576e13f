package api

import (
	"encoding/json"
	"net/http"
	"time"

	"iconserve/internal/httpx"
)

// handleRoot serves GET /: a bare landing JSON identifying the service,
// for smoke-testing without hitting a real icon endpoint.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, requestIDFrom(r), map[string]string{
		"service": "iconserve", "status": "ok",
	}, nil)
}

// healthStatus is the shared shape for /health and /health/ready.
type healthStatus struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	IndexBreaker  string `json:"index_breaker"`
	BlobBreaker   string `json:"blob_breaker"`
}

// handleHealth serves GET /health: a full status snapshot including
// circuit-breaker state for both backend collaborators.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.health()
	httpx.WriteJSON(w, http.StatusOK, requestIDFrom(r), status, nil)
}

// handleHealthLive serves GET /health/live: process liveness only, no
// backend calls — always 200 once the server is accepting connections.
func (s *Server) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, requestIDFrom(r), map[string]string{"status": "live"}, nil)
}

// handleHealthReady serves GET /health/ready: 503 when either breaker
// is open, since the service cannot serve fresh icons in that state.
func (s *Server) handleHealthReady(w http.ResponseWriter, r *http.Request) {
	status := s.health()
	if status.IndexBreaker == "open" || status.BlobBreaker == "open" {
		w.Header().Set("Content-Type", "application/json")
		httpx.SetSecurityHeaders(w, false)
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(status)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, requestIDFrom(r), status, nil)
}

func (s *Server) health() healthStatus {
	return healthStatus{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		IndexBreaker:  s.Svc.Index.BreakerState().String(),
		BlobBreaker:   s.Svc.Blobs.BreakerState().String(),
	}
}
