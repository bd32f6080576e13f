package api

import (
	"encoding/json"
	"net/http"

	"iconserve/internal/apierr"
	"iconserve/internal/batch"
	"iconserve/internal/httpx"
)

// handleBatch serves POST /icons/batch (spec.md §4.8): up to 50
// independent icon requests, each resolved and reported in-band.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var body batch.Request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.WriteError(w, requestID, apierr.New(apierr.InvalidParameter, "request body must be valid JSON"))
		return
	}
	if len(body.Icons) == 0 {
		httpx.WriteError(w, requestID, apierr.New(apierr.NoValidIcons, "icons must contain at least one entry"))
		return
	}
	if len(body.Icons) > batch.MaxItems {
		httpx.WriteError(w, requestID, apierr.Newf(apierr.BatchLimitExceeded, "batch accepts at most %d icons", batch.MaxItems))
		return
	}

	items := batch.WithDefaults(body.Icons, body.Defaults)
	results, summary := batch.Run(r.Context(), s.Svc, items)

	httpx.WriteJSON(w, http.StatusOK, requestID, results, map[string]any{
		"requested":  summary.Requested,
		"successful": summary.Successful,
		"failed":     summary.Failed,
	})
}
