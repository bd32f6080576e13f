package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"iconserve/internal/apierr"
	"iconserve/internal/batch"
	"iconserve/internal/bulk"
	"iconserve/internal/httpx"
)

// handleBulk serves POST /bulk?format=zip|svg-bundle|json-sprite
// (spec.md §4.8): up to 100 icons composed into a downloadable archive.
func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	format, err := bulk.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		httpx.WriteError(w, requestID, apierr.As(err))
		return
	}

	var body batch.Request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.WriteError(w, requestID, apierr.New(apierr.InvalidParameter, "request body must be valid JSON"))
		return
	}
	if len(body.Icons) == 0 {
		httpx.WriteError(w, requestID, apierr.New(apierr.NoValidIcons, "icons must contain at least one entry"))
		return
	}
	if len(body.Icons) > bulk.MaxItems {
		httpx.WriteError(w, requestID, apierr.Newf(apierr.BulkLimitExceeded, "bulk accepts at most %d icons", bulk.MaxItems))
		return
	}

	items := batch.WithDefaults(body.Icons, body.Defaults)
	entries, _ := bulk.ResolveAll(r.Context(), s.Svc, items)
	if len(entries) == 0 {
		httpx.WriteError(w, requestID, apierr.New(apierr.NoValidIcons, "no icons in the request resolved successfully"))
		return
	}

	now := time.Now()
	filename := bulk.Filename(format, now)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("Content-Type", format.ContentType())
	httpx.SetSecurityHeaders(w, format != bulk.FormatJSONSprite)

	switch format {
	case bulk.FormatZip:
		w.WriteHeader(http.StatusOK)
		if _, err := bulk.BuildZip(w, entries); err != nil {
			s.Log.Error("bulk: zip build failed", zap.Error(err))
		}
	case bulk.FormatSVGBundle:
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(bulk.BuildSVGBundle(entries)))
	case bulk.FormatJSONSprite:
		raw, err := bulk.MarshalJSONSprite(entries, now)
		if err != nil {
			httpx.WriteError(w, requestID, apierr.Wrap(apierr.InternalError, err, "failed to build json-sprite"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(raw)
	}
}
