package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"iconserve/internal/apierr"
	"iconserve/internal/httpx"
)

type ctxKey int

const requestIDCtxKey ctxKey = iota

// requestIDMiddleware assigns a "req_<uuid>" correlation id to every
// request (spec.md §6) and echoes it back as X-Request-Id.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := httpx.RequestID()
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDCtxKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDCtxKey).(string); ok {
		return id
	}
	return httpx.RequestID()
}

// rateLimitMiddleware surfaces the advisory X-RateLimit-* headers from
// spec.md §6 on every reply, returning 429 with Retry-After once the
// process-wide token bucket is exhausted. Real per-client/API-key
// tiering is an external collaborator (spec.md §1) and out of scope.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		allowed, limit, remaining, reset := s.Limiter.Take()
		h := w.Header()
		h.Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
		h.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		h.Set("X-RateLimit-Reset", fmt.Sprintf("%d", reset))
		if !allowed {
			h.Set("Retry-After", fmt.Sprintf("%d", int64(time.Until(time.Unix(reset, 0)).Seconds())+1))
			httpx.WriteError(w, requestIDFrom(r), apierr.New(apierr.RateLimited, "rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
