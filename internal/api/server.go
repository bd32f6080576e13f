// Package api implements the Router/Handlers component (spec.md §4.9,
// C9): binds the HTTP endpoint surface from spec.md §6 to iconsvc,
// batch, bulk, and search, producing the JSON/SVG response envelopes
// with consistent cache, CORS, security, and rate-limit headers.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"iconserve/internal/cachetier"
	"iconserve/internal/httpx"
	"iconserve/internal/iconsvc"
	"iconserve/internal/metrics"
	"iconserve/internal/ratelimit"
	"iconserve/internal/search"
)

// Server holds everything a handler needs: the wired icon service, the
// search result cache, the metrics registry, and the advisory rate
// limiter.
type Server struct {
	Svc         *iconsvc.Service
	SearchCache *search.ResultCache
	Metrics     *metrics.Registry
	Limiter     *ratelimit.Bucket
	Edge        cachetier.Edge
	Log         *zap.Logger

	allowedOrigins []string
	startedAt      time.Time
}

// New builds a Server. allowedOrigins is the parsed ALLOWED_ORIGINS CSV.
func New(svc *iconsvc.Service, searchCache *search.ResultCache, reg *metrics.Registry, limiter *ratelimit.Bucket, edge cachetier.Edge, allowedOrigins []string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if edge == nil {
		edge = cachetier.NoopEdge{}
	}
	return &Server{
		Svc: svc, SearchCache: searchCache, Metrics: reg, Limiter: limiter, Edge: edge,
		Log: logger, allowedOrigins: allowedOrigins, startedAt: time.Now(),
	}
}

// Router builds the full chi mux, serving the core endpoint set
// identically under "/" and "/v1" (spec.md §6).
func (s *Server) Router() http.Handler {
	core := chi.NewRouter()
	core.Use(s.requestIDMiddleware)
	core.Use(httpx.CORS(s.allowedOrigins))
	core.Use(s.rateLimitMiddleware)

	core.Get("/", s.handleRoot)
	core.Get("/icons/{name}", s.handleGetIcon)
	core.Get("/icons/{source}/{name}", s.handleGetIcon)
	core.Post("/icons/batch", s.handleBatch)
	core.Post("/bulk", s.handleBulk)
	core.Get("/search", s.handleSearch)
	core.Get("/sources", s.handleSources)
	core.Get("/categories", s.handleCategories)
	core.Get("/random", s.handleRandom)
	core.Get("/health", s.handleHealth)
	core.Get("/health/live", s.handleHealthLive)
	core.Get("/health/ready", s.handleHealthReady)
	core.Get("/metrics", s.handleMetricsJSON)
	core.Get("/metrics/prometheus", s.handleMetricsPrometheus)

	r := chi.NewRouter()
	r.Mount("/", core)
	r.Mount("/v1", core)
	return r
}
