package api

import (
	"net/http"
	"strings"

	"iconserve/internal/apierr"
	"iconserve/internal/httpx"
	"iconserve/internal/model"
	"iconserve/internal/search"
	"iconserve/internal/validate"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// searchHit is one entry of a search response's "data" array.
type searchHit struct {
	Name     string          `json:"name"`
	Source   string          `json:"source"`
	Category string          `json:"category"`
	Tags     []string        `json:"tags"`
	Variants []model.Variant `json:"variants"`
	Score    float64         `json:"score"`
}

// handleSearch serves GET /search (spec.md §4.7).
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	q := r.URL.Query()

	query, err := validate.Query(q.Get("q"))
	if err != nil {
		httpx.WriteError(w, requestID, apierr.As(err))
		return
	}

	source := strings.ToLower(strings.TrimSpace(q.Get("source")))
	if source != "" {
		source, err = validate.Source(source)
		if err != nil {
			httpx.WriteError(w, requestID, apierr.As(err))
			return
		}
	}
	category := strings.ToLower(strings.TrimSpace(q.Get("category")))

	limit := validate.ParseLimit(q.Get("limit"), defaultSearchLimit, maxSearchLimit)
	offset := validate.ParseOffset(q.Get("offset"))

	sq := search.Query{Raw: query, Source: source, Category: category}

	var (
		results  []search.Scored
		method   search.Method
		cacheHit bool
	)
	if cached, cm, ok := s.SearchCache.Get(sq); ok {
		results, method, cacheHit = cached, search.MethodCached, true
		_ = cm
	} else {
		idx, ierr := s.Svc.Index.GetIndex(r.Context())
		if ierr != nil {
			httpx.WriteError(w, requestID, apierr.Wrap(apierr.StorageError, ierr, "failed to load icon index"))
			return
		}
		inv, _ := s.Svc.Index.GetInvertedIndex(r.Context())
		syn, _ := s.Svc.Index.GetSynonyms(r.Context())
		results, method = search.Run(idx, inv, syn, sq)
		s.SearchCache.Put(sq, results, method)
	}

	page, total, hasMore := search.Paginate(results, limit, offset)
	hits := make([]searchHit, 0, len(page))
	for _, sc := range page {
		hits = append(hits, searchHit{
			Name: sc.Icon.Name, Source: sc.Icon.Source, Category: sc.Icon.Category,
			Tags: sc.Icon.Tags, Variants: sc.Icon.Variants, Score: sc.Score,
		})
	}

	httpx.WriteJSON(w, http.StatusOK, requestID, hits, map[string]any{
		"total": total, "limit": limit, "offset": offset, "has_more": hasMore,
		"search_method": method, "cache_hit": cacheHit,
	})
}
