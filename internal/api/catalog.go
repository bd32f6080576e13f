package api

import (
	"math/rand"
	"net/http"
	"sort"

	"iconserve/internal/apierr"
	"iconserve/internal/httpx"
	"iconserve/internal/model"
	"iconserve/internal/validate"
)

// sourceInfo is one entry of GET /sources.
type sourceInfo struct {
	ID             string          `json:"id"`
	DisplayName    string          `json:"display_name"`
	Description    string          `json:"description"`
	Website        string          `json:"website"`
	Repository     string          `json:"repository"`
	License        model.License   `json:"license"`
	Variants       []model.Variant `json:"variants"`
	DefaultVariant model.Variant   `json:"default_variant"`
	IconCount      int             `json:"icon_count"`
}

// handleSources serves GET /sources: the configured source catalog with
// per-source icon counts drawn from the live index.
func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	idx, err := s.Svc.Index.GetIndex(r.Context())
	if err != nil {
		httpx.WriteError(w, requestID, apierr.Wrap(apierr.StorageError, err, "failed to load icon index"))
		return
	}

	counts := make(map[string]int, len(s.Svc.Sources))
	for _, icon := range idx.Icons {
		counts[icon.Source]++
	}

	out := make([]sourceInfo, 0, len(s.Svc.Sources))
	for id, cfg := range s.Svc.Sources {
		out = append(out, sourceInfo{
			ID: id, DisplayName: cfg.DisplayName, Description: cfg.Description,
			Website: cfg.Website, Repository: cfg.Repository, License: cfg.License,
			Variants: cfg.Variants, DefaultVariant: cfg.DefaultVariant, IconCount: counts[id],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	httpx.WriteJSON(w, http.StatusOK, requestID, out, map[string]any{"total": len(out)})
}

// categoryInfo is one entry of GET /categories.
type categoryInfo struct {
	Name      string `json:"name"`
	IconCount int    `json:"icon_count"`
}

// handleCategories serves GET /categories?source=…: category counts
// across the whole corpus, or scoped to one source.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	source := r.URL.Query().Get("source")
	if source != "" {
		var err error
		source, err = validate.Source(source)
		if err != nil {
			httpx.WriteError(w, requestID, apierr.As(err))
			return
		}
	}

	idx, err := s.Svc.Index.GetIndex(r.Context())
	if err != nil {
		httpx.WriteError(w, requestID, apierr.Wrap(apierr.StorageError, err, "failed to load icon index"))
		return
	}

	counts := make(map[string]int)
	for _, icon := range idx.Icons {
		if source != "" && icon.Source != source {
			continue
		}
		if icon.Category == "" {
			continue
		}
		counts[icon.Category]++
	}

	out := make([]categoryInfo, 0, len(counts))
	for name, n := range counts {
		out = append(out, categoryInfo{Name: name, IconCount: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	httpx.WriteJSON(w, http.StatusOK, requestID, out, map[string]any{"total": len(out)})
}

// handleRandom serves GET /random?source=…&category=…&size=…&color=…&stroke=…:
// a random icon from the (optionally filtered) corpus, transformed like
// a single-icon fetch.
func (s *Server) handleRandom(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	q := r.URL.Query()

	source := q.Get("source")
	if source != "" {
		var err error
		source, err = validate.Source(source)
		if err != nil {
			httpx.WriteError(w, requestID, apierr.As(err))
			return
		}
	}
	category := q.Get("category")

	idx, err := s.Svc.Index.GetIndex(r.Context())
	if err != nil {
		httpx.WriteError(w, requestID, apierr.Wrap(apierr.StorageError, err, "failed to load icon index"))
		return
	}

	candidates := make([]model.Icon, 0, len(idx.Icons))
	for _, icon := range idx.Icons {
		if source != "" && icon.Source != source {
			continue
		}
		if category != "" && icon.Category != category {
			continue
		}
		candidates = append(candidates, icon)
	}
	if len(candidates) == 0 {
		if category != "" {
			httpx.WriteError(w, requestID, apierr.Newf(apierr.CategoryNotFound, "no icons found in category %q", category))
			return
		}
		httpx.WriteError(w, requestID, apierr.New(apierr.IconNotFound, "no icons match the given filters"))
		return
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	chosen := candidates[rand.Intn(len(candidates))]

	size, err := validate.ParseSize(q.Get("size"))
	if err != nil {
		httpx.WriteError(w, requestID, apierr.As(err))
		return
	}
	stroke := q.Get("stroke")
	if stroke == "" {
		stroke = q.Get("stroke-width")
	}
	strokeWidth, err := validate.ParseStrokeWidth(stroke)
	if err != nil {
		httpx.WriteError(w, requestID, apierr.As(err))
		return
	}
	color, err := validate.ParseColor(q.Get("color"))
	if err != nil {
		httpx.WriteError(w, requestID, apierr.As(err))
		return
	}

	req := iconRequestFor(chosen, size, strokeWidth, color)
	resolved, err := s.Svc.Resolve(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, requestID, apierr.As(err))
		return
	}

	if wantsSVG(r) {
		httpx.WriteSVG(w, http.StatusOK, []byte(resolved.SVG))
		return
	}
	var lic *model.License
	if cfg, ok := s.Svc.Sources[resolved.Icon.Source]; ok {
		lic = &cfg.License
	}
	httpx.WriteJSON(w, http.StatusOK, requestID, iconResponse{
		Name: resolved.Icon.Name, Source: resolved.Icon.Source, Variant: resolved.Variant,
		Category: resolved.Icon.Category, Tags: resolved.Icon.Tags, SVG: resolved.SVG,
		Variants: resolved.Icon.Variants, License: lic,
	}, nil)
}
