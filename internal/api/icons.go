package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"iconserve/internal/apierr"
	"iconserve/internal/cachetier"
	"iconserve/internal/httpx"
	"iconserve/internal/iconsvc"
	"iconserve/internal/model"
	"iconserve/internal/validate"
)

// iconResponse is the JSON "data" shape for a resolved icon (spec.md §6).
type iconResponse struct {
	Name     string          `json:"name"`
	Source   string          `json:"source"`
	Variant  model.Variant   `json:"variant"`
	Category string          `json:"category"`
	Tags     []string        `json:"tags"`
	SVG      string          `json:"svg"`
	Variants []model.Variant `json:"variants"`
	License  *model.License  `json:"license,omitempty"`
}

// handleGetIcon serves both GET /icons/:name (source from query,
// defaulting to lucide) and GET /icons/:source/:name.
func (s *Server) handleGetIcon(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	start := time.Now()

	req, err := parseIconRequest(r)
	if err != nil {
		httpx.WriteError(w, requestID, apierr.As(err))
		return
	}

	resolved, err := s.Svc.Resolve(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, requestID, apierr.As(err))
		return
	}

	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == resolved.ETag {
		cachetier.SetResponseHeaders(w.Header(), resolved.ETag, req.Source, req.Name, string(resolved.Variant), resolved.Source, resolved.Source == "memory", msSince(start))
		w.WriteHeader(http.StatusNotModified)
		return
	}

	cachetier.SetResponseHeaders(w.Header(), resolved.ETag, req.Source, req.Name, string(resolved.Variant), resolved.Source, resolved.Source == "memory", msSince(start))

	if wantsSVG(r) {
		httpx.WriteSVG(w, http.StatusOK, []byte(resolved.SVG))
		return
	}

	var lic *model.License
	if cfg, ok := s.Svc.Sources[resolved.Icon.Source]; ok {
		lic = &cfg.License
	}
	data := iconResponse{
		Name: resolved.Icon.Name, Source: resolved.Icon.Source, Variant: resolved.Variant,
		Category: resolved.Icon.Category, Tags: resolved.Icon.Tags, SVG: resolved.SVG,
		Variants: resolved.Icon.Variants, License: lic,
	}
	httpx.WriteJSON(w, http.StatusOK, requestID, data, nil)
}

// iconRequestFor builds a default-variant iconsvc.Request for an
// already-chosen icon (used by GET /random, which picks the icon
// itself rather than taking name/source from the caller).
func iconRequestFor(icon model.Icon, size int, strokeWidth float64, color string) iconsvc.Request {
	return iconsvc.Request{
		Source: icon.Source, Name: icon.Name, Size: size, StrokeWidth: strokeWidth, Color: color,
	}
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

func wantsSVG(r *http.Request) bool {
	if strings.EqualFold(r.URL.Query().Get("format"), "svg") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "image/svg+xml")
}

// parseIconRequest builds a fully-validated iconsvc.Request from the
// path params and query string of a single-icon request.
func parseIconRequest(r *http.Request) (iconsvc.Request, error) {
	q := r.URL.Query()

	source := chi.URLParam(r, "source")
	if source == "" {
		source = q.Get("source")
	}
	if source == "" {
		source = "lucide"
	}
	source, err := validate.Source(source)
	if err != nil {
		return iconsvc.Request{}, err
	}

	name, err := validate.Name(chi.URLParam(r, "name"))
	if err != nil {
		return iconsvc.Request{}, err
	}

	size, err := validate.ParseSize(q.Get("size"))
	if err != nil {
		return iconsvc.Request{}, err
	}

	stroke := q.Get("stroke")
	if stroke == "" {
		stroke = q.Get("stroke-width")
	}
	strokeWidth, err := validate.ParseStrokeWidth(stroke)
	if err != nil {
		return iconsvc.Request{}, err
	}

	color, err := validate.ParseColor(q.Get("color"))
	if err != nil {
		return iconsvc.Request{}, err
	}

	rotate, err := validate.ParseRotate(q.Get("rotate"))
	if err != nil {
		return iconsvc.Request{}, err
	}

	rawAttrs := make(map[string]string)
	for key, vals := range q {
		if strings.HasPrefix(key, "data-") && len(vals) > 0 {
			rawAttrs[key] = vals[0]
		}
	}
	attrs, err := validate.CustomAttributes(rawAttrs)
	if err != nil {
		return iconsvc.Request{}, err
	}

	return iconsvc.Request{
		Source: source, Name: name, Variant: model.Variant(q.Get("variant")),
		Size: size, StrokeWidth: strokeWidth, Color: color, Rotate: rotate,
		Mirror: validate.ParseMirror(q.Get("mirror")), ClassName: q.Get("class"),
		CustomAttributes: attrs,
	}, nil
}
