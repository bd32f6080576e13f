// Package iconsvc orchestrates the per-icon data flow from spec.md §2:
// coalesce -> check memory cache -> resolve index record -> fetch blob ->
// transform -> populate memory cache -> return. Input validation happens
// before a Request reaches this package. It is the one
// place the Index Store, Blob Store, Transform Engine, Cache Tiers, and
// Request Coalescer are wired together, so C8 (batch/bulk) and C9
// (handlers) both call through it instead of re-implementing the
// pipeline.
package iconsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"iconserve/internal/apierr"
	"iconserve/internal/blobstore"
	"iconserve/internal/cachetier"
	"iconserve/internal/coalesce"
	"iconserve/internal/indexstore"
	"iconserve/internal/metrics"
	"iconserve/internal/model"
	"iconserve/internal/sourcecfg"
	"iconserve/internal/transform"
)

// Request describes a fully-validated single-icon request.
type Request struct {
	Source           string
	Name             string
	Variant          model.Variant
	Size             int
	StrokeWidth      float64
	Color            string
	Rotate           *float64
	Mirror           bool
	ClassName        string
	CustomAttributes map[string]string
}

// Resolved is the result of a successful icon resolution.
type Resolved struct {
	Icon     model.Icon
	Variant  model.Variant
	SVG      string
	ETag     string
	Source   string // layer that served it: "memory" or "origin"
}

// Service wires C2-C6 together.
type Service struct {
	Index     *indexstore.Store
	Blobs     *blobstore.Store
	Memory    *cachetier.Memory
	Transform *transform.ResultCache
	Sources   map[string]model.SourceConfig
	Metrics   *metrics.Registry
	Log       *zap.Logger

	coalescer *coalesce.Group[Resolved]
}

// New builds a Service. coalesceTimeout defaults to 30s.
func New(index *indexstore.Store, blobs *blobstore.Store, memory *cachetier.Memory, xform *transform.ResultCache, sources map[string]model.SourceConfig, reg *metrics.Registry, logger *zap.Logger, coalesceTimeout time.Duration) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sources == nil {
		sources = sourcecfg.Defaults()
	}
	s := &Service{Index: index, Blobs: blobs, Memory: memory, Transform: xform, Sources: sources, Metrics: reg, Log: logger}
	s.coalescer = coalesce.New(cloneResolved, coalesceTimeout)
	return s
}

func cloneResolved(r Resolved) Resolved { return r } // shallow copy: waiters share Icon's slices, which nothing mutates

// StartSweeper starts the coalescer's background sweep.
func (s *Service) StartSweeper(interval time.Duration) { s.coalescer.StartSweeper(interval) }

// Stop ends background goroutines.
func (s *Service) Stop() { s.coalescer.Stop() }

// Resolve runs the C6->C5->C2->C3->C4->C5 pipeline (C1 already done)
// for req: coalesce, memory lookup, index, blob fetch, transform, memory
// store. It returns ICON_NOT_FOUND / VARIANT_NOT_AVAILABLE / STORAGE_ERROR
// as *apierr.Error.
func (s *Service) Resolve(ctx context.Context, req Request) (Resolved, error) {
	fp := fingerprintKey(req)

	result, callErr, _ := s.coalescer.Do(fp, func() (Resolved, error) {
		return s.resolveOnce(ctx, req, fp)
	})
	return result, callErr
}

func (s *Service) resolveOnce(ctx context.Context, req Request, fp string) (Resolved, error) {
	if cached, ok := s.Memory.Get(fp); ok {
		if resolved, ok := decodeCachedResolved(cached); ok {
			if s.Metrics != nil {
				s.Metrics.CacheHit("memory", "icon")
			}
			resolved.Source = "memory"
			return resolved, nil
		}
		// corrupt or stale-format entry; fall through and re-resolve from origin
	}
	if s.Metrics != nil {
		s.Metrics.CacheMiss("memory", "icon")
	}

	idx, err := s.Index.GetIndex(ctx)
	if err != nil {
		return Resolved{}, apierr.Wrap(apierr.StorageError, err, "failed to load icon index")
	}

	icon, ok := idx.Icons[model.IconID(req.Source, req.Name)]
	if !ok {
		return Resolved{}, s.notFoundWithSuggestions(idx, req)
	}

	variant := req.Variant
	if variant == "" {
		variant = s.defaultVariant(req.Source)
	}
	if !icon.HasVariant(variant) {
		return Resolved{}, apierr.Newf(apierr.VariantNotAvail, "source %q does not declare variant %q for icon %q", req.Source, variant, req.Name)
	}

	blobKey, ok := s.variantBlobKey(icon, req.Source, req.Name, variant)
	if !ok {
		return Resolved{}, apierr.Newf(apierr.VariantNotAvail, "no storage mapping for variant %q of %q", variant, req.Name)
	}

	res, err := s.Blobs.Get(ctx, blobKey, "")
	if err != nil {
		return Resolved{}, apierr.Wrap(apierr.StorageError, err, "failed to fetch icon body")
	}
	if res.Object == nil {
		return Resolved{}, apierr.Newf(apierr.IconNotFound, "icon %q not found in blob store", req.Name)
	}

	params := model.TransformParams{
		Size: req.Size, StrokeWidth: req.StrokeWidth, Color: req.Color,
		Rotate: req.Rotate, Mirror: req.Mirror, ClassName: req.ClassName,
		CustomAttributes: req.CustomAttributes,
	}
	out, err := transform.TransformCached(s.Transform, string(res.Object.Body), params)
	if err != nil {
		return Resolved{}, apierr.Wrap(apierr.InternalError, err, "failed to transform icon")
	}

	resolved := Resolved{Icon: icon, Variant: variant, SVG: out.SVG, ETag: out.ETag, Source: "origin"}
	if enc, err := encodeResolved(resolved); err == nil {
		s.Memory.Set(fp, enc)
	}
	return resolved, nil
}

// cachedResolved is the encoded shape of a Resolved stored in the memory
// cache tier. Source is omitted: it always reads back as "memory" since
// a fresh Resolve() only ever reaches the encode path via "origin".
type cachedResolved struct {
	Icon    model.Icon    `json:"icon"`
	Variant model.Variant `json:"variant"`
	SVG     string        `json:"svg"`
	ETag    string        `json:"etag"`
}

func encodeResolved(r Resolved) ([]byte, error) {
	return json.Marshal(cachedResolved{Icon: r.Icon, Variant: r.Variant, SVG: r.SVG, ETag: r.ETag})
}

func decodeCachedResolved(raw []byte) (Resolved, bool) {
	var c cachedResolved
	if err := json.Unmarshal(raw, &c); err != nil {
		return Resolved{}, false
	}
	return Resolved{Icon: c.Icon, Variant: c.Variant, SVG: c.SVG, ETag: c.ETag}, true
}

func (s *Service) defaultVariant(source string) model.Variant {
	if cfg, ok := s.Sources[source]; ok && cfg.DefaultVariant != "" {
		return cfg.DefaultVariant
	}
	return model.VariantDefault
}

func (s *Service) variantBlobKey(icon model.Icon, source, name string, variant model.Variant) (string, bool) {
	cfg, ok := s.Sources[source]
	if !ok || cfg.VariantPath == nil || variant == model.VariantDefault {
		return icon.Path, true
	}
	if path, ok := cfg.VariantPath(name, variant); ok {
		return path, true
	}
	return "", false
}

func (s *Service) notFoundWithSuggestions(idx *model.Index, req Request) *apierr.Error {
	suggestions := []string{}
	for id, icon := range idx.Icons {
		if icon.Source != req.Source {
			continue
		}
		if req.Name != "" && (strings.Contains(icon.Name, req.Name) || strings.Contains(req.Name, icon.Name)) {
			suggestions = append(suggestions, icon.Name)
		}
		if len(suggestions) >= 5 {
			break
		}
		_ = id
	}
	sort.Strings(suggestions)
	e := apierr.Newf(apierr.IconNotFound, "icon %q not found in source %q", req.Name, req.Source)
	return e.WithDetails(map[string]any{"suggestions": suggestions})
}

func fingerprintKey(req Request) string {
	rotate := ""
	if req.Rotate != nil {
		rotate = fmt.Sprintf("%g", *req.Rotate)
	}
	base := fmt.Sprintf("%s:%s:%s:%d:%g:%s:%s:%t:%s",
		req.Source, req.Name, req.Variant, req.Size, req.StrokeWidth, req.Color, rotate, req.Mirror, req.ClassName)
	if len(req.CustomAttributes) == 0 {
		return base
	}
	return base + ":" + sortedAttrString(req.CustomAttributes)
}

func sortedAttrString(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var s string
	for _, k := range keys {
		s += k + "=" + attrs[k] + ";"
	}
	return s
}
