// Package batch implements the Batch Composer (spec.md §4.8, C8): takes
// up to 50 independent icon requests and resolves each through
// iconsvc.Service, capturing per-entry failures in-band instead of
// aborting the whole request. It mirrors the blobstore package's
// windowed-concurrency fetch pattern for the fan-out.
package batch

import (
	"context"
	"sync"

	"iconserve/internal/apierr"
	"iconserve/internal/iconsvc"
	"iconserve/internal/model"
	"iconserve/internal/validate"
)

// MaxItems is the hard cap on a single batch request (spec.md §4.8).
const MaxItems = 50

// ItemRequest is one entry of a batch request body, already
// JSON-decoded but not yet validated.
type ItemRequest struct {
	Name             string            `json:"name"`
	Source           string            `json:"source"`
	Variant          string            `json:"variant"`
	Size             string            `json:"size"`
	StrokeWidth      string            `json:"stroke"`
	Color            string            `json:"color"`
	Rotate           string            `json:"rotate"`
	Mirror           string            `json:"mirror"`
	ClassName        string            `json:"class"`
	CustomAttributes map[string]string `json:"attributes"`
}

// Request is the full decoded `{icons, defaults?}` batch/bulk request
// body (spec.md §4.8). Defaults fills in any field an entry leaves
// blank, letting callers set e.g. a single color/size for the whole
// batch without repeating it per entry.
type Request struct {
	Icons    []ItemRequest `json:"icons"`
	Defaults ItemRequest   `json:"defaults"`
}

// WithDefaults returns items with any blank field filled in from
// defaults; CustomAttributes are merged with per-item values winning on
// key collision.
func WithDefaults(items []ItemRequest, defaults ItemRequest) []ItemRequest {
	out := make([]ItemRequest, len(items))
	for i, it := range items {
		out[i] = mergeDefaults(it, defaults)
	}
	return out
}

func mergeDefaults(it, def ItemRequest) ItemRequest {
	if it.Source == "" {
		it.Source = def.Source
	}
	if it.Variant == "" {
		it.Variant = def.Variant
	}
	if it.Size == "" {
		it.Size = def.Size
	}
	if it.StrokeWidth == "" {
		it.StrokeWidth = def.StrokeWidth
	}
	if it.Color == "" {
		it.Color = def.Color
	}
	if it.Rotate == "" {
		it.Rotate = def.Rotate
	}
	if it.Mirror == "" {
		it.Mirror = def.Mirror
	}
	if it.ClassName == "" {
		it.ClassName = def.ClassName
	}
	if len(def.CustomAttributes) > 0 {
		merged := make(map[string]string, len(def.CustomAttributes)+len(it.CustomAttributes))
		for k, v := range def.CustomAttributes {
			merged[k] = v
		}
		for k, v := range it.CustomAttributes {
			merged[k] = v
		}
		it.CustomAttributes = merged
	}
	return it
}

// ItemResult is one entry of a batch response's "data" array: either a
// resolved icon or an in-band error, never both.
type ItemResult struct {
	Name     string          `json:"name"`
	Source   string          `json:"source,omitempty"`
	Category string          `json:"category,omitempty"`
	Tags     []string        `json:"tags,omitempty"`
	SVG      string          `json:"svg,omitempty"`
	Variant  model.Variant   `json:"variant,omitempty"`
	Variants []model.Variant `json:"variants,omitempty"`
	License  *model.License  `json:"license,omitempty"`
	Error    *ItemError      `json:"error,omitempty"`
}

// ItemError is the in-band error shape for a failed batch entry.
type ItemError struct {
	Code    apierr.Code `json:"code"`
	Message string      `json:"message"`
}

// Summary is the batch-level meta counters (spec.md §4.8).
type Summary struct {
	Requested  int `json:"requested"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

const windowSize = 10

// Run validates and resolves items concurrently (bounded to windowSize
// in flight), preserving input order in the returned slice. It never
// returns an error itself: a per-item validation or resolution failure
// becomes that item's in-band Error field. Run does not enforce MaxItems
// or reject an empty slice; callers check those before calling Run (see
// apierr.BatchLimitExceeded/NoValidIcons).
func Run(ctx context.Context, svc *iconsvc.Service, items []ItemRequest) ([]ItemResult, Summary) {
	out := make([]ItemResult, len(items))

	type job struct {
		idx  int
		item ItemRequest
	}
	jobs := make(chan job)

	workers := windowSize
	if workers > len(items) {
		workers = len(items)
	}
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				out[j.idx] = ResolveOne(ctx, svc, j.item)
			}
		}()
	}
	for i, it := range items {
		jobs <- job{idx: i, item: it}
	}
	close(jobs)
	wg.Wait()

	summary := Summary{Requested: len(items)}
	for _, r := range out {
		if r.Error != nil {
			summary.Failed++
		} else {
			summary.Successful++
		}
	}
	return out, summary
}

// ResolveOne validates and resolves a single batch/bulk entry,
// returning its in-band error instead of a Go error so callers (Run,
// or the bulk composer's archive builders) can keep processing the
// rest of a request uninterrupted.
func ResolveOne(ctx context.Context, svc *iconsvc.Service, item ItemRequest) ItemResult {
	name, err := validate.Name(item.Name)
	if err != nil {
		return errResult(item.Name, err)
	}
	source := item.Source
	if source != "" {
		source, err = validate.Source(source)
		if err != nil {
			return errResult(item.Name, err)
		}
	}
	size, err := validate.ParseSize(item.Size)
	if err != nil {
		return errResult(item.Name, err)
	}
	stroke, err := validate.ParseStrokeWidth(item.StrokeWidth)
	if err != nil {
		return errResult(item.Name, err)
	}
	color, err := validate.ParseColor(item.Color)
	if err != nil {
		return errResult(item.Name, err)
	}
	rotate, err := validate.ParseRotate(item.Rotate)
	if err != nil {
		return errResult(item.Name, err)
	}
	attrs, err := validate.CustomAttributes(item.CustomAttributes)
	if err != nil {
		return errResult(item.Name, err)
	}

	req := iconsvc.Request{
		Source: source, Name: name, Variant: model.Variant(item.Variant),
		Size: size, StrokeWidth: stroke, Color: color, Rotate: rotate,
		Mirror: validate.ParseMirror(item.Mirror), ClassName: item.ClassName,
		CustomAttributes: attrs,
	}
	resolved, err := svc.Resolve(ctx, req)
	if err != nil {
		return errResult(item.Name, err)
	}

	result := ItemResult{
		Name: resolved.Icon.Name, Source: resolved.Icon.Source, Category: resolved.Icon.Category,
		Tags: resolved.Icon.Tags, SVG: resolved.SVG, Variant: resolved.Variant,
		Variants: resolved.Icon.Variants,
	}
	if cfg, ok := svc.Sources[resolved.Icon.Source]; ok {
		result.License = &cfg.License
	}
	return result
}

func errResult(name string, err error) ItemResult {
	apiErr := apierr.As(err)
	return ItemResult{Name: name, Error: &ItemError{Code: apiErr.Code, Message: apiErr.PublicMessage()}}
}
