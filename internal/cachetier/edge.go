package cachetier

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// CachedResponse is what the edge adapter stores/returns.
type CachedResponse struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Edge models the external CDN collaborator (spec.md §4.5): "match(key)
// -> response?" / "put(key, response)". Production deployments are
// expected to bind this to a real CDN's edge-cache API; NoopEdge below
// is the default when none is configured (DESIGN.md Open Question 3).
type Edge interface {
	Match(key string) (CachedResponse, bool)
	Put(key string, resp CachedResponse)
}

// NoopEdge never has a hit and discards puts; used when no edge
// collaborator is configured. Callers still get fully correct
// memory/origin behavior, with edge short-circuiting a guaranteed miss.
type NoopEdge struct{}

func (NoopEdge) Match(string) (CachedResponse, bool) { return CachedResponse{}, false }
func (NoopEdge) Put(string, CachedResponse)           {}

// InProcessEdge is a simple in-memory stand-in for a real edge/CDN,
// useful in tests and single-node deployments without an external CDN.
type InProcessEdge struct {
	mu    sync.Mutex
	store map[string]CachedResponse
}

func NewInProcessEdge() *InProcessEdge {
	return &InProcessEdge{store: make(map[string]CachedResponse)}
}

func (e *InProcessEdge) Match(key string) (CachedResponse, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.store[key]
	return r, ok
}

func (e *InProcessEdge) Put(key string, resp CachedResponse) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store[key] = resp
}

// CanonicalURL builds the edge-cache key from the fingerprint tuple in
// spec.md §4.5: (source, name, variant, size, strokeWidth, color,
// rotate?, mirror?, className?, customAttributes?).
func CanonicalURL(source, name, variant string, size int, strokeWidth float64, color string, rotate *float64, mirror bool, className string, customAttrs map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "/icons/%s/%s?variant=%s&size=%d&stroke=%g&color=%s", source, name, variant, size, strokeWidth, color)
	if rotate != nil {
		fmt.Fprintf(&b, "&rotate=%g", *rotate)
	}
	if mirror {
		b.WriteString("&mirror=true")
	}
	if className != "" {
		fmt.Fprintf(&b, "&class=%s", className)
	}
	if len(customAttrs) > 0 {
		fmt.Fprintf(&b, "&attrs=%s", sortedJoin(customAttrs))
	}
	return b.String()
}

// CacheTag builds the Cache-Tag header value from spec.md §4.5:
// "icon:{src}:{name},source:{src},variant:{v}".
func CacheTag(source, name, variant string) string {
	return fmt.Sprintf("icon:%s:%s,source:%s,variant:%s", source, name, source, variant)
}

// SetResponseHeaders sets the fixed cache-control/ETag/vary/X-Cache
// header set from spec.md §4.5 on a response.
func SetResponseHeaders(h http.Header, etag, source, name, variant, layer string, hit bool, responseTimeMS float64) {
	h.Set("Cache-Control", "public, max-age=86400, stale-while-revalidate=86400, immutable")
	h.Set("ETag", etag)
	h.Set("Cache-Tag", CacheTag(source, name, variant))
	h.Set("Vary", "Accept")
	if hit {
		h.Set("X-Cache", "HIT")
	} else {
		h.Set("X-Cache", "MISS")
	}
	h.Set("X-Cache-Layer", layer)
	h.Set("X-Response-Time", fmt.Sprintf("%gms", responseTimeMS))
}

// sortedJoin renders m as a deterministic "k=v&k=v" string regardless
// of map iteration order, for CanonicalURL's customAttrs component.
func sortedJoin(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+m[k])
	}
	return strings.Join(parts, "&")
}
