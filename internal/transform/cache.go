package transform

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"iconserve/internal/model"
)

// ResultCache caches transform output keyed by Fingerprint(svg, opts),
// LRU capacity 1000 with FIFO eviction on capacity (spec.md §4.4). The
// hashicorp LRU evicts the least-recently-used entry on Add-at-capacity;
// Get reads with Peek, which does not refresh recency, so for this
// write-once-per-key cache the victim is always the oldest insert.
type ResultCache struct {
	lru *lru.Cache[string, Result]
}

// Result is a cached transform output plus its ETag.
type Result struct {
	SVG  string
	ETag string
}

// NewResultCache builds a ResultCache with the given capacity.
func NewResultCache(capacity int) *ResultCache {
	if capacity <= 0 {
		capacity = 1000
	}
	c, _ := lru.New[string, Result](capacity)
	return &ResultCache{lru: c}
}

// Get returns the cached result for (svg, opts), if present.
func (c *ResultCache) Get(svg string, opts model.TransformParams) (Result, bool) {
	return c.lru.Peek(Fingerprint(svg, opts))
}

// Put stores a result for (svg, opts).
func (c *ResultCache) Put(svg string, opts model.TransformParams, r Result) {
	c.lru.Add(Fingerprint(svg, opts), r)
}

// Len reports the number of cached entries.
func (c *ResultCache) Len() int { return c.lru.Len() }

// TransformCached runs Transform, consulting and populating cache.
func TransformCached(cache *ResultCache, svg string, opts model.TransformParams) (Result, error) {
	if cache != nil {
		if r, ok := cache.Get(svg, opts); ok {
			return r, nil
		}
	}
	out, err := Transform(svg, opts)
	if err != nil {
		return Result{}, err
	}
	r := Result{SVG: out, ETag: ETag([]byte(out))}
	if cache != nil {
		cache.Put(svg, opts, r)
	}
	return r, nil
}
