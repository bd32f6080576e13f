// Package ratelimit implements the advisory token-bucket headers from
// spec.md §6: a process-wide bucket refilled once per minute, whose
// state is surfaced as X-RateLimit-* on every response. Real
// API-key-tiered or hierarchical limiting is out of scope (spec.md §1);
// this is the bare contract the headers describe.
package ratelimit

import (
	"sync"
	"time"
)

// Bucket is a single process-wide token bucket.
type Bucket struct {
	mu         sync.Mutex
	limit      int
	remaining  int
	resetAt    time.Time
	windowSize time.Duration
}

// New builds a Bucket allowing limit requests per one-minute window.
func New(limit int) *Bucket {
	if limit <= 0 {
		limit = 600
	}
	b := &Bucket{limit: limit, windowSize: time.Minute}
	b.reset(time.Now())
	return b
}

func (b *Bucket) reset(now time.Time) {
	b.remaining = b.limit
	b.resetAt = now.Add(b.windowSize)
}

// Take consumes one token, reporting whether the caller is within
// limit plus the current remaining count and reset time (epoch
// seconds) for the X-RateLimit-* headers.
func (b *Bucket) Take() (allowed bool, limit, remaining int, resetUnix int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if now.After(b.resetAt) {
		b.reset(now)
	}
	if b.remaining <= 0 {
		return false, b.limit, 0, b.resetAt.Unix()
	}
	b.remaining--
	return true, b.limit, b.remaining, b.resetAt.Unix()
}
