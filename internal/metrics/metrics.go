// Package metrics implements the counters, histograms, and timer
// summaries from spec.md §4.10/§2 (C10), exporting both a JSON dump and
// a Prometheus text format.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
)

// DefaultBuckets are the histogram bucket boundaries from spec.md §4.10, in ms.
var DefaultBuckets = []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

// Registry holds all process-wide counters, histograms, and timers. It
// is safe for concurrent use and, per spec.md §9, is never reset
// outside tests.
type Registry struct {
	mu         sync.Mutex
	counters   map[string]int64
	histograms map[string]*histogram
	timers     map[string]*timer
}

type histogram struct {
	buckets []float64
	counts  []int64 // counts[i] = observations in (buckets[i-1], buckets[i]], not cumulative; counts[len(buckets)] = overflow
	sum     float64
	total   int64
}

type timer struct {
	samples []float64 // ring buffer, last 1000
	cap     int
	pos     int
	filled  bool
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{
		counters:   make(map[string]int64),
		histograms: make(map[string]*histogram),
		timers:     make(map[string]*timer),
	}
}

// Inc increments a named counter by 1.
func (r *Registry) Inc(name string) { r.Add(name, 1) }

// Add increments a named counter by delta.
func (r *Registry) Add(name string, delta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name] += delta
}

// CacheHit records a cache hit for (layer, name): "cache_hit_{layer}_{name}".
func (r *Registry) CacheHit(layer, name string) { r.Inc(fmt.Sprintf("cache_hit_%s_%s", layer, name)) }

// CacheMiss records a cache miss for (layer, name).
func (r *Registry) CacheMiss(layer, name string) { r.Inc(fmt.Sprintf("cache_miss_%s_%s", layer, name)) }

// DedupHit records a coalescer dedup hit for a source.
func (r *Registry) DedupHit(source string) { r.Inc(fmt.Sprintf("dedup_hit_%s", source)) }

// Error records an error for (service, op, errType).
func (r *Registry) Error(service, op, errType string) {
	r.Inc(fmt.Sprintf("error_%s_%s_%s", service, op, errType))
}

// SlowQuery records a slow-query event for (service, op).
func (r *Registry) SlowQuery(service, op string) {
	r.Inc(fmt.Sprintf("slow_query_%s_%s", service, op))
}

// Bytes records bytes transferred in a direction ("in"/"out").
func (r *Registry) Bytes(dir string, n int64) {
	r.Add(fmt.Sprintf("bytes_%s", dir), n)
}

// Observe records a duration-in-ms sample in both a histogram and a
// rolling timer for name.
func (r *Registry) Observe(name string, ms float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.histograms[name]
	if !ok {
		h = &histogram{buckets: DefaultBuckets, counts: make([]int64, len(DefaultBuckets)+1)}
		r.histograms[name] = h
	}
	h.observe(ms)

	t, ok := r.timers[name]
	if !ok {
		t = &timer{samples: make([]float64, 1000), cap: 1000}
		r.timers[name] = t
	}
	t.observe(ms)
}

func (h *histogram) observe(v float64) {
	h.sum += v
	h.total++
	for i, b := range h.buckets {
		if v <= b {
			h.counts[i]++
			return
		}
	}
	h.counts[len(h.counts)-1]++
}

func (t *timer) observe(v float64) {
	t.samples[t.pos] = v
	t.pos = (t.pos + 1) % t.cap
	if t.pos == 0 {
		t.filled = true
	}
}

func (t *timer) percentiles() (p50, p95, p99 float64) {
	n := t.pos
	if t.filled {
		n = t.cap
	}
	if n == 0 {
		return 0, 0, 0
	}
	sorted := make([]float64, n)
	copy(sorted, t.samples[:n])
	sort.Float64s(sorted)
	pick := func(p float64) float64 {
		idx := int(p * float64(n-1))
		if idx < 0 {
			idx = 0
		}
		if idx >= n {
			idx = n - 1
		}
		return sorted[idx]
	}
	return pick(0.50), pick(0.95), pick(0.99)
}

// Snapshot is a point-in-time JSON-serializable view of the registry.
type Snapshot struct {
	Counters   map[string]int64            `json:"counters"`
	Histograms map[string]HistogramSummary `json:"histograms"`
	Timers     map[string]TimerSummary     `json:"timers"`
}

// HistogramSummary summarizes a histogram for JSON export.
type HistogramSummary struct {
	Buckets []float64 `json:"buckets"`
	Counts  []int64   `json:"counts"`
	Sum     float64   `json:"sum"`
	Total   int64     `json:"total"`
}

// TimerSummary summarizes a timer's last-1000-sample percentiles.
type TimerSummary struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// Snapshot returns a copy of the current registry state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Counters:   make(map[string]int64, len(r.counters)),
		Histograms: make(map[string]HistogramSummary, len(r.histograms)),
		Timers:     make(map[string]TimerSummary, len(r.timers)),
	}
	for k, v := range r.counters {
		s.Counters[k] = v
	}
	for k, h := range r.histograms {
		counts := make([]int64, len(h.counts))
		copy(counts, h.counts)
		s.Histograms[k] = HistogramSummary{Buckets: h.buckets, Counts: counts, Sum: h.sum, Total: h.total}
	}
	for k, t := range r.timers {
		p50, p95, p99 := t.percentiles()
		s.Timers[k] = TimerSummary{P50: p50, P95: p95, P99: p99}
	}
	return s
}

// HumanBytes renders a byte count for log lines, e.g. for the
// "bytes_out" counter in a /health or admin summary.
func (r *Registry) HumanBytes(name string) string {
	r.mu.Lock()
	v := r.counters[name]
	r.mu.Unlock()
	return humanize.Bytes(uint64(v))
}

// Prometheus renders the registry as Prometheus text exposition format.
func (r *Registry) Prometheus() string {
	snap := r.Snapshot()
	var b strings.Builder

	names := make([]string, 0, len(snap.Counters))
	for k := range snap.Counters {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		metric := sanitizeMetricName(name)
		fmt.Fprintf(&b, "# TYPE %s counter\n%s %d\n", metric, metric, snap.Counters[name])
	}

	hnames := make([]string, 0, len(snap.Histograms))
	for k := range snap.Histograms {
		hnames = append(hnames, k)
	}
	sort.Strings(hnames)
	for _, name := range hnames {
		h := snap.Histograms[name]
		metric := sanitizeMetricName(name)
		fmt.Fprintf(&b, "# TYPE %s_ms histogram\n", metric)
		cumulative := int64(0)
		for i, bound := range h.Buckets {
			cumulative += h.Counts[i]
			fmt.Fprintf(&b, "%s_ms_bucket{le=\"%g\"} %d\n", metric, bound, cumulative)
		}
		cumulative += h.Counts[len(h.Counts)-1]
		fmt.Fprintf(&b, "%s_ms_bucket{le=\"+Inf\"} %d\n", metric, cumulative)
		fmt.Fprintf(&b, "%s_ms_sum %g\n", metric, h.Sum)
		fmt.Fprintf(&b, "%s_ms_count %d\n", metric, h.Total)
	}

	tnames := make([]string, 0, len(snap.Timers))
	for k := range snap.Timers {
		tnames = append(tnames, k)
	}
	sort.Strings(tnames)
	for _, name := range tnames {
		t := snap.Timers[name]
		metric := sanitizeMetricName(name)
		fmt.Fprintf(&b, "%s_p50_ms %g\n%s_p95_ms %g\n%s_p99_ms %g\n", metric, t.P50, metric, t.P95, metric, t.P99)
	}

	return b.String()
}

func sanitizeMetricName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return "iconserve_" + b.String()
}

// Reset clears all counters/histograms/timers. Test-only helper.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = make(map[string]int64)
	r.histograms = make(map[string]*histogram)
	r.timers = make(map[string]*timer)
}
