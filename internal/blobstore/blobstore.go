// Package blobstore implements the Blob Store (spec.md §4.3): fetches
// raw SVG bytes by content key from an object store, sanitizing keys,
// validating SVG content, coalescing concurrent fetches per key, and
// circuit-breaking backend failures.
package blobstore

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"iconserve/internal/circuitbreaker"
	"iconserve/internal/coalesce"
	"iconserve/internal/validate"
)

// Object is a fetched blob.
type Object struct {
	Body []byte
	ETag string
	Size int
}

// Result is the tri-state return of Get (spec.md §4.3): a hit, a
// not-modified, or a miss.
type Result struct {
	Object      *Object
	NotModified bool
}

// Backend is the external object-store collaborator contract. Concrete
// adapters (fsblob for local dev, or a real object-store binding in
// production) implement this.
type Backend interface {
	Fetch(ctx context.Context, key string, ifNoneMatch string) (body []byte, etag string, notModified bool, err error)
}

// Store is the Blob Store component: validated keys, in-flight
// deduplication, a circuit breaker, a bounded connection pool, and SVG
// content validation on every fetched body.
type Store struct {
	backend Backend
	log     *zap.Logger

	breaker *circuitbreaker.Breaker
	pool    chan struct{}
	group   *coalesce.Group[Result]

	slowReadThreshold time.Duration

	onMetric func(op string, durationMS float64, bytes int, hit bool)
}

// Option configures a Store at construction.
type Option func(*Store)

// WithMetricsHook registers a callback invoked after every fetch with
// observability data (spec.md §4.3 "every read records latency and
// bytes").
func WithMetricsHook(fn func(op string, durationMS float64, bytes int, hit bool)) Option {
	return func(s *Store) { s.onMetric = fn }
}

// New builds a Store backed by backend, with the pool size, breaker
// threshold/timeout, and coalescing timeout from spec.md §4.3/§5.
func New(backend Backend, logger *zap.Logger, poolSize, breakerThreshold int, breakerOpenTimeout, coalesceTimeout time.Duration, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if poolSize <= 0 {
		poolSize = 50
	}
	s := &Store{
		backend:           backend,
		log:               logger,
		breaker:           circuitbreaker.New(breakerThreshold, breakerOpenTimeout),
		pool:              make(chan struct{}, poolSize),
		slowReadThreshold: 500 * time.Millisecond,
	}
	s.group = coalesce.New(cloneResult, coalesceTimeout)
	for _, o := range opts {
		o(s)
	}
	return s
}

func cloneResult(r Result) Result {
	if r.Object == nil {
		return r
	}
	body := make([]byte, len(r.Object.Body))
	copy(body, r.Object.Body)
	return Result{Object: &Object{Body: body, ETag: r.Object.ETag, Size: r.Object.Size}}
}

// StartSweeper starts the coalescer's background stale-entry sweep.
func (s *Store) StartSweeper(interval time.Duration) { s.group.StartSweeper(interval) }

// Stop ends the background sweeper.
func (s *Store) Stop() { s.group.Stop() }

// Get fetches key, sanitizing it first, deduplicating concurrent
// fetches of the same sanitized key, respecting the connection-pool
// semaphore (callers FIFO-wait), and circuit-breaking backend failures.
func (s *Store) Get(ctx context.Context, rawKey string, ifNoneMatch string) (Result, error) {
	key, ok := validate.Key(rawKey)
	if !ok {
		s.log.Warn("blobstore: invalid key", zap.String("key", rawKey))
		return Result{}, nil // miss, per spec.md §4.3
	}

	start := time.Now()
	res, err, didFetch := s.group.Do(key+"\x00"+ifNoneMatch, func() (Result, error) {
		return s.fetchOne(ctx, key, ifNoneMatch)
	})
	elapsed := time.Since(start)

	if s.onMetric != nil {
		hit := err == nil && res.Object != nil
		size := 0
		if res.Object != nil {
			size = res.Object.Size
		}
		s.onMetric("get", float64(elapsed.Microseconds())/1000, size, hit)
	}
	if didFetch && elapsed > s.slowReadThreshold {
		s.log.Warn("blobstore: slow read", zap.String("key", key), zap.Duration("elapsed", elapsed))
	}
	return res, err
}

func (s *Store) fetchOne(ctx context.Context, key, ifNoneMatch string) (Result, error) {
	select {
	case s.pool <- struct{}{}:
		defer func() { <-s.pool }()
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	var body []byte
	var etag string
	var notModified bool
	callErr := s.breaker.Call(func() error {
		var err error
		body, etag, notModified, err = s.backend.Fetch(ctx, key, ifNoneMatch)
		return err
	})
	if callErr == circuitbreaker.ErrOpen {
		return Result{}, fmt.Errorf("blobstore: %w", callErr)
	}
	if callErr != nil {
		s.log.Warn("blobstore: fetch error", zap.String("key", key), zap.Error(callErr))
		return Result{}, nil // miss, not surfaced to caller as an error here
	}
	if notModified {
		return Result{NotModified: true}, nil
	}
	if body == nil {
		return Result{}, nil
	}
	if err := validate.ValidateFetchedSVG(body); err != nil {
		s.log.Warn("blobstore: invalid svg body", zap.String("key", key), zap.Error(err))
		return Result{}, nil
	}
	return Result{Object: &Object{Body: body, ETag: etag, Size: len(body)}}, nil
}

// BatchGet dedupes against in-flight fetches and chunks remaining keys
// into windows of 10 concurrent fetches (spec.md §4.3), returning a
// mapping keyed by the caller's original keys.
func (s *Store) BatchGet(ctx context.Context, keys []string, etags map[string]string) map[string]Result {
	const windowSize = 10
	out := make(map[string]Result, len(keys))

	type job struct{ key string }
	jobs := make(chan job)
	results := make(chan struct {
		key string
		res Result
		err error
	}, len(keys))

	workers := windowSize
	if workers > len(keys) {
		workers = len(keys)
	}
	if workers == 0 {
		return out
	}
	done := make(chan struct{})
	for i := 0; i < workers; i++ {
		go func() {
			for j := range jobs {
				ifNoneMatch := ""
				if etags != nil {
					ifNoneMatch = etags[j.key]
				}
				res, err := s.Get(ctx, j.key, ifNoneMatch)
				results <- struct {
					key string
					res Result
					err error
				}{j.key, res, err}
			}
		}()
	}
	go func() {
		for _, k := range keys {
			jobs <- job{key: k}
		}
		close(jobs)
		close(done)
	}()

	for range keys {
		r := <-results
		out[r.key] = r.res
	}
	<-done
	return out
}

// BreakerState exposes the breaker state for observability/health checks.
func (s *Store) BreakerState() circuitbreaker.State { return s.breaker.State() }
