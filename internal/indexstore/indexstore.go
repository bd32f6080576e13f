// Package indexstore implements the Index Store (spec.md §4.2): loads
// and caches the icon index, inverted index, and synonym map from a
// key-value backend, with TTL caching, ETag-aware reads, and a shared
// circuit breaker.
package indexstore

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"iconserve/internal/circuitbreaker"
	"iconserve/internal/model"
)

// Backend is the external key-value collaborator contract: Get returns
// the raw bytes stored at key, or (nil, false, nil) on miss.
type Backend interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
}

const (
	indexKey     = "icon-index"
	invertedKey  = "inverted-index"
	synonymsKey  = "synonyms"
	defaultTTL   = 60 * time.Second
)

type cached[T any] struct {
	value     T
	ok        bool
	loadedAt  time.Time
	etag      string
}

// Store is the Index Store component.
type Store struct {
	backend Backend
	log     *zap.Logger
	breaker *circuitbreaker.Breaker
	ttl     time.Duration

	mu        sync.Mutex
	index     cached[*model.Index]
	inverted  cached[*model.InvertedIndex]
	synonyms  cached[model.Synonyms]
}

// New builds a Store backed by backend.
func New(backend Backend, logger *zap.Logger, breakerThreshold int, breakerOpenTimeout time.Duration) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		backend: backend,
		log:     logger,
		breaker: circuitbreaker.New(breakerThreshold, breakerOpenTimeout),
		ttl:     defaultTTL,
	}
}

// ErrStorage is returned (wrapped) when the circuit breaker is open or
// the backend fails; callers should surface apierr.StorageError.
var ErrStorage = fmt.Errorf("indexstore: storage error")

// GetIndex returns the cached icon index, refreshing from the backend
// once the TTL has elapsed.
func (s *Store) GetIndex(ctx context.Context) (*model.Index, error) {
	s.mu.Lock()
	if s.index.ok && time.Since(s.index.loadedAt) < s.ttl {
		v := s.index.value
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	var idx model.Index
	etag, err := s.loadJSON(ctx, indexKey, &idx)
	if err != nil {
		s.mu.Lock()
		stale := s.index.ok
		v := s.index.value
		s.mu.Unlock()
		if stale {
			s.log.Warn("indexstore: refresh failed, serving stale index", zap.Error(err))
			return v, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	s.mu.Lock()
	s.index = cached[*model.Index]{value: &idx, ok: true, loadedAt: time.Now(), etag: etag}
	s.mu.Unlock()
	return &idx, nil
}

// GetIndexWithETag returns the index plus its ETag; when ifNoneMatch
// matches the current ETag, notModified is true and index is nil.
func (s *Store) GetIndexWithETag(ctx context.Context, ifNoneMatch string) (idx *model.Index, etag string, notModified bool, err error) {
	i, err := s.GetIndex(ctx)
	if err != nil {
		return nil, "", false, err
	}
	s.mu.Lock()
	tag := s.index.etag
	s.mu.Unlock()
	if tag == "" {
		tag = computeETag(i)
	}
	if ifNoneMatch != "" && ifNoneMatch == tag {
		return nil, tag, true, nil
	}
	return i, tag, false, nil
}

// GetInvertedIndex returns the cached inverted index, or (nil, nil) if
// the backend doesn't provide one (it is an optional collaborator —
// spec.md §4.2 — callers fall back to linear scan).
func (s *Store) GetInvertedIndex(ctx context.Context) (*model.InvertedIndex, error) {
	s.mu.Lock()
	if s.inverted.ok && time.Since(s.inverted.loadedAt) < s.ttl {
		v := s.inverted.value
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	var inv model.InvertedIndex
	_, err := s.loadJSON(ctx, invertedKey, &inv)
	if err != nil {
		s.mu.Lock()
		stale := s.inverted.ok
		v := s.inverted.value
		s.mu.Unlock()
		if stale {
			return v, nil
		}
		return nil, nil // optional collaborator: absence is not an error
	}
	s.mu.Lock()
	s.inverted = cached[*model.InvertedIndex]{value: &inv, ok: true, loadedAt: time.Now()}
	s.mu.Unlock()
	return &inv, nil
}

// GetSynonyms returns the cached synonym map, or nil if absent.
func (s *Store) GetSynonyms(ctx context.Context) (model.Synonyms, error) {
	s.mu.Lock()
	if s.synonyms.ok && time.Since(s.synonyms.loadedAt) < s.ttl {
		v := s.synonyms.value
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	var syn model.Synonyms
	_, err := s.loadJSON(ctx, synonymsKey, &syn)
	if err != nil {
		s.mu.Lock()
		stale := s.synonyms.ok
		v := s.synonyms.value
		s.mu.Unlock()
		if stale {
			return v, nil
		}
		return nil, nil
	}
	s.mu.Lock()
	s.synonyms = cached[model.Synonyms]{value: syn, ok: true, loadedAt: time.Now()}
	s.mu.Unlock()
	return syn, nil
}

// loadJSON fetches key through the circuit breaker and unmarshals it
// into out, returning a content-hash ETag.
func (s *Store) loadJSON(ctx context.Context, key string, out any) (string, error) {
	var raw []byte
	var found bool
	callErr := s.breaker.Call(func() error {
		var err error
		raw, found, err = s.backend.Get(ctx, key)
		return err
	})
	if callErr == circuitbreaker.ErrOpen {
		return "", callErr
	}
	if callErr != nil {
		return "", callErr
	}
	if !found {
		return "", fmt.Errorf("indexstore: key %q not found", key)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return "", err
	}
	return computeETagBytes(raw), nil
}

func computeETag(idx *model.Index) string {
	b, _ := json.Marshal(idx)
	return computeETagBytes(b)
}

func computeETagBytes(b []byte) string {
	h := sha1.Sum(b)
	return `"` + hex.EncodeToString(h[:]) + `"`
}

// BreakerState exposes the breaker state for health checks.
func (s *Store) BreakerState() circuitbreaker.State { return s.breaker.State() }

// Reset clears all cached state. Test-only helper.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = cached[*model.Index]{}
	s.inverted = cached[*model.InvertedIndex]{}
	s.synonyms = cached[model.Synonyms]{}
}
