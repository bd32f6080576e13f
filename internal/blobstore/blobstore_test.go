package blobstore

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iconserve/internal/circuitbreaker"
)

type fakeBackend struct {
	bodies   map[string][]byte
	err      error
	fetchN   int32
	delay    time.Duration
}

func (f *fakeBackend) Fetch(ctx context.Context, key, ifNoneMatch string) ([]byte, string, bool, error) {
	atomic.AddInt32(&f.fetchN, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, "", false, f.err
	}
	b, ok := f.bodies[key]
	if !ok {
		return nil, "", false, nil
	}
	return b, "etag-" + key, false, nil
}

const validSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24"><path d="M0 0"/></svg>`

func TestGetFetchesAndReturnsObject(t *testing.T) {
	backend := &fakeBackend{bodies: map[string][]byte{"lucide/home.svg": []byte(validSVG)}}
	s := New(backend, nil, 10, 3, time.Second, 5*time.Second)

	res, err := s.Get(context.Background(), "lucide/home.svg", "")
	require.NoError(t, err)
	require.NotNil(t, res.Object)
	assert.Equal(t, validSVG, string(res.Object.Body))
}

func TestGetRejectsInvalidKeyAsMiss(t *testing.T) {
	backend := &fakeBackend{bodies: map[string][]byte{}}
	s := New(backend, nil, 10, 3, time.Second, 5*time.Second)

	res, err := s.Get(context.Background(), "../escape", "")
	require.NoError(t, err)
	assert.Nil(t, res.Object)
	assert.Zero(t, backend.fetchN)
}

func TestGetRejectsInvalidSVGBodyAsMiss(t *testing.T) {
	backend := &fakeBackend{bodies: map[string][]byte{"bad.svg": []byte("<script>alert(1)</script>")}}
	s := New(backend, nil, 10, 3, time.Second, 5*time.Second)

	res, err := s.Get(context.Background(), "bad.svg", "")
	require.NoError(t, err)
	assert.Nil(t, res.Object)
}

func TestGetCoalescesConcurrentFetchesOfSameKey(t *testing.T) {
	backend := &fakeBackend{bodies: map[string][]byte{"lucide/home.svg": []byte(validSVG)}, delay: 20 * time.Millisecond}
	s := New(backend, nil, 10, 3, time.Second, 5*time.Second)

	results := make(chan Result, 5)
	for i := 0; i < 5; i++ {
		go func() {
			r, err := s.Get(context.Background(), "lucide/home.svg", "")
			require.NoError(t, err)
			results <- r
		}()
	}
	for i := 0; i < 5; i++ {
		r := <-results
		require.NotNil(t, r.Object)
	}
	assert.EqualValues(t, 1, backend.fetchN)
}

func TestGetBackendErrorIsMissNotError(t *testing.T) {
	backend := &fakeBackend{err: errors.New("boom")}
	s := New(backend, nil, 10, 3, time.Second, 5*time.Second)
	res, err := s.Get(context.Background(), "lucide/home.svg", "")
	require.NoError(t, err)
	assert.Nil(t, res.Object)
}

func TestBreakerOpensAfterRepeatedBackendFailures(t *testing.T) {
	backend := &fakeBackend{err: errors.New("boom")}
	s := New(backend, nil, 10, 1, time.Minute, 5*time.Second)
	_, _ = s.Get(context.Background(), "lucide/home.svg", "")
	assert.Equal(t, circuitbreaker.Open, s.BreakerState())
}

func TestBatchGetResolvesAllKeys(t *testing.T) {
	backend := &fakeBackend{bodies: map[string][]byte{
		"a.svg": []byte(validSVG),
		"b.svg": []byte(validSVG),
	}}
	s := New(backend, nil, 10, 3, time.Second, 5*time.Second)

	out := s.BatchGet(context.Background(), []string{"a.svg", "b.svg", "missing.svg"}, nil)
	require.Len(t, out, 3)
	assert.NotNil(t, out["a.svg"].Object)
	assert.NotNil(t, out["b.svg"].Object)
	assert.Nil(t, out["missing.svg"].Object)
}

func TestMetricsHookInvokedOnHitAndMiss(t *testing.T) {
	backend := &fakeBackend{bodies: map[string][]byte{"a.svg": []byte(validSVG)}}
	var hits, misses int32
	s := New(backend, nil, 10, 3, time.Second, 5*time.Second, WithMetricsHook(func(op string, ms float64, bytes int, hit bool) {
		if hit {
			atomic.AddInt32(&hits, 1)
		} else {
			atomic.AddInt32(&misses, 1)
		}
	}))

	_, _ = s.Get(context.Background(), "a.svg", "")
	_, _ = s.Get(context.Background(), "missing.svg", "")
	assert.EqualValues(t, 1, hits)
	assert.EqualValues(t, 1, misses)
}
