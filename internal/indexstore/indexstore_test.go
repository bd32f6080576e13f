package indexstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iconserve/internal/circuitbreaker"
	"iconserve/internal/model"
)

type fakeBackend struct {
	raw     map[string][]byte
	err     error
	getCalls int
}

func (f *fakeBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.getCalls++
	if f.err != nil {
		return nil, false, f.err
	}
	v, ok := f.raw[key]
	return v, ok, nil
}

func marshalIndex(t *testing.T, icons map[string]model.Icon) []byte {
	t.Helper()
	b, err := json.Marshal(model.Index{Icons: icons})
	require.NoError(t, err)
	return b
}

func TestGetIndexLoadsAndCaches(t *testing.T) {
	backend := &fakeBackend{raw: map[string][]byte{
		"icon-index": marshalIndex(t, map[string]model.Icon{"lucide:home": {Name: "home", Source: "lucide"}}),
	}}
	s := New(backend, nil, 3, time.Second)

	idx, err := s.GetIndex(context.Background())
	require.NoError(t, err)
	assert.Len(t, idx.Icons, 1)

	_, err = s.GetIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, backend.getCalls, "second call within TTL should be served from cache")
}

func TestGetIndexServesStaleOnRefreshFailure(t *testing.T) {
	backend := &fakeBackend{raw: map[string][]byte{
		"icon-index": marshalIndex(t, map[string]model.Icon{"lucide:home": {Name: "home"}}),
	}}
	s := New(backend, nil, 3, time.Second)
	s.ttl = time.Millisecond

	_, err := s.GetIndex(context.Background())
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	backend.err = errors.New("backend down")
	idx, err := s.GetIndex(context.Background())
	require.NoError(t, err)
	assert.Len(t, idx.Icons, 1)
}

func TestGetIndexErrorsWhenNoCacheAndBackendFails(t *testing.T) {
	backend := &fakeBackend{err: errors.New("down")}
	s := New(backend, nil, 3, time.Second)
	_, err := s.GetIndex(context.Background())
	assert.ErrorIs(t, err, ErrStorage)
}

func TestGetIndexWithETagReportsNotModified(t *testing.T) {
	backend := &fakeBackend{raw: map[string][]byte{
		"icon-index": marshalIndex(t, map[string]model.Icon{"lucide:home": {Name: "home"}}),
	}}
	s := New(backend, nil, 3, time.Second)

	_, etag, notModified, err := s.GetIndexWithETag(context.Background(), "")
	require.NoError(t, err)
	require.False(t, notModified)
	require.NotEmpty(t, etag)

	_, _, notModified, err = s.GetIndexWithETag(context.Background(), etag)
	require.NoError(t, err)
	assert.True(t, notModified)
}

func TestGetInvertedIndexAbsentIsNotAnError(t *testing.T) {
	backend := &fakeBackend{raw: map[string][]byte{}}
	s := New(backend, nil, 3, time.Second)
	inv, err := s.GetInvertedIndex(context.Background())
	require.NoError(t, err)
	assert.Nil(t, inv)
}

func TestGetInvertedIndexReturnsWhenPresent(t *testing.T) {
	inv := model.InvertedIndex{Terms: map[string]model.Posting{"home": {IconIDs: []string{"lucide:home"}}}}
	raw, err := json.Marshal(inv)
	require.NoError(t, err)
	backend := &fakeBackend{raw: map[string][]byte{"inverted-index": raw}}
	s := New(backend, nil, 3, time.Second)

	got, err := s.GetInvertedIndex(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Contains(t, got.Terms, "home")
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	backend := &fakeBackend{err: errors.New("down")}
	s := New(backend, nil, 1, time.Minute)

	_, _ = s.GetIndex(context.Background())
	assert.Equal(t, circuitbreaker.Open, s.BreakerState())
}

func TestResetClearsCache(t *testing.T) {
	backend := &fakeBackend{raw: map[string][]byte{
		"icon-index": marshalIndex(t, map[string]model.Icon{"lucide:home": {Name: "home"}}),
	}}
	s := New(backend, nil, 3, time.Second)
	_, err := s.GetIndex(context.Background())
	require.NoError(t, err)
	s.Reset()
	_, err = s.GetIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, backend.getCalls)
}
