package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iconserve/internal/blobstore"
	"iconserve/internal/cachetier"
	"iconserve/internal/iconsvc"
	"iconserve/internal/indexstore"
	"iconserve/internal/model"
	"iconserve/internal/sourcecfg"
	"iconserve/internal/transform"
)

type fakeIndexBackend struct {
	raw map[string][]byte
}

func (f *fakeIndexBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := f.raw[key]
	return v, ok, nil
}

type fakeBlobBackend struct {
	bodies map[string][]byte
}

func (f *fakeBlobBackend) Fetch(ctx context.Context, key, ifNoneMatch string) ([]byte, string, bool, error) {
	b, ok := f.bodies[key]
	if !ok {
		return nil, "", false, nil
	}
	return b, "", false, nil
}

func newTestService(t *testing.T) *iconsvc.Service {
	t.Helper()
	idx := model.Index{
		Icons: map[string]model.Icon{
			"lucide:home": {
				ID: "lucide:home", Name: "home", Source: "lucide", Category: "navigation",
				Tags: []string{"house"}, Variants: []model.Variant{model.VariantDefault},
				Width: 24, Height: 24, ViewBox: "0 0 24 24", Path: "lucide/home.svg",
			},
		},
	}
	raw, err := json.Marshal(idx)
	require.NoError(t, err)

	indexBackend := &fakeIndexBackend{raw: map[string][]byte{"icon-index": raw}}
	blobBackend := &fakeBlobBackend{bodies: map[string][]byte{
		"lucide/home.svg": []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24"><path d="M3 9l9-7 9 7"/></svg>`),
	}}

	indexStore := indexstore.New(indexBackend, nil, 3, time.Second)
	blobStore := blobstore.New(blobBackend, nil, 10, 3, time.Second, 30*time.Second)
	memory := cachetier.NewMemory(100, time.Minute)
	xformCache := transform.NewResultCache(100)

	return iconsvc.New(indexStore, blobStore, memory, xformCache, sourcecfg.Defaults(), nil, nil, 5*time.Second)
}

func TestRunResolvesValidItemsAndCapturesFailuresInBand(t *testing.T) {
	svc := newTestService(t)
	items := []ItemRequest{
		{Name: "home", Source: "lucide"},
		{Name: "does-not-exist", Source: "lucide"},
		{Name: "bad name!", Source: "lucide"},
	}

	results, summary := Run(context.Background(), svc, items)

	require.Len(t, results, 3)
	assert.Equal(t, 3, summary.Requested)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 2, summary.Failed)

	assert.Nil(t, results[0].Error)
	assert.Equal(t, "home", results[0].Name)
	assert.NotEmpty(t, results[0].SVG)
	assert.NotNil(t, results[0].License)

	require.NotNil(t, results[1].Error)
	assert.Equal(t, "ICON_NOT_FOUND", string(results[1].Error.Code))

	require.NotNil(t, results[2].Error)
	assert.Equal(t, "INVALID_PARAMETER", string(results[2].Error.Code))
}

func TestRunPreservesInputOrder(t *testing.T) {
	svc := newTestService(t)
	items := make([]ItemRequest, 0, MaxItems)
	for i := 0; i < MaxItems; i++ {
		items = append(items, ItemRequest{Name: "home", Source: "lucide", Size: fmt.Sprint(8 + i)})
	}

	results, summary := Run(context.Background(), svc, items)

	require.Len(t, results, MaxItems)
	assert.Equal(t, MaxItems, summary.Successful)
	for i, r := range results {
		assert.Equal(t, "home", r.Name)
		assert.Contains(t, r.SVG, fmt.Sprintf(`width="%d"`, 8+i))
	}
}
