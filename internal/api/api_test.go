package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iconserve/internal/blobstore"
	"iconserve/internal/cachetier"
	"iconserve/internal/iconsvc"
	"iconserve/internal/indexstore"
	"iconserve/internal/metrics"
	"iconserve/internal/model"
	"iconserve/internal/ratelimit"
	"iconserve/internal/search"
	"iconserve/internal/sourcecfg"
	"iconserve/internal/transform"
)

type fakeIndexBackend struct{ raw map[string][]byte }

func (f *fakeIndexBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := f.raw[key]
	return v, ok, nil
}

type fakeBlobBackend struct{ bodies map[string][]byte }

func (f *fakeBlobBackend) Fetch(ctx context.Context, key, ifNoneMatch string) ([]byte, string, bool, error) {
	b, ok := f.bodies[key]
	if !ok {
		return nil, "", false, nil
	}
	return b, "", false, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	icons := map[string]model.Icon{
		"lucide:home": {
			ID: "lucide:home", Name: "home", Source: "lucide",
			Variants: []model.Variant{model.VariantDefault}, Path: "lucide/home.svg",
		},
		"lucide:user": {
			ID: "lucide:user", Name: "user", Source: "lucide", Tags: []string{"home"},
			Variants: []model.Variant{model.VariantDefault}, Path: "lucide/user.svg",
		},
		"lucide:house": {
			ID: "lucide:house", Name: "house", Source: "lucide", Tags: []string{"home"},
			Variants: []model.Variant{model.VariantDefault}, Path: "lucide/house.svg",
		},
		"lucide:search": {
			ID: "lucide:search", Name: "search", Source: "lucide",
			Variants: []model.Variant{model.VariantDefault}, Path: "lucide/search.svg",
		},
		"material:home": {
			ID: "material:home", Name: "home", Source: "material", Category: "ui",
			Variants: []model.Variant{model.VariantOutline}, Path: "material/home.svg",
		},
	}
	idx := model.Index{Icons: icons, Stats: model.Stats{TotalIcons: len(icons), Sources: []string{"lucide", "material"}}}
	idxRaw, err := json.Marshal(idx)
	require.NoError(t, err)

	inv := model.InvertedIndex{
		Terms: map[string]model.Posting{
			"home":   {IconIDs: []string{"lucide:home", "material:home", "lucide:house", "lucide:user"}, DF: 4},
			"house":  {IconIDs: []string{"lucide:house"}, DF: 1},
			"user":   {IconIDs: []string{"lucide:user"}, DF: 1},
			"search": {IconIDs: []string{"lucide:search"}, DF: 1},
		},
		Prefixes:   map[string][]string{},
		Sources:    map[string][]string{"lucide": {"lucide:home", "lucide:house", "lucide:user", "lucide:search"}, "material": {"material:home"}},
		Categories: map[string][]string{"ui": {"material:home"}},
		TotalDocs:  5,
	}
	invRaw, err := json.Marshal(inv)
	require.NoError(t, err)

	indexBackend := &fakeIndexBackend{raw: map[string][]byte{"icon-index": idxRaw, "inverted-index": invRaw}}
	blobBackend := &fakeBlobBackend{bodies: map[string][]byte{
		"lucide/home.svg":   []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24" stroke="currentColor" stroke-width="2"><path d="M3 9l9-7 9 7"/></svg>`),
		"lucide/user.svg":   []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24"><path d="M4 20c0-4 4-6 8-6s8 2 8 6"/></svg>`),
		"lucide/house.svg":  []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24"><path d="M3 12l9-9 9 9"/></svg>`),
		"lucide/search.svg": []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24"><circle cx="11" cy="11" r="8"/></svg>`),
		"material/home.svg": []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24"><path d="M12 3l9 8h-3v9H6v-9H3z"/></svg>`),
	}}

	indexStore := indexstore.New(indexBackend, nil, 3, time.Second)
	blobStore := blobstore.New(blobBackend, nil, 10, 3, time.Second, 30*time.Second)
	memory := cachetier.NewMemory(100, time.Minute)
	xformCache := transform.NewResultCache(100)
	reg := metrics.New()
	svc := iconsvc.New(indexStore, blobStore, memory, xformCache, sourcecfg.Defaults(), reg, nil, 5*time.Second)

	searchCache := search.NewResultCache(50, time.Minute)
	limiter := ratelimit.New(600)
	return New(svc, searchCache, reg, limiter, cachetier.NoopEdge{}, nil, nil)
}

type envelope struct {
	Data json.RawMessage `json:"data"`
	Meta map[string]any  `json:"meta"`
}

func zipReader(raw []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names, nil
}

func doRequest(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// Scenario 1 (spec.md §8): size + color override, JSON response.
func TestGetIconJSONAppliesSizeAndColor(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s.Router(), http.MethodGet, "/icons/home?source=lucide&size=48&color=%23ff0000", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	var data iconResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Contains(t, data.SVG, `width="48"`)
	assert.Contains(t, data.SVG, `height="48"`)
	assert.Contains(t, data.SVG, "#ff0000")
	assert.Contains(t, data.SVG, `stroke-width="2"`)
}

// Scenario 2: Accept: image/svg+xml negotiates a raw SVG body.
func TestGetIconSVGContentNegotiation(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/icons/home?source=lucide", nil)
	req.Header.Set("Accept", "image/svg+xml")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "<svg"))
}

// Scenario 3: unknown icon yields ICON_NOT_FOUND with a suggestions slot.
func TestGetIconNotFoundReturnsSuggestions(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s.Router(), http.MethodGet, "/icons/nonexistent?source=lucide", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "ICON_NOT_FOUND", errObj["code"])
	details, ok := errObj["details"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, details, "suggestions")
}

// Scenario 4: search for "home" ranks exact name matches first via the
// inverted index and surfaces enough additional matches (tag hits) to
// clear the documented total >= 3.
func TestSearchUsesInvertedIndex(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s.Router(), http.MethodGet, "/search?q=home", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	var hits []searchHit
	require.NoError(t, json.Unmarshal(env.Data, &hits))

	require.NotEmpty(t, hits)
	assert.Equal(t, "home", hits[0].Name)
	assert.GreaterOrEqual(t, int(env.Meta["total"].(float64)), 3)
	assert.Equal(t, "inverted_index", env.Meta["search_method"])
}

func TestSearchRejectsShortQuery(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s.Router(), http.MethodGet, "/search?q=h", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// Scenario 5: batch partial failure is reported in-band, not as a
// request-level error.
func TestBatchPartialFailure(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"icons":[{"name":"home","source":"lucide"},{"name":"nonexistent","source":"lucide"}]}`)
	rec := doRequest(t, s.Router(), http.MethodPost, "/icons/batch", body)

	require.Equal(t, http.StatusOK, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.EqualValues(t, 1, env.Meta["successful"])
	assert.EqualValues(t, 1, env.Meta["failed"])

	var results []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &results))
	require.Len(t, results, 2)
	errObj := results[1]["error"].(map[string]any)
	assert.Equal(t, "ICON_NOT_FOUND", errObj["code"])
}

// Scenario 6: bulk zip with 2 valid icons contains exactly those
// sanitized filenames.
func TestBulkZipExactFilenames(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"icons":[{"name":"home","source":"lucide"},{"name":"user","source":"lucide"}]}`)
	rec := doRequest(t, s.Router(), http.MethodPost, "/bulk?format=zip", body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "icons-")

	names, err := zipReader(rec.Body.Bytes())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"lucide-home.svg", "lucide-user.svg"}, names)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/icons/home", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
}

func TestRateLimitHeadersPresent(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s.Router(), http.MethodGet, "/icons/home?source=lucide", nil)
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestV1PrefixServesIdentically(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s.Router(), http.MethodGet, "/v1/icons/home?source=lucide", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSourcesAndCategories(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s.Router(), http.MethodGet, "/sources", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	var sources []sourceInfo
	require.NoError(t, json.Unmarshal(env.Data, &sources))
	assert.NotEmpty(t, sources)

	rec = doRequest(t, s.Router(), http.MethodGet, "/categories?source=material", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	var cats []categoryInfo
	require.NoError(t, json.Unmarshal(env.Data, &cats))
	require.Len(t, cats, 1)
	assert.Equal(t, "ui", cats[0].Name)
}

func TestRandomIconHonorsFilters(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s.Router(), http.MethodGet, "/random?source=material", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	var data iconResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "material", data.Source)
}

func TestRootLandingPage(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s.Router(), http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "iconserve")
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		rec := doRequest(t, s.Router(), http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestMetricsEndpoints(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s.Router(), http.MethodGet, "/icons/home?source=lucide", nil)

	rec := doRequest(t, s.Router(), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s.Router(), http.MethodGet, "/metrics/prometheus", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "iconserve_")
}
