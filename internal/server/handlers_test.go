package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barback/internal/auditlog"
	"barback/internal/cachestore"
	"barback/internal/catalog"
	"barback/internal/core"
)

// stubCatalog implements Catalog with canned results and call recording.
type stubCatalog struct {
	mu sync.Mutex

	cocktails   catalog.Result[core.Cocktail]
	ingredients catalog.Result[core.Ingredient]
	glassTypes  catalog.Result[core.GlassType]
	categories  catalog.Result[core.Category]

	savedCocktails []core.Cocktail
	saveErr        error
	refreshErr     error
	clearErr       error

	refreshed  []core.Collection
	refreshAll int
	cleared    int
	stats      []cachestore.Stat
}

func (s *stubCatalog) GetCocktails(context.Context) catalog.Result[core.Cocktail] {
	return s.cocktails
}

func (s *stubCatalog) GetIngredients(context.Context) catalog.Result[core.Ingredient] {
	return s.ingredients
}

func (s *stubCatalog) GetGlassTypes(context.Context) catalog.Result[core.GlassType] {
	return s.glassTypes
}

func (s *stubCatalog) GetCategories(context.Context) catalog.Result[core.Category] {
	return s.categories
}

func (s *stubCatalog) SaveCocktails(_ context.Context, records []core.Cocktail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savedCocktails = records
	return s.saveErr
}

func (s *stubCatalog) SaveIngredients(context.Context, []core.Ingredient) error {
	return s.saveErr
}

func (s *stubCatalog) SaveGlassTypes(context.Context, []core.GlassType) error {
	return s.saveErr
}

func (s *stubCatalog) SaveCategories(context.Context, []core.Category) error {
	return s.saveErr
}

func (s *stubCatalog) Refresh(_ context.Context, collection core.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !collection.Valid() {
		return core.NewInvalidRequestError("unknown collection: "+string(collection), nil)
	}
	s.refreshed = append(s.refreshed, collection)
	return s.refreshErr
}

func (s *stubCatalog) ForceRefreshAll(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshAll++
	return s.refreshErr
}

func (s *stubCatalog) ClearCache(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared++
	return s.clearErr
}

func (s *stubCatalog) Stats(context.Context) []cachestore.Stat {
	return s.stats
}

func newTestServer(cat *stubCatalog, masterKey string) *Server {
	return New(cat, auditlog.NoopRecorder{}, &Config{MasterKey: masterKey})
}

func doRequest(t *testing.T, srv *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&stubCatalog{}, "")
	rec := doRequest(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestGetCocktails_Envelope(t *testing.T) {
	refreshedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	cat := &stubCatalog{
		cocktails: catalog.Result[core.Cocktail]{
			Records:     []core.Cocktail{{ID: "negroni", Name: "Negroni"}},
			State:       catalog.StateFresh,
			RefreshedAt: refreshedAt,
		},
	}
	srv := newTestServer(cat, "")

	rec := doRequest(t, srv, httptest.NewRequest(http.MethodGet, "/api/v1/cocktails", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data        []core.Cocktail `json:"data"`
		State       string          `json:"state"`
		Count       int             `json:"count"`
		RefreshedAt *time.Time      `json:"refreshed_at"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "fresh", body.State)
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "negroni", body.Data[0].ID)
	require.NotNil(t, body.RefreshedAt)
	assert.True(t, body.RefreshedAt.Equal(refreshedAt))
}

func TestGetIngredients_DegradedStillOK(t *testing.T) {
	cat := &stubCatalog{
		ingredients: catalog.Result[core.Ingredient]{
			Records: []core.Ingredient{},
			State:   catalog.StateDegraded,
		},
	}
	srv := newTestServer(cat, "")

	rec := doRequest(t, srv, httptest.NewRequest(http.MethodGet, "/api/v1/ingredients", nil))
	require.Equal(t, http.StatusOK, rec.Code, "degraded reads still return 200")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["state"])
	assert.Equal(t, float64(0), body["count"])
	assert.NotNil(t, body["data"], "data must be an empty array, not null")
	assert.NotContains(t, body, "refreshed_at")
}

func TestGetGlassTypesAndCategories_Routes(t *testing.T) {
	cat := &stubCatalog{
		glassTypes: catalog.Result[core.GlassType]{
			Records: []core.GlassType{{ID: "coupe"}},
			State:   catalog.StateStale,
		},
		categories: catalog.Result[core.Category]{
			Records: []core.Category{{ID: "classics"}},
			State:   catalog.StateFresh,
		},
	}
	srv := newTestServer(cat, "")

	rec := doRequest(t, srv, httptest.NewRequest(http.MethodGet, "/api/v1/glass-types", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stale"`)

	rec = doRequest(t, srv, httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"classics"`)
}

func TestPublicRoutesSkipAuth(t *testing.T) {
	srv := newTestServer(&stubCatalog{
		cocktails: catalog.Result[core.Cocktail]{Records: []core.Cocktail{}, State: catalog.StateFresh},
	}, "secret")

	// No Authorization header on a public read.
	rec := doRequest(t, srv, httptest.NewRequest(http.MethodGet, "/api/v1/cocktails", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(&stubCatalog{}, "")
	rec := doRequest(t, srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
