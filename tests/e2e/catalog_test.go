//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthEndpoint(t *testing.T) {
	ts := setupTestServer(t, defaultServerOptions())

	resp, err := http.Get(ts.BaseURL + healthPath)
	require.NoError(t, err)
	defer closeBody(resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON(t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestFirstReadFetchesFromBackend(t *testing.T) {
	ts := setupTestServer(t, defaultServerOptions())

	envelope := getCollection(t, ts.BaseURL+cocktailsPath)

	assert.Equal(t, "fresh", envelope.State)
	assert.Equal(t, 2, envelope.Count)
	require.NotNil(t, envelope.RefreshedAt)
	assert.Equal(t, 1, ts.Backend.FetchCount("cocktails"))

	var cocktails []map[string]interface{}
	require.NoError(t, json.Unmarshal(envelope.Data, &cocktails))
	require.Len(t, cocktails, 2)
	assert.Equal(t, "Negroni", cocktails[0]["name"])
}

func TestFreshReadSkipsBackend(t *testing.T) {
	ts := setupTestServer(t, defaultServerOptions())

	getCollection(t, ts.BaseURL+cocktailsPath)
	for i := 0; i < 3; i++ {
		envelope := getCollection(t, ts.BaseURL+cocktailsPath)
		assert.Equal(t, "fresh", envelope.State)
	}

	assert.Equal(t, 1, ts.Backend.FetchCount("cocktails"),
		"fresh reads must not hit the backend")
}

func TestStaleReadServesImmediatelyAndRefreshes(t *testing.T) {
	opts := defaultServerOptions()
	opts.TTL = 300 * time.Millisecond
	ts := setupTestServer(t, opts)

	getCollection(t, ts.BaseURL+cocktailsPath)
	require.Equal(t, 1, ts.Backend.FetchCount("cocktails"))

	// Change the backend data while the snapshot goes stale.
	ts.Backend.SetRecords("cocktails", `[
		{"id": "ct_9", "name": "Martini", "instructions": ["Stir"], "ingredients": []}
	]`)
	time.Sleep(400 * time.Millisecond)

	// The stale read still serves the old records without blocking.
	envelope := getCollection(t, ts.BaseURL+cocktailsPath)
	assert.Equal(t, "stale", envelope.State)
	assert.Equal(t, 2, envelope.Count)

	// A background refresh picks up the new data.
	require.Eventually(t, func() bool {
		return ts.Backend.FetchCount("cocktails") == 2
	}, 3*time.Second, 20*time.Millisecond, "background refresh never ran")

	require.Eventually(t, func() bool {
		envelope := getCollection(t, ts.BaseURL+cocktailsPath)
		return envelope.State == "fresh" && envelope.Count == 1
	}, 3*time.Second, 20*time.Millisecond, "refreshed snapshot never served")
}

func TestDegradedReadWhenBackendDown(t *testing.T) {
	ts := setupTestServer(t, defaultServerOptions())
	ts.Backend.SetFailing("cocktails", true)

	envelope := getCollection(t, ts.BaseURL+cocktailsPath)

	assert.Equal(t, "degraded", envelope.State)
	assert.Equal(t, 0, envelope.Count)
	assert.Nil(t, envelope.RefreshedAt)
	assert.JSONEq(t, "[]", string(envelope.Data), "degraded reads must return an empty array, not null")
}

func TestDegradedReadRecoversWhenBackendReturns(t *testing.T) {
	ts := setupTestServer(t, defaultServerOptions())
	ts.Backend.SetFailing("cocktails", true)

	envelope := getCollection(t, ts.BaseURL+cocktailsPath)
	require.Equal(t, "degraded", envelope.State)

	ts.Backend.SetFailing("cocktails", false)

	envelope = getCollection(t, ts.BaseURL+cocktailsPath)
	assert.Equal(t, "fresh", envelope.State)
	assert.Equal(t, 2, envelope.Count)
}

func TestAllCollectionEndpoints(t *testing.T) {
	ts := setupTestServer(t, defaultServerOptions())

	cases := []struct {
		path  string
		count int
	}{
		{"/api/v1/cocktails", 2},
		{"/api/v1/ingredients", 3},
		{"/api/v1/glass-types", 2},
		{"/api/v1/categories", 1},
	}

	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			envelope := getCollection(t, ts.BaseURL+tc.path)
			assert.Equal(t, "fresh", envelope.State)
			assert.Equal(t, tc.count, envelope.Count)
		})
	}
}

func TestCacheSurvivesRestart(t *testing.T) {
	opts := defaultServerOptions()
	opts.Dir = t.TempDir()
	opts.Backend = NewMockBackend()
	t.Cleanup(opts.Backend.Close)

	ts := setupTestServer(t, opts)
	getCollection(t, ts.BaseURL+cocktailsPath)
	require.Equal(t, 1, opts.Backend.FetchCount("cocktails"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, ts.App.Shutdown(ctx))

	// A new instance on the same cache file serves the snapshot without
	// touching the backend.
	ts2 := setupTestServer(t, opts)
	envelope := getCollection(t, ts2.BaseURL+cocktailsPath)
	assert.Equal(t, "fresh", envelope.State)
	assert.Equal(t, 2, envelope.Count)
	assert.Equal(t, 1, opts.Backend.FetchCount("cocktails"))
}

func TestMetricsEndpoint(t *testing.T) {
	opts := defaultServerOptions()
	opts.Metrics = true
	ts := setupTestServer(t, opts)

	getCollection(t, ts.BaseURL+cocktailsPath)

	resp, err := http.Get(ts.BaseURL + "/metrics")
	require.NoError(t, err)
	defer closeBody(resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
