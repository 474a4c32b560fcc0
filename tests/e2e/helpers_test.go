//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"barback/config"
	"barback/internal/app"
)

const testMasterKey = "sk-barback-e2e-test"

// API endpoints
const (
	healthPath     = "/health"
	cocktailsPath  = "/api/v1/cocktails"
	glassTypesPath = "/api/v1/glass-types"
	adminBasePath  = "/admin/api/v1"
)

// serverOptions tunes the application config for a test.
type serverOptions struct {
	TTL          time.Duration
	RefreshDelay time.Duration
	AuditEnabled bool
	MasterKey    string
	Metrics      bool

	// Dir and Backend let a test restart the application against the same
	// cache file and mock backend. Left empty, fresh ones are created.
	Dir     string
	Backend *MockBackend
}

func defaultServerOptions() serverOptions {
	return serverOptions{
		TTL:          10 * time.Minute,
		RefreshDelay: 10 * time.Millisecond,
		MasterKey:    testMasterKey,
	}
}

// testServer bundles a running application with its mock backend.
type testServer struct {
	BaseURL string
	App     *app.App
	Backend *MockBackend
}

// setupTestServer starts a mock backend and a full application instance on
// an ephemeral port, then waits until the health endpoint responds. All
// resources are cleaned up when the test ends.
func setupTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()

	backend := opts.Backend
	if backend == nil {
		backend = NewMockBackend()
		t.Cleanup(backend.Close)
	}

	dir := opts.Dir
	if dir == "" {
		dir = t.TempDir()
	}

	cfg := config.Default()
	cfg.Server.MasterKey = opts.MasterKey
	cfg.Remote.BaseURL = backend.URL()
	cfg.Remote.APIKey = "test-backend-key"
	cfg.Remote.MaxRetries = 1
	cfg.Cache.Backend = config.CacheBackendFile
	cfg.Cache.TTL = config.Duration(opts.TTL)
	cfg.Cache.RefreshDelay = config.Duration(opts.RefreshDelay)
	cfg.Cache.FilePath = filepath.Join(dir, "cache.json")
	cfg.Storage.SQLite.Path = filepath.Join(dir, "barback.db")
	cfg.Audit.Enabled = opts.AuditEnabled
	cfg.Audit.FlushInterval = config.Duration(50 * time.Millisecond)
	cfg.Metrics.Enabled = opts.Metrics

	application, err := app.New(context.Background(), cfg)
	require.NoError(t, err, "failed to create application")

	port := findAvailablePort(t)
	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)

	go func() {
		if err := application.Start(fmt.Sprintf("127.0.0.1:%d", port)); err != nil {
			t.Logf("server exited: %v", err)
		}
	}()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := application.Shutdown(ctx); err != nil {
			t.Logf("shutdown error: %v", err)
		}
	})

	waitForServer(t, baseURL)

	return &testServer{
		BaseURL: baseURL,
		App:     application,
		Backend: backend,
	}
}

// findAvailablePort asks the kernel for a free TCP port.
func findAvailablePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "failed to find available port")
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())
	return port
}

// waitForServer polls the health endpoint until the server is reachable.
func waitForServer(t *testing.T, baseURL string) {
	t.Helper()

	client := &http.Client{Timeout: time.Second}
	for i := 0; i < 50; i++ {
		resp, err := client.Get(baseURL + healthPath)
		if err == nil {
			closeBody(resp)
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server at %s did not become ready", baseURL)
}

// collectionEnvelope is the public read response shape.
type collectionEnvelope struct {
	Data        json.RawMessage `json:"data"`
	State       string          `json:"state"`
	Count       int             `json:"count"`
	RefreshedAt *time.Time      `json:"refreshed_at"`
}

// getCollection fetches a public collection endpoint and decodes the
// response envelope.
func getCollection(t *testing.T, url string) collectionEnvelope {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err, "failed to send request")
	defer closeBody(resp)
	require.Equal(t, http.StatusOK, resp.StatusCode, "public reads must always return 200")

	var envelope collectionEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope
}

// sendAdminRequest sends an authenticated JSON request to the admin API and
// returns the response.
func sendAdminRequest(t *testing.T, method, url string, payload interface{}) *http.Response {
	t.Helper()
	return sendAdminRequestWithKey(t, method, url, payload, testMasterKey)
}

// sendAdminRequestWithKey sends a JSON request with an explicit bearer token.
// An empty key omits the Authorization header.
func sendAdminRequestWithKey(t *testing.T, method, url string, payload interface{}, key string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err, "failed to marshal request payload")
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err, "failed to create request")
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err, "failed to send request")
	return resp
}

// decodeJSON decodes a response body into a generic map.
func decodeJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// closeBody is a helper to close response bodies in defer statements.
func closeBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}
