package gateway

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"

	"barback/internal/core"
)

// newTestClient builds a gateway client pointed at the given server, with
// retries tightened so failure tests run fast.
func newTestClient(server *httptest.Server, maxRetries int) *Client {
	cfg := DefaultClientConfig(server.URL, "test-key")
	cfg.MaxRetries = maxRetries
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	cfg.CircuitBreaker = nil
	return NewWithHTTPClient(cfg, server.Client())
}

func TestFetchCocktails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/cocktails" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("select") != "*" {
			t.Errorf("expected select=* query, got %s", r.URL.RawQuery)
		}
		if got := r.Header.Get("apikey"); got != "test-key" {
			t.Errorf("apikey header = %q, want test-key", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization header = %q, want Bearer test-key", got)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"negroni","name":"Negroni","instructions":["stir","strain"],"difficulty":"easy"},
			{"id":"daiquiri","name":"Daiquiri","instructions":["shake"],"difficulty":"medium"}
		]`))
	}))
	defer server.Close()

	client := newTestClient(server, 0)

	cocktails, err := client.FetchCocktails(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cocktails) != 2 {
		t.Fatalf("expected 2 cocktails, got %d", len(cocktails))
	}
	if cocktails[0].ID != "negroni" || cocktails[0].Difficulty != core.DifficultyEasy {
		t.Errorf("unexpected first cocktail: %+v", cocktails[0])
	}
}

func TestFetch_AuthenticationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid API key"}`))
	}))
	defer server.Close()

	client := newTestClient(server, 0)

	_, err := client.FetchIngredients(context.Background())
	var svcErr *core.ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if svcErr.Type != core.ErrorTypeAuthentication {
		t.Errorf("error type = %v, want authentication_error", svcErr.Type)
	}
	if svcErr.Message != "invalid API key" {
		t.Errorf("message = %q, want invalid API key", svcErr.Message)
	}
}

func TestFetch_ServerErrorIsRemoteUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"database connection lost"}`))
	}))
	defer server.Close()

	client := newTestClient(server, 0)

	_, err := client.FetchGlassTypes(context.Background())
	var svcErr *core.ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if svcErr.Type != core.ErrorTypeRemoteUnavailable {
		t.Errorf("error type = %v, want remote_unavailable", svcErr.Type)
	}
}

func TestFetch_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"message":"try again"}`))
			return
		}
		_, _ = w.Write([]byte(`[{"id":"classics","name":"Classics"}]`))
	}))
	defer server.Close()

	client := newTestClient(server, 3)

	categories, err := client.FetchCategories(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(categories) != 1 {
		t.Fatalf("expected 1 category, got %d", len(categories))
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestFetch_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"bad select"}`))
	}))
	defer server.Close()

	client := newTestClient(server, 3)

	_, err := client.FetchCocktails(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("client errors must not be retried, got %d attempts", got)
	}
}

func TestFetch_BrotliResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if enc := r.Header.Get("Accept-Encoding"); enc != "br, gzip" {
			t.Errorf("Accept-Encoding = %q, want br, gzip", enc)
		}

		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		_, _ = bw.Write([]byte(`[{"id":"coupe","name":"Coupe"}]`))
		_ = bw.Close()

		w.Header().Set("Content-Encoding", "br")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(buf.Bytes())
	}))
	defer server.Close()

	client := newTestClient(server, 0)

	glasses, err := client.FetchGlassTypes(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(glasses) != 1 || glasses[0].ID != "coupe" {
		t.Errorf("unexpected result: %+v", glasses)
	}
}

func TestFetch_GzipResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, _ = gz.Write([]byte(`[{"id":"gin","name":"Gin","abv":40}]`))
		_ = gz.Close()

		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
	}))
	defer server.Close()

	client := newTestClient(server, 0)

	ingredients, err := client.FetchIngredients(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ingredients) != 1 || !ingredients[0].Alcoholic() {
		t.Errorf("unexpected result: %+v", ingredients)
	}
}

func TestSaveCocktails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/rest/v1/cocktails" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if prefer := r.Header.Get("Prefer"); prefer != "resolution=merge-duplicates" {
			t.Errorf("Prefer header = %q", prefer)
		}

		body, _ := io.ReadAll(r.Body)
		var records []core.Cocktail
		if err := json.Unmarshal(body, &records); err != nil {
			t.Errorf("invalid request body: %v", err)
		}
		if len(records) != 1 || records[0].ID != "negroni" {
			t.Errorf("unexpected records: %+v", records)
		}

		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := newTestClient(server, 0)

	err := client.SaveCocktails(context.Background(), []core.Cocktail{{ID: "negroni", Name: "Negroni"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"down"}`))
	}))
	defer server.Close()

	cfg := DefaultClientConfig(server.URL, "test-key")
	cfg.MaxRetries = 0
	cfg.CircuitBreaker = &CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
	}
	client := NewWithHTTPClient(cfg, server.Client())

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := client.FetchCocktails(ctx); err == nil {
			t.Fatal("expected error")
		}
	}

	if state := client.rest.circuitBreaker.State(); state != "open" {
		t.Errorf("circuit state = %q, want open", state)
	}

	// With the circuit open, requests fail fast without hitting the server.
	_, err := client.FetchCocktails(ctx)
	var svcErr *core.ServiceError
	if !errors.As(err, &svcErr) || svcErr.Type != core.ErrorTypeRemoteUnavailable {
		t.Errorf("expected remote_unavailable from open circuit, got %v", err)
	}
}

func TestDecompressBody_UnsupportedEncoding(t *testing.T) {
	if _, err := decompressBody([]byte("data"), "zstd"); err == nil {
		t.Error("expected error for unsupported encoding")
	}
}
