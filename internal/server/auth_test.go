package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuth_MissingHeader(t *testing.T) {
	srv := newTestServer(&stubCatalog{}, "secret")

	rec := doRequest(t, srv, httptest.NewRequest(http.MethodGet, "/admin/api/v1/cache/stats", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "authentication_error")
	assert.Contains(t, rec.Body.String(), "missing authorization header")
}

func TestAuth_MalformedHeader(t *testing.T) {
	srv := newTestServer(&stubCatalog{}, "secret")

	req := httptest.NewRequest(http.MethodGet, "/admin/api/v1/cache/stats", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := doRequest(t, srv, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Assert on the decoded message: the raw body HTML-escapes the angle
	// brackets in "Bearer <token>".
	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "authentication_error", body["error"]["type"])
	assert.Equal(t, "invalid authorization header format, expected 'Bearer <token>'", body["error"]["message"])
}

func TestAuth_WrongKey(t *testing.T) {
	srv := newTestServer(&stubCatalog{}, "secret")

	req := httptest.NewRequest(http.MethodGet, "/admin/api/v1/cache/stats", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := doRequest(t, srv, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid master key")
}

func TestAuth_CorrectKey(t *testing.T) {
	srv := newTestServer(&stubCatalog{}, "secret")

	req := httptest.NewRequest(http.MethodGet, "/admin/api/v1/cache/stats", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := doRequest(t, srv, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_UnsafeModeAllowsUnauthenticated(t *testing.T) {
	// Empty master key disables authentication.
	srv := newTestServer(&stubCatalog{}, "")

	rec := doRequest(t, srv, httptest.NewRequest(http.MethodGet, "/admin/api/v1/cache/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
