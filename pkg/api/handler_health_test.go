package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHealthy(t *testing.T) {
	r, _ := newTestServer(t, nil, &fakeSampler{ramPercent: 40})

	w := doRequest(r, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Contains(t, body, "resources")
}

func TestHealthConstrainedUnderPressure(t *testing.T) {
	r, _ := newTestServer(t, nil, &fakeSampler{ramPercent: 95})

	w := doRequest(r, httptest.NewRequest(http.MethodGet, "/health", nil))

	// Resource pressure is a load condition, not a failure: still 200.
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "constrained", body["status"])
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	r, _ := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := doRequest(r, req)

	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	r, _ := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := doRequest(r, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}
