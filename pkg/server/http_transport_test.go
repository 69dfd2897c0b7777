package server

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NERVsystems/overpassqb/pkg/monitoring"
	"github.com/NERVsystems/overpassqb/pkg/tools"
)

const testToken = "Zk4r9Qw2Lm8Vx7Np"

func TestHTTPTransport_ServiceDiscovery(t *testing.T) {
	config := testConfig()
	config.BaseURL = "http://localhost:7082"
	h := newTestTransport(t, config, tools.Deps{}).Handler()

	rec := serve(h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec.Body.String())
	assert.Equal(t, "HTTP+SSE", body["transport"])
	endpoints := body["endpoints"].(map[string]interface{})
	assert.Equal(t, "http://localhost:7082/sse", endpoints["sse"])
	assert.Equal(t, "http://localhost:7082/message", endpoints["message"])
	assert.Equal(t, "http://localhost:7082/api/v1", endpoints["api"])
	assert.Equal(t, false, body["auth"].(map[string]interface{})["required"])

	rec = serve(h, http.MethodPost, "/", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = serve(h, http.MethodGet, "/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPTransport_HealthEndpoints(t *testing.T) {
	transport := newTestTransport(t, testConfig(), tools.Deps{})
	h := transport.Handler()

	rec := serve(h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec.Body.String())["status"])

	rec = serve(h, http.MethodGet, "/ready", "")
	assert.Equal(t, true, decodeBody(t, rec.Body.String())["ready"])
	rec = serve(h, http.MethodGet, "/live", "")
	assert.Equal(t, true, decodeBody(t, rec.Body.String())["alive"])

	hc := monitoring.NewHealthChecker(ServerName, "test")
	t.Cleanup(hc.Shutdown)
	hc.UpdateConnection("overpass", monitoring.StatusError, 0, assert.AnError)
	transport.SetHealthChecker(hc)

	rec = serve(h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", decodeBody(t, rec.Body.String())["status"])

	rec = serve(h, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec = serve(h, http.MethodGet, "/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(h, http.MethodPost, "/health", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHTTPTransport_DebugEndpoints(t *testing.T) {
	h := newTestTransport(t, testConfig(), tools.Deps{}).Handler()

	rec := serve(h, http.MethodGet, "/sse/debug", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/sse", decodeBody(t, rec.Body.String())["endpoint"])

	rec = serve(h, http.MethodGet, "/message/debug", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/message", decodeBody(t, rec.Body.String())["endpoint"])
}

func TestHTTPTransport_BearerAuth(t *testing.T) {
	config := testConfig()
	config.AuthType = "bearer"
	config.AuthToken = testToken
	_, deps := newTestDeps()
	h := newTestTransport(t, config, deps).Handler()

	rec := serve(h, http.MethodGet, "/api/v1/version", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "Authentication required", decodeBody(t, rec.Body.String())["message"])

	req := httptest.NewRequest(http.MethodGet, "/api/v1/version", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	authorized := httptest.NewRecorder()
	h.ServeHTTP(authorized, req)
	assert.Equal(t, http.StatusOK, authorized.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/version", nil)
	req.Header.Set("Authorization", "Bearer wrong-token-value")
	rejected := httptest.NewRecorder()
	h.ServeHTTP(rejected, req)
	assert.Equal(t, http.StatusUnauthorized, rejected.Code)

	rec = serve(h, http.MethodPost, "/message?sessionId=abc", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "2.0", decodeBody(t, rec.Body.String())["jsonrpc"])

	// Health and discovery stay open.
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/", "").Code)
}

func TestHTTPTransport_BasicAuth(t *testing.T) {
	config := testConfig()
	config.AuthType = "basic"
	config.AuthToken = "analyst:" + testToken
	h := newTestTransport(t, config, tools.Deps{}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/version", nil)
	req.SetBasicAuth("analyst", testToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/version", nil)
	req.SetBasicAuth("analyst", "nope")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")
}

func TestHTTPTransport_ForceHTTPS(t *testing.T) {
	config := testConfig()
	config.ForceHTTPS = true
	h := newTestTransport(t, config, tools.Deps{}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/version", nil)
	req.Host = "example.com"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "https://example.com/api/v1/version", rec.Header().Get("Location"))

	// Health checks are never redirected.
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/health", "").Code)
}

func TestHTTPTransport_RateLimit(t *testing.T) {
	config := testConfig()
	config.RateLimit = 0.001
	config.RateBurst = 1
	h := newTestTransport(t, config, tools.Deps{}).Handler()

	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/live", "").Code)
	rec := serve(h, http.MethodGet, "/live", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestHTTPTransport_RequestSizeLimit(t *testing.T) {
	config := testConfig()
	config.MaxRequestSize = 16
	_, deps := newTestDeps()
	h := newTestTransport(t, config, deps).Handler()

	rec := serve(h, http.MethodPost, "/api/v1/query", `{"conditions": [{"element_type": "node", "key": "amenity"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "request body too large", decodeBody(t, rec.Body.String())["message"])
}

func TestHTTPTransport_MessageEndpointInvalidSession(t *testing.T) {
	h := newTestTransport(t, testConfig(), tools.Deps{}).Handler()

	rec := serve(h, http.MethodPost, "/message?sessionId=missing", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	assert.NotEqual(t, http.StatusNotFound, rec.Code, "message endpoint must be routed")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPTransport_SSEStream(t *testing.T) {
	transport := newTestTransport(t, testConfig(), tools.Deps{})
	srv := httptest.NewServer(transport.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	scanner := bufio.NewScanner(resp.Body)
	var endpoint string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data:") {
			endpoint = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			break
		}
	}
	assert.Contains(t, endpoint, "/message?sessionId=")
}

func TestHTTPTransport_ShutdownWithoutStart(t *testing.T) {
	transport := newTestTransport(t, testConfig(), tools.Deps{})
	assert.NoError(t, transport.Shutdown(context.Background()))
	assert.NoError(t, transport.Shutdown(context.Background()))
}

func TestHTTPTransport_Defaults(t *testing.T) {
	transport := newTestTransport(t, HTTPTransportConfig{Addr: ":0"}, tools.Deps{})
	config := transport.GetConfig()
	assert.Equal(t, "/sse", config.SSEEndpoint)
	assert.Equal(t, "/message", config.MsgEndpoint)
	assert.Equal(t, "none", config.AuthType)
	assert.Equal(t, DefaultHTTPTransportConfig().MaxRequestSize, config.MaxRequestSize)
}
