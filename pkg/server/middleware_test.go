package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/overpassqb/pkg/tracing"
)

func TestTracingMiddleware(t *testing.T) {
	t.Setenv("OTLP_ENDPOINT", "")
	ctx := context.Background()
	shutdown, err := tracing.InitTracing(ctx, tracing.Config{}, "test")
	require.NoError(t, err)
	defer func() { _ = shutdown(ctx) }()

	var sawSpan bool
	handler := TracingMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawSpan = trace.SpanFromContext(r.Context()) != nil
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	rec := serve(handler, http.MethodGet, "/api/v1/version?sessionId=abc", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.True(t, sawSpan)

	rec = serve(handler, http.MethodPost, "/fail", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRateLimiter_TooManyRequests(t *testing.T) {
	rl := NewRateLimiter(rate.Every(time.Second), 1)
	t.Cleanup(rl.Stop)

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "1.2.3.4:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Other clients have their own budget.
	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "5.6.7.8:1234"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_EvictOldestVisitor(t *testing.T) {
	rl := NewRateLimiter(rate.Every(time.Minute), 1)
	rl.maxVisitors = 2
	t.Cleanup(rl.Stop)

	rl.getVisitor("1.1.1.1")
	time.Sleep(time.Millisecond)
	rl.getVisitor("2.2.2.2")
	time.Sleep(time.Millisecond)
	rl.getVisitor("3.3.3.3")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.visitors, "1.1.1.1")
	assert.Contains(t, rl.visitors, "2.2.2.2")
	assert.Contains(t, rl.visitors, "3.3.3.3")
	assert.Len(t, rl.visitors, 2)
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	rl := NewRateLimiter(rate.Every(time.Minute), 1)
	t.Cleanup(rl.Stop)

	rl.getVisitor("1.1.1.1")
	rl.getVisitor("2.2.2.2")
	rl.mu.Lock()
	rl.visitors["1.1.1.1"].lastSeen = time.Now().Add(-2 * visitorTTL)
	rl.mu.Unlock()

	rl.evictIdle(time.Now())

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.visitors, "1.1.1.1")
	assert.Contains(t, rl.visitors, "2.2.2.2")
}

func TestRateLimiter_StopTwice(t *testing.T) {
	rl := NewRateLimiter(1, 0)
	rl.Stop()
	rl.Stop()
	assert.Equal(t, 1, rl.burst)
}

func TestGetIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "10.0.0.1:5555", "10.0.0.1"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.1:5555", "203.0.113.7"},
		{"invalid forwarded", map[string]string{"X-Forwarded-For": "garbage"}, "10.0.0.1:5555", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "10.0.0.1:5555", "198.51.100.2"},
		{"no port", nil, "10.0.0.9", "10.0.0.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getIP(req))
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := serve(handler, http.MethodGet, "/", "")

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestLoggingMiddleware_RequestID(t *testing.T) {
	var seen string
	var flusher bool
	handler := LoggingMiddleware(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		_, flusher = w.(http.Flusher)
	}))

	rec := serve(handler, http.MethodGet, "/", "")
	assert.Len(t, seen, 16)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
	assert.True(t, flusher, "http.Flusher must survive the middleware for SSE")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-chosen")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "client-chosen", seen)
	assert.Equal(t, "", RequestIDFromContext(context.Background()))
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	var _ http.Flusher = rw
	var _ http.Hijacker = rw

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK)
	n, err := rw.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusTeapot, rw.statusCode)
	assert.Equal(t, int64(5), rw.bytesWritten)
	assert.Equal(t, http.StatusTeapot, rec.Code)

	rw.Flush()
	assert.True(t, rec.Flushed)

	_, _, err = rw.Hijack()
	assert.ErrorIs(t, err, http.ErrNotSupported)
	assert.Same(t, rec, rw.Unwrap())
}

func TestRequestSizeLimiter(t *testing.T) {
	var readErr error
	handler := RequestSizeLimiter(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 16)
		_, readErr = r.Body.Read(buf)
		for readErr == nil {
			_, readErr = r.Body.Read(buf)
		}
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var maxErr *http.MaxBytesError
	assert.ErrorAs(t, readErr, &maxErr)
}
