package core

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var fastRetry = RetryOptions{
	MaxAttempts:  3,
	InitialDelay: time.Millisecond,
	MaxDelay:     5 * time.Millisecond,
	Multiplier:   2,
}

func getFactory(url string) RequestFactory {
	return func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, url, nil)
	}
}

func TestWithRetryFactory_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusGatewayTimeout)
			return
		}
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	resp, err := WithRetryFactory(context.Background(), "overpass", getFactory(srv.URL), srv.Client(), fastRetry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" || calls.Load() != 3 {
		t.Fatalf("body %q after %d calls", body, calls.Load())
	}
}

func TestWithRetryFactory_ClientErrorStops(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "line 3: parse error: ';' expected")
	}))
	defer srv.Close()

	_, err := WithRetryFactory(context.Background(), "overpass", getFactory(srv.URL), srv.Client(), fastRetry)
	if !HasCode(err, ErrInvalidInput) {
		t.Fatalf("expected %s, got %v", ErrInvalidInput, err)
	}
	if !strings.Contains(err.Error(), "parse error") {
		t.Errorf("error should carry the response body: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("400 must not be retried, got %d calls", calls.Load())
	}
}

func TestWithRetryFactory_RateLimitExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := WithRetryFactory(context.Background(), "overpass", getFactory(srv.URL), srv.Client(), fastRetry)
	if !HasCode(err, ErrRateLimit) {
		t.Fatalf("expected %s, got %v", ErrRateLimit, err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestWithRetryFactory_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := WithRetryFactory(context.Background(), "nominatim", getFactory(url), nil, fastRetry)
	if !HasCode(err, ErrNetworkError) {
		t.Fatalf("expected %s, got %v", ErrNetworkError, err)
	}
	if errors.Unwrap(err) == nil {
		t.Error("network error should keep its cause")
	}
}

func TestWithRetryFactory_FactoryError(t *testing.T) {
	boom := errors.New("boom")
	_, err := WithRetryFactory(context.Background(), "taginfo",
		func() (*http.Request, error) { return nil, boom }, nil, fastRetry)
	if !HasCode(err, ErrInternalError) || !errors.Is(err, boom) {
		t.Fatalf("unexpected error %v", err)
	}

	_, err = WithRetryFactory(context.Background(), "taginfo",
		func() (*http.Request, error) { return nil, context.Canceled }, nil, fastRetry)
	if !HasCode(err, ErrNetworkError) || !errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestWithRetryFactory_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	opts := fastRetry
	opts.InitialDelay = time.Hour
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := WithRetryFactory(ctx, "overpass", getFactory(srv.URL), srv.Client(), opts)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestRetryable(t *testing.T) {
	for status, want := range map[int]bool{
		http.StatusRequestTimeout:      true,
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: true,
		http.StatusGatewayTimeout:      true,
		http.StatusBadRequest:          false,
		http.StatusNotFound:            false,
	} {
		if got := retryable(status); got != want {
			t.Errorf("retryable(%d) = %v, want %v", status, got, want)
		}
	}
}
