package osm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/overpassqb/pkg/core"
	"github.com/NERVsystems/overpassqb/pkg/tracing"
)

// Public endpoints.
const (
	NominatimBaseURL = "https://nominatim.openstreetmap.org"
	OverpassBaseURL  = "https://overpass-api.de/api/interpreter"
	TaginfoBaseURL   = "https://taginfo.openstreetmap.org"
)

// DefaultUserAgent identifies the tool to the OSM services; Nominatim's
// usage policy requires a descriptive one.
const DefaultUserAgent = "overpassqb/0.1.0 (+https://github.com/NERVsystems/overpassqb)"

// MaxResponseBytes bounds how much of a response body is read.
const MaxResponseBytes = 64 << 20

var (
	userAgent     = DefaultUserAgent
	userAgentLock sync.RWMutex
)

// SetUserAgent sets the User-Agent string
func SetUserAgent(ua string) {
	if ua == "" {
		return
	}
	userAgentLock.Lock()
	defer userAgentLock.Unlock()
	userAgent = ua
}

// GetUserAgent returns the current User-Agent string
func GetUserAgent() string {
	userAgentLock.RLock()
	defer userAgentLock.RUnlock()
	return userAgent
}

// ServiceConfig configures one external service.
type ServiceConfig struct {
	BaseURL string  `mapstructure:"base_url"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// service bundles the state shared by every call to one remote API:
// its base URL, its rate limiter and the HTTP client.
type service struct {
	name    string
	baseURL string
	limiter *rate.Limiter
	client  *http.Client
	retry   core.RetryOptions
}

func newService(name string, cfg ServiceConfig, defaultURL string, defaultRPS float64, client *http.Client) *service {
	base := cfg.BaseURL
	if base == "" {
		base = defaultURL
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = defaultRPS
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if client == nil {
		client = core.DefaultClient
	}
	return &service{
		name:    name,
		baseURL: base,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		client:  client,
		retry:   core.DefaultRetryOptions,
	}
}

// SetRateLimit replaces the limiter settings.
func (s *service) SetRateLimit(rps float64, burst int) {
	s.limiter.SetLimit(rate.Limit(rps))
	s.limiter.SetBurst(burst)
}

// wait blocks on the service limiter, recording significant waits.
func (s *service) wait(ctx context.Context) error {
	if s.limiter.Allow() {
		return nil
	}

	start := time.Now()
	tracing.AddEvent(ctx, "rate_limit_wait",
		trace.WithAttributes(attribute.String(tracing.AttrRateLimitService, s.name)),
	)

	err := s.limiter.Wait(ctx)

	waited := time.Since(start)
	tracing.SetAttributes(ctx,
		attribute.String(tracing.AttrRateLimitService, s.name),
		attribute.Int64(tracing.AttrRateLimitWaitMs, waited.Milliseconds()),
	)
	if hooks := getMonitoringHooks(); hooks != nil && hooks.OnRateLimit != nil {
		hooks.OnRateLimit(s.name, waited)
	}
	return err
}

// do runs a request built by newReq through rate limiting, retries and the
// monitoring hooks, and returns the body of a 200 response.
func (s *service) do(ctx context.Context, operation string, newReq func(ctx context.Context) (*http.Request, error)) ([]byte, http.Header, error) {
	hooks := getMonitoringHooks()
	if hooks != nil && hooks.OnRequest != nil {
		hooks.OnRequest(s.name, operation)
	}

	factory := func() (*http.Request, error) {
		if err := s.wait(ctx); err != nil {
			if hooks != nil && hooks.OnError != nil {
				hooks.OnError(s.name, "rate_limit_wait_error")
			}
			return nil, err
		}
		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", GetUserAgent())
		return req, nil
	}

	start := time.Now()
	resp, err := core.WithRetryFactory(ctx, s.name, factory, s.client, s.retry)
	if err != nil {
		if hooks != nil && hooks.OnResponse != nil {
			hooks.OnResponse(s.name, operation, time.Since(start), false)
		}
		if hooks != nil && hooks.OnError != nil {
			hooks.OnError(s.name, string(core.CodeOf(err)))
		}
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
	if hooks != nil && hooks.OnResponse != nil {
		hooks.OnResponse(s.name, operation, time.Since(start), err == nil)
	}
	if err != nil {
		if hooks != nil && hooks.OnError != nil {
			hooks.OnError(s.name, "read_error")
		}
		return nil, nil, core.NetworkError(s.name, fmt.Errorf("reading response: %w", err))
	}
	return body, resp.Header, nil
}

// get issues a GET for path with the given query parameters.
func (s *service) get(ctx context.Context, operation, path string, params url.Values) ([]byte, error) {
	endpoint := s.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	body, _, err := s.do(ctx, operation, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	return body, err
}

// checkHealth performs a cheap GET against the service and reports 5xx
// answers as unhealthy.
func checkHealth(ctx context.Context, client *http.Client, endpoint string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}
	req.Header.Set("User-Agent", GetUserAgent())

	if client == nil {
		client = core.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}
