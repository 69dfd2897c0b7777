package osm

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/NERVsystems/overpassqb/pkg/core"
	"github.com/NERVsystems/overpassqb/pkg/osm/queries"
	"github.com/NERVsystems/overpassqb/pkg/tracing"
)

// DefaultOverpassCacheSize is the number of responses kept when no size is
// configured.
const DefaultOverpassCacheSize = 128

// Result is the outcome of one executed query.
type Result struct {
	Query  string         `json:"query"`
	Format queries.Format `json:"format"`
	// Elements holds the decoded elements of a JSON response.
	Elements []Element `json:"elements,omitempty"`
	// Raw holds a native CSV response verbatim.
	Raw string `json:"raw,omitempty"`
	// Remark carries runtime messages Overpass embeds in a 200 response,
	// for example a timeout that truncated the result.
	Remark string `json:"remark,omitempty"`
}

// Count returns the number of elements, or data rows for CSV results.
func (r *Result) Count() int {
	if r.Format == queries.FormatCSV {
		rows := 0
		for i, line := range strings.Split(strings.TrimRight(r.Raw, "\n"), "\n") {
			if i > 0 && line != "" {
				rows++
			}
		}
		return rows
	}
	return len(r.Elements)
}

// Empty reports whether the query matched nothing.
func (r *Result) Empty() bool {
	return r.Count() == 0
}

// IsCSVQuery reports whether query requests native CSV output.
func IsCSVQuery(query string) bool {
	return strings.HasPrefix(strings.TrimSpace(query), "[out:csv(")
}

// OverpassOptions configures an OverpassClient.
type OverpassOptions struct {
	ServiceConfig `mapstructure:",squash"`
	CacheSize     int `mapstructure:"cache_size"`
}

// OverpassClient executes queries against an Overpass interpreter.
type OverpassClient struct {
	svc    *service
	cache  *lru.Cache[string, *Result]
	group  singleflight.Group
	logger *slog.Logger
}

// NewOverpassClient creates a client. A nil httpClient uses core.DefaultClient.
func NewOverpassClient(opts OverpassOptions, httpClient *http.Client, logger *slog.Logger) (*OverpassClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultOverpassCacheSize
	}
	cache, err := lru.New[string, *Result](size)
	if err != nil {
		return nil, err
	}
	return &OverpassClient{
		svc:    newService(tracing.ServiceOverpass, opts.ServiceConfig, OverpassBaseURL, 1, httpClient),
		cache:  cache,
		logger: logger,
	}, nil
}

// Endpoint returns the interpreter URL.
func (c *OverpassClient) Endpoint() string {
	return c.svc.baseURL
}

// Execute posts query to the interpreter. JSON responses are decoded;
// CSV responses are returned verbatim. Successful results are cached by
// query text and identical concurrent calls share one request.
func (c *OverpassClient) Execute(ctx context.Context, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, core.NewValidationError(core.ErrEmptyParameter, "query must not be empty")
	}
	if strings.Contains(query, "{{bbox}}") {
		return nil, core.NewValidationError(core.ErrInvalidInput, "query uses the {{bbox}} placeholder").
			WithGuidance("Enter a bounding box, place name or relation ID; {{bbox}} is only filled in by Overpass Turbo or Ultra.")
	}

	ctx, span := tracing.StartSpan(ctx, "overpass.execute",
		trace.WithAttributes(attribute.Int(tracing.AttrQueryLength, len(query))),
	)
	defer span.End()

	if cached, ok := c.cache.Get(query); ok {
		reportCache(tracing.CacheTypeOverpass, true)
		span.SetAttributes(attribute.Bool(tracing.AttrCacheHit, true))
		return cached, nil
	}
	reportCache(tracing.CacheTypeOverpass, false)

	v, err, shared := c.group.Do(query, func() (interface{}, error) {
		return c.execute(ctx, query)
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	res := v.(*Result)
	c.cache.Add(query, res)

	span.SetAttributes(
		attribute.Int(tracing.AttrElementCount, res.Count()),
		attribute.Bool("overpass.shared", shared),
	)
	return res, nil
}

func (c *OverpassClient) execute(ctx context.Context, query string) (*Result, error) {
	form := url.Values{"data": {query}}.Encode()

	body, _, err := c.svc.do(ctx, "interpreter", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.svc.baseURL, strings.NewReader(form))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		c.logger.Error("overpass query failed", "error", err, "query_length", len(query))
		return nil, err
	}

	if IsCSVQuery(query) {
		res := &Result{Query: query, Format: queries.FormatCSV, Raw: string(body)}
		c.logger.Debug("overpass csv result", "rows", res.Count())
		return res, nil
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, core.NewError(core.ErrParseError, "failed to decode Overpass response").
			WithQuery(query).
			WithCause(err)
	}
	if resp.Remark != "" {
		c.logger.Warn("overpass remark", "remark", resp.Remark)
	}
	c.logger.Debug("overpass json result", "element_count", len(resp.Elements))
	return &Result{
		Query:    query,
		Format:   queries.FormatJSON,
		Elements: resp.Elements,
		Remark:   resp.Remark,
	}, nil
}

// CheckHealth reports whether the interpreter answers.
func (c *OverpassClient) CheckHealth(ctx context.Context) error {
	status := strings.TrimSuffix(c.svc.baseURL, "/interpreter") + "/status"
	return checkHealth(ctx, c.svc.client, status)
}

// SetRateLimit replaces the request rate limit.
func (c *OverpassClient) SetRateLimit(rps float64, burst int) {
	c.svc.SetRateLimit(rps, burst)
}
