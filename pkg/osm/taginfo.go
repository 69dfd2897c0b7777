package osm

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/NERVsystems/overpassqb/pkg/core"
	"github.com/NERVsystems/overpassqb/pkg/tracing"
)

const (
	suggestionPageSize = "10"
	taginfoCacheTTL    = 30 * time.Minute
)

// Suggestion is a candidate key or value with its usage count.
type Suggestion struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
	// Values is the number of distinct values of a key; zero for values.
	Values int64 `json:"values,omitempty"`
}

type taginfoKeys struct {
	Data []struct {
		Key       string `json:"key"`
		CountAll  int64  `json:"count_all"`
		ValuesAll int64  `json:"values_all"`
	} `json:"data"`
}

type taginfoValues struct {
	Data []struct {
		Value string `json:"value"`
		Count int64  `json:"count"`
	} `json:"data"`
}

// TaginfoClient looks up tag key and value suggestions.
type TaginfoClient struct {
	svc    *service
	cache  *TTLCache[string, []Suggestion]
	logger *slog.Logger
}

// NewTaginfoClient creates a client. A nil httpClient uses core.DefaultClient.
func NewTaginfoClient(cfg ServiceConfig, httpClient *http.Client, logger *slog.Logger) *TaginfoClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaginfoClient{
		svc:    newService(tracing.ServiceTaginfo, cfg, TaginfoBaseURL, 5, httpClient),
		cache:  NewTTLCache[string, []Suggestion](taginfoCacheTTL),
		logger: logger,
	}
}

// Keys returns the most used keys matching query.
func (c *TaginfoClient) Keys(ctx context.Context, query string) ([]Suggestion, error) {
	query = strings.TrimSpace(query)
	params := url.Values{}
	params.Set("query", query)
	params.Set("page", "1")
	params.Set("rp", suggestionPageSize)
	params.Set("sortname", "count_all")
	params.Set("sortorder", "desc")

	return c.cached("keys\x00"+query, func() ([]Suggestion, error) {
		body, err := c.svc.get(ctx, "keys", "/api/4/keys/all", params)
		if err != nil {
			return nil, err
		}
		var resp taginfoKeys
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, core.NewError(core.ErrParseError, "failed to decode Taginfo keys").WithCause(err)
		}
		out := make([]Suggestion, 0, len(resp.Data))
		for _, d := range resp.Data {
			out = append(out, Suggestion{Value: d.Key, Count: d.CountAll, Values: d.ValuesAll})
		}
		return out, nil
	})
}

// Values returns the most used values of key matching query. An empty key
// returns no suggestions without a request.
func (c *TaginfoClient) Values(ctx context.Context, key, query string) ([]Suggestion, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	query = strings.TrimSpace(query)
	params := url.Values{}
	params.Set("key", key)
	params.Set("query", query)
	params.Set("page", "1")
	params.Set("rp", suggestionPageSize)
	params.Set("sortname", "count")
	params.Set("sortorder", "desc")

	return c.cached("values\x00"+key+"\x00"+query, func() ([]Suggestion, error) {
		body, err := c.svc.get(ctx, "values", "/api/4/key/values", params)
		if err != nil {
			return nil, err
		}
		var resp taginfoValues
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, core.NewError(core.ErrParseError, "failed to decode Taginfo values").WithCause(err)
		}
		out := make([]Suggestion, 0, len(resp.Data))
		for _, d := range resp.Data {
			out = append(out, Suggestion{Value: d.Value, Count: d.Count})
		}
		return out, nil
	})
}

func (c *TaginfoClient) cached(key string, fetch func() ([]Suggestion, error)) ([]Suggestion, error) {
	if s, ok := c.cache.Get(key); ok {
		reportCache(tracing.CacheTypeTaginfo, true)
		return s, nil
	}
	reportCache(tracing.CacheTypeTaginfo, false)

	s, err := fetch()
	if err != nil {
		c.logger.Error("taginfo lookup failed", "error", err)
		return nil, err
	}
	c.cache.Set(key, s)
	return s, nil
}

// CheckHealth reports whether Taginfo answers.
func (c *TaginfoClient) CheckHealth(ctx context.Context) error {
	return checkHealth(ctx, c.svc.client, c.svc.baseURL+"/api/4/site/info")
}
