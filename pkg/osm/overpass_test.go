package osm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/NERVsystems/overpassqb/pkg/core"
	"github.com/NERVsystems/overpassqb/pkg/osm/queries"
)

const overpassJSON = `{
  "version": 0.6,
  "generator": "Overpass API",
  "elements": [
    {"type": "node", "id": 1, "lat": 37.75, "lon": -122.45, "tags": {"amenity": "restaurant", "name": "Zuni"}},
    {"type": "way", "id": 2, "center": {"lat": 37.76, "lon": -122.44}, "tags": {"amenity": "restaurant"}}
  ]
}`

func newTestOverpass(t *testing.T, handler http.HandlerFunc) (*OverpassClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewOverpassClient(OverpassOptions{
		ServiceConfig: ServiceConfig{BaseURL: srv.URL + "/api/interpreter", RPS: 1000, Burst: 10},
		CacheSize:     4,
	}, srv.Client(), nil)
	if err != nil {
		t.Fatal(err)
	}
	c.svc.retry = core.RetryOptions{MaxAttempts: 1}
	return c, srv
}

func TestOverpassExecute_JSON(t *testing.T) {
	var calls int32
	query := "[out:json][timeout:30];\n(\n  nwr[\"amenity\"=\"restaurant\"](37.7,-122.5,37.8,-122.4);\n);\nout body;"

	c, _ := newTestOverpass(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("content type = %s", ct)
		}
		if ua := r.Header.Get("User-Agent"); ua == "" {
			t.Error("missing User-Agent")
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if got := r.PostForm.Get("data"); got != query {
			t.Errorf("data = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(overpassJSON))
	})

	res, err := c.Execute(context.Background(), query)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if res.Format != queries.FormatJSON || len(res.Elements) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if lat, lon, ok := res.Elements[1].Coordinates(); !ok || lat != 37.76 || lon != -122.44 {
		t.Errorf("center fallback = %v,%v,%v", lat, lon, ok)
	}

	// second call is served from the cache
	if _, err := c.Execute(context.Background(), query); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("server called %d times, want 1", n)
	}
}

func TestOverpassExecute_CSVPassthrough(t *testing.T) {
	raw := "@id\t@type\tname\n1\tnode\tZuni\n2\tway\t\n"
	c, _ := newTestOverpass(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte(raw))
	})

	res, err := c.Execute(context.Background(), "[out:csv(::id,::type,name)][timeout:30];\nnode(1);\nout;")
	if err != nil {
		t.Fatal(err)
	}
	if res.Format != queries.FormatCSV || res.Raw != raw {
		t.Errorf("csv not passed through: %+v", res)
	}
	if res.Count() != 2 {
		t.Errorf("Count() = %d, want 2", res.Count())
	}
}

func TestOverpassExecute_Errors(t *testing.T) {
	c, _ := newTestOverpass(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.FormValue("data"), "bad") {
			http.Error(w, "parse error: line 1", http.StatusBadRequest)
			return
		}
		w.Write([]byte("not json"))
	})

	tests := []struct {
		name  string
		query string
		code  core.ErrorCode
	}{
		{"empty", "  ", core.ErrEmptyParameter},
		{"placeholder", "node({{bbox}});out;", core.ErrInvalidInput},
		{"rejected", "[out:json];bad", core.ErrInvalidInput},
		{"undecodable", "[out:json];node(1);out;", core.ErrParseError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Execute(context.Background(), tt.query)
			if !core.HasCode(err, tt.code) {
				t.Errorf("error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestOverpassExecute_NetworkError(t *testing.T) {
	c, srv := newTestOverpass(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := c.Execute(context.Background(), "[out:json];node(1);out;")
	if !core.HasCode(err, core.ErrNetworkError) {
		t.Fatalf("error = %v, want NETWORK_ERROR", err)
	}
}

func TestResultEmpty(t *testing.T) {
	if !(&Result{Format: queries.FormatJSON}).Empty() {
		t.Error("json result without elements should be empty")
	}
	if !(&Result{Format: queries.FormatCSV, Raw: "@id\t@type\n"}).Empty() {
		t.Error("csv result with only a header should be empty")
	}
	if (&Result{Format: queries.FormatJSON, Elements: []Element{NewNode(1, 0, 0, nil)}}).Empty() {
		t.Error("result with an element is not empty")
	}
}

func TestIsCSVQuery(t *testing.T) {
	if !IsCSVQuery("  [out:csv(::id)][timeout:30];") {
		t.Error("csv query not detected")
	}
	if IsCSVQuery("[out:json][timeout:30];") {
		t.Error("json query detected as csv")
	}
}
