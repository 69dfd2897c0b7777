package osm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/NERVsystems/overpassqb/pkg/core"
)

func newTestTaginfo(t *testing.T, handler http.HandlerFunc) *TaginfoClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewTaginfoClient(ServiceConfig{BaseURL: srv.URL, RPS: 1000, Burst: 10}, srv.Client(), nil)
	c.svc.retry = core.RetryOptions{MaxAttempts: 1}
	return c
}

func TestTaginfoKeys(t *testing.T) {
	c := newTestTaginfo(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/4/keys/all" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("query") != "amen" || q.Get("sortname") != "count_all" || q.Get("sortorder") != "desc" || q.Get("rp") != "10" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"data":[{"key":"amenity","count_all":25000000,"values_all":13000},{"key":"amenity:disused","count_all":100,"values_all":5}]}`))
	})

	got, err := c.Keys(context.Background(), "amen")
	if err != nil {
		t.Fatal(err)
	}
	want := []Suggestion{
		{Value: "amenity", Count: 25000000, Values: 13000},
		{Value: "amenity:disused", Count: 100, Values: 5},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestTaginfoValues(t *testing.T) {
	c := newTestTaginfo(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/4/key/values" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("key") != "amenity" || q.Get("query") != "re" || q.Get("sortname") != "count" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"data":[{"value":"restaurant","count":1400000,"fraction":0.05}]}`))
	})

	got, err := c.Values(context.Background(), "amenity", "re")
	if err != nil {
		t.Fatal(err)
	}
	want := []Suggestion{{Value: "restaurant", Count: 1400000}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestTaginfoValues_EmptyKey(t *testing.T) {
	c := newTestTaginfo(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	got, err := c.Values(context.Background(), " ", "x")
	if err != nil || got != nil {
		t.Errorf("Values = %v, %v", got, err)
	}
}

func TestTaginfoBadJSON(t *testing.T) {
	c := newTestTaginfo(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>`))
	})
	if _, err := c.Keys(context.Background(), "x"); !core.HasCode(err, core.ErrParseError) {
		t.Errorf("error = %v, want PARSE_ERROR", err)
	}
}
