package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NERVsystems/overpassqb/pkg/convert"
	"github.com/NERVsystems/overpassqb/pkg/osm"
	"github.com/NERVsystems/overpassqb/pkg/osm/queries"
	"github.com/NERVsystems/overpassqb/pkg/preset"
	"github.com/NERVsystems/overpassqb/pkg/tools"
)

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubOverpass struct {
	mu       sync.Mutex
	queries  []string
	elements []osm.Element
	err      error
}

func (s *stubOverpass) Execute(ctx context.Context, query string) (*osm.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return &osm.Result{Query: query, Format: queries.FormatJSON, Elements: s.elements}, nil
}

type stubPlaces struct{ places []osm.Place }

func (s *stubPlaces) Search(ctx context.Context, text string) ([]osm.Place, error) {
	return s.places, nil
}

type stubTags struct{}

func (stubTags) Keys(ctx context.Context, query string) ([]osm.Suggestion, error) {
	return []osm.Suggestion{{Value: query + "ity", Count: 10}}, nil
}

func (stubTags) Values(ctx context.Context, key, query string) ([]osm.Suggestion, error) {
	return []osm.Suggestion{{Value: query + "fe", Count: 5}}, nil
}

type stubSink struct {
	mu    sync.Mutex
	names []string
}

func (s *stubSink) Put(ctx context.Context, file *convert.File) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, file.Name)
	return "mem://" + file.Name, nil
}

func (s *stubSink) Type() string { return "mem" }

type testDeps struct {
	overpass *stubOverpass
	sink     *stubSink
	presets  *preset.Store
}

func newTestDeps() (*testDeps, tools.Deps) {
	td := &testDeps{
		overpass: &stubOverpass{elements: []osm.Element{
			osm.NewNode(1, 48.2, 16.37, map[string]string{"amenity": "cafe", "name": "Central"}),
			osm.NewNode(2, 48.21, 16.36, map[string]string{"amenity": "cafe"}),
		}},
		sink:    &stubSink{},
		presets: preset.NewStore(""),
	}
	return td, tools.Deps{
		Overpass: td.overpass,
		Places:   &stubPlaces{places: []osm.Place{{DisplayName: "Wien", OSMType: "relation", OSMID: 109166}}},
		Tags:     stubTags{},
		Presets:  td.presets,
		Sink:     td.sink,
		Now:      func() time.Time { return fixedNow },
	}
}

// newTestTransport builds a transport without starting a listener.
func newTestTransport(t *testing.T, config HTTPTransportConfig, deps tools.Deps) *HTTPTransport {
	t.Helper()
	logger := discardLogger()
	s, err := NewServer(logger, tools.NewRegistry(logger, deps))
	require.NoError(t, err)

	transport := NewHTTPTransport(s, config, logger)
	t.Cleanup(func() { _ = transport.Shutdown(context.Background()) })
	return transport
}

func testConfig() HTTPTransportConfig {
	config := DefaultHTTPTransportConfig()
	config.RateLimit = 0
	return config
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
