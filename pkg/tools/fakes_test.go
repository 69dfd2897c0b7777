package tools

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/NERVsystems/overpassqb/pkg/convert"
	"github.com/NERVsystems/overpassqb/pkg/osm"
	"github.com/NERVsystems/overpassqb/pkg/osm/queries"
	"github.com/NERVsystems/overpassqb/pkg/preset"
)

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeOverpass struct {
	mu       sync.Mutex
	executed []string
	elements []osm.Element
	err      error
}

func (f *fakeOverpass) Execute(ctx context.Context, query string) (*osm.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, query)
	if f.err != nil {
		return nil, f.err
	}
	return &osm.Result{Query: query, Format: queries.FormatJSON, Elements: f.elements}, nil
}

func (f *fakeOverpass) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.executed) == 0 {
		return ""
	}
	return f.executed[len(f.executed)-1]
}

type fakePlaces struct {
	places []osm.Place
	got    string
}

func (f *fakePlaces) Search(ctx context.Context, text string) ([]osm.Place, error) {
	f.got = text
	return f.places, nil
}

type fakeTags struct {
	keys, values []osm.Suggestion
	gotKey       string
}

func (f *fakeTags) Keys(ctx context.Context, query string) ([]osm.Suggestion, error) {
	return f.keys, nil
}

func (f *fakeTags) Values(ctx context.Context, key, query string) ([]osm.Suggestion, error) {
	f.gotKey = key
	return f.values, nil
}

type fakeSink struct {
	files []*convert.File
	err   error
}

func (f *fakeSink) Put(ctx context.Context, file *convert.File) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.files = append(f.files, file)
	return "mem://exports/" + file.Name, nil
}

func (f *fakeSink) Type() string { return "mem" }

func sampleElements() []osm.Element {
	return []osm.Element{
		osm.NewNode(1, 48.2, 16.37, map[string]string{"amenity": "cafe", "name": "Central"}),
		osm.NewNode(2, 48.21, 16.36, map[string]string{"amenity": "cafe"}),
		{ID: 3, Type: "way", Center: &osm.Point{Lat: 48.19, Lon: 16.35}, Tags: map[string]string{"amenity": "cafe"}},
	}
}

type testEnv struct {
	registry *Registry
	overpass *fakeOverpass
	places   *fakePlaces
	tags     *fakeTags
	sink     *fakeSink
	presets  *preset.Store
}

func newTestEnv() *testEnv {
	env := &testEnv{
		overpass: &fakeOverpass{elements: sampleElements()},
		places:   &fakePlaces{},
		tags:     &fakeTags{},
		sink:     &fakeSink{},
		presets:  preset.NewStore(""),
	}
	env.registry = NewRegistry(slog.Default(), Deps{
		Overpass: env.overpass,
		Places:   env.places,
		Tags:     env.tags,
		Presets:  env.presets,
		Sink:     env.sink,
		Now:      func() time.Time { return fixedNow },
	})
	return env
}
