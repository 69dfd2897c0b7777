package convert

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NERVsystems/overpassqb/pkg/core"
	"github.com/NERVsystems/overpassqb/pkg/osm"
	"github.com/NERVsystems/overpassqb/pkg/osm/queries"
)

func TestToCSV_Cafe(t *testing.T) {
	got := ToCSV([]osm.Element{osm.NewNode(1, 10, 20, map[string]string{"amenity": "cafe"})}, nil)
	assert.Equal(t, "id,type,lat,lon,amenity\n1,node,10,20,\"cafe\"", got)
}

func TestToCSV_UnionAndFallbacks(t *testing.T) {
	elements := []osm.Element{
		osm.NewNode(1, 52.5, 13.4, map[string]string{"name": `Joe's "Bar"`, "amenity": "bar"}),
		{ID: 2, Type: "way", Center: &osm.Point{Lat: 52.51, Lon: 13.41}, Tags: map[string]string{"building": "yes", "amenity": "pub"}},
		{ID: 3, Type: "relation"},
	}

	got := ToCSV(elements, nil)
	want := strings.Join([]string{
		"id,type,lat,lon,amenity,name,building",
		`1,node,52.5,13.4,"bar","Joe's ""Bar""",`,
		`2,way,52.51,13.41,"pub",,"yes"`,
		`3,relation,,,,,`,
	}, "\n")
	assert.Equal(t, want, got)
}

func TestToCSV_Columns(t *testing.T) {
	elements := []osm.Element{osm.NewNode(7, 1.5, -2.25, map[string]string{"name": "A,B", "addr:street": "Main"})}
	got := ToCSV(elements, []string{"::id", "@lat", "name", "addr:street", "missing"})
	assert.Equal(t, "::id,@lat,name,addr:street,missing\n7,1.5,\"A,B\",\"Main\",", got)
}

func TestToCSV_TagsInResponseOrder(t *testing.T) {
	var elements []osm.Element
	data := `[
		{"id":1,"type":"node","lat":1,"lon":2,"tags":{"name":"X","amenity":"cafe"}},
		{"id":2,"type":"node","lat":3,"lon":4,"tags":{"opening_hours":"24/7","cuisine":"coffee","name":"Y"}}
	]`
	require.NoError(t, json.Unmarshal([]byte(data), &elements))

	got := ToCSV(elements, nil)
	want := strings.Join([]string{
		"id,type,lat,lon,name,amenity,opening_hours,cuisine",
		`1,node,1,2,"X","cafe",,`,
		`2,node,3,4,"Y",,"24/7","coffee"`,
	}, "\n")
	assert.Equal(t, want, got)
}

func TestToCSV_Empty(t *testing.T) {
	assert.Equal(t, "", ToCSV(nil, nil))
	assert.Equal(t, "::id,name", ToCSV(nil, []string{"::id", "name"}))
}

type fc struct {
	Type     string `json:"type"`
	Features []struct {
		Type     string `json:"type"`
		Geometry struct {
			Type        string          `json:"type"`
			Coordinates json.RawMessage `json:"coordinates"`
		} `json:"geometry"`
		Properties map[string]interface{} `json:"properties"`
	} `json:"features"`
}

func decodeFC(t *testing.T, s string) fc {
	t.Helper()
	var out fc
	require.NoError(t, json.Unmarshal([]byte(s), &out))
	return out
}

func TestToGeoJSON_Geometries(t *testing.T) {
	square := []osm.Point{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 1, Lon: 1}, {Lat: 0, Lon: 0}}
	elements := []osm.Element{
		osm.NewNode(1, 10, 20, map[string]string{"amenity": "cafe"}),
		{ID: 2, Type: "way", Geometry: square},
		{ID: 3, Type: "way", Geometry: []osm.Point{{Lat: 0, Lon: 0}, {Lat: 1, Lon: 1}, {Lat: 2, Lon: 0}}},
		{ID: 4, Type: "way", Geometry: []osm.Point{{Lat: 5, Lon: 6}}},
		{ID: 5, Type: "relation", Center: &osm.Point{Lat: 3, Lon: 4}},
		{ID: 6, Type: "way", Geometry: []osm.Point{{Lat: 0, Lon: 0}, {Lat: 1, Lon: 1}, {Lat: 0, Lon: 0}}},
	}

	s, err := ToGeoJSON(elements)
	require.NoError(t, err)
	assert.Contains(t, s, "\n  \"features\"", "output should be indented with two spaces")

	got := decodeFC(t, s)
	assert.Equal(t, "FeatureCollection", got.Type)
	require.Len(t, got.Features, len(elements))

	wantTypes := []string{"Point", "Polygon", "LineString", "Point", "Point", "LineString"}
	for i, f := range got.Features {
		assert.Equal(t, "Feature", f.Type)
		assert.Equal(t, wantTypes[i], f.Geometry.Type, "feature %d", i)
	}

	assert.JSONEq(t, "[20,10]", string(got.Features[0].Geometry.Coordinates))
	assert.JSONEq(t, "[[[0,0],[1,0],[1,1],[0,0]]]", string(got.Features[1].Geometry.Coordinates))
	assert.JSONEq(t, "[6,5]", string(got.Features[3].Geometry.Coordinates))
	assert.JSONEq(t, "[0,0]", string(got.Features[4].Geometry.Coordinates))

	props := got.Features[0].Properties
	assert.Equal(t, "cafe", props["amenity"])
	assert.Equal(t, float64(1), props["id"])
	assert.Equal(t, "node", props["type"])
}

func TestToGeoJSON_IdOverridesTag(t *testing.T) {
	f := feature(osm.NewNode(9, 0, 0, map[string]string{"id": "tagged", "type": "multipolygon"}))
	assert.Equal(t, int64(9), f.Properties["id"])
	assert.Equal(t, "node", f.Properties["type"])
}

func TestExport(t *testing.T) {
	now := time.Date(2024, 3, 9, 23, 30, 0, 0, time.FixedZone("PST", -8*3600))
	res := &osm.Result{
		Format:   queries.FormatJSON,
		Elements: []osm.Element{osm.NewNode(1, 10, 20, map[string]string{"amenity": "cafe"})},
	}

	tests := []struct {
		format   string
		name     string
		mime     string
		contains string
	}{
		{"csv", "overpass-export-2024-03-10.csv", "text/csv", `1,node,10,20,"cafe"`},
		{"JSON", "overpass-export-2024-03-10.json", "application/json", `"elements": [`},
		{"geojson", "overpass-export-2024-03-10.geojson", "application/geo+json", `"FeatureCollection"`},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			f, err := Export(res, tt.format, now)
			require.NoError(t, err)
			assert.Equal(t, tt.name, f.Name)
			assert.Equal(t, tt.mime, f.MIMEType)
			assert.Contains(t, string(f.Content), tt.contains)
		})
	}
}

func TestExport_Errors(t *testing.T) {
	now := time.Now()
	full := &osm.Result{Format: queries.FormatJSON, Elements: []osm.Element{osm.NewNode(1, 0, 0, nil)}}

	_, err := Export(full, "kml", now)
	assert.True(t, core.HasCode(err, core.ErrUnsupportedExportFormat), "got %v", err)

	_, err = Export(&osm.Result{Format: queries.FormatJSON}, "csv", now)
	assert.True(t, core.HasCode(err, core.ErrEmptyResultSet), "got %v", err)

	_, err = Export(nil, "json", now)
	assert.True(t, core.HasCode(err, core.ErrEmptyResultSet), "got %v", err)
}

func TestExport_NativeCSV(t *testing.T) {
	raw := "@id\tname\n1\tZuni\n"
	res := &osm.Result{Format: queries.FormatCSV, Raw: raw}

	f, err := Export(res, "csv", time.Now())
	require.NoError(t, err)
	assert.Equal(t, raw, string(f.Content))

	_, err = Export(res, "geojson", time.Now())
	assert.True(t, core.HasCode(err, core.ErrUnsupportedExportFormat), "got %v", err)
}
