package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/NERVsystems/overpassqb/pkg/osm/queries"
)

func cond(elementType, key, op, value string) map[string]any {
	return map[string]any{"element_type": elementType, "key": key, "operator": op, "value": value}
}

func TestHandleBuildOverpassQuery(t *testing.T) {
	env := newTestEnv()

	req := NewCallToolRequest("build_overpass_query", map[string]any{
		"conditions": []any{cond("nwr", "amenity", "=", "restaurant")},
		"bbox":       map[string]any{"south": "37.7", "west": -122.5, "north": 37.8, "east": "-122.4"},
		"timeout":    30,
	})
	result, err := env.registry.HandleBuildOverpassQuery(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	AssertSuccessResult(t, result, "build should succeed")

	var out QueryResult
	if err := ParseResultJSON(result, &out); err != nil {
		t.Fatalf("parse result: %v", err)
	}

	want := "[out:json][timeout:30];\n" +
		"// Using bounding box: 37.7,-122.5,37.8,-122.4\n" +
		"(\n" +
		"  nwr[\"amenity\"=\"restaurant\"](37.7,-122.5,37.8,-122.4);\n" +
		");\n" +
		"\n" +
		"// Print results\n" +
		"out body;\n>;\nout skel qt;"
	if diff := cmp.Diff(want, out.Query); diff != "" {
		t.Errorf("query mismatch (-want +got):\n%s", diff)
	}
	if out.Area != "bbox" {
		t.Errorf("area = %q, want bbox", out.Area)
	}
	if out.TurboURL != queries.TurboURL(want) || out.UltraURL != queries.UltraURL(want) {
		t.Error("viewer links do not match the query")
	}
}

func TestHandleBuildOverpassQuery_Errors(t *testing.T) {
	env := newTestEnv()

	tooMany := make([]any, 65)
	for i := range tooMany {
		tooMany[i] = cond("node", "amenity", "=", "cafe")
	}

	tests := []struct {
		name string
		args map[string]any
		code string
	}{
		{
			name: "no usable condition",
			args: map[string]any{"conditions": []any{cond("node", "  ", "=", "x")}},
			code: "NO_VALID_CONDITIONS",
		},
		{
			name: "inverted bbox wins over conditions",
			args: map[string]any{
				"conditions": []any{cond("node", "", "", "")},
				"bbox":       map[string]any{"south": "50", "west": "10", "north": "40", "east": "11"},
			},
			code: "INVALID_BBOX",
		},
		{
			name: "relation prefix without id",
			args: map[string]any{
				"conditions": []any{cond("node", "amenity", "=", "cafe")},
				"area":       "relation:abc",
			},
			code: "INVALID_RELATION_ID",
		},
		{
			name: "too many conditions",
			args: map[string]any{"conditions": tooMany},
			code: "INVALID_PARAMETER",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := env.registry.HandleBuildOverpassQuery(context.Background(), NewCallToolRequest("build_overpass_query", tt.args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			AssertErrorCode(t, result, tt.code)
		})
	}
}

func TestBuildQuery_ErrorComment(t *testing.T) {
	env := newTestEnv()

	_, err := env.registry.BuildQuery(context.Background(), queries.Request{
		Conditions: []queries.Condition{{ElementType: queries.Node}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	mcpErr := AsMCPError(err)
	if !strings.HasPrefix(mcpErr.Query, "// Error: ") {
		t.Errorf("query = %q, want error comment", mcpErr.Query)
	}
}

func TestBuildQuery_Defaults(t *testing.T) {
	env := newTestEnv()
	env.registry.deps.Defaults = queries.Options{Timeout: 90}

	out, err := env.registry.BuildQuery(context.Background(), queries.Request{
		Conditions: []queries.Condition{{ElementType: queries.Node, Key: "amenity", Value: "cafe"}},
		AreaText:   "Vienna",
	})
	if err != nil {
		t.Fatalf("BuildQuery: %v", err)
	}
	if !strings.HasPrefix(out.Query, "[out:json][timeout:90];\n") {
		t.Errorf("default timeout not applied:\n%s", out.Query)
	}
	if !strings.Contains(out.Query, `area[name="Vienna"]->.searchArea;`) {
		t.Errorf("place name header missing:\n%s", out.Query)
	}
	if out.Area != "place_name" {
		t.Errorf("area = %q", out.Area)
	}

	out, err = env.registry.BuildQuery(context.Background(), queries.Request{
		Conditions: []queries.Condition{{ElementType: queries.Node, Key: "amenity"}},
		Options:    queries.Options{Timeout: 5},
	})
	if err != nil {
		t.Fatalf("BuildQuery: %v", err)
	}
	if !strings.HasPrefix(out.Query, "[out:json][timeout:5];\n") {
		t.Errorf("explicit timeout overridden:\n%s", out.Query)
	}
}

func TestHandleBuildOSMIDQuery(t *testing.T) {
	env := newTestEnv()

	result, _ := env.registry.HandleBuildOSMIDQuery(context.Background(), NewCallToolRequest("build_osm_id_query", map[string]any{
		"element_type": "way",
		"id":           123,
		"recurse_down": true,
	}))
	AssertSuccessResult(t, result, "id query should succeed")

	var out QueryResult
	if err := ParseResultJSON(result, &out); err != nil {
		t.Fatalf("parse result: %v", err)
	}
	want := "[out:json][timeout:30];\n(\n  way(123);\n  >;\n);\nout body;\n>;\nout skel qt;"
	if diff := cmp.Diff(want, out.Query); diff != "" {
		t.Errorf("query mismatch (-want +got):\n%s", diff)
	}

	result, _ = env.registry.HandleBuildOSMIDQuery(context.Background(), NewCallToolRequest("build_osm_id_query", map[string]any{
		"element_type": "node",
		"id":           0,
	}))
	AssertErrorCode(t, result, "INVALID_PARAMETER")

	result, _ = env.registry.HandleBuildOSMIDQuery(context.Background(), NewCallToolRequest("build_osm_id_query", map[string]any{
		"element_type": "nwr",
		"id":           5,
	}))
	AssertErrorCode(t, result, "INVALID_PARAMETER")
}

func TestHandleResolveArea(t *testing.T) {
	env := newTestEnv()

	tests := []struct {
		name string
		args map[string]any
		want AreaResult
	}{
		{
			name: "relation",
			args: map[string]any{"area": "r62422"},
			want: AreaResult{
				Kind:           "relation_id",
				Comment:        "// Using relation ID: 62422 (Overpass ID: 3600062422)",
				Header:         "area(3600062422)->.searchArea;",
				Suffix:         "(area.searchArea)",
				RelationID:     62422,
				OverpassAreaID: 3600062422,
			},
		},
		{
			name: "place name",
			args: map[string]any{"area": "Berlin"},
			want: AreaResult{
				Kind:    "place_name",
				Comment: "// Using area name: Berlin",
				Header:  `area[name="Berlin"]->.searchArea;`,
				Suffix:  "(area.searchArea)",
				Name:    "Berlin",
			},
		},
		{
			name: "default",
			args: map[string]any{},
			want: AreaResult{
				Kind:    "default",
				Comment: "// Using current map view bbox",
				Suffix:  "({{bbox}})",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _ := env.registry.HandleResolveArea(context.Background(), NewCallToolRequest("resolve_area", tt.args))
			AssertSuccessResult(t, result, "resolve should succeed")
			var got AreaResult
			if err := ParseResultJSON(result, &got); err != nil {
				t.Fatalf("parse result: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("area mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHandleBBoxArea(t *testing.T) {
	env := newTestEnv()

	result, _ := env.registry.HandleBBoxArea(context.Background(), NewCallToolRequest("bbox_area", map[string]any{
		"south": "48.1", "west": "16.3", "north": "48.3", "east": "16.5",
	}))
	AssertSuccessResult(t, result, "bbox area should succeed")

	var out BBoxAreaResult
	if err := ParseResultJSON(result, &out); err != nil {
		t.Fatalf("parse result: %v", err)
	}
	if out.AreaKm2 < 300 || out.AreaKm2 > 340 {
		t.Errorf("area = %v km², want about 330", out.AreaKm2)
	}
	if !strings.HasSuffix(out.Formatted, " km²") {
		t.Errorf("formatted = %q", out.Formatted)
	}

	result, _ = env.registry.HandleBBoxArea(context.Background(), NewCallToolRequest("bbox_area", map[string]any{
		"south": "x", "west": "16.3", "north": "48.3", "east": "16.5",
	}))
	AssertErrorCode(t, result, "INVALID_BBOX")
}
