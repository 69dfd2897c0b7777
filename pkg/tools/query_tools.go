package tools

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/overpassqb/pkg/osm/queries"
)

var bboxProperties = map[string]any{
	"south": map[string]any{"type": []string{"string", "number"}, "description": "Minimum latitude"},
	"west":  map[string]any{"type": []string{"string", "number"}, "description": "Minimum longitude"},
	"north": map[string]any{"type": []string{"string", "number"}, "description": "Maximum latitude"},
	"east":  map[string]any{"type": []string{"string", "number"}, "description": "Maximum longitude"},
}

var conditionItem = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"element_type": map[string]any{
			"type": "string",
			"enum": []string{"node", "way", "relation", "nwr"},
		},
		"key": map[string]any{"type": "string", "description": "Tag key; rows with an empty key are ignored"},
		"operator": map[string]any{
			"type": "string",
			"enum": []string{"=", "!=", "~", "!~"},
		},
		"value": map[string]any{"type": "string", "description": "Tag value; empty means the key only has to exist"},
	},
	"required": []string{"element_type", "key"},
}

// formArgs holds the fields of a query form. It is shared by every tool
// that builds a query.
type formArgs struct {
	Conditions []queries.Condition `json:"conditions,omitempty"`
	Area       string              `json:"area,omitempty"`
	BBox       queries.BBoxFields  `json:"bbox,omitempty"`
	Timeout    int                 `json:"timeout,omitempty"`
	Format     string              `json:"format,omitempty"`
	Columns    []string            `json:"columns,omitempty"`
}

func (a formArgs) request() queries.Request {
	opts := queries.Options{Timeout: a.Timeout, Columns: a.Columns}
	if a.Format != "" {
		opts.Format = queries.ParseFormat(a.Format)
	}
	return queries.Request{
		Conditions: a.Conditions,
		AreaText:   a.Area,
		BBox:       a.BBox,
		Options:    opts,
	}
}

func formOptions(required bool) []mcp.ToolOption {
	conditionOpts := []mcp.PropertyOption{
		mcp.Description("Tag conditions; rows are grouped by element type"),
		mcp.Items(conditionItem),
	}
	if required {
		conditionOpts = append(conditionOpts, mcp.Required())
	}
	return []mcp.ToolOption{
		mcp.WithArray("conditions", conditionOpts...),
		mcp.WithString("area",
			mcp.Description("Place name, or relation id as 62422, r62422 or relation:62422"),
		),
		mcp.WithObject("bbox",
			mcp.Description("Bounding box; when complete it wins over area"),
			mcp.Properties(bboxProperties),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Server timeout in seconds (1-1800)"),
		),
		mcp.WithString("format",
			mcp.Description("Output format"),
			mcp.Enum("json", "csv"),
		),
		mcp.WithArray("columns",
			mcp.Description("CSV columns, e.g. ::id, name, addr:street"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	}
}

// BuildOverpassQueryTool returns a tool definition for generating queries
func BuildOverpassQueryTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Generate an Overpass QL query from tag conditions and an area. Returns the query with Overpass Turbo and Ultra links."),
	}, formOptions(true)...)
	return mcp.NewTool("build_overpass_query", opts...)
}

// HandleBuildOverpassQuery generates a query
func (r *Registry) HandleBuildOverpassQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput(r.logger, "build_overpass_query",
		func(ctx context.Context, args formArgs, logger *slog.Logger) (interface{}, error) {
			return r.BuildQuery(ctx, args.request())
		},
	)(ctx, req)
}

// BuildOSMIDQueryTool returns a tool definition for element lookups
func BuildOSMIDQueryTool() mcp.Tool {
	return mcp.NewTool("build_osm_id_query",
		mcp.WithDescription("Generate a query that fetches one OSM element by id"),
		mcp.WithString("element_type",
			mcp.Required(),
			mcp.Description("Element type"),
			mcp.Enum("node", "way", "relation"),
		),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Positive OSM id"),
		),
		mcp.WithBoolean("recurse_down",
			mcp.Description("Also fetch member ways and nodes"),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Server timeout in seconds (1-1800)"),
		),
	)
}

// HandleBuildOSMIDQuery generates an element lookup
func (r *Registry) HandleBuildOSMIDQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput(r.logger, "build_osm_id_query",
		func(ctx context.Context, in IDQueryInput, logger *slog.Logger) (interface{}, error) {
			return r.BuildIDQuery(in)
		},
	)(ctx, req)
}

// ResolveAreaTool returns a tool definition for area resolution
func ResolveAreaTool() mcp.Tool {
	return mcp.NewTool("resolve_area",
		mcp.WithDescription("Show which area a bounding box or area text selects and the query text it produces"),
		mcp.WithString("area",
			mcp.Description("Place name or relation id"),
		),
		mcp.WithObject("bbox",
			mcp.Description("Bounding box"),
			mcp.Properties(bboxProperties),
		),
	)
}

// HandleResolveArea resolves an area
func (r *Registry) HandleResolveArea(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput(r.logger, "resolve_area",
		func(ctx context.Context, in AreaInput, logger *slog.Logger) (interface{}, error) {
			return r.ResolveArea(in)
		},
	)(ctx, req)
}

// BBoxAreaTool returns a tool definition for bounding box surface estimates
func BBoxAreaTool() mcp.Tool {
	return mcp.NewTool("bbox_area",
		mcp.WithDescription("Estimate the surface of a bounding box in km²"),
		mcp.WithString("south", mcp.Required(), mcp.Description("Minimum latitude")),
		mcp.WithString("west", mcp.Required(), mcp.Description("Minimum longitude")),
		mcp.WithString("north", mcp.Required(), mcp.Description("Maximum latitude")),
		mcp.WithString("east", mcp.Required(), mcp.Description("Maximum longitude")),
	)
}

// HandleBBoxArea estimates a bounding box surface
func (r *Registry) HandleBBoxArea(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput(r.logger, "bbox_area",
		func(ctx context.Context, in queries.BBoxFields, logger *slog.Logger) (interface{}, error) {
			return r.BBoxArea(in)
		},
	)(ctx, req)
}
