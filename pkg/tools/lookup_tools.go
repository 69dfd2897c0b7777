package tools

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
)

type searchArgs struct {
	Query string `json:"query"`
}

type valuesArgs struct {
	Key   string `json:"key"`
	Query string `json:"query,omitempty"`
}

// SearchPlacesTool returns a tool definition for place search
func SearchPlacesTool() mcp.Tool {
	return mcp.NewTool("search_places",
		mcp.WithDescription("Search places with Nominatim. Each hit carries the area text and bounding box to use in a query."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Place name, at least 3 characters"),
		),
	)
}

// HandleSearchPlaces searches places
func (r *Registry) HandleSearchPlaces(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput(r.logger, "search_places",
		func(ctx context.Context, in searchArgs, logger *slog.Logger) (interface{}, error) {
			places, err := r.SearchPlaces(ctx, in.Query)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"places": places}, nil
		},
	)(ctx, req)
}

// SuggestTagKeysTool returns a tool definition for key suggestions
func SuggestTagKeysTool() mcp.Tool {
	return mcp.NewTool("suggest_tag_keys",
		mcp.WithDescription("Suggest OSM tag keys from Taginfo, most used first"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Part of the key"),
		),
	)
}

// HandleSuggestTagKeys suggests keys
func (r *Registry) HandleSuggestTagKeys(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput(r.logger, "suggest_tag_keys",
		func(ctx context.Context, in searchArgs, logger *slog.Logger) (interface{}, error) {
			keys, err := r.SuggestKeys(ctx, in.Query)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"keys": keys}, nil
		},
	)(ctx, req)
}

// SuggestTagValuesTool returns a tool definition for value suggestions
func SuggestTagValuesTool() mcp.Tool {
	return mcp.NewTool("suggest_tag_values",
		mcp.WithDescription("Suggest values of an OSM tag key from Taginfo, most used first"),
		mcp.WithString("key",
			mcp.Required(),
			mcp.Description("Tag key"),
		),
		mcp.WithString("query",
			mcp.Description("Part of the value"),
		),
	)
}

// HandleSuggestTagValues suggests values
func (r *Registry) HandleSuggestTagValues(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput(r.logger, "suggest_tag_values",
		func(ctx context.Context, in valuesArgs, logger *slog.Logger) (interface{}, error) {
			values, err := r.SuggestValues(ctx, in.Key, in.Query)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"key": in.Key, "values": values}, nil
		},
	)(ctx, req)
}
