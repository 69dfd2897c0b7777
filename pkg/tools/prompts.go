package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// QueryGuidePrompt explains how the tools fit together.
const QueryGuidePrompt = `You generate Overpass QL with the build_overpass_query tool.

1. Turn the request into tag conditions. Each condition has an element_type
   (node, way, relation or nwr), a key, an optional operator (=, !=, ~, !~)
   and an optional value. Use suggest_tag_keys and suggest_tag_values when
   unsure which tags OpenStreetMap uses.
2. Pick the area. A bounding box wins over area text. Area text is a place
   name or a relation id (62422, r62422, relation:62422). search_places
   returns both for a named place; prefer the relation id when present.
   Without either the query uses {{bbox}}, which only Overpass Turbo fills in.
3. Check the surface of large bounding boxes with bbox_area before running.
4. run_overpass_query executes the query; export_overpass_results returns
   CSV, JSON or GeoJSON.

Errors are returned with a code: NO_VALID_CONDITIONS, INVALID_BBOX or
INVALID_RELATION_ID mean the form needs fixing before anything is run.`

// RegisterPrompts registers the query guide prompt.
func (r *Registry) RegisterPrompts(mcpServer *server.MCPServer) {
	r.logger.Info("registering prompts")

	prompt := mcp.NewPrompt("overpass_query_guide",
		mcp.WithPromptDescription("How to build and run Overpass queries with these tools"),
	)
	mcpServer.AddPrompt(prompt, func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return mcp.NewGetPromptResult(
			"Overpass Query Guide",
			[]mcp.PromptMessage{
				mcp.NewPromptMessage(
					mcp.RoleAssistant,
					mcp.NewTextContent(QueryGuidePrompt),
				),
			},
		), nil
	})
}
