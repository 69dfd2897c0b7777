// Package tools exposes the query builder and its services as MCP tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/overpassqb/pkg/monitoring"
	"github.com/NERVsystems/overpassqb/pkg/tracing"
)

// Registry contains all tool definitions and handlers
type Registry struct {
	logger *slog.Logger
	deps   Deps
}

// NewRegistry creates a new tool registry
func NewRegistry(logger *slog.Logger, deps Deps) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger,
		deps:   deps,
	}
}

// ToolHandler handles one tool call.
type ToolHandler func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

// ToolDefinition represents an MCP tool definition.
type ToolDefinition struct {
	Name        string
	Description string
	Tool        mcp.Tool
	Handler     ToolHandler
}

// GetToolDefinitions returns the list of all available tools.
func (r *Registry) GetToolDefinitions() []ToolDefinition {
	defs := []ToolDefinition{
		// Query generation
		{
			Name:        "build_overpass_query",
			Description: "Generate Overpass QL from tag conditions and an area (bounding box, place name or relation id)",
			Tool:        BuildOverpassQueryTool(),
			Handler:     r.HandleBuildOverpassQuery,
		},
		{
			Name:        "build_osm_id_query",
			Description: "Generate a lookup query for a single node, way or relation",
			Tool:        BuildOSMIDQueryTool(),
			Handler:     r.HandleBuildOSMIDQuery,
		},
		{
			Name:        "resolve_area",
			Description: "Show which area a bounding box or area text selects",
			Tool:        ResolveAreaTool(),
			Handler:     r.HandleResolveArea,
		},
		{
			Name:        "bbox_area",
			Description: "Estimate the surface covered by a bounding box",
			Tool:        BBoxAreaTool(),
			Handler:     r.HandleBBoxArea,
		},

		// Execution and export
		{
			Name:        "run_overpass_query",
			Description: "Execute a query against the Overpass API",
			Tool:        RunOverpassQueryTool(),
			Handler:     r.HandleRunOverpassQuery,
		},
		{
			Name:        "export_overpass_results",
			Description: "Execute a query and export the result as CSV, JSON or GeoJSON",
			Tool:        ExportOverpassResultsTool(),
			Handler:     r.HandleExportOverpassResults,
		},
		{
			Name:        "convert_elements",
			Description: "Convert Overpass elements to CSV, JSON or GeoJSON",
			Tool:        ConvertElementsTool(),
			Handler:     r.HandleConvertElements,
		},

		// Suggestions
		{
			Name:        "search_places",
			Description: "Search places by name for use as query area",
			Tool:        SearchPlacesTool(),
			Handler:     r.HandleSearchPlaces,
		},
		{
			Name:        "suggest_tag_keys",
			Description: "Suggest OSM tag keys by usage",
			Tool:        SuggestTagKeysTool(),
			Handler:     r.HandleSuggestTagKeys,
		},
		{
			Name:        "suggest_tag_values",
			Description: "Suggest values of an OSM tag key by usage",
			Tool:        SuggestTagValuesTool(),
			Handler:     r.HandleSuggestTagValues,
		},

		// Presets
		{
			Name:        "list_presets",
			Description: "List saved query presets",
			Tool:        ListPresetsTool(),
			Handler:     r.HandleListPresets,
		},
		{
			Name:        "build_preset",
			Description: "Generate the query of a saved preset",
			Tool:        BuildPresetTool(),
			Handler:     r.HandleBuildPreset,
		},

		{
			Name:        "get_version",
			Description: "Get the version information of this server",
			Tool:        GetVersionTool(),
			Handler:     r.HandleGetVersion,
		},
	}

	return defs
}

// Handler returns the traced handler of the named tool.
func (r *Registry) Handler(name string) (ToolHandler, bool) {
	for _, def := range r.GetToolDefinitions() {
		if def.Name == name {
			return r.wrapWithTracing(def.Name, def.Handler), true
		}
	}
	return nil, false
}

// RegisterTools registers all tools with the MCP server.
func (r *Registry) RegisterTools(mcpServer *server.MCPServer) {
	for _, def := range r.GetToolDefinitions() {
		r.logger.Info("registering tool", "name", def.Name)
		mcpServer.AddTool(def.Tool, server.ToolHandlerFunc(r.wrapWithTracing(def.Name, def.Handler)))
	}
}

// wrapWithTracing wraps a tool handler with OpenTelemetry tracing and
// request metrics.
func (r *Registry) wrapWithTracing(toolName string, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		spanName := fmt.Sprintf("mcp.tool.%s", toolName)
		ctx, span := tracing.StartSpan(ctx, spanName,
			trace.WithAttributes(
				attribute.String(tracing.AttrMCPToolName, toolName),
			),
		)
		defer span.End()

		startTime := time.Now()
		result, err := handler(ctx, req)
		duration := time.Since(startTime)
		durationMs := duration.Milliseconds()

		status := tracing.StatusSuccess
		switch {
		case err != nil:
			status = tracing.StatusError
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case result != nil && result.IsError:
			status = tracing.StatusError
			span.SetStatus(codes.Error, "tool returned an error result")
		default:
			span.SetStatus(codes.Ok, "")
		}

		resultSize := 0
		if result != nil && result.Content != nil {
			if data, marshalErr := json.Marshal(result.Content); marshalErr == nil {
				resultSize = len(data)
			}
		}

		span.SetAttributes(tracing.MCPToolAttributes(toolName, status, durationMs, resultSize)...)
		monitoring.RecordMCPRequest(toolName, duration, status == tracing.StatusSuccess)

		r.logger.Debug("tool execution traced",
			"tool", toolName,
			"duration_ms", durationMs,
			"status", status,
			"result_size", resultSize,
		)

		return result, err
	}
}

// GetToolNames returns a list of all tool names.
func (r *Registry) GetToolNames() []string {
	defs := r.GetToolDefinitions()
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}

// RegisterAll registers all tools and prompts with the MCP server.
func (r *Registry) RegisterAll(mcpServer *server.MCPServer) {
	r.RegisterTools(mcpServer)
	r.RegisterPrompts(mcpServer)
}
