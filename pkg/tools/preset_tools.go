package tools

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
)

// ListPresetsTool returns a tool definition for listing presets
func ListPresetsTool() mcp.Tool {
	return mcp.NewTool("list_presets",
		mcp.WithDescription("List the saved query presets"),
	)
}

// HandleListPresets lists presets
func (r *Registry) HandleListPresets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return JSONResult(r.logger, map[string]interface{}{"presets": r.ListPresets()}), nil
}

type presetArgs struct {
	Name string `json:"name"`
}

// BuildPresetTool returns a tool definition for building a preset
func BuildPresetTool() mcp.Tool {
	return mcp.NewTool("build_preset",
		mcp.WithDescription("Generate the query of a saved preset"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Preset name"),
		),
	)
}

// HandleBuildPreset builds a preset
func (r *Registry) HandleBuildPreset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput(r.logger, "build_preset",
		func(ctx context.Context, in presetArgs, logger *slog.Logger) (interface{}, error) {
			return r.BuildPreset(ctx, in.Name)
		},
	)(ctx, req)
}
