package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// GetVersionTool returns a tool definition for retrieving version information
func GetVersionTool() mcp.Tool {
	return mcp.NewTool("get_version",
		mcp.WithDescription("Get the version and build information of the service"),
	)
}

// HandleGetVersion implements version information retrieval
func (r *Registry) HandleGetVersion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return JSONResult(r.logger, r.Version()), nil
}
