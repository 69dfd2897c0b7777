package tools

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/overpassqb/pkg/core"
)

// Common error guidance messages
const (
	GuidanceOverpassTimeout   = "Raise the timeout setting, narrow the area or add more specific conditions."
	GuidanceOverpassRateLimit = "The Overpass API is currently experiencing high load. Please try again in a minute."
	GuidanceOverpassSyntax    = "Overpass rejected the query. Open it in Overpass Turbo to see the exact error."
	GuidanceEmptyResult       = "The query matched no elements. Widen the area or relax the conditions."
	GuidanceNoSink            = "Start the server with an export sink (export.type local, s3 or azure) to store files."
	GuidanceNetworkError      = "Check your internet connection and try again."
)

// ErrorResponse creates a plain error result.
func ErrorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

// ErrorResult converts an error into a tool result. MCPErrors keep their
// code and guidance; anything else is reported as an internal error.
func ErrorResult(err error) *mcp.CallToolResult {
	return AsMCPError(err).ToMCPResult()
}

// AsMCPError normalizes err into an MCPError with guidance. Context
// deadlines become SERVICE_TIMEOUT.
func AsMCPError(err error) *core.MCPError {
	var mcpErr *core.MCPError
	if errors.As(err, &mcpErr) {
		return withGuidance(mcpErr)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.NewError(core.ErrServiceTimeout, "request timed out").
			WithGuidance(GuidanceOverpassTimeout).WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return core.NewError(core.ErrInternalError, "request canceled").WithCause(err)
	}
	return core.NewError(core.ErrInternalError, err.Error()).WithCause(err)
}

// withGuidance fills in guidance for service errors that carry none.
func withGuidance(e *core.MCPError) *core.MCPError {
	if e.Guidance != "" {
		return e
	}
	switch core.ErrorCode(e.Code) {
	case core.ErrServiceTimeout:
		return e.WithGuidance(GuidanceOverpassTimeout)
	case core.ErrRateLimit:
		return e.WithGuidance(GuidanceOverpassRateLimit)
	case core.ErrEmptyResultSet:
		return e.WithGuidance(GuidanceEmptyResult)
	case core.ErrNetworkError:
		return e.WithGuidance(GuidanceNetworkError)
	}
	return e
}
