package tools

import (
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

// NewCallToolRequest builds a tool call with the given arguments.
func NewCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

// ResultText returns the first text content of a result.
func ResultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	for _, c := range result.Content {
		if text, ok := c.(mcp.TextContent); ok {
			return text.Text
		}
	}
	return ""
}

// IsErrorResult checks if a CallToolResult represents an error
func IsErrorResult(result *mcp.CallToolResult) bool {
	return result != nil && result.IsError
}

// AssertErrorCode checks that result is an error result carrying code.
func AssertErrorCode(t *testing.T, result *mcp.CallToolResult, code string) {
	t.Helper()
	if !IsErrorResult(result) {
		t.Fatalf("expected %s error, got success: %s", code, ResultText(result))
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal([]byte(ResultText(result)), &body); err != nil {
		t.Fatalf("error result is not JSON: %q", ResultText(result))
	}
	if body.Code != code {
		t.Errorf("error code = %q, want %q (%s)", body.Code, code, ResultText(result))
	}
}

// AssertSuccessResult checks that a result is a success result and fails the test if not
func AssertSuccessResult(t *testing.T, result *mcp.CallToolResult, message string) {
	t.Helper()
	if IsErrorResult(result) {
		t.Fatalf("%s. Got error: %s", message, ResultText(result))
	}
}

// ParseResultJSON parses the JSON content from a CallToolResult
func ParseResultJSON(result *mcp.CallToolResult, out interface{}) error {
	return json.Unmarshal([]byte(ResultText(result)), out)
}
