// Package core provides shared utilities for the Overpass query tools.
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrorCode defines standard error codes for query building, execution and export
type ErrorCode string

// Standard error codes
const (
	// Input validation errors
	ErrInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrEmptyParameter   ErrorCode = "EMPTY_PARAMETER"
	ErrMissingParameter ErrorCode = "MISSING_PARAMETER"
	ErrInvalidParameter ErrorCode = "INVALID_PARAMETER"

	// Query building errors
	ErrNoValidConditions ErrorCode = "NO_VALID_CONDITIONS"
	ErrInvalidBBox       ErrorCode = "INVALID_BBOX"
	ErrInvalidRelationID ErrorCode = "INVALID_RELATION_ID"

	// Export errors
	ErrUnsupportedExportFormat ErrorCode = "UNSUPPORTED_EXPORT_FORMAT"
	ErrEmptyResultSet          ErrorCode = "EMPTY_RESULT_SET"

	// Service errors
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrServiceTimeout     ErrorCode = "SERVICE_TIMEOUT"
	ErrRateLimit          ErrorCode = "RATE_LIMIT"
	ErrNetworkError       ErrorCode = "NETWORK_ERROR"

	// Data errors
	ErrNoResults     ErrorCode = "NO_RESULTS"
	ErrParseError    ErrorCode = "PARSE_ERROR"
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// MCPError represents a detailed error structure for tool and API responses
type MCPError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Query       string   `json:"query,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Guidance    string   `json:"guidance,omitempty"`

	cause error
}

// Error implements the error interface
func (e *MCPError) Error() string {
	if e.Guidance != "" {
		return fmt.Sprintf("%s: %s. %s", e.Code, e.Message, e.Guidance)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any
func (e *MCPError) Unwrap() error {
	return e.cause
}

// Is matches any MCPError carrying the same code, so callers can write
// errors.Is(err, core.NewError(core.ErrInvalidBBox, "")).
func (e *MCPError) Is(target error) bool {
	var t *MCPError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new MCPError with the given code and message
func NewError(code ErrorCode, message string) *MCPError {
	return &MCPError{
		Code:    string(code),
		Message: message,
	}
}

// WithQuery adds query information to the error
func (e *MCPError) WithQuery(query string) *MCPError {
	e.Query = query
	return e
}

// WithGuidance adds guidance information to the error
func (e *MCPError) WithGuidance(guidance string) *MCPError {
	e.Guidance = guidance
	return e
}

// WithSuggestions adds suggestions to the error
func (e *MCPError) WithSuggestions(suggestions ...string) *MCPError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithCause records the error that triggered this one
func (e *MCPError) WithCause(err error) *MCPError {
	e.cause = err
	return e
}

// ToMCPResult converts the error to an MCP tool result
func (e *MCPError) ToMCPResult() *mcp.CallToolResult {
	errorJSON, err := json.Marshal(e)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ERROR: %s - %s", e.Code, e.Message))
	}

	return mcp.NewToolResultError(string(errorJSON))
}

// CodeOf returns the error code carried by err, or "" when err is not an MCPError
func CodeOf(err error) ErrorCode {
	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return ErrorCode(mcpErr.Code)
	}
	return ""
}

// HasCode reports whether err (or anything it wraps) is an MCPError with code
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsAreaError reports whether err came from area resolution
func IsAreaError(err error) bool {
	switch CodeOf(err) {
	case ErrInvalidBBox, ErrInvalidRelationID:
		return true
	}
	return false
}

// NoValidConditionsError is returned when every condition was dropped
func NoValidConditionsError() *MCPError {
	return NewError(ErrNoValidConditions, "Add at least one valid condition to generate a query").
		WithGuidance("Every condition needs a non-empty key.")
}

// InvalidBBoxError is returned for unparsable or inverted bounding boxes
func InvalidBBoxError(detail string) *MCPError {
	return NewError(ErrInvalidBBox, "Invalid bounding box coordinates: "+detail).
		WithGuidance("Use decimal degrees with south < north and west < east.")
}

// InvalidRelationIDError is returned when a relation reference has no usable number
func InvalidRelationIDError(text string) *MCPError {
	return NewError(ErrInvalidRelationID, fmt.Sprintf("Invalid relation ID %q", text)).
		WithGuidance(`Use a positive numeric relation ID, written as "relation:<id>", "r<id>" or the bare digits.`)
}

// UnsupportedExportFormatError is returned for unknown export formats
func UnsupportedExportFormatError(format string) *MCPError {
	return NewError(ErrUnsupportedExportFormat, fmt.Sprintf("Unsupported export format %q", format)).
		WithSuggestions("csv", "json", "geojson")
}

// EmptyResultSetError reports a query that matched nothing
func EmptyResultSetError() *MCPError {
	return NewError(ErrEmptyResultSet, "The query returned no elements").
		WithGuidance("Widen the area or relax the conditions.")
}

// NetworkError wraps a failure talking to an external service
func NetworkError(service string, err error) *MCPError {
	return NewError(ErrNetworkError, fmt.Sprintf("%s request failed: %v", service, err)).
		WithGuidance("Check your internet connection and try again.").
		WithCause(err)
}

// ServiceError creates an error for external service failures
func ServiceError(service string, statusCode int, message string) *MCPError {
	var code ErrorCode
	var guidance string

	switch statusCode {
	case http.StatusTooManyRequests:
		code = ErrRateLimit
		guidance = "The service is rate-limited. Please try again in a few moments."
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		code = ErrServiceTimeout
		guidance = "The request timed out. Try reducing the search area or raising the query timeout."
	case http.StatusBadRequest:
		code = ErrInvalidInput
		guidance = "The request was rejected. Check the generated query for syntax errors."
	case http.StatusInternalServerError:
		code = ErrInternalError
		guidance = "The server encountered an error. This is likely temporary, please try again later."
	case http.StatusServiceUnavailable:
		code = ErrServiceUnavailable
		guidance = "The service is temporarily unavailable. Please try again later."
	default:
		code = ErrServiceUnavailable
		guidance = "Please try again later or modify your request parameters."
	}

	return NewError(code, fmt.Sprintf("%s service error: %s", service, message)).
		WithGuidance(guidance)
}

// NewValidationError creates an error for validation failures
func NewValidationError(code ErrorCode, message string) *MCPError {
	return NewError(code, message).
		WithGuidance("Please correct the parameters and try again.")
}
