package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func TestMCPErrorIs(t *testing.T) {
	err := fmt.Errorf("building: %w", InvalidBBoxError("south > north"))

	if !errors.Is(err, NewError(ErrInvalidBBox, "")) {
		t.Error("errors.Is should match on code")
	}
	if errors.Is(err, NewError(ErrInvalidRelationID, "")) {
		t.Error("errors.Is matched a different code")
	}
	if !HasCode(err, ErrInvalidBBox) || CodeOf(err) != ErrInvalidBBox {
		t.Error("HasCode/CodeOf should see through wrapping")
	}
	if CodeOf(errors.New("plain")) != "" || HasCode(nil, ErrInvalidBBox) {
		t.Error("plain errors carry no code")
	}
}

func TestIsAreaError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{InvalidBBoxError("x"), true},
		{InvalidRelationIDError("relation:abc"), true},
		{NoValidConditionsError(), false},
		{errors.New("x"), false},
	}
	for _, tt := range tests {
		if got := IsAreaError(tt.err); got != tt.want {
			t.Errorf("IsAreaError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestInvalidRelationIDGuidance(t *testing.T) {
	for _, text := range []string{"R0", "0", "relation:abc"} {
		err := InvalidRelationIDError(text)
		if !strings.Contains(err.Message, fmt.Sprintf("%q", text)) {
			t.Errorf("message %q does not name %q", err.Message, text)
		}
		for _, form := range []string{`"relation:<id>"`, `"r<id>"`, "bare digits"} {
			if !strings.Contains(err.Guidance, form) {
				t.Errorf("guidance %q does not mention %s", err.Guidance, form)
			}
		}
	}
}

func TestNetworkErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NetworkError("overpass", cause)
	if !errors.Is(err, cause) {
		t.Fatal("cause lost")
	}
	if err.Code != string(ErrNetworkError) {
		t.Fatalf("code = %s", err.Code)
	}
}

func TestServiceErrorCodes(t *testing.T) {
	tests := map[int]ErrorCode{
		http.StatusTooManyRequests:     ErrRateLimit,
		http.StatusGatewayTimeout:      ErrServiceTimeout,
		http.StatusRequestTimeout:      ErrServiceTimeout,
		http.StatusBadRequest:          ErrInvalidInput,
		http.StatusInternalServerError: ErrInternalError,
		http.StatusServiceUnavailable:  ErrServiceUnavailable,
		http.StatusTeapot:              ErrServiceUnavailable,
	}
	for status, want := range tests {
		if got := CodeOf(ServiceError("overpass", status, "x")); got != want {
			t.Errorf("status %d: code %s, want %s", status, got, want)
		}
	}
}

func TestToMCPResult(t *testing.T) {
	res := UnsupportedExportFormatError("kml").WithQuery("node(1);").ToMCPResult()
	if !res.IsError {
		t.Fatal("result should be an error")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content %T", res.Content[0])
	}

	var decoded MCPError
	if err := json.Unmarshal([]byte(text.Text), &decoded); err != nil {
		t.Fatalf("invalid JSON %q: %v", text.Text, err)
	}
	if decoded.Code != string(ErrUnsupportedExportFormat) || decoded.Query != "node(1);" {
		t.Errorf("decoded %+v", decoded)
	}
	if len(decoded.Suggestions) != 3 {
		t.Errorf("suggestions %v", decoded.Suggestions)
	}
}
