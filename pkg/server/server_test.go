package server

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NERVsystems/overpassqb/pkg/tools"
)

func TestNewServer(t *testing.T) {
	s, err := NewServer(discardLogger(), nil)
	require.NoError(t, err)
	require.NotNil(t, s.GetMCPServer())
	require.NotNil(t, s.Registry())

	ctx := context.Background()
	msg := s.GetMCPServer().HandleMessage(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var resp struct {
		Result mcp.ListToolsResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &resp))

	names := make([]string, 0, len(resp.Result.Tools))
	for _, tool := range resp.Result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, tools.NewRegistry(nil, tools.Deps{}).GetToolNames(), names)
}

func TestNewServer_Prompt(t *testing.T) {
	s, err := NewServer(discardLogger(), nil)
	require.NoError(t, err)

	msg := s.GetMCPServer().HandleMessage(context.Background(),
		json.RawMessage(`{"jsonrpc":"2.0","id":2,"method":"prompts/get","params":{"name":"overpass_query_guide"}}`))
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "build_overpass_query")
}

func TestServer_ServeShutdown(t *testing.T) {
	s, err := NewServer(discardLogger(), nil)
	require.NoError(t, err)

	in, writer := io.Pipe()
	defer writer.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve(context.Background(), in, io.Discard)
	}()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.running
	}, time.Second, 5*time.Millisecond)

	assert.Error(t, s.Serve(context.Background(), in, io.Discard), "second Serve must fail")

	s.Shutdown()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
	s.WaitForShutdown()
}

func TestServer_ServeContextCancel(t *testing.T) {
	s, err := NewServer(discardLogger(), nil)
	require.NoError(t, err)

	in, writer := io.Pipe()
	defer writer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, s.Serve(ctx, in, io.Discard))
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
