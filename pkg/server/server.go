// Package server provides the MCP server and REST API for the Overpass
// query builder.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/NERVsystems/overpassqb/pkg/core"
	"github.com/NERVsystems/overpassqb/pkg/tools"
	"github.com/NERVsystems/overpassqb/pkg/version"
)

// ServerName is the name of the MCP server
const ServerName = "overpassqb"

// Server encapsulates the MCP server with the query builder tools.
type Server struct {
	srv       *mcpserver.MCPServer
	registry  *tools.Registry
	logger    *slog.Logger
	doneCh    chan struct{}
	doneOnce  sync.Once
	running   bool
	mu        sync.Mutex
	ctxCancel context.CancelFunc
}

// NewServer creates an MCP server with every tool and prompt of registry
// registered.
func NewServer(logger *slog.Logger, registry *tools.Registry) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = tools.NewRegistry(logger, tools.Deps{})
	}
	logger.Info("initializing Overpass query builder MCP server",
		"name", ServerName,
		"version", version.BuildVersion)

	srv := mcpserver.NewMCPServer(
		ServerName,
		version.BuildVersion,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithPromptCapabilities(false),
		mcpserver.WithRecovery(),
	)
	registry.RegisterAll(srv)

	return &Server{
		srv:      srv,
		registry: registry,
		logger:   logger,
		doneCh:   make(chan struct{}),
	}, nil
}

// Run starts the MCP server using stdin/stdout for communication.
// This method blocks until the server is stopped or stdin is closed.
func (s *Server) Run() error {
	return s.RunWithContext(context.Background())
}

// RunWithContext serves stdio until ctx is canceled, Shutdown is called or
// stdin is closed.
func (s *Server) RunWithContext(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve speaks MCP over in and out.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return core.NewError(core.ErrInternalError, "server already running")
	}
	s.running = true
	ctx, s.ctxCancel = context.WithCancel(ctx)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.doneOnce.Do(func() { close(s.doneCh) })
	}()

	stdio := mcpserver.NewStdioServer(s.srv)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	s.logger.Info("serving MCP over stdio")
	err := stdio.Listen(ctx, in, out)
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return nil
	}
	s.logger.Error("server error", "error", err)
	return err
}

// Shutdown initiates a graceful shutdown of the server.
// It does not block and returns immediately.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctxCancel != nil {
		s.ctxCancel()
	}
}

// WaitForShutdown blocks until the server has fully shut down.
func (s *Server) WaitForShutdown() {
	<-s.doneCh
}

// GetMCPServer returns the underlying MCP server instance for HTTP transport
func (s *Server) GetMCPServer() *mcpserver.MCPServer {
	return s.srv
}

// Registry returns the tool registry backing the server.
func (s *Server) Registry() *tools.Registry {
	return s.registry
}
