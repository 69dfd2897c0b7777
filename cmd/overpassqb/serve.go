package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/NERVsystems/overpassqb/pkg/config"
	"github.com/NERVsystems/overpassqb/pkg/monitoring"
	"github.com/NERVsystems/overpassqb/pkg/server"
	"github.com/NERVsystems/overpassqb/pkg/tracing"
	"github.com/NERVsystems/overpassqb/pkg/version"
)

const shutdownTimeout = 30 * time.Second

func (c *cli) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (stdio or HTTP+SSE with REST API)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := c.load(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}

	f := cmd.Flags()
	f.String("transport", "", "transport (stdio, http)")
	f.String("http-addr", "", "HTTP listen address")
	f.String("base-url", "", "public base URL announced to SSE clients")
	f.String("auth-type", "", "HTTP authentication (none, bearer, basic)")
	f.String("auth-token", "", "bearer token or user:password for basic auth")
	f.Float64("rate-limit", 0, "requests per second per client IP (0 disables)")
	f.Bool("enable-monitoring", false, "serve Prometheus metrics")
	f.String("monitoring-addr", "", "Prometheus metrics listen address")
	f.Bool("watch-presets", true, "reload presets when their files change")

	_ = c.v.BindPFlag("server.transport", f.Lookup("transport"))
	_ = c.v.BindPFlag("server.addr", f.Lookup("http-addr"))
	_ = c.v.BindPFlag("server.base_url", f.Lookup("base-url"))
	_ = c.v.BindPFlag("server.auth_type", f.Lookup("auth-type"))
	_ = c.v.BindPFlag("server.auth_token", f.Lookup("auth-token"))
	_ = c.v.BindPFlag("server.rate_limit", f.Lookup("rate-limit"))
	_ = c.v.BindPFlag("monitoring.enabled", f.Lookup("enable-monitoring"))
	_ = c.v.BindPFlag("monitoring.addr", f.Lookup("monitoring-addr"))
	_ = c.v.BindPFlag("presets.watch", f.Lookup("watch-presets"))
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting overpassqb",
		"version", version.BuildVersion,
		"transport", cfg.Server.Transport,
		"overpass", cfg.Overpass.BaseURL,
		"export_type", cfg.Export.Type,
	)

	shutdownTracing, err := tracing.InitTracing(ctx, cfg.Tracing, version.BuildVersion)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error("failed to shutdown tracing", "error", err)
		}
	}()

	if cfg.Monitoring.Enabled {
		monitoring.InstallOSMHooks()
		stopMetrics := startMetricsServer(cfg.Monitoring.Addr, logger)
		defer stopMetrics()
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	stopWatch, err := a.watchPresets(ctx)
	if err != nil {
		return err
	}
	if stopWatch != nil {
		defer func() { _ = stopWatch() }()
	}

	s, err := server.NewServer(logger, a.registry)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	if cfg.Server.Transport != "http" {
		logger.Info("transport_enabled", "type", "stdio")
		return s.RunWithContext(ctx)
	}
	return serveHTTP(ctx, a, s)
}

func serveHTTP(ctx context.Context, a *app, s *server.Server) error {
	logger := a.logger

	hc := monitoring.NewHealthChecker(server.ServerName, version.BuildVersion)
	defer hc.Shutdown()
	stopProbes := a.startServiceMonitoring(hc)
	defer stopProbes()

	transport := server.NewHTTPTransport(s, a.cfg.Server.HTTP, logger)
	transport.SetHealthChecker(hc)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("transport_enabled", "type", "http", "addr", a.cfg.Server.HTTP.Addr,
			"api", server.APIPrefix)
		if err := transport.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
		logger.Error("HTTP transport error", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := transport.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP transport", "error", err)
	}
	logger.Info("server stopped")
	return runErr
}

// startMetricsServer serves /metrics on addr and returns its shutdown
// function.
func startMetricsServer(addr string, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("starting Prometheus metrics server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("monitoring server error", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown monitoring server", "error", err)
		}
	}
}
