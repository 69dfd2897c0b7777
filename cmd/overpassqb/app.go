package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/NERVsystems/overpassqb/pkg/config"
	"github.com/NERVsystems/overpassqb/pkg/export"
	"github.com/NERVsystems/overpassqb/pkg/monitoring"
	"github.com/NERVsystems/overpassqb/pkg/osm"
	"github.com/NERVsystems/overpassqb/pkg/preset"
	"github.com/NERVsystems/overpassqb/pkg/tools"
)

// healthInterval is how often the remote services are probed while serving.
const healthInterval = time.Minute

// app holds the clients and the tool registry built from a configuration.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	overpass *osm.OverpassClient
	places   *osm.PlaceSearcher
	tags     *osm.TaginfoClient
	presets  *preset.Store
	sink     export.Sink
	registry *tools.Registry
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	osm.SetUserAgent(cfg.UserAgent)

	overpass, err := osm.NewOverpassClient(cfg.Overpass.OverpassOptions, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("creating overpass client: %w", err)
	}

	sink, err := export.New(ctx, cfg.Export)
	if err != nil {
		return nil, fmt.Errorf("creating export sink: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		overpass: overpass,
		places:   osm.NewPlaceSearcher(cfg.Nominatim, nil, logger),
		tags:     osm.NewTaginfoClient(cfg.Taginfo, nil, logger),
		sink:     sink,
	}

	if cfg.Presets.Dir != "" {
		a.presets = preset.NewStore(cfg.Presets.Dir)
		if err := a.presets.Reload(); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("preset directory: %w", err)
			}
			logger.Warn("some presets failed to load", "dir", cfg.Presets.Dir, "error", err)
		}
		logger.Debug("presets loaded", "dir", cfg.Presets.Dir, "count", len(a.presets.List()))
	}

	deps := tools.Deps{
		Overpass: overpass,
		Places:   a.places,
		Tags:     a.tags,
		Presets:  a.presets,
		Defaults: cfg.QueryOptions(),
	}
	if sink != nil {
		deps.Sink = sink
		logger.Debug("export sink configured", "type", sink.Type())
	}
	a.registry = tools.NewRegistry(logger, deps)
	return a, nil
}

// watchPresets keeps the preset store in sync with its directory until ctx
// is done. It returns a nil stop function when watching is disabled.
func (a *app) watchPresets(ctx context.Context) (func() error, error) {
	if a.presets == nil || !a.cfg.Presets.Watch {
		return nil, nil
	}
	handler := func(_ context.Context, ev preset.Event) {
		monitoring.RecordPresetReload(ev.Operation.String(), ev.Err == nil)
		if ev.Err != nil {
			a.logger.Warn("preset reload failed", "path", ev.Path, "operation", ev.Operation.String(), "error", ev.Err)
			return
		}
		name := ""
		if ev.Preset != nil {
			name = ev.Preset.Name
		}
		a.logger.Info("preset reloaded", "path", ev.Path, "operation", ev.Operation.String(),
			"name", name, "query_length", len(ev.Query))
	}

	w, err := preset.NewWatcher(preset.WatcherConfig{Debounce: a.cfg.Presets.Debounce}, a.presets, handler, a.logger)
	if err != nil {
		return nil, fmt.Errorf("creating preset watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		_ = w.Stop()
		return nil, fmt.Errorf("watching presets: %w", err)
	}
	return w.Stop, nil
}

// startServiceMonitoring probes the remote services in the background and
// reports them to hc. The returned function stops all probes.
func (a *app) startServiceMonitoring(hc *monitoring.HealthChecker) func() {
	checks := map[string]monitoring.CheckFunc{
		"overpass":  a.overpass.CheckHealth,
		"nominatim": a.places.CheckHealth,
		"taginfo":   a.tags.CheckHealth,
	}

	monitors := make([]*monitoring.ConnectionMonitor, 0, len(checks))
	names := make([]string, 0, len(checks))
	for name, check := range checks {
		m := monitoring.NewConnectionMonitor(name, hc, check, healthInterval)
		m.Start()
		monitors = append(monitors, m)
		names = append(names, name)
	}

	a.logger.Info("started external service monitoring", "services", names, "check_interval", healthInterval.String())
	return func() {
		for _, m := range monitors {
			m.Stop()
		}
	}
}
