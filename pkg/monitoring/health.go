package monitoring

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NERVsystems/overpassqb/pkg/version"
)

// Connection states.
const (
	StatusConnected = "connected"
	StatusDegraded  = "degraded"
	StatusError     = "error"
)

// HealthChecker tracks the state of the upstream services.
type HealthChecker struct {
	serviceName string
	version     string
	startTime   time.Time

	mu          sync.RWMutex
	connections map[string]ConnStatus

	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
}

// NewHealthChecker creates a health checker and starts the system metrics
// collector.
func NewHealthChecker(serviceName, version string) *HealthChecker {
	ctx, cancel := context.WithCancel(context.Background())
	hc := &HealthChecker{
		serviceName: serviceName,
		version:     version,
		startTime:   time.Now(),
		connections: make(map[string]ConnStatus),
		ctx:         ctx,
		cancel:      cancel,
		now:         time.Now,
	}
	go hc.collectSystemMetrics()
	return hc
}

// UpdateConnection records the result of a connection check.
func (h *HealthChecker) UpdateConnection(name, status string, latencyMs int64, err error) {
	cs := ConnStatus{Status: status, LatencyMs: latencyMs, CheckedAt: h.now()}
	if err != nil {
		cs.LastError = err.Error()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[name] = cs
}

// RemoveConnection stops reporting a connection.
func (h *HealthChecker) RemoveConnection(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, name)
}

// GetHealth summarises the connections: any failure degrades the service,
// failures in more than half of them make it unhealthy.
func (h *HealthChecker) GetHealth() ServiceHealth {
	h.mu.RLock()
	connections := make(map[string]ConnStatus, len(h.connections))
	var failed, degraded int
	for name, c := range h.connections {
		connections[name] = c
		switch c.Status {
		case StatusError:
			failed++
		case StatusDegraded:
			degraded++
		}
	}
	h.mu.RUnlock()

	status := "healthy"
	switch {
	case failed > 0 && failed*2 > len(connections):
		status = "unhealthy"
	case failed > 0, degraded > 0:
		status = "degraded"
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return ServiceHealth{
		Service:       h.serviceName,
		Version:       h.version,
		Status:        status,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		StartTime:     h.startTime,
		Connections:   connections,
		Metrics: map[string]interface{}{
			"goroutines":      runtime.NumGoroutine(),
			"memory_alloc_mb": m.Alloc / 1024 / 1024,
			"gc_runs":         m.NumGC,
			"cpu_count":       runtime.NumCPU(),
			"version_info":    version.Info(),
		},
	}
}

// HealthHandler serves the full health document. Unhealthy maps to 503.
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := h.GetHealth()
		code := http.StatusOK
		if health.Status == "unhealthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, health)
	}
}

// ReadinessHandler reports whether requests can be served.
func (h *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := h.GetHealth()
		ready := health.Status != "unhealthy"
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]interface{}{
			"ready":  ready,
			"status": health.Status,
		})
	}
}

// LivenessHandler always answers while the process runs.
func (h *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"alive":  true,
			"uptime": time.Since(h.startTime).Round(time.Second).String(),
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("failed to encode health response", "error", err)
	}
}

func (h *HealthChecker) collectSystemMetrics() {
	h.updateSystemMetrics()
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.updateSystemMetrics()
		}
	}
}

func (h *HealthChecker) updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	GoRoutines.Set(float64(runtime.NumGoroutine()))
	MemoryUsage.Set(float64(m.Alloc))

	info := version.Info()
	SystemInfo.WithLabelValues(info["version"], info["go_version"], info["commit"], info["build_date"]).Set(1)
}

// Shutdown stops background collection.
func (h *HealthChecker) Shutdown() {
	h.cancel()
}

// CheckFunc probes one upstream service.
type CheckFunc func(ctx context.Context) error

// ConnectionMonitor periodically probes a service and reports the result
// to a HealthChecker. Checks slower than SlowThreshold count as degraded.
type ConnectionMonitor struct {
	name          string
	healthChecker *HealthChecker
	check         CheckFunc
	interval      time.Duration

	SlowThreshold time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	done    chan struct{}
}

// NewConnectionMonitor creates a monitor; Start begins probing.
func NewConnectionMonitor(name string, hc *HealthChecker, check CheckFunc, interval time.Duration) *ConnectionMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &ConnectionMonitor{
		name:          name,
		healthChecker: hc,
		check:         check,
		interval:      interval,
		SlowThreshold: 5 * time.Second,
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
}

// Start begins monitoring the connection.
func (cm *ConnectionMonitor) Start() {
	if cm.started.CompareAndSwap(false, true) {
		go cm.monitor()
	}
}

// Stop stops monitoring and waits for a running check to finish.
func (cm *ConnectionMonitor) Stop() {
	cm.cancel()
	if cm.started.Load() {
		<-cm.done
	}
}

func (cm *ConnectionMonitor) monitor() {
	defer close(cm.done)
	cm.performCheck()

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-cm.ctx.Done():
			return
		case <-ticker.C:
			cm.performCheck()
		}
	}
}

func (cm *ConnectionMonitor) performCheck() {
	ctx, cancel := context.WithTimeout(cm.ctx, cm.interval)
	defer cancel()

	start := time.Now()
	err := cm.check(ctx)
	latency := time.Since(start)

	status := StatusConnected
	switch {
	case err != nil:
		status = StatusError
	case latency > cm.SlowThreshold:
		status = StatusDegraded
	}
	cm.healthChecker.UpdateConnection(cm.name, status, latency.Milliseconds(), err)
}
