package osm

import (
	"sync"
	"time"
)

// MonitoringHooks receives events for every external service call. The
// monitoring package installs hooks that feed Prometheus.
type MonitoringHooks struct {
	// OnRequest is called before a request is attempted
	OnRequest func(service, operation string)

	// OnResponse is called once the call finished, successful or not
	OnResponse func(service, operation string, duration time.Duration, success bool)

	// OnRateLimit is called after waiting on a service limiter
	OnRateLimit func(service string, waitTime time.Duration)

	// OnError is called with a short error classification
	OnError func(service, errorType string)

	// OnCache is called for every cache lookup
	OnCache func(cache string, hit bool)
}

var (
	globalHooks *MonitoringHooks
	hooksMutex  sync.RWMutex
)

// SetMonitoringHooks sets global monitoring hooks
func SetMonitoringHooks(hooks *MonitoringHooks) {
	hooksMutex.Lock()
	defer hooksMutex.Unlock()
	globalHooks = hooks
}

func getMonitoringHooks() *MonitoringHooks {
	hooksMutex.RLock()
	defer hooksMutex.RUnlock()
	return globalHooks
}

func reportCache(cache string, hit bool) {
	if hooks := getMonitoringHooks(); hooks != nil && hooks.OnCache != nil {
		hooks.OnCache(cache, hit)
	}
}
