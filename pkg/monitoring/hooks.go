package monitoring

import (
	"time"

	"github.com/NERVsystems/overpassqb/pkg/osm"
)

// slowWait is the limiter wait above which a call counts as rate limited.
const slowWait = 100 * time.Millisecond

// InstallOSMHooks feeds the external service clients' events into the
// Prometheus metrics.
func InstallOSMHooks() {
	osm.SetMonitoringHooks(osmHooks())
}

func osmHooks() *osm.MonitoringHooks {
	return &osm.MonitoringHooks{
		OnResponse: RecordExternalServiceRequest,
		OnRateLimit: func(service string, wait time.Duration) {
			RecordRateLimitWait(service, wait)
			if wait > slowWait {
				RecordRateLimitExceeded(service)
			}
		},
		OnError: RecordError,
		OnCache: func(cache string, hit bool) {
			if hit {
				RecordCacheHit(cache)
			} else {
				RecordCacheMiss(cache)
			}
		},
	}
}
