package api

import (
	"net/http"
	"runtime"

	"github.com/okian/pairwise/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthHandler serves the process metrics registry.
type HealthHandler struct {
	metrics http.Handler
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{
		metrics: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

// HandleHealth handles GET /healthz. The response is the Prometheus exposition
// of the service registry, refreshed with current runtime gauges.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	metrics.UpdateSystemMemoryUsage(ms.HeapAlloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	h.metrics.ServeHTTP(w, r)
}
