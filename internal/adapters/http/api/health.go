package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/gesture/pkg/metrics"
)

// HealthHandler serves the Prometheus exposition of the service registry.
type HealthHandler struct {
	metrics http.Handler
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{metrics: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})}
}

// HandleHealth handles GET /healthz requests.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	metrics.CollectRuntime()
	h.metrics.ServeHTTP(w, r)
}
