package handlers

import (
	"net/http"

	"github.com/linesmerrill/commute-permit-api/api"
)

// MetricsHandler exposes the in memory request metrics
type MetricsHandler struct {
	Metrics *api.MetricsCollector
}

// GetMetricsSummary returns the overall request summary
func (m MetricsHandler) GetMetricsSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, m.Metrics.GetSummary())
}

// GetRouteMetrics returns per route metrics, slowest first. The route query
// parameter narrows the result to a single route.
func (m MetricsHandler) GetRouteMetrics(w http.ResponseWriter, r *http.Request) {
	routes := m.Metrics.GetRouteMetrics()
	if route := r.URL.Query().Get("route"); route != "" {
		filtered := []api.RouteMetrics{}
		for _, rm := range routes {
			if rm.Path == route {
				filtered = append(filtered, rm)
			}
		}
		routes = filtered
	}
	writeJSON(w, http.StatusOK, routes)
}
