// Package exporters provides the HTTP exporter for metrics.
package exporters

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPHandler returns the Prometheus metrics HTTP handler.
// All promauto-registered metrics are collected automatically.
func HTTPHandler() http.Handler {
	return promhttp.Handler()
}
