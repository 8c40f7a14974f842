package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	previewFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uvcbridge",
		Subsystem: "preview",
		Name:      "frames_total",
		Help:      "Frames fanned out to preview sinks, by sink kind",
	}, []string{"sink"})

	previewClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "uvcbridge",
		Subsystem: "preview",
		Name:      "clients",
		Help:      "Connected preview clients, by sink kind",
	}, []string{"sink"})
)

// AddPreviewFrame records one frame delivered to a sink kind ("mjpeg",
// "websocket" or "rtp").
func AddPreviewFrame(sink string) {
	previewFrames.WithLabelValues(sink).Inc()
}

// SetPreviewClients records the connected client count for a sink kind.
func SetPreviewClients(sink string, n int) {
	previewClients.WithLabelValues(sink).Set(float64(n))
}
