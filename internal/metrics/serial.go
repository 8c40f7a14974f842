package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	serialBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "uvcbridge",
		Subsystem: "serial",
		Name:      "bytes_received_total",
		Help:      "Raw bytes received on the serial interface",
	})

	serialLines = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "uvcbridge",
		Subsystem: "serial",
		Name:      "lines_dispatched_total",
		Help:      "Logical command lines dispatched by the framer",
	})

	serialTruncated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "uvcbridge",
		Subsystem: "serial",
		Name:      "lines_truncated_total",
		Help:      "Lines dispatched because the accumulator filled before a terminator",
	})

	commandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uvcbridge",
		Subsystem: "command",
		Name:      "handled_total",
		Help:      "Commands handled, by name and outcome",
	}, []string{"command", "outcome"})
)

// AddSerialBytes records raw bytes received.
func AddSerialBytes(n int) {
	serialBytes.Add(float64(n))
}

// AddSerialLine records one dispatched line; truncated marks forced
// dispatch on a full accumulator.
func AddSerialLine(truncated bool) {
	serialLines.Inc()
	if truncated {
		serialTruncated.Inc()
	}
}

// AddCommand records one handled command with its outcome ("ok", "error"
// or "unknown").
func AddCommand(name, outcome string) {
	commandsHandled.WithLabelValues(name, outcome).Inc()
}
