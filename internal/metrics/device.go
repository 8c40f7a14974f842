package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deviceMode = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "uvcbridge",
		Subsystem: "device",
		Name:      "mode",
		Help:      "Device mode selector (1 on the active mode's series)",
	}, []string{"mode"})

	devicePaused = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "uvcbridge",
		Subsystem: "device",
		Name:      "paused",
		Help:      "Whether frame submission is paused (1) or not (0)",
	})
)

// SetDeviceMode marks the active device mode.
func SetDeviceMode(mode string) {
	for _, m := range []string{"uvc", "wifi"} {
		var v float64
		if m == mode {
			v = 1
		}
		deviceMode.WithLabelValues(m).Set(v)
	}
}

// SetDevicePaused records the pause flag.
func SetDevicePaused(paused bool) {
	if paused {
		devicePaused.Set(1)
	} else {
		devicePaused.Set(0)
	}
}
