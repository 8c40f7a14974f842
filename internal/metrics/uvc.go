// Package metrics provides Prometheus metrics for the UVC pacer and the
// serial command path.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Frame drop reasons used as metric labels.
const (
	DropReasonUnavailable = "unavailable"
	DropReasonOversized   = "oversized"
	DropReasonSubmit      = "submit_failed"
)

// Commit rejection reasons used as metric labels.
const (
	RejectReasonFrameIndex  = "frame_index"
	RejectReasonStartFailed = "start_failed"
)

var (
	framesTransferred = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uvcbridge",
		Subsystem: "uvc",
		Name:      "frames_transferred_total",
		Help:      "Frames submitted for isochronous transfer",
	}, []string{"stream"})

	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uvcbridge",
		Subsystem: "uvc",
		Name:      "frames_dropped_total",
		Help:      "Frames dropped by the pacer, by reason",
	}, []string{"stream", "reason"})

	transferWaitTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uvcbridge",
		Subsystem: "uvc",
		Name:      "transfer_wait_timeouts_total",
		Help:      "Bounded waits for transfer completion that timed out",
	}, []string{"stream"})

	commitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uvcbridge",
		Subsystem: "uvc",
		Name:      "commit_rejections_total",
		Help:      "Host format commits rejected, by reason",
	}, []string{"stream", "reason"})

	streamActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "uvcbridge",
		Subsystem: "uvc",
		Name:      "stream_active",
		Help:      "Whether the host is actively streaming (1) or not (0)",
	}, []string{"stream"})

	frameInterval = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "uvcbridge",
		Subsystem: "uvc",
		Name:      "frame_interval_ms",
		Help:      "Current pacing interval in milliseconds",
	}, []string{"stream"})

	transferBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uvcbridge",
		Subsystem: "uvc",
		Name:      "transfer_bytes_total",
		Help:      "Payload bytes submitted for transfer",
	}, []string{"stream"})

	// Snapshot cache for the status API.
	streamCache   = make(map[int]*StreamMetrics)
	streamCacheMu sync.RWMutex
)

// StreamMetrics holds current counter values for one stream.
type StreamMetrics struct {
	FramesTransferred uint64
	FramesUnavailable uint64
	FramesOversized   uint64
	SubmitFailures    uint64
	WaitTimeouts      uint64
	BytesTransferred  uint64
}

// AddFrameTransferred records one submitted transfer of n payload bytes.
func AddFrameTransferred(stream int, n int) {
	label := strconv.Itoa(stream)
	framesTransferred.WithLabelValues(label).Inc()
	transferBytes.WithLabelValues(label).Add(float64(n))
	updateStream(stream, func(m *StreamMetrics) {
		m.FramesTransferred++
		m.BytesTransferred += uint64(n)
	})
}

// AddFrameDropped records one dropped frame with the given reason.
func AddFrameDropped(stream int, reason string) {
	framesDropped.WithLabelValues(strconv.Itoa(stream), reason).Inc()
	updateStream(stream, func(m *StreamMetrics) {
		switch reason {
		case DropReasonUnavailable:
			m.FramesUnavailable++
		case DropReasonOversized:
			m.FramesOversized++
		case DropReasonSubmit:
			m.SubmitFailures++
		}
	})
}

// AddWaitTimeout records one timed-out completion wait.
func AddWaitTimeout(stream int) {
	transferWaitTimeouts.WithLabelValues(strconv.Itoa(stream)).Inc()
	updateStream(stream, func(m *StreamMetrics) { m.WaitTimeouts++ })
}

// AddCommitRejection records one rejected host commit.
func AddCommitRejection(stream int, reason string) {
	commitRejections.WithLabelValues(strconv.Itoa(stream), reason).Inc()
}

// SetStreamActive records whether the host is streaming.
func SetStreamActive(stream int, active bool) {
	value := 0.0
	if active {
		value = 1.0
	}
	streamActive.WithLabelValues(strconv.Itoa(stream)).Set(value)
}

// SetFrameInterval records the current pacing interval.
func SetFrameInterval(stream int, ms int) {
	frameInterval.WithLabelValues(strconv.Itoa(stream)).Set(float64(ms))
}

// GetStreamMetrics returns a copy of the cached counters for a stream.
func GetStreamMetrics(stream int) *StreamMetrics {
	streamCacheMu.RLock()
	defer streamCacheMu.RUnlock()
	if m, ok := streamCache[stream]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// ResetStreamMetrics clears the cached counters for a stream. Prometheus
// counters are monotonic and stay registered.
func ResetStreamMetrics(stream int) {
	streamCacheMu.Lock()
	delete(streamCache, stream)
	streamCacheMu.Unlock()
}

func updateStream(stream int, update func(*StreamMetrics)) {
	streamCacheMu.Lock()
	defer streamCacheMu.Unlock()
	m, ok := streamCache[stream]
	if !ok {
		m = &StreamMetrics{}
		streamCache[stream] = m
	}
	update(m)
}
