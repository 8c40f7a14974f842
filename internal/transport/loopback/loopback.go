// Package loopback provides an in-process transport that stands in for the
// USB stack: it models host streaming state per endpoint and acknowledges
// every submitted transfer from a timer goroutine, so the full pacing path
// runs without gadget hardware. Used by the simulator command and the
// integration tests.
package loopback

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/uvcbridge/internal/logging"
	"github.com/smazurov/uvcbridge/internal/uvc"
)

// Options configures a Transport.
type Options struct {
	// CompleteDelay is the simulated transfer latency before the completion
	// callback fires. Zero still delivers asynchronously, just without
	// added delay.
	CompleteDelay time.Duration

	// OnSubmit taps every submitted payload, called before the completion
	// is scheduled. The payload is only valid during the call.
	OnSubmit func(stream int, payload []byte)

	Logger *slog.Logger
}

// Transport is the in-process USB stack double.
type Transport struct {
	mu        sync.Mutex
	handler   uvc.Handler
	streaming [uvc.MaxStreams]bool

	delay    time.Duration
	onSubmit func(int, []byte)
	logger   *slog.Logger

	transfers atomic.Uint64
	bytes     atomic.Uint64
}

var _ uvc.Transport = (*Transport)(nil)

// New creates a loopback transport. Bind the device with SetHandler before
// starting any host-side activity.
func New(opts Options) *Transport {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("loopback")
	}
	return &Transport{
		delay:    opts.CompleteDelay,
		onSubmit: opts.OnSubmit,
		logger:   logger,
	}
}

// SetHandler binds the device callback set.
func (t *Transport) SetHandler(h uvc.Handler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

// Streaming reports whether the simulated host streams this endpoint.
func (t *Transport) Streaming(stream int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if stream < 0 || stream >= uvc.MaxStreams {
		return false
	}
	return t.streaming[stream]
}

// Submit accepts one payload for the endpoint and schedules its completion
// on a timer goroutine, mirroring the foreign-context delivery of a real
// stack.
func (t *Transport) Submit(stream int, payload []byte) error {
	t.mu.Lock()
	if stream < 0 || stream >= uvc.MaxStreams || !t.streaming[stream] {
		t.mu.Unlock()
		return fmt.Errorf("endpoint %d is not streaming", stream)
	}
	handler := t.handler
	onSubmit := t.onSubmit
	t.mu.Unlock()

	if onSubmit != nil {
		onSubmit(stream, payload)
	}
	t.transfers.Add(1)
	t.bytes.Add(uint64(len(payload)))

	time.AfterFunc(t.delay, func() {
		if handler != nil {
			handler.TransferComplete(stream)
		}
	})
	return nil
}

// StartStreaming plays the host side of a negotiation: commit the format,
// and only on success open the endpoint. A rejected commit leaves the
// endpoint closed, exactly like a host giving up after a failed probe.
func (t *Transport) StartStreaming(stream, frameIndex int, interval100ns uint32) error {
	t.mu.Lock()
	handler := t.handler
	t.mu.Unlock()
	if handler == nil {
		return fmt.Errorf("no device bound")
	}

	if err := handler.Commit(stream, frameIndex, interval100ns); err != nil {
		t.logger.Warn("host commit rejected", "stream", stream, "error", err)
		return err
	}

	t.mu.Lock()
	t.streaming[stream] = true
	t.mu.Unlock()
	t.logger.Info("host streaming started", "stream", stream, "frame_index", frameIndex)
	return nil
}

// StopStreaming closes the endpoint.
func (t *Transport) StopStreaming(stream int) {
	t.mu.Lock()
	if stream >= 0 && stream < uvc.MaxStreams {
		t.streaming[stream] = false
	}
	t.mu.Unlock()
	t.logger.Info("host streaming stopped", "stream", stream)
}

// SuspendBus closes every endpoint and delivers the suspend signal.
func (t *Transport) SuspendBus() {
	t.mu.Lock()
	for i := range t.streaming {
		t.streaming[i] = false
	}
	handler := t.handler
	t.mu.Unlock()
	if handler != nil {
		handler.Suspend()
	}
}

// ResumeBus delivers the resume signal. Endpoints stay closed until the
// host negotiates again.
func (t *Transport) ResumeBus() {
	t.mu.Lock()
	handler := t.handler
	t.mu.Unlock()
	if handler != nil {
		handler.Resume()
	}
}

// Transfers returns the number of accepted submissions.
func (t *Transport) Transfers() uint64 {
	return t.transfers.Load()
}

// Bytes returns the total accepted payload bytes.
func (t *Transport) Bytes() uint64 {
	return t.bytes.Load()
}
