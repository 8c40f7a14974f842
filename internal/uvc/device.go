// Package uvc implements the frame pacing and format negotiation logic that
// bridges frame sources to a USB video transport. Device owns one pacer
// goroutine per configured stream; the transport drives it through the
// Handler callbacks.
package uvc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/uvcbridge/internal/events"
	"github.com/smazurov/uvcbridge/internal/logging"
	"github.com/smazurov/uvcbridge/internal/metrics"
	"github.com/smazurov/uvcbridge/internal/source"
)

const (
	defaultPollQuantum  = time.Millisecond
	defaultCompleteWait = 10 * time.Millisecond
)

// Options contains construction parameters for Device.
type Options struct {
	Transport Transport
	Logger    *slog.Logger
	Bus       *events.Bus

	// PollQuantum is the cooperative yield between pacer polls. Zero means
	// the 1ms default.
	PollQuantum time.Duration

	// CompleteWait bounds each wait for a transfer completion before the
	// pacer re-checks streaming state. Zero means the 10ms default.
	CompleteWait time.Duration
}

// Device is the composite device aggregate: per-stream pacers plus the
// callback set the transport invokes. Construct with New, Configure each
// stream, then Start.
type Device struct {
	transport    Transport
	logger       *slog.Logger
	bus          *events.Bus
	pollQuantum  time.Duration
	completeWait time.Duration

	mu      sync.Mutex
	streams [MaxStreams]*stream
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	enabled atomic.Bool
	paused  atomic.Bool
}

var _ Handler = (*Device)(nil)

// New creates an unconfigured device bound to a transport.
func New(opts Options) (*Device, error) {
	if opts.Transport == nil {
		return nil, NewError(ErrCodeNoTransport, "transport is required", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("uvc")
	}
	d := &Device{
		transport:    opts.Transport,
		logger:       logger,
		bus:          opts.Bus,
		pollQuantum:  opts.PollQuantum,
		completeWait: opts.CompleteWait,
	}
	if d.pollQuantum <= 0 {
		d.pollQuantum = defaultPollQuantum
	}
	if d.completeWait <= 0 {
		d.completeWait = defaultCompleteWait
	}
	d.enabled.Store(true)
	return d, nil
}

// Configure binds a stream index to a frame source and transfer buffer.
// Everything is validated before anything is stored, so a failed Configure
// leaves the device unchanged. Rejected while the device is running.
func (d *Device) Configure(index int, cfg StreamConfig) error {
	if err := cfg.validate(index); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return NewError(ErrCodeAlreadyRunning, "cannot configure a running device", nil)
	}
	s := newStream(index, cfg)
	d.streams[index] = s
	metrics.SetFrameInterval(index, int(s.intervalMS.Load()))
	d.logger.Info("stream configured",
		"stream", index,
		"buffer_bytes", len(cfg.Buffer),
		"frame_rate", cfg.FrameRate,
		"catalog_size", len(cfg.Catalog))
	return nil
}

// Config returns the stored configuration for a stream.
func (d *Device) Config(index int) (StreamConfig, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, err := d.streamAt(index)
	if err != nil {
		return StreamConfig{}, err
	}
	return s.cfg, nil
}

// Start launches one pacer goroutine per configured stream. The pacers run
// until Stop or context cancellation; runtime errors never end them.
func (d *Device) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return NewError(ErrCodeAlreadyRunning, "device already started", nil)
	}
	configured := 0
	for _, s := range d.streams {
		if s != nil {
			configured++
		}
	}
	if configured == 0 {
		return NewError(ErrCodeNotConfigured, "no streams configured", nil)
	}
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	for _, s := range d.streams {
		if s == nil {
			continue
		}
		d.wg.Add(1)
		go d.runPacer(ctx, s)
	}
	d.logger.Info("device started", "streams", configured)
	return nil
}

// Stop ends the pacers, waits for them to exit, and stops the frame sources.
// Safe to call more than once.
func (d *Device) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	cancel()
	d.wg.Wait()
	for _, s := range d.streams {
		if s != nil {
			s.cfg.Source.Stop()
			metrics.SetStreamActive(s.index, false)
		}
	}
	d.logger.Info("device stopped")
}

// Commit applies a host format selection: a 1-based index into the stream's
// frame catalog plus the frame interval in 100ns units. The interval is
// stored before the source is asked to start, so a start failure rejects the
// commit but leaves the new interval in place; the host observes a failed
// commit either way and the stream does not go active.
func (d *Device) Commit(stream, frameIndex int, interval100ns uint32) error {
	d.mu.Lock()
	s, err := d.streamAt(stream)
	d.mu.Unlock()
	if err != nil {
		return err
	}
	if frameIndex < 1 || frameIndex > len(s.cfg.Catalog) {
		metrics.AddCommitRejection(stream, metrics.RejectReasonFrameIndex)
		d.logger.Warn("commit rejected, frame index out of range",
			"stream", stream, "frame_index", frameIndex, "catalog_size", len(s.cfg.Catalog))
		return NewError(ErrCodeFrameIndex,
			fmt.Sprintf("frame index %d outside catalog of %d", frameIndex, len(s.cfg.Catalog)), nil)
	}
	desc := s.cfg.Catalog[frameIndex-1]

	ms := intervalFromCommit(interval100ns)
	s.intervalMS.Store(ms)
	metrics.SetFrameInterval(stream, int(ms))

	if err := s.cfg.Source.Start(source.FormatMJPEG, desc.Width, desc.Height, desc.FrameRate); err != nil {
		metrics.AddCommitRejection(stream, metrics.RejectReasonStartFailed)
		d.logger.Error("commit rejected, source start failed", "stream", stream, "error", err)
		return NewError(ErrCodeStartFailed, "frame source rejected start", err)
	}
	s.committed.Store(&desc)
	d.logger.Info("format committed",
		"stream", stream,
		"width", desc.Width,
		"height", desc.Height,
		"frame_rate", desc.FrameRate,
		"interval_ms", ms)
	return nil
}

// TransferComplete wakes the stream's pacer. Safe to call from any
// goroutine and never blocks; completions for unknown streams are dropped.
func (d *Device) TransferComplete(stream int) {
	if stream < 0 || stream >= MaxStreams {
		return
	}
	// Stream slots are fixed once the device starts (Configure rejects a
	// running device), so this read needs no lock on the completion path.
	s := d.streams[stream]
	if s == nil {
		return
	}
	s.notify()
}

// Suspend stops all configured frame sources. Pacers observe the transport
// leaving the streaming state on their next poll.
func (d *Device) Suspend() {
	d.mu.Lock()
	streams := d.configuredLocked()
	d.mu.Unlock()
	for _, s := range streams {
		s.cfg.Source.Stop()
	}
	d.logger.Info("bus suspended")
	d.publish(events.DeviceSuspendedEvent{Timestamp: timestamp()})
}

// Resume mirrors the bus resume signal. Sources restart on the next host
// commit, not here.
func (d *Device) Resume() {
	d.logger.Info("bus resumed")
	d.publish(events.DeviceResumedEvent{Timestamp: timestamp()})
}

// SetPaused gates frame submission without tearing down streams. The gadget
// stays enumerated; pacers idle as if the host stopped streaming.
func (d *Device) SetPaused(paused bool) {
	if d.paused.Swap(paused) == paused {
		return
	}
	d.logger.Info("pause state changed", "paused", paused)
	d.publish(events.PausedChangedEvent{Paused: paused, Timestamp: timestamp()})
}

// Paused reports whether frame submission is paused.
func (d *Device) Paused() bool { return d.paused.Load() }

// SetEnabled turns the UVC path on or off. Wifi mode disables it so the
// frame sources stay free for the network preview.
func (d *Device) SetEnabled(enabled bool) {
	d.enabled.Store(enabled)
}

// Enabled reports whether the UVC path is enabled.
func (d *Device) Enabled() bool { return d.enabled.Load() }

// StreamStatus is a point-in-time view of one stream slot.
type StreamStatus struct {
	Stream          int        `json:"stream"`
	Configured      bool       `json:"configured"`
	Active          bool       `json:"active"`
	Busy            bool       `json:"busy"`
	IntervalMS      int64      `json:"interval_ms"`
	FramesCompleted uint64     `json:"frames_completed"`
	FramesDropped   uint64     `json:"frames_dropped"`
	Committed       *FrameDesc `json:"committed,omitempty"`
}

// Status returns the current state of one stream slot. Unconfigured slots
// report zero values; only an out-of-range index is an error.
func (d *Device) Status(index int) (StreamStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= MaxStreams {
		return StreamStatus{}, NewError(ErrCodeInvalidIndex,
			fmt.Sprintf("stream index %d outside [0,%d)", index, MaxStreams), nil)
	}
	s := d.streams[index]
	if s == nil {
		return StreamStatus{Stream: index}, nil
	}
	return StreamStatus{
		Stream:          index,
		Configured:      true,
		Active:          s.active.Load(),
		Busy:            s.busy.Load(),
		IntervalMS:      s.intervalMS.Load(),
		FramesCompleted: s.frames.Load(),
		FramesDropped:   s.dropped.Load(),
		Committed:       s.committed.Load(),
	}, nil
}

// Snapshot returns the status of every stream slot.
func (d *Device) Snapshot() []StreamStatus {
	statuses := make([]StreamStatus, 0, MaxStreams)
	for i := 0; i < MaxStreams; i++ {
		st, _ := d.Status(i)
		statuses = append(statuses, st)
	}
	return statuses
}

func (d *Device) streamingAllowed(index int) bool {
	return d.enabled.Load() && !d.paused.Load() && d.transport.Streaming(index)
}

func (d *Device) streamAt(index int) (*stream, error) {
	if index < 0 || index >= MaxStreams {
		return nil, NewError(ErrCodeInvalidIndex,
			fmt.Sprintf("stream index %d outside [0,%d)", index, MaxStreams), nil)
	}
	if d.streams[index] == nil {
		return nil, NewError(ErrCodeNotConfigured,
			fmt.Sprintf("stream %d is not configured", index), nil)
	}
	return d.streams[index], nil
}

func (d *Device) configuredLocked() []*stream {
	streams := make([]*stream, 0, MaxStreams)
	for _, s := range d.streams {
		if s != nil {
			streams = append(streams, s)
		}
	}
	return streams
}

func (d *Device) publish(ev events.Event) {
	if d.bus != nil {
		d.bus.Publish(ev)
	}
}

func (d *Device) publishStarted(s *stream) {
	if d.bus == nil {
		return
	}
	ev := events.StreamStartedEvent{
		Stream:     s.index,
		IntervalMS: int(s.intervalMS.Load()),
		Timestamp:  timestamp(),
	}
	if desc := s.committed.Load(); desc != nil {
		ev.Width = desc.Width
		ev.Height = desc.Height
		ev.FrameRate = desc.FrameRate
	}
	d.bus.Publish(ev)
}

func (d *Device) publishStopped(s *stream, reason string) {
	d.publish(events.StreamStoppedEvent{
		Stream:    s.index,
		Reason:    reason,
		Timestamp: timestamp(),
	})
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
