// Package preview serves frames over the network while the device is in
// wifi mode: MJPEG over HTTP, a websocket hub pushing binary JPEG
// messages, and an RTP/JPEG sender with RTCP sender reports.
//
// The pump owns the frame source while it runs. In uvc mode the pacers
// own the source instead; the bridge never runs both at once.
package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/uvcbridge/internal/logging"
	"github.com/smazurov/uvcbridge/internal/source"
)

// Sink receives one encoded frame per tick. The slice is shared between
// sinks and valid only for the duration of the call; sinks that need the
// frame longer must copy it.
type Sink func(frame []byte)

// PumpOptions configures a preview pump.
type PumpOptions struct {
	Source    source.FrameSource
	Width     int
	Height    int
	FrameRate int
	Logger    *slog.Logger
}

// Pump paces frames from a source to the attached sinks.
type Pump struct {
	src    source.FrameSource
	width  int
	height int
	rate   int
	logger *slog.Logger

	mu      sync.Mutex
	sinks   map[int]Sink
	nextID  int
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPump creates a pump for the given source and geometry.
func NewPump(opts PumpOptions) *Pump {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("preview")
	}
	rate := opts.FrameRate
	if rate <= 0 {
		rate = 30
	}
	return &Pump{
		src:    opts.Source,
		width:  opts.Width,
		height: opts.Height,
		rate:   rate,
		logger: logger,
		sinks:  make(map[int]Sink),
	}
}

// Attach registers a sink. Returns a detach function.
func (p *Pump) Attach(sink Sink) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.sinks[id] = sink
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.sinks, id)
		p.mu.Unlock()
	}
}

// Start brings up the source and begins pumping frames until the context
// is done or Stop is called.
func (p *Pump) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("preview: pump already running")
	}

	if err := p.src.Start(source.FormatMJPEG, p.width, p.height, p.rate); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("preview: source start failed: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(runCtx)

	p.logger.Info("Preview pump started",
		"width", p.width, "height", p.height, "rate", p.rate)
	return nil
}

// Stop halts the pump and the source. Safe to call twice.
func (p *Pump) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	p.src.Stop()
	p.logger.Info("Preview pump stopped")
}

func (p *Pump) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(time.Second / time.Duration(p.rate))
	defer ticker.Stop()

	var buf []byte
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := p.src.Acquire()
		if err != nil || frame == nil {
			continue
		}
		buf = append(buf[:0], frame.Data...)
		p.src.Release(frame)

		for _, sink := range p.snapshot() {
			sink(buf)
		}
	}
}

// snapshot copies the sink set so sinks run without holding the lock.
func (p *Pump) snapshot() []Sink {
	p.mu.Lock()
	defer p.mu.Unlock()
	sinks := make([]Sink, 0, len(p.sinks))
	for _, sink := range p.sinks {
		sinks = append(sinks, sink)
	}
	return sinks
}
