package uvc

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/smazurov/uvcbridge/internal/metrics"
)

// stream holds per-stream pacing state. Fields below the channel are owned
// exclusively by the pacer goroutine; the atomics are readable from Status.
type stream struct {
	index int
	cfg   StreamConfig

	intervalMS atomic.Int64
	committed  atomic.Pointer[FrameDesc]
	active     atomic.Bool
	busy       atomic.Bool
	frames     atomic.Uint64
	dropped    atomic.Uint64

	// complete carries transfer completion tokens from the transport
	// context to the pacer. One buffered slot is enough: at most one
	// transfer is in flight per stream.
	complete chan struct{}

	origin time.Time
}

func newStream(index int, cfg StreamConfig) *stream {
	s := &stream{
		index:    index,
		cfg:      cfg,
		complete: make(chan struct{}, 1),
	}
	s.intervalMS.Store(intervalFromRate(cfg.FrameRate))
	return s
}

func (s *stream) interval() time.Duration {
	return time.Duration(s.intervalMS.Load()) * time.Millisecond
}

// notify delivers one completion token without blocking the caller. A token
// already in the slot coalesces with the new one.
func (s *stream) notify() {
	select {
	case s.complete <- struct{}{}:
	default:
	}
}

// reset clears pacing state while the host is not streaming. Stale
// completion tokens are drained so they cannot wake the next session.
func (s *stream) reset() {
	s.active.Store(false)
	s.busy.Store(false)
	s.frames.Store(0)
	s.dropped.Store(0)
	select {
	case <-s.complete:
	default:
	}
}

// runPacer is the per-stream transfer loop. Runtime errors never end it;
// only context cancellation does.
func (d *Device) runPacer(ctx context.Context, s *stream) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !d.streamingAllowed(s.index) {
			if s.active.Load() {
				d.logger.Info("streaming stopped",
					"stream", s.index, "frames", s.frames.Load())
				metrics.SetStreamActive(s.index, false)
				d.publishStopped(s, "host")
			}
			s.reset()
			if !sleepCtx(ctx, d.pollQuantum) {
				return
			}
			continue
		}

		if !s.active.Load() {
			s.active.Store(true)
			s.origin = time.Now()
			metrics.SetStreamActive(s.index, true)
			d.logger.Info("streaming started",
				"stream", s.index, "interval_ms", s.intervalMS.Load())
			d.publishStarted(s)
		}

		interval := s.interval()
		if time.Since(s.origin) < interval {
			if !sleepCtx(ctx, d.pollQuantum) {
				return
			}
			continue
		}

		if s.busy.Load() {
			select {
			case <-ctx.Done():
				return
			case <-s.complete:
				s.frames.Add(1)
				s.busy.Store(false)
			case <-time.After(d.completeWait):
				// No completion yet. Re-check streaming state next pass;
				// the frame counter and pacing origin stay untouched.
				metrics.AddWaitTimeout(s.index)
				continue
			}
		}

		// Advance by exactly one interval rather than resetting to "now" so
		// processing jitter does not accumulate as drift.
		s.origin = s.origin.Add(interval)

		frame, err := s.cfg.Source.Acquire()
		if err != nil || frame == nil {
			d.logger.Debug("no frame available", "stream", s.index, "error", err)
			s.dropped.Add(1)
			metrics.AddFrameDropped(s.index, metrics.DropReasonUnavailable)
			continue
		}
		if len(frame.Data) > len(s.cfg.Buffer) {
			s.cfg.Source.Release(frame)
			d.logger.Warn("frame exceeds transfer buffer, dropped",
				"stream", s.index,
				"frame_bytes", len(frame.Data),
				"capacity", len(s.cfg.Buffer))
			s.dropped.Add(1)
			metrics.AddFrameDropped(s.index, metrics.DropReasonOversized)
			continue
		}

		n := copy(s.cfg.Buffer, frame.Data)
		s.cfg.Source.Release(frame)

		s.busy.Store(true)
		if err := d.transport.Submit(s.index, s.cfg.Buffer[:n]); err != nil {
			s.busy.Store(false)
			d.logger.Error("transfer submit failed", "stream", s.index, "error", err)
			s.dropped.Add(1)
			metrics.AddFrameDropped(s.index, metrics.DropReasonSubmit)
			continue
		}
		metrics.AddFrameTransferred(s.index, n)
	}
}

// sleepCtx yields for one scheduling quantum. Returns false when the context
// ended during the sleep.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
