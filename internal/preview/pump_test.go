package preview

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/uvcbridge/internal/source"
)

// stillSource serves the same payload forever.
type stillSource struct {
	mu       sync.Mutex
	payload  []byte
	startErr error
	starts   int
	stops    int
	seq      uint64
}

func (s *stillSource) Start(_ source.Format, _, _, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.starts++
	return nil
}

func (s *stillSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
}

func (s *stillSource) Acquire() (*source.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payload == nil {
		return nil, source.ErrNoFrame
	}
	s.seq++
	return &source.Frame{Data: s.payload, Seq: s.seq, Timestamp: time.Now()}, nil
}

func (s *stillSource) Release(*source.Frame) {}

func (s *stillSource) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPump(src source.FrameSource) *Pump {
	return NewPump(PumpOptions{
		Source:    src,
		Width:     64,
		Height:    48,
		FrameRate: 100,
		Logger:    discardLogger(),
	})
}

func TestPumpDeliversFrames(t *testing.T) {
	payload := []byte("jpeg-frame-bytes")
	src := &stillSource{payload: payload}
	pump := newTestPump(src)

	frames := make(chan []byte, 8)
	detach := pump.Attach(func(f []byte) {
		cp := make([]byte, len(f))
		copy(cp, f)
		select {
		case frames <- cp:
		default:
		}
	})
	defer detach()

	if err := pump.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pump.Stop()

	select {
	case frame := <-frames:
		if !bytes.Equal(frame, payload) {
			t.Errorf("Sink got %q, want %q", frame, payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for a pumped frame")
	}
}

func TestPumpStartFailure(t *testing.T) {
	src := &stillSource{startErr: errors.New("camera is on fire")}
	pump := newTestPump(src)

	if err := pump.Start(context.Background()); err == nil {
		t.Fatal("Expected Start to propagate the source error")
	}
	// A failed start leaves nothing running to stop
	pump.Stop()
	if src.stopCount() != 0 {
		t.Errorf("Stop after failed start should not touch the source, got %d stops", src.stopCount())
	}
}

func TestPumpStopStopsSource(t *testing.T) {
	src := &stillSource{payload: []byte("x")}
	pump := newTestPump(src)

	if err := pump.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	pump.Stop()

	if got := src.stopCount(); got != 1 {
		t.Errorf("Expected 1 source stop, got %d", got)
	}

	// Second Stop is a no-op
	pump.Stop()
	if got := src.stopCount(); got != 1 {
		t.Errorf("Second Stop should be a no-op, got %d stops", got)
	}
}

func TestPumpDoubleStart(t *testing.T) {
	src := &stillSource{payload: []byte("x")}
	pump := newTestPump(src)

	if err := pump.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pump.Stop()

	if err := pump.Start(context.Background()); err == nil {
		t.Fatal("Expected second Start to fail while running")
	}
}

func TestPumpDetachStopsDelivery(t *testing.T) {
	src := &stillSource{payload: []byte("x")}
	pump := newTestPump(src)

	frames := make(chan []byte, 8)
	detach := pump.Attach(func(f []byte) {
		cp := make([]byte, len(f))
		copy(cp, f)
		select {
		case frames <- cp:
		default:
		}
	})

	if err := pump.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pump.Stop()

	select {
	case <-frames:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the first frame")
	}

	detach()

	// Let any in-flight tick land, then expect silence
	time.Sleep(50 * time.Millisecond)
	for len(frames) > 0 {
		<-frames
	}
	time.Sleep(150 * time.Millisecond)
	if got := len(frames); got != 0 {
		t.Errorf("Expected no frames after detach, got %d", got)
	}
}

func TestPumpSkipsWhenNoFrame(t *testing.T) {
	src := &stillSource{}
	pump := newTestPump(src)

	var calls int
	var mu sync.Mutex
	detach := pump.Attach(func(_ []byte) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	defer detach()

	if err := pump.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pump.Stop()

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	got := calls
	mu.Unlock()
	if got != 0 {
		t.Errorf("Expected no sink calls while the source has no frame, got %d", got)
	}
}
