package uvc

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/uvcbridge/internal/source"
)

type startCall struct {
	format source.Format
	width  int
	height int
	rate   int
}

// fakeSource serves copies of a fixed payload and records every lifecycle
// call so tests can assert acquire/release balance.
type fakeSource struct {
	mu       sync.Mutex
	payload  []byte
	startErr error
	starts   []startCall
	stops    int
	acquired []*source.Frame
	released map[*source.Frame]int
}

func newFakeSource(payload []byte) *fakeSource {
	return &fakeSource{
		payload:  payload,
		released: make(map[*source.Frame]int),
	}
}

func (f *fakeSource) Start(format source.Format, width, height, rate int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts = append(f.starts, startCall{format, width, height, rate})
	return nil
}

func (f *fakeSource) Stop() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

func (f *fakeSource) Acquire() (*source.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.payload == nil {
		return nil, source.ErrNoFrame
	}
	frame := &source.Frame{
		Data: append([]byte(nil), f.payload...),
		Seq:  uint64(len(f.acquired) + 1),
	}
	f.acquired = append(f.acquired, frame)
	return frame, nil
}

func (f *fakeSource) Release(frame *source.Frame) {
	f.mu.Lock()
	f.released[frame]++
	f.mu.Unlock()
}

func (f *fakeSource) setPayload(p []byte) {
	f.mu.Lock()
	f.payload = p
	f.mu.Unlock()
}

func (f *fakeSource) acquireCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.acquired)
}

func (f *fakeSource) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *fakeSource) startCalls() []startCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]startCall(nil), f.starts...)
}

// releaseBalance reports how many acquired frames were released exactly
// once, plus any releases beyond the first per frame.
func (f *fakeSource) releaseBalance() (releasedOnce, extraReleases int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, frame := range f.acquired {
		n := f.released[frame]
		if n >= 1 {
			releasedOnce++
		}
		if n > 1 {
			extraReleases += n - 1
		}
	}
	return releasedOnce, extraReleases
}

// fakeTransport records submissions and optionally acknowledges each one
// right away through the handler, standing in for the USB stack completion
// path.
type fakeTransport struct {
	mu        sync.Mutex
	streaming [MaxStreams]bool
	submits   [][]byte
	toStreams []int
	submitErr error
	handler   Handler
	auto      bool
}

func (t *fakeTransport) Streaming(stream int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if stream < 0 || stream >= MaxStreams {
		return false
	}
	return t.streaming[stream]
}

func (t *fakeTransport) Submit(stream int, payload []byte) error {
	t.mu.Lock()
	if t.submitErr != nil {
		err := t.submitErr
		t.mu.Unlock()
		return err
	}
	t.submits = append(t.submits, append([]byte(nil), payload...))
	t.toStreams = append(t.toStreams, stream)
	auto := t.auto
	handler := t.handler
	t.mu.Unlock()
	if auto && handler != nil {
		handler.TransferComplete(stream)
	}
	return nil
}

func (t *fakeTransport) setStreaming(stream int, on bool) {
	t.mu.Lock()
	t.streaming[stream] = on
	t.mu.Unlock()
}

func (t *fakeTransport) setHandler(h Handler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

func (t *fakeTransport) submitCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.submits)
}

func (t *fakeTransport) submission(i int) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.submits[i]...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCatalog() []FrameDesc {
	return []FrameDesc{
		{Width: 640, Height: 480, FrameRate: 30},
		{Width: 1280, Height: 720, FrameRate: 15},
	}
}

// newTestDevice builds a configured single-stream device with fast test
// timings: stream 0, the given buffer capacity, 100fps default rate.
func newTestDevice(t *testing.T, tr *fakeTransport, src *fakeSource, bufCap int) *Device {
	t.Helper()
	d, err := New(Options{
		Transport:    tr,
		Logger:       discardLogger(),
		PollQuantum:  time.Millisecond,
		CompleteWait: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	tr.setHandler(d)
	cfg := StreamConfig{
		Source:    src,
		Buffer:    make([]byte, bufCap),
		Catalog:   testCatalog(),
		FrameRate: 100,
	}
	if err := d.Configure(0, cfg); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	return d
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func errorCode(t *testing.T, err error) string {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	devErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	return devErr.Code
}
