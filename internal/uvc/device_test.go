package uvc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smazurov/uvcbridge/internal/events"
	"github.com/smazurov/uvcbridge/internal/source"
)

func TestNewRequiresTransport(t *testing.T) {
	_, err := New(Options{Logger: discardLogger()})
	if got := errorCode(t, err); got != ErrCodeNoTransport {
		t.Errorf("New error code = %s, want %s", got, ErrCodeNoTransport)
	}
}

func TestStartRequiresConfiguredStream(t *testing.T) {
	d, err := New(Options{Transport: &fakeTransport{}, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	err = d.Start(context.Background())
	if got := errorCode(t, err); got != ErrCodeNotConfigured {
		t.Errorf("Start error code = %s, want %s", got, ErrCodeNotConfigured)
	}
}

func TestStartStopRestart(t *testing.T) {
	tr := &fakeTransport{}
	d := newTestDevice(t, tr, newFakeSource([]byte("frame")), 64)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	err := d.Start(context.Background())
	if got := errorCode(t, err); got != ErrCodeAlreadyRunning {
		t.Errorf("second Start error code = %s, want %s", got, ErrCodeAlreadyRunning)
	}

	d.Stop()
	d.Stop() // second Stop is a no-op

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	d.Stop()
}

func TestStopStopsSources(t *testing.T) {
	tr := &fakeTransport{}
	src := newFakeSource([]byte("frame"))
	d := newTestDevice(t, tr, src, 64)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	d.Stop()

	if src.stopCount() != 1 {
		t.Errorf("source Stop called %d times, want 1", src.stopCount())
	}
}

func TestCommitAppliesCatalogEntry(t *testing.T) {
	tr := &fakeTransport{}
	src := newFakeSource([]byte("frame"))
	d := newTestDevice(t, tr, src, 64)

	// Catalog entry 2 is 1280x720@15; 666666 hundred-nanosecond units is 66ms.
	if err := d.Commit(0, 2, 666666); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	starts := src.startCalls()
	if len(starts) != 1 {
		t.Fatalf("source Start called %d times, want 1", len(starts))
	}
	call := starts[0]
	if call.format != source.FormatMJPEG {
		t.Errorf("Start format = %v, want FormatMJPEG", call.format)
	}
	if call.width != 1280 || call.height != 720 || call.rate != 15 {
		t.Errorf("Start got %dx%d@%d, want 1280x720@15", call.width, call.height, call.rate)
	}

	status, err := d.Status(0)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.IntervalMS != 66 {
		t.Errorf("interval = %dms, want 66ms", status.IntervalMS)
	}
	if status.Committed == nil {
		t.Fatal("Status has no committed descriptor")
	}
	if *status.Committed != (FrameDesc{Width: 1280, Height: 720, FrameRate: 15}) {
		t.Errorf("committed descriptor = %+v", *status.Committed)
	}
}

func TestCommitRejectsFrameIndexOutOfRange(t *testing.T) {
	for _, frameIndex := range []int{0, 3, -1} {
		tr := &fakeTransport{}
		src := newFakeSource([]byte("frame"))
		d := newTestDevice(t, tr, src, 64)

		before, _ := d.Status(0)
		err := d.Commit(0, frameIndex, 333333)
		if got := errorCode(t, err); got != ErrCodeFrameIndex {
			t.Errorf("Commit(%d) error code = %s, want %s", frameIndex, got, ErrCodeFrameIndex)
		}
		if len(src.startCalls()) != 0 {
			t.Errorf("Commit(%d) reached the frame source", frameIndex)
		}
		after, _ := d.Status(0)
		if after.IntervalMS != before.IntervalMS {
			t.Errorf("Commit(%d) changed the interval from %d to %d",
				frameIndex, before.IntervalMS, after.IntervalMS)
		}
		if after.Active {
			t.Errorf("Commit(%d) left the stream active", frameIndex)
		}
	}
}

// A failed source start rejects the commit, but the interval written before
// the start attempt stays in place. The host sees a failed commit and the
// stream never goes active, so the stale interval is only observable through
// Status until the next successful commit.
func TestCommitStartFailureKeepsInterval(t *testing.T) {
	tr := &fakeTransport{}
	src := newFakeSource([]byte("frame"))
	src.startErr = errors.New("sensor init failed")
	d := newTestDevice(t, tr, src, 64)

	err := d.Commit(0, 1, 400000)
	if got := errorCode(t, err); got != ErrCodeStartFailed {
		t.Errorf("Commit error code = %s, want %s", got, ErrCodeStartFailed)
	}

	status, statusErr := d.Status(0)
	if statusErr != nil {
		t.Fatalf("Status failed: %v", statusErr)
	}
	if status.IntervalMS != 40 {
		t.Errorf("interval = %dms, want 40ms stored before the failed start", status.IntervalMS)
	}
	if status.Committed != nil {
		t.Errorf("failed commit stored descriptor %+v", *status.Committed)
	}
	if status.Active {
		t.Error("failed commit left the stream active")
	}
}

func TestCommitSubMillisecondIntervalClamps(t *testing.T) {
	tr := &fakeTransport{}
	d := newTestDevice(t, tr, newFakeSource([]byte("frame")), 64)

	if err := d.Commit(0, 1, 5000); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	status, _ := d.Status(0)
	if status.IntervalMS != 1 {
		t.Errorf("interval = %dms, want clamp to 1ms", status.IntervalMS)
	}
}

func TestCommitUnconfiguredStream(t *testing.T) {
	tr := &fakeTransport{}
	d := newTestDevice(t, tr, newFakeSource([]byte("frame")), 64)

	err := d.Commit(1, 1, 333333)
	if got := errorCode(t, err); got != ErrCodeNotConfigured {
		t.Errorf("Commit on empty slot error code = %s, want %s", got, ErrCodeNotConfigured)
	}
	err = d.Commit(-1, 1, 333333)
	if got := errorCode(t, err); got != ErrCodeInvalidIndex {
		t.Errorf("Commit(-1) error code = %s, want %s", got, ErrCodeInvalidIndex)
	}
}

func TestTransferCompleteUnknownStream(t *testing.T) {
	tr := &fakeTransport{}
	d := newTestDevice(t, tr, newFakeSource([]byte("frame")), 64)

	// None of these may panic or block.
	d.TransferComplete(-1)
	d.TransferComplete(MaxStreams)
	d.TransferComplete(1)
}

func TestSuspendStopsAllSources(t *testing.T) {
	tr := &fakeTransport{}
	src0 := newFakeSource([]byte("frame"))
	src1 := newFakeSource([]byte("frame"))
	d := newTestDevice(t, tr, src0, 64)
	cfg := StreamConfig{
		Source:    src1,
		Buffer:    make([]byte, 64),
		Catalog:   testCatalog(),
		FrameRate: 100,
	}
	if err := d.Configure(1, cfg); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	d.Suspend()

	if src0.stopCount() != 1 {
		t.Errorf("stream 0 source Stop called %d times, want 1", src0.stopCount())
	}
	if src1.stopCount() != 1 {
		t.Errorf("stream 1 source Stop called %d times, want 1", src1.stopCount())
	}
}

func TestSetPausedPublishesOnce(t *testing.T) {
	bus := events.New()
	tr := &fakeTransport{}
	d, err := New(Options{Transport: tr, Logger: discardLogger(), Bus: bus})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	received := make(chan events.PausedChangedEvent, 4)
	unsubscribe := bus.Subscribe(func(ev events.PausedChangedEvent) {
		received <- ev
	})
	defer unsubscribe()

	d.SetPaused(true)

	select {
	case ev := <-received:
		if !ev.Paused {
			t.Error("expected Paused=true in event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for pause event")
	}

	// Setting the same state again must not publish a second event.
	d.SetPaused(true)
	select {
	case <-received:
		t.Error("duplicate pause state published an event")
	case <-time.After(150 * time.Millisecond):
	}

	if !d.Paused() {
		t.Error("Paused() = false after SetPaused(true)")
	}
}
