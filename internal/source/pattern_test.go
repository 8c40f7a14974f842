package source

import (
	"bytes"
	"image/jpeg"
	"testing"
)

func TestPatternProducesValidJPEG(t *testing.T) {
	p := NewPattern(nil)

	if err := p.Start(FormatMJPEG, 320, 240, 30); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	frame, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer p.Release(frame)

	if len(frame.Data) < 4 {
		t.Fatalf("frame too short: %d bytes", len(frame.Data))
	}
	if frame.Data[0] != 0xFF || frame.Data[1] != 0xD8 {
		t.Error("missing JPEG SOI marker")
	}
	tail := frame.Data[len(frame.Data)-2:]
	if tail[0] != 0xFF || tail[1] != 0xD9 {
		t.Error("missing JPEG EOI marker")
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(frame.Data))
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	if cfg.Width != 320 || cfg.Height != 240 {
		t.Errorf("decoded %dx%d, want 320x240", cfg.Width, cfg.Height)
	}
	if frame.Width != 320 || frame.Height != 240 {
		t.Errorf("frame reports %dx%d, want 320x240", frame.Width, frame.Height)
	}
}

func TestPatternBorrowAccounting(t *testing.T) {
	p := NewPattern(nil)
	if err := p.Start(FormatMJPEG, 160, 120, 15); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	a, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	b, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if got := p.Borrowed(); got != 2 {
		t.Errorf("Borrowed = %d, want 2", got)
	}
	if a.Seq == b.Seq {
		t.Error("sequence numbers should advance per acquire")
	}

	p.Release(a)
	p.Release(b)
	if got := p.Borrowed(); got != 0 {
		t.Errorf("Borrowed = %d after releases, want 0", got)
	}
}

func TestPatternLifecycleErrors(t *testing.T) {
	p := NewPattern(nil)

	if _, err := p.Acquire(); err != ErrNotStarted {
		t.Errorf("Acquire before Start = %v, want ErrNotStarted", err)
	}

	if err := p.Start(Format(99), 320, 240, 30); err != ErrUnsupported {
		t.Errorf("Start with bad format = %v, want ErrUnsupported", err)
	}
	if err := p.Start(FormatMJPEG, 0, 240, 30); err != ErrUnsupported {
		t.Errorf("Start with zero width = %v, want ErrUnsupported", err)
	}

	// Stop without Start must be safe.
	p.Stop()

	if err := p.Start(FormatMJPEG, 320, 240, 30); err != nil {
		t.Fatalf("Start after Stop: %v", err)
	}
	p.Stop()
	if _, err := p.Acquire(); err != ErrNotStarted {
		t.Errorf("Acquire after Stop = %v, want ErrNotStarted", err)
	}
}
