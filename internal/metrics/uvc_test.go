package metrics

import (
	"testing"
)

func TestStreamMetricsCache(t *testing.T) {
	stream := 7

	ResetStreamMetrics(stream)

	if m := GetStreamMetrics(stream); m != nil {
		t.Error("expected nil for untouched stream")
	}

	AddFrameTransferred(stream, 1024)
	AddFrameTransferred(stream, 2048)
	AddFrameDropped(stream, DropReasonUnavailable)
	AddFrameDropped(stream, DropReasonOversized)
	AddFrameDropped(stream, DropReasonOversized)
	AddWaitTimeout(stream)

	m := GetStreamMetrics(stream)
	if m == nil {
		t.Fatal("expected non-nil metrics")
	}
	if m.FramesTransferred != 2 {
		t.Errorf("FramesTransferred = %d, want 2", m.FramesTransferred)
	}
	if m.BytesTransferred != 3072 {
		t.Errorf("BytesTransferred = %d, want 3072", m.BytesTransferred)
	}
	if m.FramesUnavailable != 1 {
		t.Errorf("FramesUnavailable = %d, want 1", m.FramesUnavailable)
	}
	if m.FramesOversized != 2 {
		t.Errorf("FramesOversized = %d, want 2", m.FramesOversized)
	}
	if m.WaitTimeouts != 1 {
		t.Errorf("WaitTimeouts = %d, want 1", m.WaitTimeouts)
	}

	// Returned copy is independent of the cache.
	m.FramesTransferred = 999
	if again := GetStreamMetrics(stream); again.FramesTransferred != 2 {
		t.Errorf("cache was modified through the copy, got %d", again.FramesTransferred)
	}

	ResetStreamMetrics(stream)
	if m := GetStreamMetrics(stream); m != nil {
		t.Error("expected nil after reset")
	}
}

func TestUnknownDropReasonIgnoredInCache(t *testing.T) {
	stream := 8
	ResetStreamMetrics(stream)

	AddFrameDropped(stream, "something_else")

	m := GetStreamMetrics(stream)
	if m == nil {
		t.Fatal("expected cache entry")
	}
	if m.FramesUnavailable != 0 || m.FramesOversized != 0 {
		t.Errorf("unknown reason counted: %+v", m)
	}

	ResetStreamMetrics(stream)
}
