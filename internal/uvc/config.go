package uvc

import (
	"fmt"

	"github.com/smazurov/uvcbridge/internal/source"
)

// MaxStreams is the number of video streaming interfaces exposed by the
// gadget. Matches the descriptor layout; indices are 0-based.
const MaxStreams = 2

// FrameDesc is one entry in a stream's frame catalog, mirroring the frame
// descriptors announced to the host. The host commits a format by 1-based
// index into this catalog.
type FrameDesc struct {
	Width     int `json:"width"`
	Height    int `json:"height"`
	FrameRate int `json:"frame_rate"`
}

// StreamConfig binds one stream index to a frame source and transfer buffer.
// Set once before the device starts; only the pacing interval changes
// afterwards, overwritten when the host commits a format.
type StreamConfig struct {
	// Source supplies frames on demand. Borrowed frames are returned
	// before the next pacer iteration.
	Source source.FrameSource

	// Buffer is the transfer destination. Frames longer than its capacity
	// are dropped, never truncated.
	Buffer []byte

	// Catalog lists the frame descriptors the host may commit to.
	Catalog []FrameDesc

	// FrameRate is the default rate used to derive the initial pacing
	// interval before the host commits one.
	FrameRate int
}

func (c *StreamConfig) validate(index int) error {
	if index < 0 || index >= MaxStreams {
		return NewError(ErrCodeInvalidIndex,
			fmt.Sprintf("stream index %d outside [0,%d)", index, MaxStreams), nil)
	}
	if c.Source == nil {
		return NewError(ErrCodeNoSource, "frame source is required", nil)
	}
	if c.Buffer == nil {
		return NewError(ErrCodeNoBuffer, "transfer buffer is required", nil)
	}
	if len(c.Buffer) == 0 {
		return NewError(ErrCodeZeroCapacity, "transfer buffer has zero capacity", nil)
	}
	if c.FrameRate <= 0 {
		return NewError(ErrCodeInvalidFrameRate,
			fmt.Sprintf("frame rate %d must be positive", c.FrameRate), nil)
	}
	if len(c.Catalog) == 0 {
		return NewError(ErrCodeEmptyCatalog, "frame catalog is empty", nil)
	}
	for i, desc := range c.Catalog {
		if desc.Width <= 0 || desc.Height <= 0 || desc.FrameRate <= 0 {
			return NewError(ErrCodeBadFrameDesc,
				fmt.Sprintf("catalog entry %d has non-positive dimensions or rate", i), nil)
		}
	}
	return nil
}

// intervalFromRate derives the pacing interval in milliseconds from a frame
// rate. Rates above 1000 fps clamp to the 1ms scheduling floor.
func intervalFromRate(rate int) int64 {
	ms := int64(1000 / rate)
	if ms < 1 {
		ms = 1
	}
	return ms
}

// intervalFromCommit converts a host-committed frame interval in 100ns units
// to milliseconds. Sub-millisecond precision is discarded; values below 1ms
// clamp to the 1ms scheduling floor rather than pacing at a degenerate zero
// interval.
func intervalFromCommit(interval100ns uint32) int64 {
	ms := int64(interval100ns) / 10000
	if ms < 1 {
		ms = 1
	}
	return ms
}
