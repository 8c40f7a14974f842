// Package source defines the frame source capability consumed by the UVC
// pacer, plus the built-in implementations.
package source

import (
	"errors"
	"time"
)

// Format identifies the encoding of frames a source produces.
type Format uint8

// Supported frame formats.
const (
	FormatMJPEG Format = iota + 1
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatMJPEG:
		return "mjpeg"
	default:
		return "unknown"
	}
}

// Sentinel errors returned by frame sources.
var (
	// ErrNoFrame means no frame is ready right now. Recoverable; the
	// caller should retry on its next tick.
	ErrNoFrame = errors.New("source: no frame available")
	// ErrNotStarted means Acquire was called before Start.
	ErrNotStarted = errors.New("source: not started")
	// ErrUnsupported means the source cannot produce the requested format
	// or geometry.
	ErrUnsupported = errors.New("source: unsupported format")
)

// Frame is a borrowed view of one encoded video frame. The Data slice is
// owned by the source; callers must not retain it past Release and must
// not mutate it.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Seq       uint64
	Timestamp time.Time
}

// FrameSource supplies frames on demand with an explicit borrow/release
// discipline.
//
// Start prepares the source for the negotiated geometry; returning an
// error rejects the host's format commit. Stop idles the source; it must
// be safe to call Stop without a prior Start. Acquire borrows the current
// frame or returns ErrNoFrame; every successfully acquired frame must be
// released exactly once, and promptly.
type FrameSource interface {
	Start(format Format, width, height, rate int) error
	Stop()
	Acquire() (*Frame, error)
	Release(*Frame)
}
