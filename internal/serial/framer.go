// Package serial implements the CDC side of the composite gadget: a line
// framer that turns raw serial bytes into logical command lines, and a port
// pump that binds the framer to a tty and writes responses back.
package serial

import (
	"github.com/smazurov/uvcbridge/internal/metrics"
)

// DefaultCapacity is the line accumulator size. Commands longer than this
// are force-dispatched truncated.
const DefaultCapacity = 256

// DispatchFunc receives one logical command line. The slice aliases the
// framer's accumulator and is only valid until the function returns.
type DispatchFunc func(line []byte)

// Framer accumulates raw bytes into lines. A line ends at the first
// line-feed or carriage-return byte; a full accumulator force-dispatches the
// partial line as-is rather than discarding it. Not safe for concurrent use;
// a port feeds its framer from a single goroutine.
type Framer struct {
	buf      []byte
	n        int
	dispatch DispatchFunc
}

// NewFramer creates a framer with the given accumulator capacity. Values
// below one fall back to DefaultCapacity.
func NewFramer(capacity int, dispatch DispatchFunc) *Framer {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Framer{
		buf:      make([]byte, capacity),
		dispatch: dispatch,
	}
}

// Write feeds raw bytes into the framer, dispatching every completed line
// from within the call. Implements io.Writer and never returns an error.
func (f *Framer) Write(p []byte) (int, error) {
	metrics.AddSerialBytes(len(p))
	for _, b := range p {
		f.push(b)
	}
	return len(p), nil
}

func (f *Framer) push(b byte) {
	if b == '\n' || b == '\r' {
		// Empty lines are swallowed, so a CRLF pair dispatches once: the CR
		// ends the line and the LF finds nothing accumulated.
		if f.n > 0 {
			metrics.AddSerialLine(false)
			f.dispatch(f.buf[:f.n])
		}
		f.n = 0
		return
	}
	f.buf[f.n] = b
	f.n++
	if f.n == len(f.buf) {
		metrics.AddSerialLine(true)
		f.dispatch(f.buf)
		f.n = 0
	}
}

// Pending returns the number of buffered bytes awaiting a terminator.
func (f *Framer) Pending() int {
	return f.n
}

// Reset discards any partially accumulated line.
func (f *Framer) Reset() {
	f.n = 0
}
