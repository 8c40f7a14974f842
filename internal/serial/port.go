package serial

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/smazurov/uvcbridge/internal/logging"
)

const reopenInterval = time.Second

// ResponderFunc handles one command line and returns the response to write
// back, or nil for no response. The line slice is only valid for the call.
type ResponderFunc func(line []byte) []byte

// Port pumps bytes between a CDC tty and a command responder. The gadget
// side of the ACM function shows up as a tty (/dev/ttyGS0); the port keeps
// reopening it, since the node comes and goes with the gadget binding.
type Port struct {
	path     string
	capacity int
	respond  ResponderFunc
	logger   *slog.Logger
}

// PortOptions configures a Port.
type PortOptions struct {
	// Path is the tty device node.
	Path string

	// Capacity overrides the framer accumulator size. Zero means
	// DefaultCapacity.
	Capacity int

	Logger *slog.Logger
}

// NewPort creates a port bound to a tty path and a responder.
func NewPort(opts PortOptions, respond ResponderFunc) *Port {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("serial")
	}
	return &Port{
		path:     opts.Path,
		capacity: opts.Capacity,
		respond:  respond,
		logger:   logger,
	}
}

// Run pumps the tty until the context ends. Open failures and read errors
// are retried; only context cancellation returns.
func (p *Port) Run(ctx context.Context) error {
	for {
		file, err := os.OpenFile(p.path, os.O_RDWR, 0)
		if err != nil {
			p.logger.Warn("serial port unavailable", "path", p.path, "error", err)
			if !wait(ctx, reopenInterval) {
				return ctx.Err()
			}
			continue
		}
		p.logger.Info("serial port open", "path", p.path)

		err = p.Pump(ctx, file)
		file.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Warn("serial port closed, reopening", "path", p.path, "error", err)
		if !wait(ctx, reopenInterval) {
			return ctx.Err()
		}
	}
}

// Pump frames everything read from rw and writes each response back,
// newline-terminated. It returns on read error or context cancellation;
// cancellation closes rw to unblock the pending read.
func (p *Port) Pump(ctx context.Context, rw io.ReadWriteCloser) error {
	stop := context.AfterFunc(ctx, func() { rw.Close() })
	defer stop()

	framer := NewFramer(p.capacity, func(line []byte) {
		response := p.respond(line)
		if len(response) == 0 {
			return
		}
		if _, err := rw.Write(append(response, '\n')); err != nil {
			p.logger.Warn("serial response write failed", "error", err)
		}
	})

	buf := make([]byte, 512)
	for {
		n, err := rw.Read(buf)
		if n > 0 {
			framer.Write(buf[:n])
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

func wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
