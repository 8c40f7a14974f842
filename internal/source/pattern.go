package source

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// barPalette is the classic eight-bar test pattern, left to right.
var barPalette = []color.RGBA{
	{R: 0xEB, G: 0xEB, B: 0xEB, A: 0xFF}, // white
	{R: 0xEB, G: 0xEB, B: 0x10, A: 0xFF}, // yellow
	{R: 0x10, G: 0xEB, B: 0xEB, A: 0xFF}, // cyan
	{R: 0x10, G: 0xEB, B: 0x10, A: 0xFF}, // green
	{R: 0xEB, G: 0x10, B: 0xEB, A: 0xFF}, // magenta
	{R: 0xEB, G: 0x10, B: 0x10, A: 0xFF}, // red
	{R: 0x10, G: 0x10, B: 0xEB, A: 0xFF}, // blue
	{R: 0x10, G: 0x10, B: 0x10, A: 0xFF}, // black
}

// Pattern is a synthetic frame source producing a JPEG color-bar test
// pattern at the negotiated geometry. Useful for bring-up and loopback
// operation without camera hardware.
type Pattern struct {
	logger  *slog.Logger
	quality int

	mu      sync.Mutex
	started bool
	encoded []byte
	width   int
	height  int

	seq      atomic.Uint64
	borrowed atomic.Int64
}

// NewPattern creates a test pattern source. The logger may be nil.
func NewPattern(logger *slog.Logger) *Pattern {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pattern{logger: logger, quality: 80}
}

// Start renders and encodes the pattern for the requested geometry.
func (p *Pattern) Start(format Format, width, height, rate int) error {
	if format != FormatMJPEG {
		return ErrUnsupported
	}
	if width <= 0 || height <= 0 {
		return ErrUnsupported
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	barWidth := width / len(barPalette)
	if barWidth == 0 {
		barWidth = 1
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			bar := x / barWidth
			if bar >= len(barPalette) {
				bar = len(barPalette) - 1
			}
			img.SetRGBA(x, y, barPalette[bar])
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.quality}); err != nil {
		return err
	}

	p.mu.Lock()
	p.started = true
	p.encoded = buf.Bytes()
	p.width = width
	p.height = height
	p.mu.Unlock()

	p.logger.Debug("pattern source started",
		"width", width, "height", height, "rate", rate, "bytes", buf.Len())
	return nil
}

// Stop idles the source. Safe without a prior Start.
func (p *Pattern) Stop() {
	p.mu.Lock()
	p.started = false
	p.encoded = nil
	p.mu.Unlock()
}

// Acquire borrows the current pattern frame. The same payload repeats at
// whatever rate the caller polls, like a camera pointed at a static scene.
func (p *Pattern) Acquire() (*Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return nil, ErrNotStarted
	}

	p.borrowed.Add(1)
	return &Frame{
		Data:      p.encoded,
		Width:     p.width,
		Height:    p.height,
		Seq:       p.seq.Add(1),
		Timestamp: time.Now(),
	}, nil
}

// Release returns a borrowed frame.
func (p *Pattern) Release(f *Frame) {
	if f == nil {
		return
	}
	p.borrowed.Add(-1)
}

// Borrowed returns the number of unreleased frames. Zero when callers
// honor the borrow discipline.
func (p *Pattern) Borrowed() int64 {
	return p.borrowed.Load()
}

var _ FrameSource = (*Pattern)(nil)
