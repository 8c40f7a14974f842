package source

import (
	"bytes"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Spool is a frame source fed by JPEG files dropped into a directory. An
// fsnotify watcher loads each new file as the current frame, overwriting
// the previous one (latest wins, nothing queues). Acquire hands out the
// most recent frame until a newer file replaces it.
type Spool struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	latest  *Frame
	seq     uint64

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewSpool creates a spool source reading from dir. The logger may be nil.
func NewSpool(dir string, logger *slog.Logger) *Spool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Spool{dir: dir, logger: logger}
}

// Start begins watching the spool directory. The newest existing JPEG, if
// any, becomes the initial frame. Geometry arguments are advisory; actual
// dimensions come from the files.
func (s *Spool) Start(format Format, _, _, _ int) error {
	if format != FormatMJPEG {
		return ErrUnsupported
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return err
	}

	s.watcher = watcher
	s.done = make(chan struct{})
	s.started = true

	if path := s.newestExisting(); path != "" {
		s.loadLocked(path)
	}

	s.wg.Add(1)
	go s.watch()

	s.logger.Debug("spool source started", "dir", s.dir)
	return nil
}

// Stop ends the watch loop. Safe without a prior Start.
func (s *Spool) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.done)
	s.watcher.Close()
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.latest = nil
	s.watcher = nil
	s.mu.Unlock()
}

// Acquire borrows the most recent frame. Frame data is immutable once
// loaded; newer files allocate a new frame, so borrowed slices stay valid.
func (s *Spool) Acquire() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil, ErrNotStarted
	}
	if s.latest == nil {
		return nil, ErrNoFrame
	}
	return s.latest, nil
}

// Release returns a borrowed frame. Loaded frames are never reused for new
// content, so there is nothing to reclaim here.
func (s *Spool) Release(*Frame) {}

func (s *Spool) watch() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isJPEG(event.Name) {
				continue
			}
			s.mu.Lock()
			if s.started {
				s.loadLocked(event.Name)
			}
			s.mu.Unlock()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("spool watcher error", "error", err)
		}
	}
}

// loadLocked reads one file into a fresh frame. Caller holds s.mu.
func (s *Spool) loadLocked(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Warn("spool read failed", "file", path, "error", err)
		return
	}
	if len(data) == 0 {
		return
	}

	width, height := 0, 0
	if cfg, err := jpeg.DecodeConfig(bytes.NewReader(data)); err == nil {
		width, height = cfg.Width, cfg.Height
	}

	s.seq++
	s.latest = &Frame{
		Data:      data,
		Width:     width,
		Height:    height,
		Seq:       s.seq,
		Timestamp: time.Now(),
	}
}

// newestExisting returns the most recently modified JPEG already in the
// directory, or empty.
func (s *Spool) newestExisting() string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return ""
	}

	var newest string
	var newestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() || !isJPEG(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = filepath.Join(s.dir, entry.Name())
			newestMod = info.ModTime()
		}
	}
	return newest
}

func isJPEG(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".jpg" || ext == ".jpeg"
}

var _ FrameSource = (*Spool)(nil)
