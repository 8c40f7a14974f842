// Package state persists the small device state that must survive restarts:
// the device mode, the generated serial, and the pause flag.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
)

// Device modes.
const (
	ModeUVC  = "uvc"
	ModeWifi = "wifi"
)

// DeviceState is the persisted state file layout.
type DeviceState struct {
	Version int    `toml:"version" json:"version"`
	Mode    string `toml:"mode" json:"mode"`
	Serial  string `toml:"serial" json:"serial"`
	Paused  bool   `toml:"paused" json:"paused"`
}

// Store implements TOML file storage for the device state. Mutations are
// written through immediately so a power cut loses nothing.
type Store struct {
	mu    sync.Mutex
	path  string
	state DeviceState
}

// NewStore creates a store backed by the given path.
func NewStore(path string) *Store {
	if path == "" {
		path = "uvcbridge-state.toml"
	}
	return &Store{
		path:  path,
		state: DeviceState{Version: 1, Mode: ModeUVC},
	}
}

// Load reads the persisted state. A missing file is not an error: defaults
// apply and a fresh serial is generated and saved on the spot.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		data, err := os.ReadFile(s.path)
		if err != nil {
			return fmt.Errorf("failed to read device state: %w", err)
		}
		if err := toml.Unmarshal(data, &s.state); err != nil {
			return fmt.Errorf("failed to parse device state: %w", err)
		}
	}

	if s.state.Version == 0 {
		s.state.Version = 1
	}
	if s.state.Mode != ModeUVC && s.state.Mode != ModeWifi {
		s.state.Mode = ModeUVC
	}
	if s.state.Serial == "" {
		s.state.Serial = generateSerial()
		return s.saveLocked()
	}
	return nil
}

// Save writes the current state to disk.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := toml.Marshal(s.state)
	if err != nil {
		return fmt.Errorf("failed to marshal device state: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write device state: %w", err)
	}
	return nil
}

// Mode returns the persisted device mode.
func (s *Store) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Mode
}

// SetMode persists a new device mode.
func (s *Store) SetMode(mode string) error {
	if mode != ModeUVC && mode != ModeWifi {
		return fmt.Errorf("unsupported mode %q", mode)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Mode = mode
	return s.saveLocked()
}

// Serial returns the persisted device serial.
func (s *Store) Serial() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Serial
}

// Paused returns the persisted pause flag.
func (s *Store) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Paused
}

// SetPaused persists the pause flag.
func (s *Store) SetPaused(paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Paused = paused
	return s.saveLocked()
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() DeviceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func generateSerial() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "UVCB-" + id[:12]
}
