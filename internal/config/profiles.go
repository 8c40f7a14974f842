package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/uvcbridge/internal/uvc"
)

// Frame source kinds a stream profile may name.
const (
	SourcePattern = "pattern"
	SourceSpool   = "spool"
)

// FormatProfile is one frame descriptor advertised to the host.
type FormatProfile struct {
	Width     int `toml:"width" json:"width"`
	Height    int `toml:"height" json:"height"`
	FrameRate int `toml:"frame_rate" json:"frame_rate"`
}

// StreamProfile describes one video function of the gadget: the frame
// descriptors advertised to the host, the transfer buffer size, and the
// frame source feeding the pacer.
type StreamProfile struct {
	Name     string          `toml:"name" json:"name"`
	Source   string          `toml:"source,omitempty" json:"source,omitempty"`
	SpoolDir string          `toml:"spool_dir,omitempty" json:"spool_dir,omitempty"`
	BufferKB int             `toml:"buffer_kb,omitempty" json:"buffer_kb,omitempty"`
	Formats  []FormatProfile `toml:"formats" json:"formats"`
}

// Profiles is the stream profile configuration file.
type Profiles struct {
	Version int             `toml:"version" json:"version"`
	Streams []StreamProfile `toml:"streams" json:"streams"`
}

// ProfileStore loads and persists stream profiles.
type ProfileStore struct {
	path   string
	config *Profiles
}

// NewProfileStore creates a profile store backed by path.
func NewProfileStore(path string) *ProfileStore {
	if path == "" {
		path = "profiles.toml"
	}
	return &ProfileStore{
		path:   path,
		config: defaultProfiles(),
	}
}

// defaultProfiles is the catalog a device ships with before anyone edits
// the profile file: one stream fed by the synthetic pattern source.
func defaultProfiles() *Profiles {
	return &Profiles{
		Version: 1,
		Streams: []StreamProfile{
			{
				Name:   "primary",
				Source: SourcePattern,
				Formats: []FormatProfile{
					{Width: 640, Height: 480, FrameRate: 30},
					{Width: 1280, Height: 720, FrameRate: 15},
				},
			},
		},
	}
}

// Load reads the profile file. A missing file keeps the built-in defaults;
// a present but invalid file is an error so a misconfigured device fails
// at startup instead of enumerating with a broken catalog.
func (ps *ProfileStore) Load() error {
	if _, err := os.Stat(ps.path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(ps.path)
	if err != nil {
		return fmt.Errorf("failed to read stream profiles: %w", err)
	}

	var cfg Profiles
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse stream profiles: %w", err)
	}

	if cfg.Version == 0 {
		cfg.Version = 1
	}
	ps.config = &cfg

	return ps.Validate()
}

// Save writes the profiles to disk.
func (ps *ProfileStore) Save() error {
	dir := filepath.Dir(ps.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	data, err := toml.Marshal(ps.config)
	if err != nil {
		return fmt.Errorf("failed to marshal stream profiles: %w", err)
	}

	if err := os.WriteFile(ps.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write stream profiles: %w", err)
	}

	return nil
}

// Streams returns the configured stream profiles.
func (ps *ProfileStore) Streams() []StreamProfile {
	return ps.config.Streams
}

// Validate checks the profile set against what the device can serve.
func (ps *ProfileStore) Validate() error {
	n := len(ps.config.Streams)
	if n == 0 {
		return fmt.Errorf("no stream profiles defined")
	}
	if n > uvc.MaxStreams {
		return fmt.Errorf("%d stream profiles defined, device supports at most %d", n, uvc.MaxStreams)
	}

	for i, sp := range ps.config.Streams {
		if len(sp.Formats) == 0 {
			return fmt.Errorf("stream %d (%s) has no formats", i, sp.Name)
		}

		switch sp.Source {
		case "", SourcePattern:
		case SourceSpool:
			if sp.SpoolDir == "" {
				return fmt.Errorf("stream %d (%s) uses the spool source but sets no spool_dir", i, sp.Name)
			}
		default:
			return fmt.Errorf("stream %d (%s) names unknown source %q", i, sp.Name, sp.Source)
		}

		for j, f := range sp.Formats {
			if f.Width <= 0 || f.Height <= 0 {
				return fmt.Errorf("stream %d format %d has invalid dimensions %dx%d", i, j, f.Width, f.Height)
			}
			if f.FrameRate <= 0 {
				return fmt.Errorf("stream %d format %d has invalid frame rate %d", i, j, f.FrameRate)
			}
		}
	}

	return nil
}

// Catalog converts the profile's formats to the frame descriptors the
// device advertises and validates commits against.
func (sp StreamProfile) Catalog() []uvc.FrameDesc {
	catalog := make([]uvc.FrameDesc, len(sp.Formats))
	for i, f := range sp.Formats {
		catalog[i] = uvc.FrameDesc{
			Width:     f.Width,
			Height:    f.Height,
			FrameRate: f.FrameRate,
		}
	}
	return catalog
}

// BufferBytes returns the transfer buffer size for the profile. When
// buffer_kb is unset it derives from the largest advertised frame at two
// bytes per pixel, matching the frame buffer bound the gadget reports.
func (sp StreamProfile) BufferBytes() int {
	if sp.BufferKB > 0 {
		return sp.BufferKB * 1024
	}

	largest := 0
	for _, f := range sp.Formats {
		if size := f.Width * f.Height * 2; size > largest {
			largest = size
		}
	}
	return largest
}

// LoadProfiles loads and validates profiles fresh from path. This is the
// loader shape the config watcher wants.
func LoadProfiles(path string) (*Profiles, error) {
	ps := NewProfileStore(path)
	if err := ps.Load(); err != nil {
		return nil, err
	}
	return ps.config, nil
}
