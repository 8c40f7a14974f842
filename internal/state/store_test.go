package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.toml")
	s := NewStore(path)

	if err := s.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Mode() != ModeUVC {
		t.Errorf("default mode = %q, want %q", s.Mode(), ModeUVC)
	}
	if s.Paused() {
		t.Error("default paused = true")
	}
	if !strings.HasPrefix(s.Serial(), "UVCB-") {
		t.Errorf("serial = %q, want UVCB- prefix", s.Serial())
	}

	// The generated serial is persisted right away.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("state file was not written on first load: %v", err)
	}
}

func TestSerialStableAcrossLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.toml")

	first := NewStore(path)
	if err := first.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	serial := first.Serial()

	second := NewStore(path)
	if err := second.Load(); err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if second.Serial() != serial {
		t.Errorf("serial changed across loads: %q then %q", serial, second.Serial())
	}
}

func TestSetModePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.toml")
	s := NewStore(path)
	if err := s.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := s.SetMode(ModeWifi); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}

	reloaded := NewStore(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Mode() != ModeWifi {
		t.Errorf("reloaded mode = %q, want %q", reloaded.Mode(), ModeWifi)
	}
}

func TestSetModeRejectsUnknown(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "state.toml"))
	if err := s.SetMode("hdmi"); err == nil {
		t.Error("SetMode accepted an unknown mode")
	}
	if s.Mode() != ModeUVC {
		t.Errorf("rejected SetMode changed the mode to %q", s.Mode())
	}
}

func TestSetPausedPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.toml")
	s := NewStore(path)
	if err := s.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := s.SetPaused(true); err != nil {
		t.Fatalf("SetPaused failed: %v", err)
	}

	reloaded := NewStore(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if !reloaded.Paused() {
		t.Error("paused flag did not survive the reload")
	}
}

func TestLoadSanitizesBadMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.toml")
	content := "version = 1\nmode = \"hdmi\"\nserial = \"UVCB-TEST\"\npaused = false\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path)
	if err := s.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Mode() != ModeUVC {
		t.Errorf("mode = %q after loading invalid value, want %q", s.Mode(), ModeUVC)
	}
	if s.Serial() != "UVCB-TEST" {
		t.Errorf("serial = %q, want UVCB-TEST", s.Serial())
	}
}
