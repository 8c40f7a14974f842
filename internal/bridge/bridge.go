// Package bridge coordinates the device mode: in uvc mode frames feed the
// USB transport, in wifi mode the pacers idle and the preview pump owns
// the frame source. Mode and pause survive restarts through the state
// store.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/uvcbridge/internal/config"
	"github.com/smazurov/uvcbridge/internal/events"
	"github.com/smazurov/uvcbridge/internal/logging"
	"github.com/smazurov/uvcbridge/internal/metrics"
	"github.com/smazurov/uvcbridge/internal/state"
	"github.com/smazurov/uvcbridge/internal/systemd"
	"github.com/smazurov/uvcbridge/internal/uvc"
)

const unitTimeout = 5 * time.Second

// ErrStreamNotFound marks a stream index outside the configured profiles.
var ErrStreamNotFound = errors.New("bridge: stream not found")

// FramePump drives the network preview from a frame source.
type FramePump interface {
	Start(ctx context.Context) error
	Stop()
}

// UnitManager controls systemd units: the wifi access point and our own
// service for restarts.
type UnitManager interface {
	StartUnit(ctx context.Context, unit string) error
	StopUnit(ctx context.Context, unit string) error
	RestartUnit(ctx context.Context, unit string) error
}

// Service is the control surface the API and command registry drive.
type Service interface {
	Mode() string
	SwitchMode(mode string) error
	SetPaused(paused bool)
	Paused() bool
	Serial() string
	Restart() error
	Status() Status
	StreamDetail(index int) (StreamDetail, error)
}

// Status is a point-in-time view of the whole device.
type Status struct {
	Mode    string
	Paused  bool
	Serial  string
	Streams []StreamDetail
}

// StreamDetail pairs a stream's configured profile with its runtime state.
type StreamDetail struct {
	Index   int
	Name    string
	Source  string
	Formats []config.FormatProfile
	Runtime uvc.StreamStatus
}

// Options wires the bridge to the rest of the daemon. Pump and Units may
// be nil: without a pump wifi mode only idles the pacers, and without a
// unit manager restarts fall back to SIGTERM.
type Options struct {
	Device   *uvc.Device
	Store    *state.Store
	Profiles []config.StreamProfile
	Pump     FramePump
	Units    UnitManager
	Bus      *events.Bus
	Logger   *slog.Logger
}

// Bridge owns the mode state machine.
type Bridge struct {
	device   *uvc.Device
	store    *state.Store
	profiles []config.StreamProfile
	pump     FramePump
	units    UnitManager
	bus      *events.Bus
	logger   *slog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

var _ Service = (*Bridge)(nil)

// New creates a bridge. Call Start to apply the persisted state.
func New(opts Options) *Bridge {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("bridge")
	}
	return &Bridge{
		device:   opts.Device,
		store:    opts.Store,
		profiles: opts.Profiles,
		pump:     opts.Pump,
		units:    opts.Units,
		bus:      opts.Bus,
		logger:   logger,
	}
}

// Start applies the persisted mode and pause flag. The context bounds the
// preview pump; cancel it (or call Stop) on shutdown.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	b.ctx = runCtx
	b.cancel = cancel

	paused := b.store.Paused()
	b.device.SetPaused(paused)
	metrics.SetDevicePaused(paused)

	mode := b.store.Mode()
	metrics.SetDeviceMode(mode)
	b.logger.Info("Applying persisted device state", "mode", mode, "paused", paused)

	if mode == state.ModeWifi {
		return b.enterWifiLocked()
	}
	return b.enterUVCLocked()
}

// Stop halts the preview pump if it runs. The device itself is stopped by
// its owner.
func (b *Bridge) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if b.pump != nil {
		b.pump.Stop()
	}
}

// Mode returns the persisted device mode.
func (b *Bridge) Mode() string {
	return b.store.Mode()
}

// SwitchMode moves the device between uvc and wifi mode. Switching to the
// current mode is a no-op. On failure the previous mode stays in effect.
func (b *Bridge) SwitchMode(mode string) error {
	if mode != state.ModeUVC && mode != state.ModeWifi {
		return fmt.Errorf("unsupported mode %q", mode)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.store.Mode() == mode {
		return nil
	}

	var err error
	if mode == state.ModeWifi {
		err = b.enterWifiLocked()
	} else {
		err = b.enterUVCLocked()
	}
	if err != nil {
		return err
	}

	if err := b.store.SetMode(mode); err != nil {
		b.logger.Warn("Failed to persist device mode", "error", err)
	}
	metrics.SetDeviceMode(mode)
	b.logger.Info("Device mode switched", "mode", mode)
	b.publish(events.ModeChangedEvent{Mode: mode, Timestamp: timestamp()})
	return nil
}

// enterWifiLocked hands the frame source to the preview pump. The UVC path
// is disabled first so its pacers idle before the pump restarts the source.
func (b *Bridge) enterWifiLocked() error {
	b.device.SetEnabled(false)

	if b.pump != nil {
		if err := b.pump.Start(b.runCtx()); err != nil {
			b.device.SetEnabled(true)
			return fmt.Errorf("failed to start preview pump: %w", err)
		}
	}

	if b.units != nil {
		ctx, cancel := context.WithTimeout(context.Background(), unitTimeout)
		defer cancel()
		if err := b.units.StartUnit(ctx, systemd.UnitAccessPoint); err != nil {
			b.logger.Warn("Failed to start access point unit", "error", err)
		}
	}
	return nil
}

// enterUVCLocked returns the frame source to the pacers. Sources restart
// on the next host commit, not here.
func (b *Bridge) enterUVCLocked() error {
	if b.pump != nil {
		b.pump.Stop()
	}

	if b.units != nil {
		ctx, cancel := context.WithTimeout(context.Background(), unitTimeout)
		defer cancel()
		if err := b.units.StopUnit(ctx, systemd.UnitAccessPoint); err != nil {
			b.logger.Warn("Failed to stop access point unit", "error", err)
		}
	}

	b.device.SetEnabled(true)
	return nil
}

// SetPaused gates frame submission and persists the flag. A persist
// failure is logged; the in-memory pause still applies.
func (b *Bridge) SetPaused(paused bool) {
	b.device.SetPaused(paused)
	metrics.SetDevicePaused(paused)
	if err := b.store.SetPaused(paused); err != nil {
		b.logger.Warn("Failed to persist pause flag", "error", err)
	}
}

// Paused reports the live pause state.
func (b *Bridge) Paused() bool {
	return b.device.Paused()
}

// Serial returns the persisted device serial.
func (b *Bridge) Serial() string {
	return b.store.Serial()
}

// Restart asks systemd to restart our unit, falling back to SIGTERM so a
// Restart=always unit file still brings us back.
func (b *Bridge) Restart() error {
	if b.units != nil {
		ctx, cancel := context.WithTimeout(context.Background(), unitTimeout)
		defer cancel()
		if err := b.units.RestartUnit(ctx, systemd.UnitSelf); err == nil {
			return nil
		} else {
			b.logger.Warn("Unit restart failed, falling back to SIGTERM", "error", err)
		}
	}

	proc, err := os.FindProcess(os.Getpid())
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGTERM)
}

// Status snapshots the whole device for the API.
func (b *Bridge) Status() Status {
	snapshot := b.device.Snapshot()
	st := b.store.Snapshot()

	streams := make([]StreamDetail, 0, len(b.profiles))
	for i := range b.profiles {
		streams = append(streams, b.detail(i, snapshot))
	}

	return Status{
		Mode:    st.Mode,
		Paused:  b.device.Paused(),
		Serial:  st.Serial,
		Streams: streams,
	}
}

// StreamDetail returns one stream's profile and runtime state.
func (b *Bridge) StreamDetail(index int) (StreamDetail, error) {
	if index < 0 || index >= len(b.profiles) {
		return StreamDetail{}, fmt.Errorf("%w: index %d", ErrStreamNotFound, index)
	}
	return b.detail(index, b.device.Snapshot()), nil
}

func (b *Bridge) detail(index int, snapshot []uvc.StreamStatus) StreamDetail {
	profile := b.profiles[index]
	detail := StreamDetail{
		Index:   index,
		Name:    profile.Name,
		Source:  profile.Source,
		Formats: profile.Formats,
	}
	if index < len(snapshot) {
		detail.Runtime = snapshot[index]
	}
	return detail
}

func (b *Bridge) runCtx() context.Context {
	if b.ctx != nil {
		return b.ctx
	}
	return context.Background()
}

func (b *Bridge) publish(ev events.Event) {
	if b.bus != nil {
		b.bus.Publish(ev)
	}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
