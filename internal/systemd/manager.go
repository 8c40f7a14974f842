// Package systemd wraps the D-Bus and sd_notify plumbing the bridge needs
// to restart itself and to toggle the wifi access point unit on mode
// switches.
package systemd

import (
	"context"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/coreos/go-systemd/v22/dbus"
)

// Units the bridge manages. The bridge itself runs as a system service
// because configfs and the UDC require root.
const (
	UnitSelf        = "uvcbridge.service"
	UnitAccessPoint = "uvcbridge-ap.service"
)

// Manager handles systemd unit lifecycle operations via D-Bus.
type Manager struct {
	conn *dbus.Conn
}

// NewManager creates a manager with a system-level D-Bus connection.
func NewManager(ctx context.Context) (*Manager, error) {
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, err
	}
	return &Manager{conn: conn}, nil
}

// UnitStatus retrieves the ActiveState property of a systemd unit.
func (m *Manager) UnitStatus(ctx context.Context, unit string) (string, error) {
	prop, err := m.conn.GetUnitPropertyContext(ctx, unit, "ActiveState")
	if err != nil {
		return "", err
	}
	return prop.Value.String(), nil
}

// RestartUnit restarts a systemd unit using the replace mode.
func (m *Manager) RestartUnit(ctx context.Context, unit string) error {
	_, err := m.conn.RestartUnitContext(ctx, unit, "replace", nil)
	return err
}

// StopUnit stops a systemd unit using the replace mode.
func (m *Manager) StopUnit(ctx context.Context, unit string) error {
	_, err := m.conn.StopUnitContext(ctx, unit, "replace", nil)
	return err
}

// StartUnit starts a systemd unit using the replace mode.
func (m *Manager) StartUnit(ctx context.Context, unit string) error {
	_, err := m.conn.StartUnitContext(ctx, unit, "replace", nil)
	return err
}

// Close cleanly closes the D-Bus connection.
func (m *Manager) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}

// NotifyReady tells systemd the service finished starting up. Returns
// false when not running under systemd, which is not an error.
func NotifyReady() (bool, error) {
	return daemon.SdNotify(false, daemon.SdNotifyReady)
}

// NotifyStopping tells systemd the service began shutting down.
func NotifyStopping() (bool, error) {
	return daemon.SdNotify(false, daemon.SdNotifyStopping)
}
