package led

import (
	"log/slog"
	"sync"

	"github.com/smazurov/uvcbridge/internal/events"
)

// Manager mirrors device state onto the board status LED. It subscribes to
// the event bus and recomputes the pattern on every relevant transition.
type Manager struct {
	controller   Controller
	bus          *events.Bus
	logger       *slog.Logger
	unsubscribes []func()

	mu        sync.Mutex
	active    map[int]bool
	paused    bool
	suspended bool
}

// NewManager creates an LED manager. Call Start to begin tracking events.
func NewManager(controller Controller, bus *events.Bus, logger *slog.Logger) *Manager {
	return &Manager{
		controller: controller,
		bus:        bus,
		logger:     logger,
		active:     make(map[int]bool),
	}
}

// Start subscribes to device events and applies the idle pattern.
func (m *Manager) Start() {
	m.unsubscribes = []func(){
		m.bus.Subscribe(func(e events.StreamStartedEvent) {
			m.setStream(e.Stream, true)
		}),
		m.bus.Subscribe(func(e events.StreamStoppedEvent) {
			m.setStream(e.Stream, false)
		}),
		m.bus.Subscribe(func(e events.PausedChangedEvent) {
			m.mu.Lock()
			m.paused = e.Paused
			m.mu.Unlock()
			m.update()
		}),
		m.bus.Subscribe(func(e events.DeviceSuspendedEvent) {
			m.mu.Lock()
			m.suspended = true
			m.mu.Unlock()
			m.update()
		}),
		m.bus.Subscribe(func(e events.DeviceResumedEvent) {
			m.mu.Lock()
			m.suspended = false
			m.mu.Unlock()
			m.update()
		}),
	}
	m.update()
	m.logger.Info("LED manager started")
}

// Stop unsubscribes from the bus and turns the LED off.
func (m *Manager) Stop() {
	for _, unsubscribe := range m.unsubscribes {
		unsubscribe()
	}
	m.unsubscribes = nil
	if err := m.controller.Set("status", false, "solid"); err != nil {
		m.logger.Debug("failed to turn status LED off", "error", err)
	}
	m.logger.Info("LED manager stopped")
}

// Controller exposes the underlying controller for the API layer.
func (m *Manager) Controller() Controller {
	return m.controller
}

func (m *Manager) setStream(stream int, active bool) {
	m.mu.Lock()
	m.active[stream] = active
	m.mu.Unlock()
	m.update()
}

// update recomputes the LED pattern: suspend wins, then pause, then
// streaming activity, then idle heartbeat.
func (m *Manager) update() {
	m.mu.Lock()
	suspended := m.suspended
	paused := m.paused
	anyActive := false
	for _, active := range m.active {
		if active {
			anyActive = true
			break
		}
	}
	m.mu.Unlock()

	var enabled bool
	var pattern string
	switch {
	case suspended:
		enabled, pattern = false, "solid"
	case paused:
		enabled, pattern = true, "blink"
	case anyActive:
		enabled, pattern = true, "solid"
	default:
		enabled, pattern = true, "heartbeat"
	}

	if err := m.controller.Set("status", enabled, pattern); err != nil {
		m.logger.Warn("failed to update status LED", "error", err, "pattern", pattern)
	}
}
