package audio

import (
	"fmt"
	"io"

	"go.uber.org/zap"
)

const eventBuffer = 64

// Manager owns the single bound source and applies the fallback policy.
// All methods must be called from the owning event loop.
type Manager struct {
	create   func() Source
	fallback func() Source
	log      *zap.SugaredLogger
	notify   func(string)

	events          chan Event
	current         Source
	deviceID        string
	fallbackApplied bool
	retired         []Source
}

// ManagerConfig wires a Manager.
type ManagerConfig struct {
	// Create builds the preferred source.
	Create func() Source
	// Fallback builds the substitute source. Defaults to NewDummy.
	Fallback func() Source
	DeviceID string
	Notify   func(string)
	Logger   *zap.SugaredLogger
}

// NewManager returns a manager with nothing bound.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Fallback == nil {
		cfg.Fallback = func() Source { return NewDummy() }
	}
	if cfg.Notify == nil {
		cfg.Notify = func(string) {}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Manager{
		create:   cfg.Create,
		fallback: cfg.Fallback,
		log:      logger.Named("audio"),
		notify:   cfg.Notify,
		events:   make(chan Event, eventBuffer),
		deviceID: cfg.DeviceID,
	}
}

// Events delivers events from the bound source.
func (m *Manager) Events() <-chan Event { return m.events }

// Current returns the bound source, or nil.
func (m *Manager) Current() Source { return m.current }

// DeviceID returns the preferred device id applied to new sources.
func (m *Manager) DeviceID() string { return m.deviceID }

// FallbackApplied reports whether the substitute source has replaced the preferred one.
func (m *Manager) FallbackApplied() bool { return m.fallbackApplied }

// Accept reports whether ev came from the bound source. Events from replaced sources are stale.
func (m *Manager) Accept(ev Event) bool {
	return m.current != nil && ev.Source == m.current
}

// Bind replaces the bound source: detach, stop, retire for deferred release, then attach src.
func (m *Manager) Bind(src Source) {
	if old := m.current; old != nil {
		old.Attach(nil)
		old.Stop()
		m.retired = append(m.retired, old)
		m.log.Debugw("source retired", "backend", old.BackendName())
	}
	m.current = src
	if src != nil {
		src.Attach(m.events)
		m.log.Debugw("source bound", "backend", src.BackendName())
	}
}

// Collect releases retired sources. Called once per loop turn, after event dispatch.
func (m *Manager) Collect() {
	for _, src := range m.retired {
		if closer, ok := src.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				m.log.Warnw("release source", "backend", src.BackendName(), "error", err)
			}
		}
	}
	m.retired = nil
}

// Open binds a freshly created preferred source and starts it with fallback.
func (m *Manager) Open() bool {
	m.Bind(m.newPreferred())
	return m.StartWithFallback()
}

func (m *Manager) newPreferred() Source {
	if m.create == nil {
		return m.fallback()
	}
	src := m.create()
	src.SetSelectedDeviceID(m.deviceID)
	return src
}

// StartWithFallback starts the bound source and substitutes the fallback when it cannot start.
func (m *Manager) StartWithFallback() bool {
	if m.current == nil {
		return false
	}
	if m.current.Start() {
		m.fallbackApplied = false
		m.log.Infow("audio started", "backend", m.current.BackendName())
		return true
	}

	m.notify("PipeWire unavailable, falling back to dummy audio backend.")
	m.log.Warnw("audio start failed, using fallback", "backend", m.current.BackendName())
	m.Bind(m.fallback())
	if m.current != nil && m.current.Start() {
		m.fallbackApplied = true
		return true
	}
	return false
}

// HandleError reports a runtime error from the bound source and swaps to the fallback once.
func (m *Manager) HandleError(message string) {
	m.notify(message)
	if m.fallbackApplied || m.current == nil {
		return
	}
	if m.current.BackendName() == dummyBackendName || m.current.IsRunning() {
		return
	}

	m.fallbackApplied = true
	m.log.Warnw("audio runtime failure, using fallback", "backend", m.current.BackendName(), "error", message)
	m.Bind(m.fallback())
	if m.current != nil && m.current.Start() {
		m.notify("PipeWire failed; switched to dummy audio backend.")
		return
	}
	m.notify("Audio backend failed and dummy fallback could not start.")
}

// ApplyDevice switches to a new device id by recreating and restarting the source.
// It returns false when the id is unchanged.
func (m *Manager) ApplyDevice(id, label string) bool {
	if id == m.deviceID {
		return false
	}
	m.deviceID = id
	if m.current == nil {
		return true
	}

	m.Bind(m.newPreferred())
	if !m.StartWithFallback() {
		m.notify("Failed to apply audio device; backend restart failed.")
		return true
	}
	if m.current.BackendName() == dummyBackendName {
		m.notify("Saved audio device preference (capture backend not active).")
		return true
	}
	if label == "" {
		label = "Default"
	}
	m.notify(fmt.Sprintf("Applied audio input device: %s", label))
	return true
}

// Devices lists the bound source's devices.
func (m *Manager) Devices() []DeviceInfo {
	if m.current == nil {
		return nil
	}
	return m.current.AvailableDevices()
}

// Label renders the backend indicator.
func (m *Manager) Label() string {
	if m.current == nil {
		return "Audio: unavailable"
	}
	state := "stopped"
	if m.current.IsRunning() {
		state = "running"
	}
	return fmt.Sprintf("Audio: %s (%s)", m.current.BackendName(), state)
}

// Close stops and releases everything.
func (m *Manager) Close() {
	m.Bind(nil)
	m.Collect()
}
