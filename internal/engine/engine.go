package engine

import (
	"fmt"
	"image"
	"path/filepath"

	"go.uber.org/zap"
)

// EventKind tags engine notifications.
type EventKind int

const (
	EventPresetChanged EventKind = iota
	EventStatus
)

// Event is emitted by the Engine on its Events channel.
type Event struct {
	Kind    EventKind
	Preset  string
	Message string
}

// Target is a pixel sink that a frame is rendered into.
type Target interface {
	Canvas() *image.RGBA
}

type pending struct {
	texturePath   string
	settingsDirty bool
	preset        string
}

// Engine fronts an optional preset backend. All methods must be called from
// the goroutine that owns rendering.
type Engine struct {
	factory Factory
	backend Backend
	logger  *zap.SugaredLogger

	presetDir    string
	activePreset string
	settings     Settings
	width        int
	height       int

	pending pending
	events  chan Event
}

// New creates an Engine. A nil factory means no preset backend was built in.
func New(factory Factory, logger *zap.SugaredLogger) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{
		factory:  factory,
		logger:   logger,
		settings: DefaultSettings(),
		events:   make(chan Event, 64),
	}
}

// Events returns the notification channel.
func (e *Engine) Events() <-chan Event {
	return e.events
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		e.logger.Debugw("engine event dropped", "kind", ev.Kind)
	}
}

func (e *Engine) status(format string, args ...any) {
	e.emit(Event{Kind: EventStatus, Message: fmt.Sprintf(format, args...)})
}

// SetPresetDirectory records the preset root, also used as texture search path.
func (e *Engine) SetPresetDirectory(dir string) {
	e.presetDir = dir
	e.pending.texturePath = dir
}

// PresetDirectory returns the current preset root.
func (e *Engine) PresetDirectory() string {
	return e.presetDir
}

// LoadPreset queues path for the next rendered frame.
func (e *Engine) LoadPreset(path string) bool {
	if path == "" {
		return false
	}
	e.activePreset = path
	e.pending.preset = path
	e.emit(Event{Kind: EventPresetChanged, Preset: path})
	e.status("Loaded preset: %s", filepath.Base(path))
	return true
}

// ActivePreset returns the most recently requested preset path.
func (e *Engine) ActivePreset() string {
	return e.activePreset
}

// ApplySettings stores settings and marks them for the next frame.
func (e *Engine) ApplySettings(s Settings) {
	e.settings = s.Normalize()
	e.pending.settingsDirty = true
	e.status("Updated engine settings.")
}

// Settings returns the last applied settings.
func (e *Engine) Settings() Settings {
	return e.settings
}

// InitializeRenderer creates the backend for a width x height frame.
func (e *Engine) InitializeRenderer(width, height int) bool {
	e.width = width
	e.height = height
	if e.backend != nil {
		e.backend.Resize(width, height)
		return true
	}
	if e.factory == nil {
		e.status("Preset backend not available. Running preview fallback.")
		return false
	}

	backend, err := e.factory(width, height)
	if err != nil {
		e.logger.Warnw("preset backend init failed", "error", err)
		e.status("Preset backend failed to initialize: %v", err)
		return false
	}
	e.backend = backend
	e.pending.settingsDirty = true
	e.pending.texturePath = e.presetDir
	if e.activePreset != "" {
		e.pending.preset = e.activePreset
	}
	e.status("Preset renderer active")
	return true
}

// ResizeRenderer forwards new dimensions to the backend.
func (e *Engine) ResizeRenderer(width, height int) {
	e.width = width
	e.height = height
	if e.backend == nil {
		return
	}
	e.backend.Resize(width, height)
}

// RenderFrame applies pending state and renders into dst.
func (e *Engine) RenderFrame(dst Target) bool {
	if e.backend == nil || dst == nil {
		return false
	}
	e.applyPending()
	e.backend.Render(dst.Canvas())
	return true
}

// HasBackend reports whether a preset backend is live.
func (e *Engine) HasBackend() bool {
	return e.backend != nil
}

// Backend exposes the live backend, or nil.
func (e *Engine) Backend() Backend {
	return e.backend
}

// ResetRenderer destroys the backend and requeues state for the next init.
func (e *Engine) ResetRenderer() {
	if e.backend != nil {
		e.backend.Close()
		e.backend = nil
	}
	e.pending.settingsDirty = true
	e.pending.texturePath = e.presetDir
	if e.activePreset != "" {
		e.pending.preset = e.activePreset
	}
}

// SubmitAudioFrame feeds PCM to the backend. It emits no event.
func (e *Engine) SubmitAudioFrame(samples []float32) {
	if e.backend != nil && len(samples) > 0 {
		e.backend.AddPCM(samples)
	}
}

func (e *Engine) applyPending() {
	if e.pending.texturePath != "" {
		e.backend.SetTexturePath(e.pending.texturePath)
		e.pending.texturePath = ""
	}
	if e.pending.settingsDirty {
		e.backend.Apply(e.settings)
		e.pending.settingsDirty = false
	}
	if e.pending.preset != "" {
		path := e.pending.preset
		e.pending.preset = ""
		if err := e.backend.LoadPreset(path, true); err != nil {
			e.logger.Warnw("preset load failed", "path", path, "error", err)
			e.status("Failed to load preset: %s", filepath.Base(path))
		}
	}
}
