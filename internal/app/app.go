package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/guidoenr/presetdeck/internal/audio"
	"github.com/guidoenr/presetdeck/internal/config"
	"github.com/guidoenr/presetdeck/internal/engine"
	"github.com/guidoenr/presetdeck/internal/library"
	"github.com/guidoenr/presetdeck/internal/playback"
	"github.com/guidoenr/presetdeck/internal/surface"
	"github.com/guidoenr/presetdeck/internal/web"
)

const (
	sampleRate  = 48000
	scaleStep   = 5
	windowTitle = "presetdeck"
)

// statusSink receives the one-line status shown under the picture.
type statusSink interface {
	SetStatus(string)
}

// Deps are the collaborators New would otherwise build from Config.
type Deps struct {
	GPU     surface.GPU
	Status  statusSink
	Closers []func() error
	Source  func() audio.Source
}

// App ties together audio capture, the preset engine, the render surface and the playlist.
// Everything below is owned by the goroutine running Run.
type App struct {
	cfg *config.Config
	log *zap.SugaredLogger

	store    *library.Store
	settings library.Settings
	library  *library.Library

	audio   *audio.Manager
	engine  *engine.Engine
	surface *surface.Surface
	coord   *playback.Coordinator
	web     *web.Server
	prof    *profiler

	gpu     surface.GPU
	status  statusSink
	closers []func() error

	inputEvents chan inputEvent
	lastStatus  string
	showFPS     bool
	terminal    bool
	closed      bool
}

// New builds the application from cfg, creating the output device itself.
func New(cfg *config.Config, logger *zap.SugaredLogger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	store := library.NewStore(cfg.DataDir)
	settings, err := store.LoadSettings()
	if err != nil {
		logger.Warnw("settings unreadable, using defaults", "error", err)
	}

	pref := config.ResolveGPUPreference(cfg.GPUPreference, settings.GPUPreference)
	if prime := config.ApplyGPUPreference(pref); prime != "" {
		logger.Debugw("gpu preference", "preference", pref, "DRI_PRIME", prime)
	}
	if cfg.PipeWireTarget != "" {
		os.Setenv(audio.DefaultTargetEnv, cfg.PipeWireTarget)
	}

	var deps Deps
	if cfg.Window {
		gl, err := surface.NewGL(windowTitle, cfg.Width, cfg.Height)
		if err != nil {
			return nil, fmt.Errorf("window: %w", err)
		}
		deps.GPU = gl
		deps.Closers = append(deps.Closers, gl.Close)
	} else {
		term := surface.NewTerminal(os.Stdout, int(os.Stdout.Fd()), !cfg.NoColor, cfg.Palette)
		deps.GPU = surface.NewSoftware(cfg.Width, cfg.Height, term)
		deps.Status = term
		deps.Closers = append(deps.Closers, term.Close)
	}

	a := newApp(cfg, logger, store, settings, deps)
	a.terminal = !cfg.Window
	return a, nil
}

func newApp(cfg *config.Config, logger *zap.SugaredLogger, store *library.Store, settings library.Settings, deps Deps) *App {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	a := &App{
		cfg:      cfg,
		log:      logger,
		store:    store,
		settings: settings,
		library:  library.New(),
		gpu:      deps.GPU,
		status:   deps.Status,
		closers:  deps.Closers,
	}
	if cfg.AudioDevice != "" {
		a.settings.AudioDeviceID = cfg.AudioDevice
	}
	if cfg.PresetDir != "" {
		a.settings.PresetDirectory = cfg.PresetDir
	}
	a.settings.Settings = a.settings.Settings.Normalize()

	var factory engine.Factory
	if strings.EqualFold(cfg.Engine, "procedural") {
		factory = engine.NewProcedural(sampleRate)
	}
	a.engine = engine.New(factory, logger)
	a.engine.ApplySettings(a.settings.Settings)

	a.surface = surface.New(a.gpu, a.engine, logger)
	if !surface.ApplyUpscaler(a.surface, a.settings.UpscalerPreset) {
		a.surface.SetRenderScalePercent(a.settings.RenderScalePercent)
		a.surface.SetUpscaleSharpness(a.settings.UpscalerSharpness)
	}
	a.showFPS = cfg.ShowFPS
	a.surface.SetFPSDisplay(a.showFPS)

	if err := a.library.SetDirectory(a.settings.PresetDirectory); err != nil {
		a.log.Warnw("preset scan failed", "dir", a.settings.PresetDirectory, "error", err)
	}
	a.library.ApplyMetadata(store.LoadMetadata())

	a.coord = playback.NewCoordinator(a.initialPlaylist(), a.engine, playback.Config{
		Mode:      playback.ParseMode(a.settings.AdvanceMode),
		Duration:  time.Duration(a.settings.AdvanceSeconds) * time.Second,
		BeatCount: a.settings.AdvanceBeats,
		Threshold: a.settings.BeatThreshold,
		Shuffle:   a.settings.Shuffle,
		Notify:    a.notify,
		Logger:    logger,
	})

	create := deps.Source
	if create == nil {
		backend := cfg.AudioBackend
		opts := audio.Options{
			PipeWire: audio.PipeWireConfig{
				StartTimeout: cfg.StartTimeout,
				Probe: audio.ProbeConfig{
					Iterations: cfg.ProbeIterations,
					Tick:       cfg.ProbeTick,
				},
			},
			Logger: logger,
		}
		create = func() audio.Source { return audio.New(backend, opts) }
	}
	a.audio = audio.NewManager(audio.ManagerConfig{
		Create:   create,
		DeviceID: a.settings.AudioDeviceID,
		Notify:   a.notify,
		Logger:   logger,
	})

	if cfg.WebAddr != "" {
		a.web = web.NewServer(logger)
	}
	a.prof = newProfiler(cfg.ProfilePath, logger)
	return a
}

// initialPlaylist loads the named playlist, or builds one from every scanned preset.
func (a *App) initialPlaylist() *library.Playlist {
	name := a.cfg.Playlist
	if name == "" {
		name = a.settings.Playlist
	}
	if name != "" {
		p, err := a.store.LoadPlaylist(name)
		if err == nil {
			return p
		}
		a.log.Warnw("playlist unavailable", "name", name, "error", err)
	}
	p := library.NewPlaylist("library")
	for _, preset := range a.library.Presets() {
		p.Add(library.Item{PresetName: preset.Name, PresetPath: preset.Path})
	}
	return p
}

// Run drives the event loop until ctx is cancelled or the user quits.
func (a *App) Run(ctx context.Context) error {
	if a.terminal {
		enterAltScreen()
		defer exitAltScreen()
	}

	now := time.Now()
	a.engine.SetPresetDirectory(a.settings.PresetDirectory)
	a.surface.Initialize(now)
	a.audio.Open()
	a.audio.Collect()
	if a.coord.Playlist().Len() > 0 {
		if err := a.coord.Toggle(now); err != nil {
			a.log.Debugw("autoplay", "error", err)
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if a.cfg.Keyboard {
		a.startInputListener(loopCtx)
	}
	var commands <-chan web.Command
	if a.web != nil {
		commands = a.web.Commands()
		a.web.PublishDevices(a.audio.Devices())
		go func() {
			if err := a.web.Run(loopCtx, a.cfg.WebAddr); err != nil {
				a.log.Errorw("control server stopped", "error", err)
			}
		}()
	}

	repaint := time.NewTicker(a.cfg.RepaintInterval)
	defer repaint.Stop()
	coordinate := time.NewTicker(a.cfg.CoordinationInterval)
	defer coordinate.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-a.audio.Events():
			a.handleAudio(ev, time.Now())
			a.audio.Collect()
		case ev := <-a.engine.Events():
			a.handleEngine(ev, time.Now())
		case now := <-repaint.C:
			if err := a.paint(now); err != nil {
				if errors.Is(err, surface.ErrQuit) {
					return nil
				}
				return err
			}
		case now := <-coordinate.C:
			a.coord.Tick(now)
			a.publish(now)
		case evt, ok := <-a.inputEvents:
			if !ok {
				a.inputEvents = nil
				continue
			}
			if !a.handleInput(evt, time.Now()) {
				return nil
			}
		case cmd := <-commands:
			a.handleCommand(cmd, time.Now())
		}
	}
}

func (a *App) handleAudio(ev audio.Event, now time.Time) {
	if !a.audio.Accept(ev) {
		return
	}
	switch ev.Kind {
	case audio.EventFrame:
		a.engine.SubmitAudioFrame(ev.Samples)
		a.surface.SetLastFrame(ev.Samples)
		a.coord.OnFrame(ev.Samples, now)
	case audio.EventStatus:
		a.notify(ev.Message)
	case audio.EventError:
		a.audio.HandleError(ev.Message)
		if a.web != nil {
			a.web.PublishDevices(a.audio.Devices())
		}
	}
}

func (a *App) handleEngine(ev engine.Event, now time.Time) {
	switch ev.Kind {
	case engine.EventPresetChanged:
		a.surface.ShowPresetOverlay(ev.Preset, now)
	case engine.EventStatus:
		a.notify(ev.Message)
	}
}

func (a *App) paint(now time.Time) error {
	a.prof.beginFrame()
	if a.status != nil {
		a.status.SetStatus(a.statusLine())
	}
	a.prof.markSection("status")
	err := a.surface.Paint(now)
	a.prof.markSection("paint")
	a.prof.endFrame()
	if err != nil && !errors.Is(err, surface.ErrQuit) {
		a.log.Warnw("paint failed", "error", err)
		return nil
	}
	return err
}

func (a *App) handleCommand(cmd web.Command, now time.Time) {
	var err error
	switch cmd.Kind {
	case web.CommandNext:
		err = a.coord.Next(now)
	case web.CommandPrev:
		err = a.coord.Previous(now)
	case web.CommandToggle:
		err = a.coord.Toggle(now)
	case web.CommandDevice:
		a.applyDevice(cmd.DeviceID, cmd.Label)
	}
	if err != nil {
		a.log.Debugw("command", "kind", cmd.Kind, "error", err)
	}
}

// applyDevice persists the choice first, then swaps the capture source.
func (a *App) applyDevice(id, label string) {
	if id == a.settings.AudioDeviceID && id == a.audio.DeviceID() {
		return
	}
	a.settings.AudioDeviceID = id
	a.saveSettings()
	a.audio.ApplyDevice(id, label)
	a.audio.Collect()
	if a.web != nil {
		a.web.PublishDevices(a.audio.Devices())
	}
}

func (a *App) notify(message string) {
	if message == "" {
		return
	}
	a.lastStatus = message
	a.log.Infow("status", "message", message)
}

func (a *App) statusLine() string {
	parts := []string{a.audio.Label()}
	if p := a.engine.ActivePreset(); p != "" {
		parts = append(parts, "preset="+presetName(p))
	}
	state := "paused"
	if a.coord.Playing() {
		state = "playing"
	}
	parts = append(parts, fmt.Sprintf("%s/%s", state, a.coord.Mode()))
	if a.coord.Shuffle() {
		parts = append(parts, "shuffle")
	}
	size := a.surface.RenderSize()
	parts = append(parts, fmt.Sprintf("%dx%d@%d%%", size.X, size.Y, a.surface.RenderScalePercent()))
	if a.lastStatus != "" {
		parts = append(parts, a.lastStatus)
	}
	return strings.Join(parts, " | ")
}

func (a *App) publish(now time.Time) {
	if a.web == nil {
		return
	}
	size := a.surface.RenderSize()
	a.web.Publish(web.Status{
		Preset:       a.engine.ActivePreset(),
		Playback:     a.coord.State(now),
		Audio:        a.audio.Label(),
		FPS:          a.surface.FPS(),
		RenderWidth:  size.X,
		RenderHeight: size.Y,
		Upscaler:     surface.DetectUpscaler(a.surface.RenderScalePercent(), a.surface.Sharpness()),
		LastStatus:   a.lastStatus,
	})
}

func (a *App) saveSettings() {
	a.settings.Settings = a.engine.Settings()
	a.settings.RenderScalePercent = a.surface.RenderScalePercent()
	a.settings.UpscalerSharpness = a.surface.Sharpness()
	a.settings.UpscalerPreset = surface.DetectUpscaler(a.settings.RenderScalePercent, a.settings.UpscalerSharpness)
	a.settings.AdvanceMode = a.coord.Mode().String()
	a.settings.Shuffle = a.coord.Shuffle()
	if err := a.store.SaveSettings(a.settings); err != nil {
		a.log.Warnw("save settings", "error", err)
	}
}

// Settings returns the in-memory persisted state.
func (a *App) Settings() library.Settings {
	return a.settings
}

// Close releases held resources. Safe to call more than once.
func (a *App) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	a.saveSettings()
	a.surface.Cleanup()
	a.audio.Close()

	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	return multierr.Append(err, a.prof.Close())
}

func presetName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func enterAltScreen() {
	fmt.Print("\x1b[?1049h")
}

func exitAltScreen() {
	fmt.Print("\x1b[?1049l\x1b[0m")
}
