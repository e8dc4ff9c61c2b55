package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config holds runtime options. Precedence: flags > environment > .env > defaults.
// An empty GPUPreference defers to the persisted setting; an empty WebAddr
// disables the control server.
type Config struct {
	PresetDir      string `env:"PRESETDECK_PRESET_DIR"`
	DataDir        string `env:"PRESETDECK_DATA_DIR"`
	AudioBackend   string `env:"PRESETDECK_AUDIO_BACKEND"`
	AudioDevice    string `env:"PRESETDECK_AUDIO_DEVICE"`
	PipeWireTarget string `env:"PRESETDECK_PIPEWIRE_TARGET"`
	GPUPreference  string `env:"PRESETDECK_GPU"`
	Engine         string `env:"PRESETDECK_ENGINE"`

	Width    int  `env:"PRESETDECK_WIDTH"`
	Height   int  `env:"PRESETDECK_HEIGHT"`
	Window   bool `env:"PRESETDECK_WINDOW"`
	NoColor  bool `env:"PRESETDECK_NO_COLOR"`
	ShowFPS  bool `env:"PRESETDECK_SHOW_FPS"`
	Debug    bool `env:"PRESETDECK_DEBUG"`
	Keyboard bool `env:"PRESETDECK_KEYBOARD"`

	Palette     string `env:"PRESETDECK_PALETTE"`
	WebAddr     string `env:"PRESETDECK_WEB_ADDR"`
	ProfilePath string `env:"PRESETDECK_PROFILE"`
	Playlist    string `env:"PRESETDECK_PLAYLIST"`

	ProbeIterations      int           `env:"PRESETDECK_PROBE_ITERATIONS"`
	ProbeTick            time.Duration `env:"PRESETDECK_PROBE_TICK"`
	StartTimeout         time.Duration `env:"PRESETDECK_START_TIMEOUT"`
	RepaintInterval      time.Duration `env:"PRESETDECK_REPAINT_INTERVAL"`
	CoordinationInterval time.Duration `env:"PRESETDECK_COORDINATION_INTERVAL"`

	ListDevices bool
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		DataDir:              defaultDataDir(),
		AudioBackend:         "pipewire",
		Engine:               "procedural",
		Width:                960,
		Height:               540,
		Keyboard:             true,
		Palette:              "default",
		ProbeIterations:      50,
		ProbeTick:            50 * time.Millisecond,
		StartTimeout:         3 * time.Second,
		RepaintInterval:      16 * time.Millisecond,
		CoordinationInterval: 200 * time.Millisecond,
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "presetdeck")
	}
	return ".presetdeck"
}

// Load builds a Config from .env, the environment and args.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	fs := flag.NewFlagSet("presetdeck", flag.ContinueOnError)
	fs.StringVar(&cfg.PresetDir, "preset-dir", cfg.PresetDir, "Directory scanned for .milk/.prjm presets")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory for settings, metadata and playlists")
	fs.StringVar(&cfg.AudioBackend, "audio-backend", cfg.AudioBackend, "Capture backend (pipewire|portaudio|dummy)")
	fs.StringVar(&cfg.AudioDevice, "audio-device", cfg.AudioDevice, "Capture device id (overrides the persisted one)")
	fs.StringVar(&cfg.PipeWireTarget, "pipewire-target", cfg.PipeWireTarget, "Force a PipeWire capture target")
	fs.StringVar(&cfg.GPUPreference, "gpu", cfg.GPUPreference, "GPU preference (auto|dgpu|igpu)")
	fs.StringVar(&cfg.Engine, "engine", cfg.Engine, "Preset engine (procedural|none)")
	fs.IntVar(&cfg.Width, "width", cfg.Width, "Window width in pixels")
	fs.IntVar(&cfg.Height, "height", cfg.Height, "Window height in pixels")
	fs.BoolVar(&cfg.Window, "window", cfg.Window, "Render into an SDL/OpenGL window (requires -tags sdl)")
	fs.BoolVar(&cfg.NoColor, "no-color", cfg.NoColor, "Disable ANSI color output in the terminal")
	fs.BoolVar(&cfg.ShowFPS, "fps", cfg.ShowFPS, "Show the FPS counter")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable verbose logging")
	fs.BoolVar(&cfg.Keyboard, "keyboard", cfg.Keyboard, "Listen for hotkeys on the terminal")
	fs.StringVar(&cfg.Palette, "palette", cfg.Palette, "Glyph palette for -no-color (default|box|lines|spark)")
	fs.StringVar(&cfg.WebAddr, "web", cfg.WebAddr, "Serve the control API on this address (e.g. :8080)")
	fs.StringVar(&cfg.ProfilePath, "profile", cfg.ProfilePath, "Write paint timings as CSV to this file")
	fs.StringVar(&cfg.Playlist, "playlist", cfg.Playlist, "Stored playlist to load at startup")
	fs.IntVar(&cfg.ProbeIterations, "probe-iterations", cfg.ProbeIterations, "Device probe loop iterations")
	fs.DurationVar(&cfg.ProbeTick, "probe-tick", cfg.ProbeTick, "Device probe wait per iteration")
	fs.DurationVar(&cfg.StartTimeout, "start-timeout", cfg.StartTimeout, "Capture stream startup timeout")
	fs.DurationVar(&cfg.RepaintInterval, "repaint", cfg.RepaintInterval, "Repaint interval")
	fs.DurationVar(&cfg.CoordinationInterval, "coordination", cfg.CoordinationInterval, "Playlist coordination interval")
	fs.BoolVar(&cfg.ListDevices, "list-audio-devices", false, "List capture devices and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the application cannot run with.
func (c *Config) Validate() error {
	var errs []string
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Sprintf("invalid dimensions: width=%d height=%d", c.Width, c.Height))
	}
	switch strings.ToLower(c.AudioBackend) {
	case "pipewire", "portaudio", "dummy":
	default:
		errs = append(errs, fmt.Sprintf("unknown audio backend %q", c.AudioBackend))
	}
	switch strings.ToLower(c.Engine) {
	case "procedural", "none":
	default:
		errs = append(errs, fmt.Sprintf("unknown engine %q", c.Engine))
	}
	if c.GPUPreference != "" {
		if _, ok := parseGPUPreference(c.GPUPreference); !ok {
			errs = append(errs, fmt.Sprintf("unknown gpu preference %q", c.GPUPreference))
		}
	}
	if c.RepaintInterval <= 0 || c.CoordinationInterval <= 0 {
		errs = append(errs, "intervals must be positive")
	}
	if c.ProbeIterations <= 0 || c.ProbeTick <= 0 {
		errs = append(errs, "probe iterations and tick must be positive")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
