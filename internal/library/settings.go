package library

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/guidoenr/presetdeck/internal/engine"
)

// Settings is the persisted application state.
type Settings struct {
	engine.Settings

	UpscalerPreset     string  `json:"upscalerPreset"`
	RenderScalePercent int     `json:"renderScalePercent"`
	UpscalerSharpness  float64 `json:"upscalerSharpness"`
	GPUPreference      string  `json:"gpuPreference"`
	AudioDeviceID      string  `json:"audioDeviceId"`
	PresetDirectory    string  `json:"presetDirectory"`

	AdvanceMode    string  `json:"advanceMode"`
	AdvanceSeconds int     `json:"advanceSeconds"`
	AdvanceBeats   int     `json:"advanceBeats"`
	BeatThreshold  float64 `json:"beatThreshold"`
	Shuffle        bool    `json:"shuffle"`
	Playlist       string  `json:"playlist"`
}

// DefaultSettings returns first-run values.
func DefaultSettings() Settings {
	return Settings{
		Settings:           engine.DefaultSettings(),
		UpscalerPreset:     "balanced",
		RenderScalePercent: 77,
		UpscalerSharpness:  0.2,
		GPUPreference:      "dgpu",
		AdvanceMode:        "duration",
		AdvanceSeconds:     20,
		AdvanceBeats:       16,
		BeatThreshold:      0.12,
	}
}

// SettingsPath returns the settings file location.
func (s *Store) SettingsPath() string {
	return filepath.Join(s.dir, settingsFile)
}

// LoadSettings overlays stored values on the defaults. A missing file is not an error.
func (s *Store) LoadSettings() (Settings, error) {
	out := DefaultSettings()
	path := s.SettingsPath()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return out, newError("load settings", path, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return DefaultSettings(), newError("load settings", path, ErrInvalidDocument)
	}
	return out, nil
}

// SaveSettings writes settings to disk.
func (s *Store) SaveSettings(settings Settings) error {
	path := s.SettingsPath()
	data, err := json.MarshalIndent(settings, "", "    ")
	if err != nil {
		return newError("save settings", path, err)
	}
	if err := writeFile(path, data); err != nil {
		return newError("save settings", path, err)
	}
	return nil
}
