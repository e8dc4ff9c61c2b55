package engine

// Settings mirrors the knobs an external preset engine exposes.
type Settings struct {
	MeshX           int     `json:"meshX"`
	MeshY           int     `json:"meshY"`
	TargetFPS       int     `json:"targetFps"`
	BeatSensitivity float64 `json:"beatSensitivity"`
	HardCutEnabled  bool    `json:"hardCutEnabled"`
	HardCutDuration float64 `json:"hardCutDuration"`
}

// DefaultSettings returns the engine defaults.
func DefaultSettings() Settings {
	return Settings{
		MeshX:           32,
		MeshY:           24,
		TargetFPS:       60,
		BeatSensitivity: 1.0,
		HardCutEnabled:  true,
		HardCutDuration: 20,
	}
}

// Normalize clamps out-of-range values back to usable ones.
func (s Settings) Normalize() Settings {
	def := DefaultSettings()
	if s.MeshX < 8 {
		s.MeshX = 8
	}
	if s.MeshY < 6 {
		s.MeshY = 6
	}
	if s.MeshX > 256 {
		s.MeshX = 256
	}
	if s.MeshY > 256 {
		s.MeshY = 256
	}
	if s.TargetFPS <= 0 {
		s.TargetFPS = def.TargetFPS
	}
	if s.BeatSensitivity <= 0 {
		s.BeatSensitivity = def.BeatSensitivity
	}
	if s.HardCutDuration < 0 {
		s.HardCutDuration = 0
	}
	return s
}
