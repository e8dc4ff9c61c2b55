package surface

import (
	"math"
	"strings"
)

// Upscaler presets pair a render scale with a sharpen amount.
const (
	PresetQuality     = "quality"
	PresetBalanced    = "balanced"
	PresetPerformance = "performance"
	PresetCustom      = "custom"
)

// UpscalerPreset is a named render scale and sharpness pair.
type UpscalerPreset struct {
	Name         string
	ScalePercent int
	Sharpness    float64
}

var upscalerPresets = []UpscalerPreset{
	{Name: PresetQuality, ScalePercent: 85, Sharpness: 0.15},
	{Name: PresetBalanced, ScalePercent: 77, Sharpness: 0.20},
	{Name: PresetPerformance, ScalePercent: 67, Sharpness: 0.25},
}

// UpscalerPresets returns the built-in presets.
func UpscalerPresets() []UpscalerPreset {
	out := make([]UpscalerPreset, len(upscalerPresets))
	copy(out, upscalerPresets)
	return out
}

// LookupUpscaler finds a preset by name.
func LookupUpscaler(name string) (UpscalerPreset, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, p := range upscalerPresets {
		if p.Name == key {
			return p, true
		}
	}
	return UpscalerPreset{}, false
}

// DetectUpscaler names the preset matching scale and sharpness, or "custom".
func DetectUpscaler(scalePercent int, sharpness float64) string {
	for _, p := range upscalerPresets {
		if p.ScalePercent == scalePercent && math.Abs(p.Sharpness-sharpness) < 0.001 {
			return p.Name
		}
	}
	return PresetCustom
}

// ApplyUpscaler sets scale and sharpness on s from a named preset.
func ApplyUpscaler(s *Surface, name string) bool {
	p, ok := LookupUpscaler(name)
	if !ok {
		return false
	}
	s.SetRenderScalePercent(p.ScalePercent)
	s.SetUpscaleSharpness(p.Sharpness)
	return true
}
