package engine

import (
	"math"
	"sort"
)

type patternFunc func(x, y float64, m *motion) float64

var patternRegistry = map[string]patternFunc{
	"plasma":  patternPlasma,
	"waves":   patternWaves,
	"ripples": patternRipples,
	"nebula":  patternNebula,
	"noise":   patternNoise,
	"tunnel":  patternTunnel,
}

// PatternNames returns the available pattern identifiers.
func PatternNames() []string {
	names := make([]string, 0, len(patternRegistry))
	for name := range patternRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func patternPlasma(x, y float64, m *motion) float64 {
	t := m.time
	v1 := math.Sin((x*3.4 + t*1.2) * 0.9)
	v2 := math.Sin((y*4.1 - t*0.7) * 1.1)
	v3 := math.Sin((x+y)*2.3 + t*1.7)
	return (v1 + v2 + v3) / 3.0
}

func patternWaves(x, y float64, m *motion) float64 {
	freq := m.frequency * 0.6
	return math.Sin((x+m.time*0.8)*freq) * math.Cos((y-m.time*0.5)*freq*1.1)
}

func patternRipples(x, y float64, m *motion) float64 {
	r := math.Hypot(x, y)
	theta := math.Atan2(y, x)
	return math.Sin(r*m.frequency*1.6 - m.time*2.2 + math.Sin(theta*3+m.time)*0.5)
}

func patternNebula(x, y float64, m *motion) float64 {
	base := patternPlasma(x*0.8, y*0.8, m)
	swirl := math.Sin((x-y)*1.5 + m.time*0.9)
	noise := fractalNoise(x*1.2+m.time*0.1, y*1.2-m.time*0.15)
	return clamp(base*0.6+swirl*0.2+noise*0.6, -1, 1)
}

func patternNoise(x, y float64, m *motion) float64 {
	scale := 2.5 + m.frequency*0.2
	return fractalNoise((x+m.colorShift)*scale+m.time*0.2, (y-m.colorShift)*scale-m.time*0.18)
}

func patternTunnel(x, y float64, m *motion) float64 {
	r := math.Max(0.05, math.Hypot(x, y))
	theta := math.Atan2(y, x)
	return math.Sin(1.0/r*1.5+m.time*2.0) * math.Cos(theta*4+m.time*0.6)
}

func fractalNoise(x, y float64) float64 {
	amp := 0.5
	freq := 1.0
	total := 0.0
	sumAmp := 0.0

	for i := 0; i < 4; i++ {
		total += valueNoise2(x*freq, y*freq) * amp
		sumAmp += amp
		amp *= 0.5
		freq *= 2.0
	}
	return (total/sumAmp)*2.0 - 1.0
}

func valueNoise2(x, y float64) float64 {
	x0 := math.Floor(x)
	y0 := math.Floor(y)

	sx := smoothstep(x - x0)
	sy := smoothstep(y - y0)

	ix0 := lerp(hash2(x0, y0), hash2(x0+1, y0), sx)
	ix1 := lerp(hash2(x0, y0+1), hash2(x0+1, y0+1), sx)
	return lerp(ix0, ix1, sy)
}

func hash2(x, y float64) float64 {
	return frac(math.Sin(x*127.1+y*311.7) * 43758.5453123)
}

func smoothstep(v float64) float64 {
	return v * v * (3 - 2*v)
}

func frac(v float64) float64 {
	return v - math.Floor(v)
}
