package engine

import "math"

type colorMode string

const (
	colorModeChromatic colorMode = "chromatic"
	colorModeFire      colorMode = "fire"
	colorModeAurora    colorMode = "aurora"
	colorModeMono      colorMode = "mono"
)

var colorModes = []colorMode{colorModeChromatic, colorModeFire, colorModeAurora, colorModeMono}

// shade maps a pattern value in [-1,1] to 8-bit RGB.
func shade(mode colorMode, value, hueOffset float64, m *motion) (uint8, uint8, uint8) {
	base := clamp01((value + 1.0) * 0.5)
	brightness := clamp01((value*m.amplitude+1.0)*0.5) * m.brightness
	shift := math.Mod(m.colorShift/(2*math.Pi)+hueOffset, 1.0)
	if shift < 0 {
		shift += 1.0
	}

	var h, s, v float64
	switch mode {
	case colorModeFire:
		h = clamp01(0.02 + base*0.08 + shift*0.1)
		s = clamp01(0.7 + brightness*0.25)
		v = clamp01(0.35*brightness + brightness*0.8 + base*0.2)
	case colorModeAurora:
		h = math.Mod(0.45+base*0.25+shift*0.3, 1.0)
		s = clamp01(0.45 + m.saturation*0.45)
		v = clamp01(0.28*brightness + brightness*0.85 + base*0.12)
	case colorModeMono:
		h = shift
		s = 0
		v = clamp01(brightness)
	default:
		h = math.Mod(shift+base*0.35, 1.0)
		s = clamp01(0.35 + m.saturation*0.5)
		v = clamp01(brightness*0.9 + base*0.2)
	}

	r, g, b := hsvToRGB(h, s, v)
	return uint8(r*255 + 0.5), uint8(g*255 + 0.5), uint8(b*255 + 0.5)
}

func hsvToRGB(h, s, v float64) (float64, float64, float64) {
	h = clamp01(h)
	s = clamp01(s)
	v = clamp01(v)

	if s == 0 {
		return v, v, v
	}

	hv := h * 6.0
	i := math.Floor(hv)
	f := hv - i
	p := v * (1.0 - s)
	q := v * (1.0 - s*f)
	t := v * (1.0 - s*(1.0-f))

	switch int(i) % 6 {
	case 0:
		return v, t, p
	case 1:
		return q, v, p
	case 2:
		return p, v, t
	case 3:
		return p, q, v
	case 4:
		return t, p, v
	default:
		return v, p, q
	}
}
