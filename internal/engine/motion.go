package engine

import "math"

// motion is the audio-reactive state shared by every pattern.
type motion struct {
	time       float64
	speed      float64
	amplitude  float64
	frequency  float64
	colorShift float64
	warp       float64
	zoom       float64
	brightness float64
	saturation float64
}

func newMotion() motion {
	return motion{
		speed:      0.3,
		amplitude:  0.6,
		frequency:  6.0,
		zoom:       1.0,
		brightness: 0.7,
		saturation: 0.85,
	}
}

func (m *motion) advance(b Bands, dt, sensitivity float64) {
	if b == (Bands{}) {
		m.decay(dt)
		m.time += dt * m.speed
		return
	}

	energy := math.Max(0.05, b.Bass*0.7+b.Mid*0.2+b.Treble*0.1)

	m.amplitude = lerp(m.amplitude, 0.6+b.Bass*1.1, 0.5)
	m.frequency = lerp(m.frequency, 6.0*(1+b.Bass*0.5+b.Mid*0.15), 0.4)
	m.speed = lerp(m.speed, 0.25+energy*0.9, 0.4)
	m.colorShift = math.Mod(m.colorShift+b.Bass*0.05+b.Treble*0.02, 2*math.Pi)
	m.warp = lerp(m.warp, b.Beat*(0.3+b.Bass*0.5), 0.5)
	m.brightness = clamp(0.55+b.Overall*0.5+b.Beat*0.25, 0, 1.4)
	m.saturation = lerp(m.saturation, clamp(0.75+b.Bass*0.3, 0, 1), 0.3)

	threshold := 0.16 / math.Max(0.1, sensitivity)
	if b.Beat > threshold {
		m.zoom = 1.0 + 0.12*b.Beat
	} else {
		m.zoom = lerp(m.zoom, 1.0, 0.15)
	}

	m.time += dt * m.speed
}

func (m *motion) decay(dt float64) {
	k := math.Pow(0.92, dt*60)
	m.amplitude = m.amplitude*k + 0.6*(1-k)
	m.frequency = m.frequency*k + 6.0*(1-k)
	m.speed = m.speed*k + 0.3*(1-k)
	m.warp *= k
	m.zoom = lerp(m.zoom, 1.0, 0.1)
	m.brightness = lerp(m.brightness, 0.7, 0.1)
	m.saturation = lerp(m.saturation, 0.85, 0.1)
}
