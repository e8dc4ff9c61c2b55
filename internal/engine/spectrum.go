package engine

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
)

// Bands holds normalized spectral energy and a decaying beat pulse.
type Bands struct {
	Bass    float64
	Mid     float64
	Treble  float64
	Overall float64
	Beat    float64
}

// Spectrum runs a windowed FFT over mono PCM and tracks band envelopes.
type Spectrum struct {
	sampleRate float64

	bassPeak   float64
	midPeak    float64
	treblePeak float64
	lastBass   float64
	beatPulse  float64

	buffer []complex128
	window []float64
}

// NewSpectrum returns an analyzer for the given sample rate.
func NewSpectrum(sampleRate float64) *Spectrum {
	if sampleRate <= 0 {
		sampleRate = 48_000
	}
	return &Spectrum{sampleRate: sampleRate}
}

// Analyze extracts bands from samples. sensitivity scales beat detection.
func (s *Spectrum) Analyze(samples []float32, sensitivity float64) Bands {
	if len(samples) == 0 {
		s.beatPulse *= 0.88
		return Bands{Beat: s.beatPulse}
	}
	if sensitivity <= 0 {
		sensitivity = 1
	}

	size := nextPow2(len(samples))
	if size > 2048 {
		size = 2048
	}
	if size < 256 {
		size = 256
	}
	s.ensureWorkspace(size)

	// newest samples matter most
	if len(samples) > size {
		samples = samples[len(samples)-size:]
	}
	for i := range s.buffer {
		if i < len(samples) {
			s.buffer[i] = complex(float64(samples[i])*s.window[i], 0)
			continue
		}
		s.buffer[i] = 0
	}
	spectrum := fft.FFT(s.buffer)

	resolution := s.sampleRate / float64(size)
	bass := bandEnergy(spectrum, resolution, 20, 250)
	mid := bandEnergy(spectrum, resolution, 250, 2000)
	treble := bandEnergy(spectrum, resolution, 2000, 8000)

	s.bassPeak = envelope(s.bassPeak, bass, 0.94, 0.75)
	s.midPeak = envelope(s.midPeak, mid, 0.94, 0.78)
	s.treblePeak = envelope(s.treblePeak, treble, 0.94, 0.8)

	out := Bands{
		Bass:   expand(bass, s.bassPeak),
		Mid:    expand(mid, s.midPeak),
		Treble: expand(treble, s.treblePeak),
	}
	out.Overall = (out.Bass + out.Mid + out.Treble) / 3

	onset := clamp((bass-s.lastBass)*14*sensitivity, 0, 1)
	if onset > 0.12 {
		s.beatPulse = 1
	}
	s.beatPulse *= 0.88
	out.Beat = math.Min(1, onset+s.beatPulse*0.7)
	s.lastBass = bass
	return out
}

func (s *Spectrum) ensureWorkspace(size int) {
	if len(s.buffer) == size {
		return
	}
	s.buffer = make([]complex128, size)
	s.window = make([]float64, size)
	for i := range s.window {
		s.window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size)))
	}
}

func bandEnergy(spectrum []complex128, resolution, loHz, hiHz float64) float64 {
	lo := int(math.Floor(loHz / resolution))
	hi := int(math.Ceil(hiHz/resolution)) + 1
	if hi > len(spectrum)/2 {
		hi = len(spectrum) / 2
	}
	if lo >= hi {
		return 0
	}
	sum := 0.0
	for _, c := range spectrum[lo:hi] {
		sum += math.Hypot(real(c), imag(c))
	}
	return math.Min(1, sum/float64(hi-lo))
}

func envelope(current, input, attack, release float64) float64 {
	if input > current {
		return current*attack + input*(1-attack)
	}
	return current * release
}

// expand pushes values near the running peak upward so quiet passages still move.
func expand(value, peak float64) float64 {
	if peak < 0.01 {
		return value
	}
	ratio := math.Max(0, value/peak)
	out := math.Pow(ratio, 0.7) * peak
	if ratio > 0.85 {
		out *= 1 + (ratio-0.85)*2
	}
	return math.Min(1, out)
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

func lerp(a, b, t float64) float64 {
	return a*(1-t) + b*t
}
