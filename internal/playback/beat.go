package playback

import "math"

const (
	DefaultThreshold    = 0.12
	DefaultFallingRatio = 0.6
	DefaultWindow       = 1024
)

// BeatDetector counts rising edges of mean absolute amplitude with hysteresis:
// it goes high at Threshold and only re-arms below Threshold*FallingRatio.
type BeatDetector struct {
	Threshold    float64
	FallingRatio float64
	Window       int

	high bool
}

// NewBeatDetector returns a detector with default ratio and window.
func NewBeatDetector(threshold float64) *BeatDetector {
	return &BeatDetector{
		Threshold:    threshold,
		FallingRatio: DefaultFallingRatio,
		Window:       DefaultWindow,
	}
}

// Energy returns the mean absolute value over the first Window samples.
func (d *BeatDetector) Energy(samples []float32) float64 {
	n := len(samples)
	if d.Window > 0 && n > d.Window {
		n = d.Window
	}
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples[:n] {
		sum += math.Abs(float64(s))
	}
	return sum / float64(n)
}

// Feed reports whether samples produced a rising edge.
func (d *BeatDetector) Feed(samples []float32) bool {
	if len(samples) == 0 {
		return false
	}
	return d.FeedEnergy(d.Energy(samples))
}

// FeedEnergy advances the detector with a precomputed energy value.
func (d *BeatDetector) FeedEnergy(energy float64) bool {
	high := energy >= d.Threshold
	edge := high && !d.high
	if high {
		d.high = true
	} else if energy < d.Threshold*d.FallingRatio {
		d.high = false
	}
	return edge
}

// Reset re-arms the detector.
func (d *BeatDetector) Reset() {
	d.high = false
}
