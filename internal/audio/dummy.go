package audio

import (
	"math"
	"sync"
	"time"
)

const (
	dummyBackendName = "Dummy"
	dummyFrameSize   = 512
	dummyInterval    = 16 * time.Millisecond
	dummyPhaseStep   = 0.07
)

// Dummy generates a deterministic sine signal so consumers always receive frames.
type Dummy struct {
	emitter
	selected selection

	mu      sync.Mutex
	running bool
	quit    chan struct{}
	done    chan struct{}
	phase   float64

	interval time.Duration
}

// NewDummy returns a stopped synthetic source.
func NewDummy() *Dummy {
	return &Dummy{interval: dummyInterval}
}

func (d *Dummy) Start() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return true
	}
	d.running = true
	d.quit = make(chan struct{})
	d.done = make(chan struct{})
	go d.run(d.quit, d.done)
	d.status("Audio backend: dummy signal (PipeWire unavailable).")
	return true
}

func (d *Dummy) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	quit, done := d.quit, d.done
	d.quit, d.done = nil, nil
	d.mu.Unlock()

	close(quit)
	<-done
}

func (d *Dummy) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *Dummy) BackendName() string { return dummyBackendName }

func (d *Dummy) AvailableDevices() []DeviceInfo {
	return []DeviceInfo{{
		ID:          "dummy",
		Name:        "Synthetic Signal",
		Description: "Built-in dummy generator",
	}}
}

func (d *Dummy) SelectedDeviceID() string { return d.selected.get() }

func (d *Dummy) SetSelectedDeviceID(id string) { d.selected.set(id) }

func (d *Dummy) Attach(out chan<- Event) { d.attach(d, out) }

func (d *Dummy) run(quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			d.frame(d.nextFrame())
		}
	}
}

// nextFrame continues the sine from where the previous frame ended.
func (d *Dummy) nextFrame() []float32 {
	frame := make([]float32, dummyFrameSize)
	for i := range frame {
		frame[i] = float32(math.Sin(d.phase))
		d.phase += dummyPhaseStep
	}
	return frame
}
