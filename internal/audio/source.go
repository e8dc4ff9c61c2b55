package audio

import (
	"sync"
	"sync/atomic"
)

// DeviceInfo describes a capture endpoint reported by a backend.
type DeviceInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// EventKind identifies what a source is reporting.
type EventKind int

const (
	EventFrame EventKind = iota
	EventStatus
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventFrame:
		return "frame"
	case EventStatus:
		return "status"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is delivered from a source to whoever it is attached to.
type Event struct {
	Kind    EventKind
	Samples []float32
	Message string
	Source  Source
}

// Source is a capture backend producing mono PCM frames.
type Source interface {
	// Start returns false when the backend cannot be initialized.
	Start() bool
	// Stop is synchronous and safe to call repeatedly.
	Stop()
	IsRunning() bool
	BackendName() string
	AvailableDevices() []DeviceInfo
	SelectedDeviceID() string
	// SetSelectedDeviceID takes effect on the next Start.
	SetSelectedDeviceID(id string)
	// Attach routes events to out. A nil channel detaches the source.
	Attach(out chan<- Event)
}

// controlShare reserves cap/controlShare slots of the attached channel for
// status and error events; frames are dropped once the rest is full.
const controlShare = 8

// emitter holds the attached channel of a source. Sends never block.
type emitter struct {
	mu    sync.RWMutex
	out   chan<- Event
	owner Source
	drops atomic.Uint64
}

func (e *emitter) attach(owner Source, out chan<- Event) {
	e.mu.Lock()
	e.owner = owner
	e.out = out
	e.mu.Unlock()
}

func (e *emitter) emit(ev Event) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.out == nil {
		return false
	}
	ev.Source = e.owner
	if ev.Kind == EventFrame && len(e.out) >= cap(e.out)-cap(e.out)/controlShare {
		e.drops.Add(1)
		return false
	}
	select {
	case e.out <- ev:
		return true
	default:
		e.drops.Add(1)
		return false
	}
}

func (e *emitter) frame(samples []float32) bool {
	return e.emit(Event{Kind: EventFrame, Samples: samples})
}

func (e *emitter) status(msg string) bool {
	return e.emit(Event{Kind: EventStatus, Message: msg})
}

func (e *emitter) fail(msg string) bool {
	return e.emit(Event{Kind: EventError, Message: msg})
}

// selection is the mutex-guarded device id shared between the caller and a capture thread.
type selection struct {
	mu sync.Mutex
	id string
}

func (s *selection) get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *selection) set(id string) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

// downmix averages interleaved channels into one mono sample per frame.
func downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}
	mono := make([]float32, len(in)/channels)
	for i := range mono {
		sum := float32(0)
		base := i * channels
		for ch := 0; ch < channels; ch++ {
			sum += in[base+ch]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
