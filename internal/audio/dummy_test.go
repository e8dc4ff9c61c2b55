package audio

import (
	"math"
	"testing"
	"time"
)

func TestDummyFramesContinueSinePhase(t *testing.T) {
	d := NewDummy()
	first := d.nextFrame()
	second := d.nextFrame()
	if len(first) != 512 || len(second) != 512 {
		t.Fatalf("frame sizes=%d,%d want=512", len(first), len(second))
	}
	if first[0] != 0 {
		t.Fatalf("first sample=%f want=0", first[0])
	}
	want := float32(math.Sin(512 * 0.07))
	if math.Abs(float64(second[0]-want)) > 1e-3 {
		t.Fatalf("second frame start=%f want=%f", second[0], want)
	}
}

func TestDummyStartStopIdempotent(t *testing.T) {
	d := NewDummy()
	d.interval = time.Millisecond
	events := make(chan Event, 64)
	d.Attach(events)

	d.Stop()
	if !d.Start() || !d.Start() {
		t.Fatalf("Start()=false want=true")
	}
	if !d.IsRunning() {
		t.Fatalf("IsRunning()=false after start")
	}

	gotStatus, gotFrame := false, false
	deadline := time.After(2 * time.Second)
	for !gotStatus || !gotFrame {
		select {
		case ev := <-events:
			if ev.Source != d {
				t.Fatalf("event source=%v want dummy", ev.Source)
			}
			switch ev.Kind {
			case EventStatus:
				gotStatus = true
			case EventFrame:
				gotFrame = len(ev.Samples) == 512
			}
		case <-deadline:
			t.Fatalf("status=%v frame=%v", gotStatus, gotFrame)
		}
	}

	d.Stop()
	d.Stop()
	if d.IsRunning() {
		t.Fatalf("IsRunning()=true after stop")
	}
}

func TestDummyDevices(t *testing.T) {
	devices := NewDummy().AvailableDevices()
	if len(devices) != 1 || devices[0].ID != "dummy" || devices[0].Name != "Synthetic Signal" {
		t.Fatalf("devices=%+v", devices)
	}
}

func TestDetachedSourceDropsEvents(t *testing.T) {
	d := NewDummy()
	events := make(chan Event, 1)
	d.Attach(events)
	d.Attach(nil)
	if d.frame([]float32{1}) {
		t.Fatalf("detached source delivered an event")
	}
}
