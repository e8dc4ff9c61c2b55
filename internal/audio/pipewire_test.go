package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"reflect"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

type fakeTarget string

func (t fakeTarget) label() string { return string(t) }

type fakeStream struct {
	rec *recorder

	mu      sync.Mutex
	running bool
	err     error
}

func (s *fakeStream) Start() {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	s.rec.add("stream.start")
}

func (s *fakeStream) Stop() { s.rec.add("stream.stop") }

func (s *fakeStream) Close() { s.rec.add("stream.close") }

func (s *fakeStream) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *fakeStream) Error() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeStream) die(err error) {
	s.mu.Lock()
	s.running = false
	s.err = err
	s.mu.Unlock()
}

type fakeClient struct {
	rec        *recorder
	stream     *fakeStream
	resolveErr error
	recordErr  error

	mu       sync.Mutex
	resolved string
	writer   *frameWriter
	spec     streamSpec
}

func (c *fakeClient) resolve(id string) (recordTarget, error) {
	c.mu.Lock()
	c.resolved = id
	c.mu.Unlock()
	if c.resolveErr != nil {
		return nil, c.resolveErr
	}
	return fakeTarget(id), nil
}

func (c *fakeClient) record(w *frameWriter, _ recordTarget, spec streamSpec) (captureStream, error) {
	if c.recordErr != nil {
		return nil, c.recordErr
	}
	c.mu.Lock()
	c.writer = w
	c.spec = spec
	c.mu.Unlock()
	return c.stream, nil
}

func (c *fakeClient) close() error {
	c.rec.add("context.close")
	return nil
}

func newTestPipeWire(client *fakeClient, env string) (*PipeWire, *recorder) {
	rec := client.rec
	p := NewPipeWire(PipeWireConfig{StartTimeout: time.Second})
	p.lib = &library{
		name: "fake",
		init: func() error {
			rec.add("library.init")
			return nil
		},
		deinit: func() error {
			rec.add("library.deinit")
			return nil
		},
	}
	p.dial = func(string) (streamClient, error) { return client, nil }
	p.lookupEnv = func(string) string { return env }
	return p, rec
}

func newFakeClient() *fakeClient {
	rec := &recorder{}
	return &fakeClient{rec: rec, stream: &fakeStream{rec: rec}}
}

func TestPipeWireStartStopReleasesInReverseOrder(t *testing.T) {
	client := newFakeClient()
	p, rec := newTestPipeWire(client, "")

	if !p.Start() {
		t.Fatalf("Start()=false want=true")
	}
	if !p.IsRunning() {
		t.Fatalf("IsRunning()=false after start")
	}
	p.Stop()
	p.Stop()
	if p.IsRunning() {
		t.Fatalf("IsRunning()=true after stop")
	}

	want := []string{"library.init", "stream.start", "stream.close", "context.close", "library.deinit"}
	if got := rec.list(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls=%v want=%v", got, want)
	}
	if got := p.lib.references(); got != 0 {
		t.Fatalf("library references=%d want=0", got)
	}
}

func TestPipeWireStreamSpec(t *testing.T) {
	client := newFakeClient()
	p, _ := newTestPipeWire(client, "")
	if !p.Start() {
		t.Fatalf("Start()=false")
	}
	defer p.Stop()

	client.mu.Lock()
	spec := client.spec
	client.mu.Unlock()
	if spec.sampleRate != 48000 || spec.channels != 2 {
		t.Fatalf("spec rate=%d channels=%d want=48000/2", spec.sampleRate, spec.channels)
	}
	for key, want := range map[string]string{
		"media.type":     "Audio",
		"media.category": "Capture",
		"media.role":     "Music",
	} {
		if got := spec.props[key]; got != want {
			t.Fatalf("props[%s]=%q want=%q", key, got, want)
		}
	}
}

func TestPipeWireStartFailureTearsDownPartialSession(t *testing.T) {
	client := newFakeClient()
	client.recordErr = errors.New("no such node")
	p, rec := newTestPipeWire(client, "")
	events := make(chan Event, 8)
	p.Attach(events)

	if p.Start() {
		t.Fatalf("Start()=true want=false")
	}
	if p.IsRunning() {
		t.Fatalf("IsRunning()=true after failed start")
	}
	want := []string{"library.init", "context.close", "library.deinit"}
	if got := rec.list(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls=%v want=%v", got, want)
	}

	select {
	case ev := <-events:
		if ev.Kind != EventError || ev.Source != p {
			t.Fatalf("event=%+v want error from source", ev)
		}
	default:
		t.Fatalf("expected an error event")
	}
	p.Stop()
}

func TestPipeWireStopWithoutStart(t *testing.T) {
	p := NewPipeWire(PipeWireConfig{})
	p.Stop()
	p.Stop()
	if p.IsRunning() {
		t.Fatalf("IsRunning()=true on never-started source")
	}
}

func TestPipeWireTargetPrecedence(t *testing.T) {
	cases := map[string]struct {
		env      string
		selected string
		want     string
	}{
		"env wins":      {env: "env-node", selected: "chosen", want: "env-node"},
		"selected used": {selected: "chosen", want: "chosen"},
		"default":       {want: ""},
	}
	for name, tc := range cases {
		client := newFakeClient()
		p, _ := newTestPipeWire(client, tc.env)
		p.SetSelectedDeviceID(tc.selected)
		if !p.Start() {
			t.Fatalf("%s: Start()=false", name)
		}
		p.Stop()
		if client.resolved != tc.want {
			t.Fatalf("%s: resolved=%q want=%q", name, client.resolved, tc.want)
		}
	}
}

func TestPipeWireRuntimeErrorStopsSource(t *testing.T) {
	client := newFakeClient()
	p, _ := newTestPipeWire(client, "")
	events := make(chan Event, 8)
	p.Attach(events)
	if !p.Start() {
		t.Fatalf("Start()=false")
	}

	client.stream.die(errors.New("device removed"))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind != EventError {
				continue
			}
			if ev.Message != "PipeWire stream error: device removed" {
				t.Fatalf("message=%q", ev.Message)
			}
			if p.IsRunning() {
				t.Fatalf("IsRunning()=true after runtime error")
			}
			p.Stop()
			return
		case <-deadline:
			t.Fatalf("no error event after stream died")
		}
	}
}

func encodeFrames(t *testing.T, stride int, frames ...[]float32) []byte {
	t.Helper()
	buf := make([]byte, stride*len(frames))
	for i, frame := range frames {
		for ch, v := range frame {
			binary.LittleEndian.PutUint32(buf[i*stride+ch*4:], math.Float32bits(v))
		}
	}
	return buf
}

func TestFrameWriterDownmixesByMean(t *testing.T) {
	events := make(chan Event, 4)
	var em emitter
	em.attach(nil, events)
	activated := 0
	w := newFrameWriter(2, &em, func() { activated++ })

	data := encodeFrames(t, 8, []float32{0.5, -0.5}, []float32{1, 0}, []float32{0.25, 0.75})
	if n, err := w.Write(data); err != nil || n != len(data) {
		t.Fatalf("Write=%d,%v want=%d,nil", n, err, len(data))
	}
	ev := <-events
	want := []float32{0, 0.5, 0.5}
	if !reflect.DeepEqual(ev.Samples, want) {
		t.Fatalf("samples=%v want=%v", ev.Samples, want)
	}

	w.Write(data)
	if activated != 1 {
		t.Fatalf("activated=%d want=1", activated)
	}
}

func TestFrameWriterDropsMalformedChunks(t *testing.T) {
	events := make(chan Event, 4)
	var em emitter
	em.attach(nil, events)
	w := newFrameWriter(2, &em, nil)
	data := encodeFrames(t, 8, []float32{1, 1}, []float32{1, 1})

	cases := map[string]chunk{
		"offset past end":  {data: data, offset: len(data), size: 8},
		"negative offset":  {data: data, offset: -1, size: 8},
		"stride too small": {data: data, size: len(data), stride: 4},
		"empty":            {data: data, size: 0},
		"shorter than one": {data: data, offset: len(data) - 4, size: 4},
		"nil buffer":       {data: nil, size: 8},
	}
	for name, c := range cases {
		if w.process(c) {
			t.Fatalf("%s: process()=true want=false", name)
		}
	}
	if len(events) != 0 {
		t.Fatalf("events=%d want=0", len(events))
	}

	padded := encodeFrames(t, 12, []float32{1, 0}, []float32{0, 1})
	if !w.process(chunk{data: padded, size: len(padded), stride: 12}) {
		t.Fatalf("padded stride rejected")
	}
	if ev := <-events; len(ev.Samples) != 2 {
		t.Fatalf("padded samples=%d want=2", len(ev.Samples))
	}

	clipped := chunk{data: data, offset: 8, size: 64}
	if !w.process(clipped) {
		t.Fatalf("size beyond capacity should be clipped, not dropped")
	}
	if ev := <-events; len(ev.Samples) != 1 {
		t.Fatalf("clipped samples=%d want=1", len(ev.Samples))
	}
}

func TestDescribeStreamError(t *testing.T) {
	if got := describeStreamError(errors.New("boom")); got != "PipeWire stream error: boom" {
		t.Fatalf("got=%q", got)
	}
}

func TestPipeWireStartTimeoutDoesNotWaitForHungConnect(t *testing.T) {
	client := newFakeClient()
	p, rec := newTestPipeWire(client, "")
	p.cfg.StartTimeout = 20 * time.Millisecond
	release := make(chan struct{})
	p.dial = func(string) (streamClient, error) {
		<-release
		return client, nil
	}
	events := make(chan Event, 8)
	p.Attach(events)

	start := time.Now()
	if p.Start() {
		t.Fatalf("Start()=true with a hung connect")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Start took %v, timeout is %v", elapsed, p.cfg.StartTimeout)
	}
	if p.IsRunning() {
		t.Fatalf("IsRunning()=true after timed-out start")
	}
	p.Stop()

	close(release)
	want := []string{"library.init", "context.close", "library.deinit"}
	deadline := time.Now().Add(2 * time.Second)
	for !reflect.DeepEqual(rec.list(), want) {
		if time.Now().After(deadline) {
			t.Fatalf("calls=%v want=%v", rec.list(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
	select {
	case ev := <-events:
		t.Fatalf("abandoned startup emitted %+v", ev)
	default:
	}
}
