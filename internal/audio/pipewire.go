package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	pipeWireBackendName = "PipeWire"
	pipeWireSampleRate  = 48000
	pipeWireChannels    = 2
	bytesPerSample      = 4

	// DefaultTargetEnv overrides the capture target for every PipeWire session.
	DefaultTargetEnv = "PRESETDECK_PIPEWIRE_TARGET"

	defaultAppName      = "presetdeck"
	defaultStartTimeout = 3 * time.Second
	streamPollInterval  = 100 * time.Millisecond
)

var errStreamEnded = errors.New("stream ended")

// PipeWireConfig controls a PipeWire capture source.
type PipeWireConfig struct {
	AppName      string
	TargetEnv    string
	StartTimeout time.Duration
	Probe        ProbeConfig
	Logger       *zap.SugaredLogger
}

// streamClient is one connection to the audio server used by a capture session.
type streamClient interface {
	resolve(id string) (recordTarget, error)
	record(w *frameWriter, target recordTarget, spec streamSpec) (captureStream, error)
	close() error
}

type recordTarget interface {
	label() string
}

// captureStream is satisfied by *pulse.RecordStream.
type captureStream interface {
	Start()
	Stop()
	Close()
	Running() bool
	Error() error
}

type streamSpec struct {
	sampleRate int
	channels   int
	props      map[string]string
}

// PipeWire captures the default monitor (or a selected node) on a dedicated OS thread.
type PipeWire struct {
	emitter
	cfg      PipeWireConfig
	log      *zap.SugaredLogger
	selected selection

	dial      func(appName string) (streamClient, error)
	probe     func(cfg ProbeConfig) ([]DeviceInfo, error)
	lib       *library
	lookupEnv func(string) string

	running atomic.Bool

	mu   sync.Mutex
	quit chan struct{}
	done chan struct{}
}

// NewPipeWire returns a stopped PipeWire source.
func NewPipeWire(cfg PipeWireConfig) *PipeWire {
	if cfg.AppName == "" {
		cfg.AppName = defaultAppName
	}
	if cfg.TargetEnv == "" {
		cfg.TargetEnv = DefaultTargetEnv
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = defaultStartTimeout
	}
	if cfg.Probe.AppName == "" {
		cfg.Probe.AppName = cfg.AppName + "-probe"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PipeWire{
		cfg:       cfg,
		log:       logger.Named("pipewire"),
		dial:      dialPulse,
		probe:     ProbeDevices,
		lib:       pipeWireLibrary,
		lookupEnv: os.Getenv,
	}
}

func (p *PipeWire) BackendName() string { return pipeWireBackendName }

func (p *PipeWire) IsRunning() bool { return p.running.Load() }

func (p *PipeWire) SelectedDeviceID() string { return p.selected.get() }

func (p *PipeWire) SetSelectedDeviceID(id string) { p.selected.set(strings.TrimSpace(id)) }

func (p *PipeWire) Attach(out chan<- Event) { p.attach(p, out) }

// AvailableDevices runs a one-shot probe. Failures yield whatever was collected.
func (p *PipeWire) AvailableDevices() []DeviceInfo {
	devices, err := p.probe(p.cfg.Probe)
	if err != nil {
		p.log.Warnw("device probe incomplete", "error", err, "devices", len(devices))
	}
	return devices
}

// Start spawns the capture thread and waits for its startup handshake.
func (p *PipeWire) Start() bool {
	if p.running.Load() {
		return true
	}
	// join a thread that exited on its own after a runtime error
	p.Stop()

	quit := make(chan struct{})
	done := make(chan struct{})
	ready := make(chan error, 1)

	p.mu.Lock()
	p.quit, p.done = quit, done
	p.mu.Unlock()
	p.running.Store(true)

	go p.runLoop(quit, done, ready)

	timer := time.NewTimer(p.cfg.StartTimeout)
	defer timer.Stop()
	select {
	case err := <-ready:
		if err != nil {
			p.log.Warnw("capture startup failed", "error", err)
			p.Stop()
			return false
		}
		p.status("Audio backend: PipeWire (initializing).")
		return true
	case <-timer.C:
		p.log.Warnw("capture startup timed out", "timeout", p.cfg.StartTimeout)
		p.abandon()
		return false
	}
}

// abandon signals a capture thread stuck in a startup stage and forgets it
// without joining. The thread tears down its partial session once the stage
// returns.
func (p *PipeWire) abandon() {
	p.running.Store(false)

	p.mu.Lock()
	quit := p.quit
	p.quit, p.done = nil, nil
	p.mu.Unlock()

	if quit != nil {
		close(quit)
	}
}

// Stop signals the loop, joins the thread and returns once every resource is released.
func (p *PipeWire) Stop() {
	p.running.Store(false)

	p.mu.Lock()
	quit, done := p.quit, p.done
	p.quit, p.done = nil, nil
	p.mu.Unlock()

	if quit == nil {
		return
	}
	close(quit)
	<-done
}

func (p *PipeWire) targetID() string {
	if env := strings.TrimSpace(p.lookupEnv(p.cfg.TargetEnv)); env != "" {
		return env
	}
	return p.selected.get()
}

func (p *PipeWire) runLoop(quit <-chan struct{}, done chan<- struct{}, ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)

	var stack teardown
	defer func() {
		if err := stack.run(); err != nil {
			p.log.Warnw("capture teardown", "error", err)
		}
	}()

	fail := func(stage string, err error) {
		err = fmt.Errorf("%s: %w", stage, err)
		p.running.Store(false)
		p.fail(fmt.Sprintf("PipeWire startup failed: %v", err))
		ready <- err
	}
	// quit closes only through Stop or an abandoned startup
	abandoned := func() bool {
		select {
		case <-quit:
			return true
		default:
			return false
		}
	}

	guard, err := p.lib.acquire()
	if err != nil {
		fail("library", err)
		return
	}
	stack.push("library", guard.Release)

	loop := newEventLoop(quit, streamPollInterval)
	stack.push("loop", loop.close)

	client, err := p.dial(p.cfg.AppName)
	if abandoned() {
		if err == nil {
			stack.push("context", client.close)
		}
		return
	}
	if err != nil {
		fail("connect", err)
		return
	}
	stack.push("context", client.close)

	target, err := client.resolve(p.targetID())
	if abandoned() {
		return
	}
	if err != nil {
		fail("target", err)
		return
	}

	writer := newFrameWriter(pipeWireChannels, &p.emitter, func() {
		p.status(fmt.Sprintf("PipeWire stream active (%d Hz, %d channels).", pipeWireSampleRate, pipeWireChannels))
	})
	stream, err := client.record(writer, target, streamSpec{
		sampleRate: pipeWireSampleRate,
		channels:   pipeWireChannels,
		props:      streamProperties(p.cfg.AppName),
	})
	if err != nil {
		if !abandoned() {
			fail("stream", err)
		}
		return
	}
	stack.push("stream", func() error {
		stream.Close()
		return nil
	})
	if abandoned() {
		return
	}

	stream.Start()
	ready <- nil
	p.log.Infow("capture started", "target", target.label(), "rate", pipeWireSampleRate, "channels", pipeWireChannels)

	if err := loop.run(stream); err != nil {
		p.running.Store(false)
		p.fail(describeStreamError(err))
		p.log.Warnw("capture stopped", "error", err)
	}
}

func streamProperties(appName string) map[string]string {
	return map[string]string{
		"media.type":       "Audio",
		"media.category":   "Capture",
		"media.role":       "Music",
		"media.name":       appName + "-input",
		"application.name": appName,
	}
}

func describeStreamError(err error) string {
	var netErr net.Error
	if errors.Is(err, io.EOF) || errors.As(err, &netErr) {
		return fmt.Sprintf("PipeWire core error: %v", err)
	}
	return fmt.Sprintf("PipeWire stream error: %v", err)
}

// eventLoop blocks the capture thread until quit or until the stream dies.
type eventLoop struct {
	quit   <-chan struct{}
	ticker *time.Ticker
}

func newEventLoop(quit <-chan struct{}, poll time.Duration) *eventLoop {
	return &eventLoop{quit: quit, ticker: time.NewTicker(poll)}
}

func (l *eventLoop) run(stream captureStream) error {
	for {
		select {
		case <-l.quit:
			return nil
		case <-l.ticker.C:
			if stream.Running() {
				continue
			}
			if err := stream.Error(); err != nil {
				return err
			}
			return errStreamEnded
		}
	}
}

func (l *eventLoop) close() error {
	l.ticker.Stop()
	return nil
}

// chunk is one buffer handed to the process callback.
type chunk struct {
	data   []byte
	offset int
	size   int
	stride int
}

// frameWriter is the process callback: it validates, downmixes and hands frames off.
type frameWriter struct {
	channels int
	out      *emitter
	onActive func()
	active   atomic.Bool
}

func newFrameWriter(channels int, out *emitter, onActive func()) *frameWriter {
	return &frameWriter{channels: channels, out: out, onActive: onActive}
}

// Write receives interleaved float32 little-endian samples.
func (w *frameWriter) Write(p []byte) (int, error) {
	w.process(chunk{data: p, size: len(p)})
	return len(p), nil
}

func (w *frameWriter) process(c chunk) bool {
	frameStride := bytesPerSample * w.channels
	maxsize := len(c.data)
	if frameStride <= 0 || c.offset < 0 || c.offset >= maxsize {
		return false
	}
	byteCount := c.size
	if available := maxsize - c.offset; byteCount > available {
		byteCount = available
	}
	stride := c.stride
	if stride <= 0 {
		stride = frameStride
	}
	if stride < frameStride || byteCount <= 0 {
		return false
	}
	frames := byteCount / stride
	if frames <= 0 {
		return false
	}

	base := c.data[c.offset:]
	mono := make([]float32, frames)
	for i := range mono {
		frame := base[i*stride:]
		sum := float32(0)
		for ch := 0; ch < w.channels; ch++ {
			sum += math.Float32frombits(binary.LittleEndian.Uint32(frame[ch*bytesPerSample:]))
		}
		mono[i] = sum / float32(w.channels)
	}

	if w.active.CompareAndSwap(false, true) && w.onActive != nil {
		w.onActive()
	}
	w.out.frame(mono)
	return true
}
