package audio

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"
)

const (
	portAudioBackendName = "PortAudio"
	portAudioFrames      = 1024
)

var portAudioLibrary = &library{
	name:   "portaudio",
	init:   portaudio.Initialize,
	deinit: portaudio.Terminate,
}

// PortAudio captures from a PortAudio input device through the stream callback.
type PortAudio struct {
	emitter
	log      *zap.SugaredLogger
	selected selection
	channels int

	mu      sync.Mutex
	stream  *portaudio.Stream
	guard   *Guard
	running bool
}

// NewPortAudio returns a stopped PortAudio source.
func NewPortAudio(logger *zap.SugaredLogger) *PortAudio {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PortAudio{log: logger.Named("portaudio"), channels: 2}
}

func (a *PortAudio) BackendName() string { return portAudioBackendName }

func (a *PortAudio) SelectedDeviceID() string { return a.selected.get() }

func (a *PortAudio) SetSelectedDeviceID(id string) { a.selected.set(strings.TrimSpace(id)) }

func (a *PortAudio) Attach(out chan<- Event) { a.attach(a, out) }

func (a *PortAudio) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func (a *PortAudio) Start() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return true
	}
	if err := a.open(); err != nil {
		a.log.Warnw("capture startup failed", "error", err)
		a.fail(fmt.Sprintf("PortAudio startup failed: %v", err))
		return false
	}
	a.running = true
	return true
}

func (a *PortAudio) open() error {
	guard, err := portAudioLibrary.acquire()
	if err != nil {
		return err
	}
	var stack teardown
	stack.push("library", guard.Release)

	device, err := findDevice(a.selected.get())
	if err != nil {
		_ = stack.run()
		return err
	}
	channels := a.channels
	if device.MaxInputChannels < channels {
		channels = device.MaxInputChannels
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      device.DefaultSampleRate,
		FramesPerBuffer: portAudioFrames,
	}, func(in []float32) {
		a.frame(downmix(in, channels))
	})
	if err != nil {
		_ = stack.run()
		return fmt.Errorf("open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = stack.run()
		return fmt.Errorf("start stream: %w", err)
	}

	a.stream = stream
	a.guard = guard
	a.status(fmt.Sprintf("PortAudio stream active on %q (%.0f Hz, %d channels).", device.Name, device.DefaultSampleRate, channels))
	a.log.Infow("capture started", "device", device.Name, "rate", device.DefaultSampleRate, "channels", channels)
	return nil
}

func (a *PortAudio) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stream == nil {
		a.running = false
		return
	}

	var stack teardown
	stack.push("library", a.guard.Release)
	stream := a.stream
	stack.push("stream", func() error {
		if err := stream.Stop(); err != nil && !isInvalidStreamState(err) {
			_ = stream.Close()
			return err
		}
		return stream.Close()
	})
	if err := stack.run(); err != nil {
		a.log.Warnw("capture teardown", "error", err)
	}
	a.stream = nil
	a.guard = nil
	a.running = false
}

// AvailableDevices lists input-capable devices by name.
func (a *PortAudio) AvailableDevices() []DeviceInfo {
	guard, err := portAudioLibrary.acquire()
	if err != nil {
		a.log.Warnw("list devices", "error", err)
		return nil
	}
	defer guard.Release()

	devices, err := portaudio.Devices()
	if err != nil {
		a.log.Warnw("list devices", "error", err)
		return nil
	}
	out := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		if d == nil || d.MaxInputChannels <= 0 {
			continue
		}
		host := ""
		if d.HostApi != nil {
			host = d.HostApi.Name
		}
		out = append(out, DeviceInfo{
			ID:          d.Name,
			Name:        d.Name,
			Description: fmt.Sprintf("%s, %d inputs, %.0f Hz", host, d.MaxInputChannels, d.DefaultSampleRate),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

func findDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}
	if name != "" {
		if dev := matchDevice(devices, name); dev != nil {
			return dev, nil
		}
		return nil, fmt.Errorf("audio device %q not found", name)
	}
	if dev, err := portaudio.DefaultInputDevice(); err == nil && dev != nil && dev.MaxInputChannels > 0 {
		return dev, nil
	}
	defaultIndex := -1
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		defaultIndex = def.Index
	}
	if dev := pickBestDevice(devices, defaultIndex); dev != nil {
		return dev, nil
	}
	return nil, fmt.Errorf("no suitable audio input device found")
}

// matchDevice prefers an exact name and falls back to a case-insensitive substring.
func matchDevice(devices []*portaudio.DeviceInfo, name string) *portaudio.DeviceInfo {
	lower := strings.ToLower(name)
	var partial *portaudio.DeviceInfo
	for _, d := range devices {
		if d == nil || d.MaxInputChannels == 0 {
			continue
		}
		if d.Name == name {
			return d
		}
		if partial == nil && strings.Contains(strings.ToLower(d.Name), lower) {
			partial = d
		}
	}
	return partial
}

// pickBestDevice scores inputs, favouring the default device and loopback-style monitors.
func pickBestDevice(devices []*portaudio.DeviceInfo, defaultIndex int) *portaudio.DeviceInfo {
	type scored struct {
		dev   *portaudio.DeviceInfo
		score int
	}
	keywords := []string{"monitor", "loopback", "mix", "stereo mix", "what u hear"}

	var results []scored
	for _, d := range devices {
		if d == nil || d.MaxInputChannels <= 0 {
			continue
		}
		score := d.MaxInputChannels
		if d.Index == defaultIndex {
			score += 50
		}
		lower := strings.ToLower(d.Name)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				score += 20
				break
			}
		}
		if strings.Contains(lower, "default") {
			score += 10
		}
		results = append(results, scored{dev: d, score: score})
	}
	if len(results) == 0 {
		return nil
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].score == results[j].score {
			return strings.ToLower(results[i].dev.Name) < strings.ToLower(results[j].dev.Name)
		}
		return results[i].score > results[j].score
	})
	return results[0].dev
}

// isInvalidStreamState reports an error from stopping an already stopped stream.
func isInvalidStreamState(err error) bool {
	return err != nil && strings.Contains(err.Error(), "PaErrorCode -9986")
}
