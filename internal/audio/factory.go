package audio

import (
	"strings"

	"go.uber.org/zap"
)

// Backend names accepted by New.
const (
	BackendPipeWire  = "pipewire"
	BackendPortAudio = "portaudio"
	BackendDummy     = "dummy"
)

// Options configures the sources built by New.
type Options struct {
	PipeWire PipeWireConfig
	Logger   *zap.SugaredLogger
}

// New selects the concrete source for a backend name. Unknown names use PipeWire.
func New(backend string, opts Options) Source {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case BackendDummy:
		return NewDummy()
	case BackendPortAudio:
		return NewPortAudio(opts.Logger)
	default:
		cfg := opts.PipeWire
		if cfg.Logger == nil {
			cfg.Logger = opts.Logger
		}
		return NewPipeWire(cfg)
	}
}

// BackendNames lists the selectable backends.
func BackendNames() []string {
	return []string{BackendPipeWire, BackendPortAudio, BackendDummy}
}
