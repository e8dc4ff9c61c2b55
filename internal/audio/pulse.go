package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

// pipeWireLibrary fails fast when no server socket is reachable.
var pipeWireLibrary = &library{
	name: "pipewire",
	init: checkServerSocket,
}

func checkServerSocket() error {
	if server := os.Getenv("PULSE_SERVER"); server != "" {
		return nil
	}
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return errors.New("XDG_RUNTIME_DIR is not set")
	}
	socket := filepath.Join(runtimeDir, "pulse", "native")
	if _, err := os.Stat(socket); err != nil {
		return fmt.Errorf("server socket: %w", err)
	}
	return nil
}

// pulseClient speaks the native protocol that pipewire-pulse serves.
type pulseClient struct {
	client *pulse.Client
}

type pulseTarget struct {
	option pulse.RecordOption
	name   string
}

func (t *pulseTarget) label() string { return t.name }

func dialPulse(appName string) (streamClient, error) {
	client, err := pulse.NewClient(pulse.ClientApplicationName(appName))
	if err != nil {
		return nil, err
	}
	return &pulseClient{client: client}, nil
}

// resolve maps a device id to a record target: a source by name, else a sink monitor.
// An empty id records the default sink's monitor.
func (c *pulseClient) resolve(id string) (recordTarget, error) {
	if id == "" {
		sink, err := c.client.DefaultSink()
		if err != nil {
			return nil, fmt.Errorf("default sink: %w", err)
		}
		return &pulseTarget{option: pulse.RecordMonitor(sink), name: sink.ID() + ".monitor"}, nil
	}
	if source, err := c.client.SourceByID(id); err == nil {
		return &pulseTarget{option: pulse.RecordSource(source), name: source.ID()}, nil
	}
	sink, err := c.client.SinkByID(id)
	if err != nil {
		return nil, fmt.Errorf("target %q: %w", id, err)
	}
	return &pulseTarget{option: pulse.RecordMonitor(sink), name: sink.ID() + ".monitor"}, nil
}

func (c *pulseClient) record(w *frameWriter, target recordTarget, spec streamSpec) (captureStream, error) {
	opts := []pulse.RecordOption{
		pulse.RecordSampleRate(spec.sampleRate),
		pulse.RecordRawOption(func(req *proto.CreateRecordStream) {
			if req.Properties == nil {
				req.Properties = make(proto.PropList)
			}
			for key, value := range spec.props {
				req.Properties[key] = proto.PropListString(value)
			}
		}),
	}
	if spec.channels == 1 {
		opts = append(opts, pulse.RecordMono)
	} else {
		opts = append(opts, pulse.RecordStereo)
	}
	if t, ok := target.(*pulseTarget); ok && t.option != nil {
		opts = append(opts, t.option)
	}

	stream, err := c.client.NewRecord(pulseWriter{w}, opts...)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (c *pulseClient) close() error {
	c.client.Close()
	return nil
}

// pulseWriter tags the frame writer with its sample format.
type pulseWriter struct {
	*frameWriter
}

func (pulseWriter) Format() byte { return proto.FormatFloat32LE }

// pulseRegistry feeds sinks and sources into the probe as audio nodes, then reports done.
func pulseRegistry(appName string) (<-chan registryEvent, func(), error) {
	client, err := pulse.NewClient(pulse.ClientApplicationName(appName))
	if err != nil {
		return nil, nil, err
	}
	events := make(chan registryEvent, 64)
	stop := make(chan struct{})
	go func() {
		defer close(events)
		send := func(ev registryEvent) bool {
			select {
			case events <- ev:
				return true
			case <-stop:
				return false
			}
		}

		var id uint32
		sinks, err := client.ListSinks()
		if err != nil {
			send(registryEvent{kind: registryError, err: fmt.Errorf("list sinks: %w", err)})
			return
		}
		for _, sink := range sinks {
			id++
			if !send(nodeEvent(id, "Audio/Sink", sink.ID(), sink.Name())) {
				return
			}
		}
		sources, err := client.ListSources()
		if err != nil {
			send(registryEvent{kind: registryError, err: fmt.Errorf("list sources: %w", err)})
			return
		}
		for _, source := range sources {
			id++
			class := "Audio/Source"
			if strings.HasSuffix(source.ID(), ".monitor") {
				class = "Audio/Source/Monitor"
			}
			if !send(nodeEvent(id, class, source.ID(), source.Name())) {
				return
			}
		}
		send(registryEvent{kind: registryDone})
	}()

	release := func() {
		close(stop)
		client.Close()
	}
	return events, release, nil
}

func nodeEvent(id uint32, mediaClass, name, description string) registryEvent {
	return registryEvent{
		kind: registryGlobal,
		id:   id,
		typ:  nodeInterfaceType,
		props: map[string]string{
			"media.class":      mediaClass,
			"node.name":        name,
			"node.description": description,
		},
	}
}
