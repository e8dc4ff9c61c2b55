package audio

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultProbeIterations = 50
	DefaultProbeTick       = 50 * time.Millisecond

	nodeInterfaceType = "PipeWire:Interface:Node"
)

// ErrProbeTimeout is returned with partial results when enumeration does not finish in time.
var ErrProbeTimeout = errors.New("Timed out while enumerating PipeWire devices.")

// ProbeConfig bounds a one-shot device enumeration.
type ProbeConfig struct {
	AppName    string
	Iterations int
	Tick       time.Duration
}

func (c ProbeConfig) withDefaults() ProbeConfig {
	if c.Iterations <= 0 {
		c.Iterations = DefaultProbeIterations
	}
	if c.Tick <= 0 {
		c.Tick = DefaultProbeTick
	}
	if c.AppName == "" {
		c.AppName = defaultAppName + "-probe"
	}
	return c
}

type registryEventKind int

const (
	registryGlobal registryEventKind = iota
	registryDone
	registryError
)

// registryEvent is one notification from the server's object registry.
type registryEvent struct {
	kind  registryEventKind
	id    uint32
	typ   string
	props map[string]string
	err   error
}

var openRegistry = pulseRegistry

// ProbeDevices opens a short-lived connection and lists audio nodes.
func ProbeDevices(cfg ProbeConfig) ([]DeviceInfo, error) {
	cfg = cfg.withDefaults()
	guard, err := pipeWireLibrary.acquire()
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	events, release, err := openRegistry(cfg.AppName)
	if err != nil {
		return nil, fmt.Errorf("connect for device probe: %w", err)
	}
	defer release()
	return collectDevices(events, cfg.Iterations, cfg.Tick)
}

// collectDevices drains registry events for at most iterations ticks.
// Each iteration handles every event that arrives before its tick expires.
func collectDevices(events <-chan registryEvent, iterations int, tick time.Duration) ([]DeviceInfo, error) {
	var (
		devices  []DeviceInfo
		seen     = make(map[string]bool)
		done     bool
		probeErr error
	)

	timer := time.NewTimer(tick)
	defer timer.Stop()

	handle := func(ev registryEvent) {
		switch ev.kind {
		case registryGlobal:
			if device, ok := deviceFromNode(ev); ok && !seen[device.ID] {
				seen[device.ID] = true
				devices = append(devices, device)
			}
		case registryDone:
			done = true
		case registryError:
			probeErr = ev.err
			done = true
		}
	}

	for remaining := iterations; !done && remaining > 0; remaining-- {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(tick)

	iterate:
		for !done {
			select {
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				handle(ev)
			case <-timer.C:
				break iterate
			}
		}
	}

	if !done && probeErr == nil {
		probeErr = ErrProbeTimeout
	}

	sort.SliceStable(devices, func(i, j int) bool {
		return strings.ToLower(devices[i].Name) < strings.ToLower(devices[j].Name)
	})
	return devices, probeErr
}

func deviceFromNode(ev registryEvent) (DeviceInfo, bool) {
	if ev.typ != nodeInterfaceType || ev.props == nil {
		return DeviceInfo{}, false
	}
	mediaClass := ev.props["media.class"]
	if !strings.HasPrefix(mediaClass, "Audio/") {
		return DeviceInfo{}, false
	}

	numericID := strconv.FormatUint(uint64(ev.id), 10)
	nodeName := ev.props["node.name"]
	device := DeviceInfo{
		ID:   numericID,
		Name: nodeDisplayName(ev.props),
	}
	if nodeName != "" {
		device.ID = nodeName
		device.Description = fmt.Sprintf("%s (node=%s, id=%s)", mediaClass, nodeName, numericID)
	} else {
		device.Description = fmt.Sprintf("%s (id=%s)", mediaClass, numericID)
	}
	return device, true
}

func nodeDisplayName(props map[string]string) string {
	for _, key := range []string{"node.description", "node.nick", "node.name"} {
		if v := props[key]; v != "" {
			return v
		}
	}
	return "PipeWire Node"
}
