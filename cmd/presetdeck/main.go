package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/guidoenr/presetdeck/internal/app"
	"github.com/guidoenr/presetdeck/internal/audio"
	"github.com/guidoenr/presetdeck/internal/config"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "presetdeck: %v\n", err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "presetdeck: logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.ListDevices {
		listDevices(cfg)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatalw("failed to create app", "error", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warnw("cleanup error", "error", err)
		}
	}()

	if err := a.Run(ctx); err != nil {
		logger.Errorw("runtime error", "error", err)
	}
}

func listDevices(cfg *config.Config) {
	src := audio.New(cfg.AudioBackend, audio.Options{
		PipeWire: audio.PipeWireConfig{
			Probe: audio.ProbeConfig{Iterations: cfg.ProbeIterations, Tick: cfg.ProbeTick},
		},
	})
	devices := src.AvailableDevices()

	fmt.Printf("\n=== Audio Input Devices (%s) ===\n\n", src.BackendName())
	if len(devices) == 0 {
		fmt.Println("- none found")
		return
	}
	for _, dev := range devices {
		fmt.Printf("- %s [%s]\n    %s\n", dev.Name, dev.ID, dev.Description)
	}
}
