package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	collide "github.com/gekko3d/collide"
	"github.com/gekko3d/collide/particlert/rt/gpu"
	"github.com/gekko3d/collide/particlert/rt/headless"
	"github.com/gekko3d/collide/particlert/rt/webgpu"
)

func openDevice(cfg collide.Config) (gpu.Device, error) {
	switch strings.ToLower(cfg.Device.Backend) {
	case "webgpu":
		return webgpu.NewDevice()
	default:
		return headless.NewDevice(cfg.Device.Workers), nil
	}
}

func main() {
	configPath := flag.String("config", "", "INI config file")
	backend := flag.String("backend", "", "headless or webgpu, overrides the config")
	frames := flag.Int("frames", -1, "frames to run, 0 runs until interrupted")
	mode := flag.String("mode", "", "grid or brute, overrides the config")
	snapshotDir := flag.String("snapshot", "", "write PNG snapshots into this directory")
	serve := flag.String("serve", "", "stream frames over websocket on this address, e.g. :8080")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg := collide.DefaultConfig()
	if *configPath != "" {
		loaded, err := collide.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		cfg = loaded
	}
	if *backend != "" {
		cfg.Device.Backend = *backend
	}
	if *frames >= 0 {
		cfg.Simulation.Frames = *frames
	}
	if *mode != "" {
		cfg.Simulation.Mode = *mode
	}
	if *snapshotDir != "" {
		cfg.Output.SnapshotDir = *snapshotDir
		if cfg.Output.SnapshotEvery == 0 {
			cfg.Output.SnapshotEvery = 60
		}
	}
	if *serve != "" {
		cfg.Output.Listen = *serve
	}
	cfg.Output.Debug = cfg.Output.Debug || *debug
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	dev, err := openDevice(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s device: %v\n", cfg.Device.Backend, err)
		os.Exit(1)
	}
	defer dev.Release()

	sim, err := collide.NewSimulation(cfg, dev, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer sim.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sim.Run(ctx); err != nil {
		sim.App.Logger().Errorf("%v", err)
		sim.Release()
		dev.Release()
		os.Exit(1)
	}
}
