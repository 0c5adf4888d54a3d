package collide

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/gcfg.v1"

	"github.com/gekko3d/collide/particlert/rt/gpu"
)

// Config is read from an INI file:
//
//	[Simulation]
//	ParticleCount = 10000
//	Boundary = 10
//	Radius = 0.2
//	Substeps = 10
//	Mode = grid
//
//	[Device]
//	Backend = headless
//	Timeout = 5s
//
//	[Output]
//	SnapshotDir = frames
//	SnapshotEvery = 60
//	Listen = :8080
//
// Keys left out keep their DefaultConfig value.
type Config struct {
	Simulation SimulationConfig
	Device     DeviceConfig
	Output     OutputConfig
}

type SimulationConfig struct {
	ParticleCount int
	// Capacity defaults to ParticleCount.
	Capacity int
	Boundary float64
	Radius   float64
	Substeps int
	Mode     string
	Seed     int64
	// FixedStep in seconds; 0 follows the wall clock.
	FixedStep float64
	MaxStep   float64
	Frames    int
	// VerifyEvery cross-checks device contacts against the CPU grid every n frames.
	VerifyEvery int
}

type DeviceConfig struct {
	Backend string
	Workers int
	Timeout string
}

type OutputConfig struct {
	SnapshotDir   string
	SnapshotEvery int
	SnapshotSize  int
	Listen        string
	StreamEvery   int
	// ProfileEvery logs stage timings every n frames.
	ProfileEvery int
	Debug        bool
}

func DefaultConfig() Config {
	return Config{
		Simulation: SimulationConfig{
			ParticleCount: 10000,
			Boundary:      10,
			Radius:        0.2,
			Substeps:      10,
			Mode:          "grid",
			Seed:          1,
			FixedStep:     1.0 / 60,
			MaxStep:       0.1,
			Frames:        600,
		},
		Device: DeviceConfig{
			Backend: "headless",
			Timeout: "5s",
		},
		Output: OutputConfig{
			SnapshotSize: 512,
			StreamEvery:  1,
		},
	}
}

func LoadConfig(fname string) (Config, error) {
	cfg := DefaultConfig()
	if err := gcfg.ReadFileInto(&cfg, fname); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", fname, err)
	}
	return cfg, cfg.Validate()
}

func ParseConfig(src string) (Config, error) {
	cfg := DefaultConfig()
	if err := gcfg.ReadStringInto(&cfg, src); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	s := &c.Simulation
	if s.ParticleCount < 0 {
		return fmt.Errorf("ParticleCount must be non-negative, but is %d", s.ParticleCount)
	}
	if s.Capacity == 0 {
		s.Capacity = s.ParticleCount
	}
	if s.Capacity < s.ParticleCount {
		return fmt.Errorf("Capacity %d is smaller than ParticleCount %d", s.Capacity, s.ParticleCount)
	}
	if s.Capacity == 0 {
		return fmt.Errorf("need a positive ParticleCount or Capacity")
	}
	if s.Boundary <= 0 {
		return fmt.Errorf("Boundary must be positive, but is %g", s.Boundary)
	}
	if s.Radius <= 0 || s.Radius >= s.Boundary {
		return fmt.Errorf("Radius must be in range (0, %g), but is %g", s.Boundary, s.Radius)
	}
	if s.Substeps <= 0 {
		return fmt.Errorf("Substeps must be positive, but is %d", s.Substeps)
	}
	if _, err := gpu.ParseMode(s.Mode); err != nil {
		return err
	}
	if s.FixedStep < 0 || s.MaxStep < 0 {
		return fmt.Errorf("FixedStep and MaxStep must be non-negative")
	}

	switch strings.ToLower(c.Device.Backend) {
	case "headless", "webgpu":
	default:
		return fmt.Errorf("unknown Backend %q, want headless or webgpu", c.Device.Backend)
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	if c.Output.SnapshotEvery < 0 || c.Output.StreamEvery < 0 || c.Output.ProfileEvery < 0 {
		return fmt.Errorf("SnapshotEvery, StreamEvery and ProfileEvery must be non-negative")
	}
	return nil
}

func (c *Config) Timeout() (time.Duration, error) {
	if c.Device.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Device.Timeout)
	if err != nil {
		return 0, fmt.Errorf("Timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("Timeout must be non-negative, but is %s", d)
	}
	return d, nil
}

// ComputeOptions translates the config into compute state options.
func (c *Config) ComputeOptions(logger gpu.Logger) gpu.Options {
	mode, _ := gpu.ParseMode(c.Simulation.Mode)
	timeout, _ := c.Timeout()
	return gpu.Options{
		Capacity:         c.Simulation.Capacity,
		Boundary:         float32(c.Simulation.Boundary),
		ParticleDiameter: float32(2 * c.Simulation.Radius),
		Substeps:         c.Simulation.Substeps,
		Mode:             mode,
		Timeout:          timeout,
		Logger:           logger,
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// TimeModule builds the frame clock the config asks for.
func (c *Config) TimeModule() TimeModule {
	return TimeModule{
		FixedStep: seconds(c.Simulation.FixedStep),
		MaxStep:   seconds(c.Simulation.MaxStep),
	}
}
