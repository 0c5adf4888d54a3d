package collide

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/gekko3d/collide/particlert/rt/gpu"
)

// Simulation is a configured App: seeded particles, the collision pipeline on one
// device and whatever outputs the config enables.
type Simulation struct {
	App    *App
	RunID  string
	Config Config
}

// NewSimulation builds the App for cfg on dev. logger may be nil, in which case a
// DefaultLogger is used. Either way the installed logger is tagged with the run id.
func NewSimulation(cfg Config, dev gpu.Device, logger Logger) (sim *Simulation, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	if logger == nil {
		logger = NewDefaultLogger(cfg.Output.Debug)
	}
	logger = WithRun(logger, runID[:8])

	s := cfg.Simulation
	rng := rand.New(rand.NewSource(s.Seed))
	particles := SeedParticles(s.ParticleCount, float32(s.Boundary), float32(s.Radius), rng)
	boundary := float32(s.Boundary)

	// modules panic on setup failures; undo whatever was installed before
	builder := NewAppBuilder()
	defer func() {
		if r := recover(); r != nil {
			builder.app.Release()
			err = fmt.Errorf("simulation: %v", r)
		}
	}()

	app := builder.
		UseModule(LoggingModule{Logger: logger}).
		UseModule(runIDModule{runID}).
		UseModule(cfg.TimeModule()).
		UseModule(CollisionModule{
			Device:       dev,
			Options:      cfg.ComputeOptions(logger),
			Particles:    particles,
			ProfileEvery: cfg.Output.ProfileEvery,
		}).
		UseModule(VerifyModule{Every: s.VerifyEvery}).
		UseModule(SnapshotModule{
			Dir:      cfg.Output.SnapshotDir,
			Every:    cfg.Output.SnapshotEvery,
			Size:     cfg.Output.SnapshotSize,
			Boundary: boundary,
		}).
		UseModule(StreamModule{
			Listen:   cfg.Output.Listen,
			Every:    cfg.Output.StreamEvery,
			Boundary: boundary,
		}).
		Build()

	logger.Infof("run %s: %d particles, mode %s, %d substeps on %s",
		runID, s.ParticleCount, s.Mode, s.Substeps, dev.Name())
	return &Simulation{App: app, RunID: runID, Config: cfg}, nil
}

// Run steps the configured number of frames, or until ctx ends when Frames <= 0.
func (sim *Simulation) Run(ctx context.Context) error {
	err := sim.App.Run(ctx, sim.Config.Simulation.Frames)
	if res, ok := sim.App.Resource((*Collision)(nil)); ok {
		c := res.(*Collision)
		sim.App.Logger().Infof("run %s done: %d frames, %d skipped (%d timeouts, %d map failures)",
			sim.RunID, c.Frames, c.Skipped, c.Timeouts, c.MapFailures)
	}
	return err
}

func (sim *Simulation) Collision() *Collision {
	res, _ := sim.App.Resource((*Collision)(nil))
	return res.(*Collision)
}

func (sim *Simulation) Release() {
	sim.App.Release()
}

type runIDModule struct {
	id string
}

func (m runIDModule) Install(app *App, cmd *Commands) {
	cmd.AddResources(&RunID{ID: m.id})
}
