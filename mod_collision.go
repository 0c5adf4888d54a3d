package collide

import (
	"context"
	"errors"
	"fmt"

	"github.com/gekko3d/collide/particlert/rt/core"
	"github.com/gekko3d/collide/particlert/rt/gpu"
)

// Collision is the resource around the compute state. Frames lost to a slow or
// failing device are counted, not fatal.
type Collision struct {
	State *gpu.ComputeState

	Frames      int
	Skipped     int
	Timeouts    int
	MapFailures int
}

func (c *Collision) Particles() []core.Particle { return c.State.Particles() }
func (c *Collision) Contacts() []uint32         { return c.State.Store().Contacts() }

func (c *Collision) Release() {
	c.State.Release()
}

// CollisionModule builds the compute state on Device, fills it with Particles and
// steps it once per frame with the Time resource's dt. It also installs the Profiler
// and logs it every ProfileEvery frames when that is positive.
type CollisionModule struct {
	Device       gpu.Device
	Options      gpu.Options
	Particles    []core.Particle
	ProfileEvery int
}

func (mod CollisionModule) Install(app *App, cmd *Commands) {
	opts := mod.Options
	if opts.Logger == nil {
		opts.Logger = app.Logger()
	}
	if opts.Capacity < len(mod.Particles) {
		opts.Capacity = len(mod.Particles)
	}
	state, err := gpu.NewComputeState(mod.Device, opts)
	if err != nil {
		panic(fmt.Sprintf("collision module: %v", err))
	}
	for _, p := range mod.Particles {
		state.Store().Push(p)
	}

	cmd.AddResources(&Collision{State: state}, NewProfiler())
	app.UseSystem(System(collisionSystem).InStage(Update))
	if mod.ProfileEvery > 0 {
		cmd.AddResources(&profileSchedule{every: mod.ProfileEvery})
		app.UseSystem(System(profilerLogSystem).InStage(Finale))
	}
}

func collisionSystem(ctx context.Context, t *Time, c *Collision, p *Profiler, log Logger) error {
	p.BeginScope("collide")
	err := c.State.Update(ctx, t.Seconds())
	p.EndScope("collide")
	if err == nil {
		c.Frames++
		stats := c.State.LastFrame()
		p.SetCount("particles", stats.Particles)
		p.SetCount("dispatches", stats.Dispatches)
		p.SetCount("contacts", int(stats.Contacts/2))
		log.Debugf("frame %d: %d particles, %d contacts, %d dispatches, %s",
			c.Frames, stats.Particles, stats.Contacts/2, stats.Dispatches, stats.Duration)
		return nil
	}
	if !gpu.IsTransient(err) {
		return err
	}

	c.Skipped++
	p.SetCount("skipped", c.Skipped)
	switch {
	case errors.Is(err, gpu.ErrDeviceTimeout):
		c.Timeouts++
	case errors.Is(err, gpu.ErrMapFailure):
		c.MapFailures++
	}
	log.Warnf("skipping frame: %v", err)
	return nil
}
