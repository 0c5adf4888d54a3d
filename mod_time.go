package collide

import (
	"time"
)

type Time struct {
	Time time.Time
	Dt   time.Duration
}

// Seconds is Dt as the float the compute state takes.
func (t *Time) Seconds() float32 {
	return float32(t.Dt.Seconds())
}

// TimeModule advances Time at the start of every frame. With a FixedStep every frame
// lasts exactly that long, which makes runs reproducible. Otherwise the wall clock is
// used, capped at MaxStep so a stall does not turn into one huge step.
type TimeModule struct {
	FixedStep time.Duration
	MaxStep   time.Duration
}

func (mod TimeModule) Install(app *App, cmd *Commands) {
	clock := &frameClock{fixed: mod.FixedStep, max: mod.MaxStep, now: time.Now}
	cmd.AddResources(&Time{
		Time: clock.now(),
		Dt:   0,
	}, clock)
	app.UseSystem(System(timeSystem).InStage(Prelude))
}

type frameClock struct {
	fixed time.Duration
	max   time.Duration
	now   func() time.Time
}

func timeSystem(timeResource *Time, clock *frameClock) {
	if clock.fixed > 0 {
		timeResource.Dt = clock.fixed
		timeResource.Time = timeResource.Time.Add(clock.fixed)
		return
	}

	now := clock.now()
	timeResource.Dt = now.Sub(timeResource.Time)
	if clock.max > 0 && timeResource.Dt > clock.max {
		timeResource.Dt = clock.max
	}
	timeResource.Time = now
}
