package collide

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeModule_FixedStep(t *testing.T) {
	app := NewAppBuilder().UseModule(TimeModule{FixedStep: 20 * time.Millisecond}).Build()
	res, ok := app.Resource((*Time)(nil))
	require.True(t, ok)
	tm := res.(*Time)
	start := tm.Time

	require.NoError(t, app.Run(context.Background(), 3))
	assert.Equal(t, 20*time.Millisecond, tm.Dt)
	assert.InDelta(t, 0.02, tm.Seconds(), 1e-6)
	assert.True(t, start.Add(60*time.Millisecond).Equal(tm.Time))
}

func TestTimeSystem_WallClockIsCapped(t *testing.T) {
	base := time.Unix(1000, 0)
	now := base
	clock := &frameClock{max: 100 * time.Millisecond, now: func() time.Time { return now }}
	tm := &Time{Time: base}

	now = base.Add(16 * time.Millisecond)
	timeSystem(tm, clock)
	assert.Equal(t, 16*time.Millisecond, tm.Dt)

	now = now.Add(3 * time.Second)
	timeSystem(tm, clock)
	assert.Equal(t, 100*time.Millisecond, tm.Dt, "a stall must not become one huge step")
	assert.Equal(t, now, tm.Time)
}
