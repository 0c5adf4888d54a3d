package gpu

import (
	"math/rand"
	"testing"

	"github.com/gekko3d/collide/particlert/rt/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortScheduleLength(t *testing.T) {
	tests := []struct {
		n    uint32
		want int
	}{
		{1, 0},
		{2, 1},
		{4, 3},
		{8, 6},
		{1024, 55},
		{16384, 105},
	}
	for _, tt := range tests {
		assert.Len(t, SortSchedule(tt.n), tt.want, "n=%d", tt.n)
		assert.Equal(t, uint32(tt.want), scheduleLen(tt.n), "n=%d", tt.n)
	}
}

// runSort applies every stage of the network sequentially, the way a device runs the
// recorded dispatches.
func runSort(bufs [][]byte, n uint32) {
	for _, sk := range SortSchedule(n) {
		bufs[slotSortParams] = sk.Bytes()
		for gid := uint32(0); gid < n; gid++ {
			sortHost(gid, bufs)
		}
	}
}

func TestSortHostOrdersCells(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, active := range []int{1, 2, 5, 64, 100, 257} {
		n := core.NextPowerOfTwo(uint32(active))
		particles := make([]core.Particle, active)
		buf, err := core.EncodeParticles(particles, int(n))
		require.NoError(t, err)
		for i := 0; i < active; i++ {
			rec := core.ParticleRecordAt(buf, i)
			rec.CellIndex = uint32(rng.Intn(50))
			core.PutParticleRecord(buf, i, rec)
		}

		params := core.SimulationParameters{ParticleCount: uint32(active), SortedCount: n}
		bufs := make([][]byte, 5)
		bufs[slotParams] = params.Bytes()
		bufs[slotParticles] = buf
		runSort(bufs, n)

		slots := map[uint32]bool{}
		for i := 0; i < int(n); i++ {
			rec := core.ParticleRecordAt(buf, i)
			slots[rec.Slot] = true
			if i > 0 {
				assert.LessOrEqual(t, core.RecordCell(buf, i-1), rec.CellIndex, "active=%d i=%d", active, i)
			}
			if i >= active {
				assert.Equal(t, uint32(core.SentinelCell), rec.CellIndex, "padding sorts last")
			}
		}
		assert.Len(t, slots, int(n), "sorting permutes, never duplicates")
	}
}
