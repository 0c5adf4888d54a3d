package gpu

import (
	"github.com/gekko3d/collide/particlert/rt/core"
)

// Host bodies of the WGSL kernels. Each function is one invocation; bufs is indexed by
// binding slot. They follow the shaders statement for statement so the headless device
// and a GPU produce the same records.

const (
	slotParams     = 0
	slotParticles  = 1
	slotSortParams = 2
	slotCellIndex  = 3
	slotResult     = 4
)

func assignCellHost(gid uint32, bufs [][]byte) {
	params := core.DecodeSimulationParameters(bufs[slotParams])
	particles := bufs[slotParticles]
	cells := bufs[slotCellIndex]

	if gid < params.CellCount {
		core.PutCellIndex(cells, int(gid), core.CellIndex{})
	}
	if gid >= params.SortedCount {
		return
	}
	rec := core.ParticleRecordAt(particles, int(gid))
	if gid >= params.ParticleCount {
		rec.CellIndex = core.SentinelCell
		core.PutParticleRecord(particles, int(gid), rec)
		return
	}
	if params.Substep > 0 {
		prev := core.ResultRecordAt(bufs[slotResult], int(rec.Slot))
		rec.Position = prev.Position
		rec.Velocity = prev.Velocity
	}
	rec.CellIndex = params.Grid().Index(rec.Position)
	core.PutParticleRecord(particles, int(gid), rec)
}

// sortHost is one comparator of a bitonic stage. The lower index of each pair owns it.
func sortHost(gid uint32, bufs [][]byte) {
	params := core.DecodeSimulationParameters(bufs[slotParams])
	if gid >= params.SortedCount {
		return
	}
	sk := core.DecodeSortKeyPair(bufs[slotSortParams])
	partner := gid ^ sk.J
	if partner <= gid || partner >= params.SortedCount {
		return
	}
	particles := bufs[slotParticles]
	a := core.RecordCell(particles, int(gid))
	b := core.RecordCell(particles, int(partner))
	ascending := gid&sk.K == 0
	if (ascending && a > b) || (!ascending && a < b) {
		core.SwapRecords(particles, int(gid), int(partner))
	}
}

// buildGridHost marks the first and one-past-last record of every occupied cell.
func buildGridHost(gid uint32, bufs [][]byte) {
	params := core.DecodeSimulationParameters(bufs[slotParams])
	if gid >= params.ParticleCount {
		return
	}
	particles := bufs[slotParticles]
	cells := bufs[slotCellIndex]
	cell := core.RecordCell(particles, int(gid))
	if cell >= params.CellCount {
		return
	}
	if gid == 0 || core.RecordCell(particles, int(gid-1)) != cell {
		core.PutCellStart(cells, int(cell), gid)
	}
	if gid == params.ParticleCount-1 || core.RecordCell(particles, int(gid+1)) != cell {
		core.PutCellEnd(cells, int(cell), gid+1)
	}
}

func collideGridHost(gid uint32, bufs [][]byte) {
	params := core.DecodeSimulationParameters(bufs[slotParams])
	if gid >= params.ParticleCount {
		return
	}
	particles := bufs[slotParticles]
	cells := bufs[slotCellIndex]
	self := core.ParticleRecordAt(particles, int(gid))
	grid := params.Grid()
	c := grid.Coord(self.Position)

	var contacts uint32
	for dz := -1; dz <= 1; dz++ {
		z := int(c[2]) + dz
		if z < 0 || z >= int(grid.Size) {
			continue
		}
		for dy := -1; dy <= 1; dy++ {
			y := int(c[1]) + dy
			if y < 0 || y >= int(grid.Size) {
				continue
			}
			for dx := -1; dx <= 1; dx++ {
				x := int(c[0]) + dx
				if x < 0 || x >= int(grid.Size) {
					continue
				}
				r := core.CellIndexAt(cells, int(grid.IndexOf(uint32(x), uint32(y), uint32(z))))
				for j := r.Start; j < r.End; j++ {
					if j == gid {
						continue
					}
					other := core.ParticleRecordAt(particles, int(j))
					if core.Overlaps(self.Position, self.Radius, other.Position, other.Radius) {
						contacts++
					}
				}
			}
		}
	}
	writeResult(params, bufs[slotResult], self, contacts)
}

func collideAllHost(gid uint32, bufs [][]byte) {
	params := core.DecodeSimulationParameters(bufs[slotParams])
	if gid >= params.ParticleCount {
		return
	}
	particles := bufs[slotParticles]
	self := core.ParticleRecordAt(particles, int(gid))
	var contacts uint32
	for j := uint32(0); j < params.ParticleCount; j++ {
		if j == gid {
			continue
		}
		other := core.ParticleRecordAt(particles, int(j))
		if core.Overlaps(self.Position, self.Radius, other.Position, other.Radius) {
			contacts++
		}
	}
	writeResult(params, bufs[slotResult], self, contacts)
}

func writeResult(params core.SimulationParameters, result []byte, self core.PackedParticleRecord, contacts uint32) {
	if params.Substep > 0 {
		contacts += core.ResultRecordAt(result, int(self.Slot)).Contacts
	}
	pos, vel := core.Integrate(self.Position, self.Velocity, params.TimeStep, params.Boundary)
	core.PutResultRecord(result, int(self.Slot), core.ResultRecord{
		Position: pos,
		Contacts: contacts,
		Velocity: vel,
	})
}
