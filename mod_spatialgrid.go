package collide

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/collide/particlert/rt/core"
)

// SpatialHashGrid is a CPU broad phase over particle indices. It backs the contact
// cross-check of VerifyModule and needs no bounds, unlike the device grid.
type SpatialHashGrid struct {
	cellSize float32
	cells    map[uint64][]int
}

func NewSpatialHashGrid(cellSize float32) *SpatialHashGrid {
	return &SpatialHashGrid{
		cellSize: cellSize,
		cells:    make(map[uint64][]int),
	}
}

func (grid *SpatialHashGrid) Clear() {
	clear(grid.cells)
}

func (grid *SpatialHashGrid) Insert(index int, pos mgl32.Vec3) {
	key := grid.hashKey(grid.getCellIndex(pos.X()), grid.getCellIndex(pos.Y()), grid.getCellIndex(pos.Z()))
	grid.cells[key] = append(grid.cells[key], index)
}

// QueryRadius returns candidate indices from every cell the sphere's bounding box
// touches. Hash collisions may add false candidates, never drop true ones.
func (grid *SpatialHashGrid) QueryRadius(center mgl32.Vec3, radius float32) []int {
	minX, maxX := grid.getCellIndex(center.X()-radius), grid.getCellIndex(center.X()+radius)
	minY, maxY := grid.getCellIndex(center.Y()-radius), grid.getCellIndex(center.Y()+radius)
	minZ, maxZ := grid.getCellIndex(center.Z()-radius), grid.getCellIndex(center.Z()+radius)

	unique := make(map[int]struct{})
	var results []int
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			for z := minZ; z <= maxZ; z++ {
				for _, idx := range grid.cells[grid.hashKey(x, y, z)] {
					if _, ok := unique[idx]; !ok {
						unique[idx] = struct{}{}
						results = append(results, idx)
					}
				}
			}
		}
	}
	return results
}

func (grid *SpatialHashGrid) getCellIndex(pos float32) int {
	return int(math.Floor(float64(pos / grid.cellSize)))
}

// Simple hash function for 3D coordinates
func (grid *SpatialHashGrid) hashKey(x, y, z int) uint64 {
	// large primes for mixing
	const p1 = 73856093
	const p2 = 19349663
	const p3 = 83492791
	return uint64(x*p1 ^ y*p2 ^ z*p3)
}

// CountContacts returns, per particle, how many others overlap it.
func CountContacts(particles []core.Particle) []uint32 {
	var maxRadius float32
	for _, p := range particles {
		if p.Radius > maxRadius {
			maxRadius = p.Radius
		}
	}
	out := make([]uint32, len(particles))
	if maxRadius <= 0 {
		return out
	}

	grid := NewSpatialHashGrid(2 * maxRadius)
	for i, p := range particles {
		grid.Insert(i, p.Position)
	}
	for i, p := range particles {
		for _, j := range grid.QueryRadius(p.Position, p.Radius+maxRadius) {
			if j == i {
				continue
			}
			q := particles[j]
			if core.Overlaps(p.Position, p.Radius, q.Position, q.Radius) {
				out[i]++
			}
		}
	}
	return out
}

// Verify is the result of the CPU cross-check.
type Verify struct {
	Checks     int
	Mismatches int

	pending []core.Particle
	frame   int
}

// VerifyModule recounts contacts on the CPU every Every frames. Device counts add
// up over sub-steps and the first sub-step sees the positions from before the
// update, so each device count must be at least the CPU count for those positions;
// with one sub-step they are equal.
type VerifyModule struct {
	Every int
}

func (mod VerifyModule) Install(app *App, cmd *Commands) {
	if mod.Every <= 0 {
		return
	}
	cmd.AddResources(&verifySchedule{every: mod.Every}, &Verify{})
	app.UseSystem(System(captureForVerifySystem).InStage(PreUpdate)).
		UseSystem(System(verifySystem).InStage(PostUpdate))
}

type verifySchedule struct {
	every int
}

func captureForVerifySystem(cmd *Commands, sched *verifySchedule, v *Verify, c *Collision) {
	v.pending = nil
	if cmd.Frame()%sched.every != 0 {
		return
	}
	v.pending = append([]core.Particle(nil), c.Particles()...)
	v.frame = c.Frames
}

func verifySystem(v *Verify, c *Collision, p *Profiler, log Logger) {
	// skipped frames leave the store as it was; nothing to compare
	if v.pending == nil || c.Frames == v.frame {
		return
	}
	p.BeginScope("verify")
	want := CountContacts(v.pending)
	p.EndScope("verify")
	got := c.Contacts()
	exact := c.State.LastFrame().Substeps == 1

	v.Checks++
	for i := range want {
		if (exact && got[i] != want[i]) || got[i] < want[i] {
			v.Mismatches++
			log.Warnf("contact check: particle %d has %d device contacts, CPU counted %d", v.pending[i].ID, got[i], want[i])
			return
		}
	}
	v.pending = nil
}
