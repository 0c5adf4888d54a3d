package collide

import (
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/collide/particlert/rt/core"
)

func lerp(a, b, t float32) float32 { return a + (b-a)*t }

func randomVec3(rng *rand.Rand, lo, hi float32) mgl32.Vec3 {
	return mgl32.Vec3{
		lerp(lo, hi, rng.Float32()),
		lerp(lo, hi, rng.Float32()),
		lerp(lo, hi, rng.Float32()),
	}
}

// SeedParticles places n particles of the given radius uniformly in
// [-boundary, boundary]^3 with velocities uniform in [-1, 1]^3. The same rng seed
// gives the same particles.
func SeedParticles(n int, boundary, radius float32, rng *rand.Rand) []core.Particle {
	out := make([]core.Particle, n)
	for i := range out {
		out[i] = core.Particle{
			ID:       uint32(i),
			Position: randomVec3(rng, -boundary, boundary),
			Radius:   radius,
			Velocity: randomVec3(rng, -1, 1),
		}
	}
	return out
}
