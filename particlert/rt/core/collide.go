package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Overlaps reports whether two spheres interpenetrate. Touching spheres do not count.
func Overlaps(a mgl32.Vec3, ra float32, b mgl32.Vec3, rb float32) bool {
	d := a.Sub(b)
	r := ra + rb
	return d.Dot(d) < r*r
}

// Integrate advances one particle by dt and reflects it off the walls of
// [-boundary, boundary]^3. A zero dt returns pos and vel bit-for-bit unchanged, even
// for a particle outside the walls.
func Integrate(pos, vel mgl32.Vec3, dt, boundary float32) (mgl32.Vec3, mgl32.Vec3) {
	if dt == 0 {
		return pos, vel
	}
	pos = pos.Add(vel.Mul(dt))
	for axis := 0; axis < 3; axis++ {
		if pos[axis] > boundary {
			pos[axis] = boundary
			vel[axis] = -abs32(vel[axis])
		} else if pos[axis] < -boundary {
			pos[axis] = -boundary
			vel[axis] = abs32(vel[axis])
		}
	}
	return pos, vel
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
