package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Particle is the host-side state of one sphere.
type Particle struct {
	ID       uint32
	Position mgl32.Vec3
	Radius   float32
	Velocity mgl32.Vec3
}

// ParticleStore is the host-resident particle array. Index order is stable and is the
// join key with the device records (record slot i <-> Particles()[i]).
type ParticleStore struct {
	particles []Particle
	contacts  []uint32
}

func NewParticleStore(capacity int) *ParticleStore {
	if capacity < 0 {
		capacity = 0
	}
	return &ParticleStore{
		particles: make([]Particle, 0, capacity),
		contacts:  make([]uint32, 0, capacity),
	}
}

func (s *ParticleStore) Push(p Particle) {
	s.particles = append(s.particles, p)
	s.contacts = append(s.contacts, 0)
}

func (s *ParticleStore) Len() int { return len(s.particles) }

// Particles returns the live particle slice. Callers must treat it as read-only;
// only the compute state writes back into it.
func (s *ParticleStore) Particles() []Particle { return s.particles }

// Contacts returns, per particle, the overlaps counted during the last frame.
func (s *ParticleStore) Contacts() []uint32 { return s.contacts }

// Positions copies the current positions, which is all a renderer needs.
func (s *ParticleStore) Positions() []mgl32.Vec3 {
	out := make([]mgl32.Vec3, len(s.particles))
	for i := range s.particles {
		out[i] = s.particles[i].Position
	}
	return out
}

// Apply overwrites position, velocity and contact count of every particle in index
// order. ID and Radius are host-owned and never touched. results must hold exactly
// Len() entries.
func (s *ParticleStore) Apply(results []ResultRecord) {
	n := len(s.particles)
	if len(results) < n {
		n = len(results)
	}
	for i := 0; i < n; i++ {
		s.particles[i].Position = results[i].Position
		s.particles[i].Velocity = results[i].Velocity
		s.contacts[i] = results[i].Contacts
	}
}

// TotalContacts sums the per-particle contact counts. Every overlapping pair is seen
// from both sides, so the number of pairs is half of this.
func (s *ParticleStore) TotalContacts() uint64 {
	var total uint64
	for _, c := range s.contacts {
		total += uint64(c)
	}
	return total
}
