package core

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParticleStoreApplyKeepsHostFields(t *testing.T) {
	s := NewParticleStore(2)
	s.Push(Particle{ID: 3, Position: mgl32.Vec3{1, 1, 1}, Radius: 0.2})
	s.Push(Particle{ID: 9, Position: mgl32.Vec3{2, 2, 2}, Radius: 0.4})

	s.Apply([]ResultRecord{
		{Position: mgl32.Vec3{5, 5, 5}, Velocity: mgl32.Vec3{1, 0, 0}, Contacts: 1},
		{Position: mgl32.Vec3{6, 6, 6}, Velocity: mgl32.Vec3{0, 1, 0}, Contacts: 1},
	})

	ps := s.Particles()
	require.Len(t, ps, 2)
	assert.Equal(t, uint32(3), ps[0].ID)
	assert.Equal(t, float32(0.2), ps[0].Radius)
	assert.Equal(t, mgl32.Vec3{5, 5, 5}, ps[0].Position)
	assert.Equal(t, uint32(9), ps[1].ID)
	assert.Equal(t, float32(0.4), ps[1].Radius)
	assert.Equal(t, mgl32.Vec3{0, 1, 0}, ps[1].Velocity)

	assert.Equal(t, []uint32{1, 1}, s.Contacts())
	assert.Equal(t, uint64(2), s.TotalContacts())
	assert.Equal(t, []mgl32.Vec3{{5, 5, 5}, {6, 6, 6}}, s.Positions())
}
