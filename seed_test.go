package collide

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedParticles(t *testing.T) {
	a := SeedParticles(200, 5, 0.1, rand.New(rand.NewSource(3)))
	b := SeedParticles(200, 5, 0.1, rand.New(rand.NewSource(3)))
	require.Len(t, a, 200)
	assert.Equal(t, a, b, "same seed, same particles")

	for i, p := range a {
		assert.Equal(t, uint32(i), p.ID)
		assert.Equal(t, float32(0.1), p.Radius)
		for k := 0; k < 3; k++ {
			assert.True(t, p.Position[k] >= -5 && p.Position[k] <= 5, "position %v", p.Position)
			assert.True(t, p.Velocity[k] >= -1 && p.Velocity[k] <= 1, "velocity %v", p.Velocity)
		}
	}

	c := SeedParticles(200, 5, 0.1, rand.New(rand.NewSource(4)))
	assert.NotEqual(t, a, c)
}
