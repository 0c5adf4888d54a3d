package headless

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunCoversEveryGroup(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	for _, groups := range []uint32{0, 1, 3, 16, 1000} {
		seen := make([]atomic.Int32, groups)
		require.NoError(t, pool.Run(groups, func(g uint32) { seen[g].Add(1) }))
		for g := range seen {
			assert.Equal(t, int32(1), seen[g].Load(), "groups=%d g=%d", groups, g)
		}
	}
}

func TestWorkerPoolRecoversPanics(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	err := pool.Run(8, func(g uint32) {
		if g == 5 {
			panic("boom")
		}
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	var n atomic.Int32
	require.NoError(t, pool.Run(8, func(uint32) { n.Add(1) }))
	assert.Equal(t, int32(8), n.Load())
}

func TestWorkerPoolClosed(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Close()
	pool.Close()
	assert.Error(t, pool.Run(1, func(uint32) {}))
}
