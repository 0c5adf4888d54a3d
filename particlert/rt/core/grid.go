package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// MaxGridSize bounds the cells per axis so the cell table stays at most 128^3 entries.
const MaxGridSize = 128

// Grid is a uniform grid over [-Boundary, Boundary]^3 with Size cells per axis.
type Grid struct {
	Boundary float32
	Size     uint32
}

// NewGrid picks the finest grid whose cells are still at least one particle diameter
// wide, so any overlapping pair sits in the same or in adjacent cells.
func NewGrid(boundary, diameter float32) Grid {
	return Grid{Boundary: boundary, Size: GridSize(boundary, diameter)}
}

func GridSize(boundary, diameter float32) uint32 {
	if boundary <= 0 || diameter <= 0 {
		return 1
	}
	n := math.Floor(float64(2 * boundary / diameter))
	if n < 1 {
		return 1
	}
	if n > MaxGridSize {
		n = MaxGridSize
	}
	size := uint32(n)
	// float32 rounding can leave 2*boundary/size a hair under diameter
	for size > 1 && 2*boundary/float32(size) < diameter {
		size--
	}
	return size
}

func (g Grid) CellSize() float32 {
	return 2 * g.Boundary / float32(g.Size)
}

func (g Grid) CellCount() uint32 {
	return g.Size * g.Size * g.Size
}

// Coord returns the cell coordinates containing pos. Positions outside the boundary
// clamp to the border cells.
func (g Grid) Coord(pos mgl32.Vec3) [3]uint32 {
	cs := g.CellSize()
	var c [3]uint32
	for axis := 0; axis < 3; axis++ {
		c[axis] = g.axisCell((pos[axis] + g.Boundary) / cs)
	}
	return c
}

func (g Grid) axisCell(f float32) uint32 {
	v := math.Floor(float64(f))
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > float64(g.Size-1) {
		return g.Size - 1
	}
	return uint32(v)
}

// IndexOf flattens cell coordinates, x fastest.
func (g Grid) IndexOf(x, y, z uint32) uint32 {
	return x + y*g.Size + z*g.Size*g.Size
}

// Index is the cell index of pos; same position, same cell, in every stage.
func (g Grid) Index(pos mgl32.Vec3) uint32 {
	c := g.Coord(pos)
	return g.IndexOf(c[0], c[1], c[2])
}

// NextPowerOfTwo returns the smallest power of two >= n (1 for n == 0).
func NextPowerOfTwo(n uint32) uint32 {
	p := uint32(1)
	for p < n {
		p <<= 1
	}
	return p
}
