package core

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParticleRecordLayout(t *testing.T) {
	buf := make([]byte, 2*ParticleRecordSize)
	rec := PackedParticleRecord{
		ID:        7,
		Radius:    0.5,
		CellIndex: 42,
		Slot:      1,
		Position:  mgl32.Vec3{1, 2, 3},
		Velocity:  mgl32.Vec3{-1, -2, -3},
	}
	PutParticleRecord(buf, 1, rec)

	b := buf[ParticleRecordSize:]
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(b[0:]))
	assert.Equal(t, float32(0.5), math.Float32frombits(binary.LittleEndian.Uint32(b[4:])))
	assert.Equal(t, uint32(42), binary.LittleEndian.Uint32(b[8:]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(b[12:]))
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(b[16:])))
	assert.Equal(t, float32(3), math.Float32frombits(binary.LittleEndian.Uint32(b[24:])))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(b[28:]), "position padding")
	assert.Equal(t, float32(-1), math.Float32frombits(binary.LittleEndian.Uint32(b[32:])))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(b[44:]), "velocity padding")

	// first record untouched
	for _, v := range buf[:ParticleRecordSize] {
		require.Zero(t, v)
	}

	assert.Equal(t, rec, ParticleRecordAt(buf, 1))
	assert.Equal(t, uint32(42), RecordCell(buf, 1))
}

func TestSwapRecords(t *testing.T) {
	buf := make([]byte, 2*ParticleRecordSize)
	a := PackedParticleRecord{ID: 1, CellIndex: 9, Slot: 0, Position: mgl32.Vec3{1, 1, 1}}
	b := PackedParticleRecord{ID: 2, CellIndex: 3, Slot: 1, Velocity: mgl32.Vec3{2, 2, 2}}
	PutParticleRecord(buf, 0, a)
	PutParticleRecord(buf, 1, b)

	SwapRecords(buf, 0, 1)

	assert.Equal(t, b, ParticleRecordAt(buf, 0))
	assert.Equal(t, a, ParticleRecordAt(buf, 1))
}

func TestEncodeParticlesPadsToCapacity(t *testing.T) {
	ps := []Particle{
		{ID: 10, Position: mgl32.Vec3{1, 2, 3}, Radius: 0.2, Velocity: mgl32.Vec3{0, 1, 0}},
		{ID: 11, Position: mgl32.Vec3{-1, -2, -3}, Radius: 0.3},
	}
	buf, err := EncodeParticles(ps, 4)
	require.NoError(t, err)
	require.Len(t, buf, 4*ParticleRecordSize)

	r0 := ParticleRecordAt(buf, 0)
	assert.Equal(t, uint32(10), r0.ID)
	assert.Equal(t, uint32(0), r0.Slot)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, r0.Position)

	r1 := ParticleRecordAt(buf, 1)
	assert.Equal(t, uint32(1), r1.Slot)
	assert.Equal(t, float32(0.3), r1.Radius)

	for i := 2; i < 4; i++ {
		pad := ParticleRecordAt(buf, i)
		assert.Equal(t, uint32(SentinelCell), pad.CellIndex)
		assert.Equal(t, uint32(i), pad.Slot)
	}

	_, err = EncodeParticles(ps, 1)
	assert.Error(t, err)
}

func TestSimulationParametersBytes(t *testing.T) {
	p := SimulationParameters{
		TimeStep:      0.016,
		Boundary:      10,
		GridSize:      50,
		ParticleCount: 100,
		SortedCount:   128,
		CellCount:     125000,
		Substep:       3,
	}
	buf := p.Bytes()
	require.Len(t, buf, ParamsSize)
	assert.Equal(t, uint32(50), binary.LittleEndian.Uint32(buf[8:]))
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(buf[24:]))
	assert.Equal(t, p, DecodeSimulationParameters(buf))
	assert.Equal(t, Grid{Boundary: 10, Size: 50}, p.Grid())
}

func TestSortKeyPairAndCellIndex(t *testing.T) {
	sk := SortKeyPair{J: 4, K: 16}
	buf := sk.Bytes()
	require.Len(t, buf, SortKeyPairSize)
	assert.Equal(t, sk, DecodeSortKeyPair(buf))

	cells := make([]byte, 3*CellIndexSize)
	PutCellIndex(cells, 2, CellIndex{Start: 5, End: 9})
	assert.Equal(t, CellIndex{Start: 5, End: 9}, CellIndexAt(cells, 2))
	PutCellStart(cells, 0, 1)
	PutCellEnd(cells, 0, 4)
	assert.Equal(t, CellIndex{Start: 1, End: 4}, CellIndexAt(cells, 0))
	assert.Equal(t, CellIndex{}, CellIndexAt(cells, 1))
}

func TestResultRecordLayout(t *testing.T) {
	buf := make([]byte, ResultRecordSize)
	r := ResultRecord{Position: mgl32.Vec3{1, 2, 3}, Contacts: 5, Velocity: mgl32.Vec3{4, 5, 6}}
	PutResultRecord(buf, 0, r)

	assert.Equal(t, uint32(5), binary.LittleEndian.Uint32(buf[12:]))
	assert.Equal(t, float32(4), math.Float32frombits(binary.LittleEndian.Uint32(buf[16:])))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(buf[28:]))
	assert.Equal(t, r, ResultRecordAt(buf, 0))
}

func TestDecodeResultsRejectsShortBuffer(t *testing.T) {
	buf := make([]byte, ResultRecordSize*2)
	out, err := DecodeResults(buf, 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)

	_, err = DecodeResults(buf, 3)
	assert.Error(t, err)
}
