package core

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Byte sizes of the device-side structs. They must match the WGSL declarations in
// particlert/rt/shaders exactly.
const (
	ParticleRecordSize = 48
	ParamsSize         = 32
	SortKeyPairSize    = 8
	CellIndexSize      = 8
	ResultRecordSize   = 32
)

// SentinelCell marks padding records so they sort behind every real cell.
const SentinelCell = math.MaxUint32

// PackedParticleRecord is the device image of a Particle.
//
//	struct Particle {
//	  id: u32,              -- 0
//	  radius: f32,          -- 4
//	  cell: u32,            -- 8
//	  slot: u32,            -- 12
//	  position: vec3<f32>,  -- 16 (+4 pad)
//	  velocity: vec3<f32>,  -- 32 (+4 pad)
//	} -> 48 bytes
//
// slot is the host array index the record was packed from. Records are reordered by
// the sort stage, slot is how results find their way back.
type PackedParticleRecord struct {
	ID        uint32
	Radius    float32
	CellIndex uint32
	Slot      uint32
	Position  mgl32.Vec3
	Velocity  mgl32.Vec3
}

func PackParticle(p Particle, slot uint32) PackedParticleRecord {
	return PackedParticleRecord{
		ID:        p.ID,
		Radius:    p.Radius,
		CellIndex: 0,
		Slot:      slot,
		Position:  p.Position,
		Velocity:  p.Velocity,
	}
}

// PaddingRecord fills the slots between the active count and the buffer capacity.
func PaddingRecord(slot uint32) PackedParticleRecord {
	return PackedParticleRecord{CellIndex: SentinelCell, Slot: slot}
}

// PutParticleRecord writes r as record i of buf.
func PutParticleRecord(buf []byte, i int, r PackedParticleRecord) {
	b := buf[i*ParticleRecordSize : (i+1)*ParticleRecordSize]
	binary.LittleEndian.PutUint32(b[0:], r.ID)
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(r.Radius))
	binary.LittleEndian.PutUint32(b[8:], r.CellIndex)
	binary.LittleEndian.PutUint32(b[12:], r.Slot)
	putVec3Padded(b[16:], r.Position)
	putVec3Padded(b[32:], r.Velocity)
}

// ParticleRecordAt decodes record i of buf.
func ParticleRecordAt(buf []byte, i int) PackedParticleRecord {
	b := buf[i*ParticleRecordSize : (i+1)*ParticleRecordSize]
	return PackedParticleRecord{
		ID:        binary.LittleEndian.Uint32(b[0:]),
		Radius:    math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
		CellIndex: binary.LittleEndian.Uint32(b[8:]),
		Slot:      binary.LittleEndian.Uint32(b[12:]),
		Position:  vec3At(b[16:]),
		Velocity:  vec3At(b[32:]),
	}
}

// RecordCell reads only the cell field of record i. The sort and grid stages touch
// nothing else.
func RecordCell(buf []byte, i int) uint32 {
	return binary.LittleEndian.Uint32(buf[i*ParticleRecordSize+8:])
}

// SwapRecords exchanges records i and j in place.
func SwapRecords(buf []byte, i, j int) {
	var tmp [ParticleRecordSize]byte
	a := buf[i*ParticleRecordSize : (i+1)*ParticleRecordSize]
	b := buf[j*ParticleRecordSize : (j+1)*ParticleRecordSize]
	copy(tmp[:], a)
	copy(a, b)
	copy(b, tmp[:])
}

// EncodeParticles serialises particles into a buffer of exactly capacity records.
// Slots past len(particles) are padding records.
func EncodeParticles(particles []Particle, capacity int) ([]byte, error) {
	if len(particles) > capacity {
		return nil, fmt.Errorf("encode particles: %d particles exceed capacity %d", len(particles), capacity)
	}
	buf := make([]byte, capacity*ParticleRecordSize)
	for i := 0; i < capacity; i++ {
		if i < len(particles) {
			PutParticleRecord(buf, i, PackParticle(particles[i], uint32(i)))
		} else {
			PutParticleRecord(buf, i, PaddingRecord(uint32(i)))
		}
	}
	return buf, nil
}

// SimulationParameters is rewritten before every sub-step.
//
//	struct Params {
//	  time_step: f32,       -- 0
//	  boundary: f32,        -- 4
//	  grid_size: u32,       -- 8
//	  particle_count: u32,  -- 12
//	  sorted_count: u32,    -- 16
//	  cell_count: u32,      -- 20
//	  substep: u32,         -- 24
//	  _pad: u32,            -- 28
//	} -> 32 bytes
type SimulationParameters struct {
	TimeStep      float32
	Boundary      float32
	GridSize      uint32
	ParticleCount uint32
	SortedCount   uint32
	CellCount     uint32
	Substep       uint32
}

func (p SimulationParameters) Bytes() []byte {
	buf := make([]byte, ParamsSize)
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(p.TimeStep))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(p.Boundary))
	binary.LittleEndian.PutUint32(buf[8:], p.GridSize)
	binary.LittleEndian.PutUint32(buf[12:], p.ParticleCount)
	binary.LittleEndian.PutUint32(buf[16:], p.SortedCount)
	binary.LittleEndian.PutUint32(buf[20:], p.CellCount)
	binary.LittleEndian.PutUint32(buf[24:], p.Substep)
	binary.LittleEndian.PutUint32(buf[28:], 0)
	return buf
}

func DecodeSimulationParameters(buf []byte) SimulationParameters {
	return SimulationParameters{
		TimeStep:      math.Float32frombits(binary.LittleEndian.Uint32(buf[0:])),
		Boundary:      math.Float32frombits(binary.LittleEndian.Uint32(buf[4:])),
		GridSize:      binary.LittleEndian.Uint32(buf[8:]),
		ParticleCount: binary.LittleEndian.Uint32(buf[12:]),
		SortedCount:   binary.LittleEndian.Uint32(buf[16:]),
		CellCount:     binary.LittleEndian.Uint32(buf[20:]),
		Substep:       binary.LittleEndian.Uint32(buf[24:]),
	}
}

// Grid returns the cell layout these parameters describe.
func (p SimulationParameters) Grid() Grid {
	return Grid{Boundary: p.Boundary, Size: p.GridSize}
}

// SortKeyPair selects one comparator stage of the bitonic network.
type SortKeyPair struct {
	J uint32
	K uint32
}

func (s SortKeyPair) Bytes() []byte {
	buf := make([]byte, SortKeyPairSize)
	binary.LittleEndian.PutUint32(buf[0:], s.J)
	binary.LittleEndian.PutUint32(buf[4:], s.K)
	return buf
}

func DecodeSortKeyPair(buf []byte) SortKeyPair {
	return SortKeyPair{
		J: binary.LittleEndian.Uint32(buf[0:]),
		K: binary.LittleEndian.Uint32(buf[4:]),
	}
}

// CellIndex is the [Start, End) range of a cell in the sorted record array.
// Start == End means the cell is empty.
type CellIndex struct {
	Start uint32
	End   uint32
}

func PutCellIndex(buf []byte, cell int, c CellIndex) {
	binary.LittleEndian.PutUint32(buf[cell*CellIndexSize:], c.Start)
	binary.LittleEndian.PutUint32(buf[cell*CellIndexSize+4:], c.End)
}

func CellIndexAt(buf []byte, cell int) CellIndex {
	return CellIndex{
		Start: binary.LittleEndian.Uint32(buf[cell*CellIndexSize:]),
		End:   binary.LittleEndian.Uint32(buf[cell*CellIndexSize+4:]),
	}
}

func PutCellStart(buf []byte, cell int, start uint32) {
	binary.LittleEndian.PutUint32(buf[cell*CellIndexSize:], start)
}

func PutCellEnd(buf []byte, cell int, end uint32) {
	binary.LittleEndian.PutUint32(buf[cell*CellIndexSize+4:], end)
}

// ResultRecord is what the collision stage hands back for one particle.
//
//	struct Result {
//	  position: vec3<f32>,  -- 0
//	  contacts: u32,        -- 12
//	  velocity: vec3<f32>,  -- 16 (+4 pad)
//	} -> 32 bytes
type ResultRecord struct {
	Position mgl32.Vec3
	Contacts uint32
	Velocity mgl32.Vec3
}

func PutResultRecord(buf []byte, i int, r ResultRecord) {
	b := buf[i*ResultRecordSize : (i+1)*ResultRecordSize]
	putVec3(b[0:], r.Position)
	binary.LittleEndian.PutUint32(b[12:], r.Contacts)
	putVec3Padded(b[16:], r.Velocity)
}

func ResultRecordAt(buf []byte, i int) ResultRecord {
	b := buf[i*ResultRecordSize : (i+1)*ResultRecordSize]
	return ResultRecord{
		Position: vec3At(b[0:]),
		Contacts: binary.LittleEndian.Uint32(b[12:]),
		Velocity: vec3At(b[16:]),
	}
}

// DecodeResults reads the first n result records. It fails instead of returning a
// partial slice so callers never apply half a frame.
func DecodeResults(buf []byte, n int) ([]ResultRecord, error) {
	if n < 0 || len(buf) < n*ResultRecordSize {
		return nil, fmt.Errorf("decode results: need %d bytes for %d records, have %d", n*ResultRecordSize, n, len(buf))
	}
	out := make([]ResultRecord, n)
	for i := range out {
		out[i] = ResultRecordAt(buf, i)
	}
	return out, nil
}

func putVec3(b []byte, v mgl32.Vec3) {
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(v[0]))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(v[1]))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(v[2]))
}

func putVec3Padded(b []byte, v mgl32.Vec3) {
	putVec3(b, v)
	binary.LittleEndian.PutUint32(b[12:], 0)
}

func vec3At(b []byte) mgl32.Vec3 {
	return mgl32.Vec3{
		math.Float32frombits(binary.LittleEndian.Uint32(b[0:])),
		math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
		math.Float32frombits(binary.LittleEndian.Uint32(b[8:])),
	}
}
