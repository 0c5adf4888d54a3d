package gpu

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gekko3d/collide/particlert/rt/core"
)

type Mode uint8

const (
	// ModeGrid runs the four-stage broad phase: AssignCell, Sort, BuildGrid, Collision.
	ModeGrid Mode = iota
	// ModeBruteForce tests every pair and skips the grid.
	ModeBruteForce
)

func (m Mode) String() string {
	switch m {
	case ModeGrid:
		return "grid"
	case ModeBruteForce:
		return "brute"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "grid":
		return ModeGrid, nil
	case "brute", "bruteforce", "brute-force", "allpairs":
		return ModeBruteForce, nil
	}
	return ModeGrid, fmt.Errorf("unknown collision mode %q", s)
}

type Options struct {
	// Capacity is the largest particle count the buffers can hold.
	Capacity         int
	Boundary         float32
	ParticleDiameter float32
	Substeps         int
	Mode             Mode
	// Timeout bounds every wait on the device. Zero means DefaultOptions().Timeout.
	Timeout time.Duration
	Logger  Logger
}

func DefaultOptions() Options {
	return Options{
		Capacity:         10000,
		Boundary:         10,
		ParticleDiameter: 0.4,
		Substeps:         10,
		Mode:             ModeGrid,
		Timeout:          5 * time.Second,
	}
}

// FrameStats describes the last completed Update.
type FrameStats struct {
	Particles  int
	Substeps   int
	Dispatches int
	Contacts   uint64
	Duration   time.Duration
}

// ComputeState owns the device buffers and kernels and drives one round trip per
// frame. It is not safe for concurrent use.
type ComputeState struct {
	dev     Device
	opts    Options
	store   *core.ParticleStore
	buffers *DeviceBufferSet
	// base is sized for Options.ParticleDiameter; grid is the one the last frame used.
	base    core.Grid
	grid    core.Grid

	recordCapacity uint32
	schedule       []core.SortKeyPair

	assignCell  *Kernel
	sort        *Kernel
	buildGrid   *Kernel
	collideGrid *Kernel
	collideAll  *Kernel

	inflight Submission
	last     FrameStats
	logger   Logger
}

func NewComputeState(dev Device, opts Options) (*ComputeState, error) {
	def := DefaultOptions()
	if opts.Capacity <= 0 {
		return nil, fmt.Errorf("compute state: capacity must be positive, got %d", opts.Capacity)
	}
	if opts.Boundary <= 0 {
		return nil, fmt.Errorf("compute state: boundary must be positive, got %g", opts.Boundary)
	}
	if opts.ParticleDiameter <= 0 {
		opts.ParticleDiameter = def.ParticleDiameter
	}
	if opts.Substeps <= 0 {
		opts.Substeps = def.Substeps
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	s := &ComputeState{
		dev:            dev,
		opts:           opts,
		store:          core.NewParticleStore(opts.Capacity),
		base:           core.NewGrid(opts.Boundary, opts.ParticleDiameter),
		recordCapacity: core.NextPowerOfTwo(uint32(opts.Capacity)),
		logger:         logger,
	}
	s.grid = s.base

	buffers, err := NewDeviceBufferSet(dev, Layout(s.recordCapacity, s.grid.CellCount()))
	if err != nil {
		return nil, fmt.Errorf("compute state: %w", err)
	}
	s.buffers = buffers

	kernels := []struct {
		dst **Kernel
		src KernelSource
	}{
		{&s.assignCell, AssignCellSource()},
		{&s.sort, SortSource()},
		{&s.buildGrid, BuildGridSource()},
		{&s.collideGrid, CollideGridSource()},
		{&s.collideAll, CollideAllSource()},
	}
	for _, k := range kernels {
		kernel, err := NewKernel(dev, buffers, k.src)
		if err != nil {
			buffers.Release()
			return nil, fmt.Errorf("compute state: %w", err)
		}
		*k.dst = kernel
	}

	logger.Infof("compute state on %s: capacity=%d records=%d grid=%d^3 mode=%s substeps=%d",
		dev.Name(), opts.Capacity, s.recordCapacity, s.grid.Size, opts.Mode, opts.Substeps)
	return s, nil
}

// Store is the host particle array. Push particles before the first Update.
func (s *ComputeState) Store() *core.ParticleStore { return s.store }

func (s *ComputeState) Particles() []core.Particle { return s.store.Particles() }

// Grid is the cell layout of the last frame.
func (s *ComputeState) Grid() core.Grid { return s.grid }

func (s *ComputeState) Mode() Mode { return s.opts.Mode }

func (s *ComputeState) SetMode(m Mode) { s.opts.Mode = m }

func (s *ComputeState) Buffers() *DeviceBufferSet { return s.buffers }

func (s *ComputeState) LastFrame() FrameStats { return s.last }

func (s *ComputeState) params(dt float32, n, substep uint32) core.SimulationParameters {
	return core.SimulationParameters{
		TimeStep:      dt,
		Boundary:      s.opts.Boundary,
		GridSize:      s.grid.Size,
		ParticleCount: n,
		SortedCount:   core.NextPowerOfTwo(n),
		CellCount:     s.grid.CellCount(),
		Substep:       substep,
	}
}

// Encode records one frame of work for n particles: every sub-step rewrites the
// parameters and runs the stages of the current mode in order.
func (s *ComputeState) Encode(dt float32, n uint32) (*Commands, error) {
	if n > s.recordCapacity {
		return nil, fmt.Errorf("%w: %d particles, %d records", ErrSizeMismatch, n, s.recordCapacity)
	}
	cmds := NewCommands("collide frame")
	step := dt / float32(s.opts.Substeps)
	sorted := core.NextPowerOfTwo(n)
	if s.schedule == nil || uint32(len(s.schedule)) != scheduleLen(sorted) {
		s.schedule = SortSchedule(sorted)
	}

	assignThreads := sorted
	if c := s.grid.CellCount(); c > assignThreads {
		assignThreads = c
	}

	for sub := 0; sub < s.opts.Substeps; sub++ {
		p := s.params(step, n, uint32(sub))
		if err := s.buffers.Record(cmds, BufferParams, 0, p.Bytes()); err != nil {
			return nil, err
		}
		s.assignCell.DispatchThreads(cmds, assignThreads)

		if s.opts.Mode == ModeBruteForce {
			s.collideAll.DispatchThreads(cmds, n)
			continue
		}

		for _, sk := range s.schedule {
			if err := s.buffers.Record(cmds, BufferSortParams, 0, sk.Bytes()); err != nil {
				return nil, err
			}
			s.sort.DispatchThreads(cmds, sorted)
		}
		s.buildGrid.DispatchThreads(cmds, n)
		s.collideGrid.DispatchThreads(cmds, n)
	}
	return cmds, nil
}

// fitGrid coarsens the grid for this frame when a particle is wider than a cell, so
// every overlapping pair still sits in the same or in adjacent cells. A coarser grid
// has fewer cells and always fits the cell table.
func (s *ComputeState) fitGrid() {
	var maxRadius float32
	for _, p := range s.store.Particles() {
		if p.Radius > maxRadius {
			maxRadius = p.Radius
		}
	}
	grid := s.base
	if d := 2 * maxRadius; d > grid.CellSize() {
		grid = core.NewGrid(s.opts.Boundary, d)
	}
	if grid != s.grid {
		s.logger.Debugf("grid %d^3 -> %d^3 for particle radius %g", s.grid.Size, grid.Size, maxRadius)
	}
	s.grid = grid
}

func scheduleLen(n uint32) uint32 {
	var l uint32
	for p := uint32(1); p < n; p <<= 1 {
		l++
	}
	return l * (l + 1) / 2
}

// Update runs one frame: upload, dispatch all sub-steps, wait, read back and apply.
// On ErrDeviceTimeout or ErrMapFailure the store keeps its previous state.
func (s *ComputeState) Update(ctx context.Context, dt float32) error {
	start := time.Now()
	n := s.store.Len()
	if n == 0 {
		s.last = FrameStats{Substeps: s.opts.Substeps}
		return nil
	}
	if n > s.opts.Capacity {
		return fmt.Errorf("%w: %d particles exceed capacity %d", ErrSizeMismatch, n, s.opts.Capacity)
	}

	s.fitGrid()

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	if s.inflight != nil {
		if err := Wait(ctx, s.inflight); err != nil {
			return fmt.Errorf("previous frame: %w", err)
		}
		s.inflight = nil
	}

	payload, err := core.EncodeParticles(s.store.Particles(), int(s.recordCapacity))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSizeMismatch, err)
	}
	if err := s.buffers.Write(BufferParticles, 0, payload); err != nil {
		return err
	}

	cmds, err := s.Encode(dt, uint32(n))
	if err != nil {
		return err
	}
	sub, err := s.dev.Submit(cmds)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	s.inflight = sub
	if err := Wait(ctx, sub); err != nil {
		if errors.Is(err, ErrDeviceTimeout) {
			s.logger.Warnf("frame timed out after %s with %d dispatches in flight", s.opts.Timeout, cmds.Dispatches())
		}
		return err
	}
	s.inflight = nil

	result, err := s.buffers.Lookup(BufferResult)
	if err != nil {
		return err
	}
	var decoded []core.ResultRecord
	err = s.dev.ReadBuffer(ctx, result, func(mapped []byte) error {
		var derr error
		decoded, derr = core.DecodeResults(mapped, n)
		return derr
	})
	if err != nil {
		if errors.Is(err, ErrDeviceTimeout) || errors.Is(err, ErrMapFailure) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrMapFailure, err)
	}

	s.store.Apply(decoded)
	s.last = FrameStats{
		Particles:  n,
		Substeps:   s.opts.Substeps,
		Dispatches: cmds.Dispatches(),
		Contacts:   s.store.TotalContacts(),
		Duration:   time.Since(start),
	}
	s.logger.Debugf("frame: n=%d dispatches=%d contacts=%d in %s", n, s.last.Dispatches, s.last.Contacts, s.last.Duration)
	return nil
}

func (s *ComputeState) Release() {
	if s.inflight != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)
		_ = Wait(ctx, s.inflight)
		cancel()
		s.inflight = nil
	}
	if s.buffers != nil {
		s.buffers.Release()
	}
}
