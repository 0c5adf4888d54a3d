// Package headless is a compute device that runs kernels on the CPU. It executes the
// same recorded command sequences as a GPU backend, so the whole pipeline can run in
// tests and on machines without an adapter.
package headless

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gekko3d/collide/particlert/rt/gpu"
	"github.com/gekko3d/collide/particlert/rt/shaders"
)

type buffer struct {
	label  string
	usage  gpu.BufferUsage
	data   []byte
	mapped atomic.Bool
	dev    *Device
}

func (b *buffer) Label() string          { return b.label }
func (b *buffer) Size() uint64           { return uint64(len(b.data)) }
func (b *buffer) Usage() gpu.BufferUsage { return b.usage }
func (b *buffer) Release()               {}
func (b *buffer) String() string         { return fmt.Sprintf("headless buffer %q (%d bytes)", b.label, len(b.data)) }

type pipeline struct {
	label    string
	host     gpu.HostKernel
	bindings []gpu.BufferBinding
	views    [][]byte
}

func (p *pipeline) Label() string { return p.label }

type submission struct {
	done chan struct{}
	err  error
}

func (s *submission) Done() <-chan struct{} { return s.done }
func (s *submission) Err() error            { return s.err }

// Device executes one queue of jobs in order on a single goroutine. Each dispatch is
// fanned out over the worker pool and joined before the next command starts.
type Device struct {
	mu       sync.Mutex
	released bool
	queue    chan func()
	exited   chan struct{}
	pool     *WorkerPool

	dispatches atomic.Int64
	submits    atomic.Int64
}

// NewDevice starts a device with workers pool goroutines; workers <= 0 means GOMAXPROCS.
func NewDevice(workers int) *Device {
	d := &Device{
		queue:  make(chan func(), 64),
		exited: make(chan struct{}),
		pool:   NewWorkerPool(workers),
	}
	go d.run()
	return d
}

func (d *Device) run() {
	defer close(d.exited)
	for job := range d.queue {
		job()
	}
}

func (d *Device) Name() string {
	return fmt.Sprintf("headless (%d workers)", d.pool.Workers())
}

// enqueue hands job to the queue goroutine.
func (d *Device) enqueue(job func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return gpu.ErrDeviceReleased
	}
	d.queue <- job
	return nil
}

func (d *Device) own(b gpu.Buffer) (*buffer, error) {
	hb, ok := b.(*buffer)
	if !ok || hb.dev != d {
		return nil, fmt.Errorf("headless: buffer %v does not belong to this device", b)
	}
	return hb, nil
}

func (d *Device) CreateBuffer(label string, size uint64, usage gpu.BufferUsage) (gpu.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gpu.ErrDeviceReleased
	}
	if size == 0 {
		return nil, fmt.Errorf("headless: buffer %q has zero size", label)
	}
	return &buffer{label: label, usage: usage, data: make([]byte, size), dev: d}, nil
}

func (d *Device) WriteBuffer(b gpu.Buffer, offset uint64, data []byte) error {
	hb, err := d.own(b)
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > uint64(len(hb.data)) {
		return fmt.Errorf("%w: %q holds %d bytes", gpu.ErrSizeMismatch, hb.label, len(hb.data))
	}
	if hb.mapped.Load() {
		return fmt.Errorf("%w: %q", gpu.ErrBufferMapped, hb.label)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return d.enqueue(func() {
		copy(hb.data[offset:], cp)
	})
}

func (d *Device) CreateKernel(src gpu.KernelSource, bindings []gpu.BufferBinding) (gpu.Pipeline, error) {
	if src.Host == nil {
		return nil, fmt.Errorf("headless: kernel %s has no host body", src.Label)
	}
	// host-only kernels have no WGSL; the rest must build on a real device too
	if src.WGSL != "" {
		if err := shaders.Validate(src.Label, src.WGSL); err != nil {
			return nil, fmt.Errorf("headless: %w", err)
		}
	}
	var maxSlot uint32
	for _, b := range bindings {
		if b.Slot > maxSlot {
			maxSlot = b.Slot
		}
	}
	views := make([][]byte, maxSlot+1)
	for _, b := range bindings {
		hb, err := d.own(b.Buffer)
		if err != nil {
			return nil, err
		}
		if views[b.Slot] != nil {
			return nil, fmt.Errorf("headless: kernel %s binds slot %d twice", src.Label, b.Slot)
		}
		views[b.Slot] = hb.data
	}
	return &pipeline{label: src.Label, host: src.Host, bindings: bindings, views: views}, nil
}

func (d *Device) Submit(cmds *gpu.Commands) (gpu.Submission, error) {
	ops := cmds.Ops()
	for _, op := range ops {
		switch op.Kind {
		case gpu.OpWrite:
			hb, err := d.own(op.Buffer)
			if err != nil {
				return nil, err
			}
			if op.Offset+uint64(len(op.Data)) > uint64(len(hb.data)) {
				return nil, fmt.Errorf("%w: %q holds %d bytes", gpu.ErrSizeMismatch, hb.label, len(hb.data))
			}
			if hb.mapped.Load() {
				return nil, fmt.Errorf("%w: %q", gpu.ErrBufferMapped, hb.label)
			}
		case gpu.OpDispatch:
			p, ok := op.Pipeline.(*pipeline)
			if !ok {
				return nil, fmt.Errorf("headless: foreign pipeline %v", op.Pipeline)
			}
			for _, b := range p.bindings {
				if b.Buffer.(*buffer).mapped.Load() {
					return nil, fmt.Errorf("%w: %q bound to %s", gpu.ErrBufferMapped, b.Buffer.Label(), p.label)
				}
			}
		}
	}

	sub := &submission{done: make(chan struct{})}
	err := d.enqueue(func() {
		defer close(sub.done)
		sub.err = d.execute(cmds.Label, ops)
	})
	if err != nil {
		return nil, err
	}
	d.submits.Add(1)
	return sub, nil
}

func (d *Device) execute(label string, ops []gpu.Op) error {
	for i, op := range ops {
		switch op.Kind {
		case gpu.OpWrite:
			hb := op.Buffer.(*buffer)
			copy(hb.data[op.Offset:], op.Data)
		case gpu.OpDispatch:
			p := op.Pipeline.(*pipeline)
			err := d.pool.Run(op.Groups, func(group uint32) {
				base := group * gpu.WorkgroupSize
				for local := uint32(0); local < gpu.WorkgroupSize; local++ {
					p.host(base+local, p.views)
				}
			})
			if err != nil {
				return fmt.Errorf("%s: op %d (%s): %w", label, i, p.label, err)
			}
			d.dispatches.Add(1)
		}
	}
	return nil
}

// ReadBuffer waits until every job queued so far has run, then maps buf.
func (d *Device) ReadBuffer(ctx context.Context, b gpu.Buffer, fn func(mapped []byte) error) error {
	hb, err := d.own(b)
	if err != nil {
		return err
	}
	if !hb.usage.Has(gpu.UsageCopySrc) && !hb.usage.Has(gpu.UsageMapRead) {
		return fmt.Errorf("%w: %q is not readable by the host", gpu.ErrMapFailure, hb.label)
	}

	fence := make(chan struct{})
	if err := d.enqueue(func() { close(fence) }); err != nil {
		return err
	}
	select {
	case <-fence:
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", gpu.ErrDeviceTimeout, ctx.Err())
	}

	if !hb.mapped.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %q", gpu.ErrBufferMapped, hb.label)
	}
	defer hb.mapped.Store(false)
	return fn(hb.data)
}

// Dispatches is the number of kernel dispatches executed so far.
func (d *Device) Dispatches() int64 { return d.dispatches.Load() }

func (d *Device) Submits() int64 { return d.submits.Load() }

// Release drains the queue and stops the device. Release is idempotent.
func (d *Device) Release() {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return
	}
	d.released = true
	close(d.queue)
	d.mu.Unlock()

	<-d.exited
	d.pool.Close()
}
