// Package webgpu runs the collision kernels on a real adapter through wgpu-native.
package webgpu

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/collide/particlert/rt/gpu"
)

type buffer struct {
	buf   *wgpu.Buffer
	label string
	size  uint64
	usage gpu.BufferUsage
	dev   *Device
}

func (b *buffer) Label() string          { return b.label }
func (b *buffer) Size() uint64           { return b.size }
func (b *buffer) Usage() gpu.BufferUsage { return b.usage }

type pipeline struct {
	label     string
	module    *wgpu.ShaderModule
	layout    *wgpu.BindGroupLayout
	plLayout  *wgpu.PipelineLayout
	pipeline  *wgpu.ComputePipeline
	bindGroup *wgpu.BindGroup
}

func (p *pipeline) Label() string { return p.label }

func (p *pipeline) release() {
	if p.bindGroup != nil {
		p.bindGroup.Release()
	}
	if p.pipeline != nil {
		p.pipeline.Release()
	}
	if p.plLayout != nil {
		p.plLayout.Release()
	}
	if p.layout != nil {
		p.layout.Release()
	}
	if p.module != nil {
		p.module.Release()
	}
}

type submission struct {
	done chan struct{}
	err  error
}

func (s *submission) Done() <-chan struct{} { return s.done }
func (s *submission) Err() error            { return s.err }

// workDoneErr maps the queue's completion status onto the gpu error set.
func workDoneErr(status wgpu.QueueWorkDoneStatus) error {
	switch status {
	case wgpu.QueueWorkDoneStatusSuccess:
		return nil
	case wgpu.QueueWorkDoneStatusDeviceLost:
		return gpu.ErrDeviceLost
	default:
		return fmt.Errorf("webgpu: submitted work ended with status %v", status)
	}
}

// abandon finishes a map request nobody waits for any more. A mapping that
// succeeds late is unmapped before the readback buffer is released.
func abandon(mapped <-chan error, unmap func() error, release func()) {
	go func() {
		if err := <-mapped; err == nil {
			_ = unmap()
		}
		release()
	}()
}

// Device owns an adapter, a device and its queue.
type Device struct {
	mu       sync.Mutex
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	name     string

	buffers   []*buffer
	pipelines []*pipeline
	staging   map[*buffer]*wgpu.Buffer
	released  bool
	lost      atomic.Pointer[error]
}

// NewDevice requests a high-performance adapter.
func NewDevice() (*Device, error) {
	instance := wgpu.CreateInstance(nil)

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("request adapter: %w", err)
	}

	d := &Device{
		instance: instance,
		adapter:  adapter,
		staging:  make(map[*buffer]*wgpu.Buffer),
	}
	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label:              "collide",
		DeviceLostCallback: d.onLost,
	})
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}

	info := adapter.GetInfo()
	d.device = device
	d.queue = device.GetQueue()
	d.name = fmt.Sprintf("%s (%s)", info.Name, info.BackendType.String())
	return d, nil
}

func (d *Device) onLost(reason wgpu.DeviceLostReason, message string) {
	err := fmt.Errorf("%w: %v: %s", gpu.ErrDeviceLost, reason, message)
	d.lost.CompareAndSwap(nil, &err)
}

// lostErr is the first device-lost report, or nil while the device is healthy.
func (d *Device) lostErr() error {
	if err := d.lost.Load(); err != nil {
		return *err
	}
	return nil
}

func (d *Device) Name() string { return d.name }

func wgpuUsage(u gpu.BufferUsage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	if u.Has(gpu.UsageStorage) {
		out |= wgpu.BufferUsageStorage
	}
	if u.Has(gpu.UsageUniform) {
		out |= wgpu.BufferUsageUniform
	}
	if u.Has(gpu.UsageCopySrc) {
		out |= wgpu.BufferUsageCopySrc
	}
	if u.Has(gpu.UsageCopyDst) {
		out |= wgpu.BufferUsageCopyDst
	}
	if u.Has(gpu.UsageMapRead) {
		out |= wgpu.BufferUsageMapRead
	}
	return out
}

func (d *Device) own(b gpu.Buffer) (*buffer, error) {
	wb, ok := b.(*buffer)
	if !ok || wb.dev != d {
		return nil, fmt.Errorf("webgpu: buffer %v does not belong to this device", b)
	}
	return wb, nil
}

func (d *Device) CreateBuffer(label string, size uint64, usage gpu.BufferUsage) (gpu.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gpu.ErrDeviceReleased
	}
	// recorded writes arrive through CopyBufferToBuffer
	u := wgpuUsage(usage)
	if usage.Has(gpu.UsageCopyDst) {
		u |= wgpu.BufferUsageCopyDst
	}
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: u,
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: create buffer %q: %w", label, err)
	}
	b := &buffer{buf: buf, label: label, size: size, usage: usage, dev: d}
	d.buffers = append(d.buffers, b)
	return b, nil
}

func (d *Device) WriteBuffer(b gpu.Buffer, offset uint64, data []byte) error {
	wb, err := d.own(b)
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > wb.size {
		return fmt.Errorf("%w: %q holds %d bytes", gpu.ErrSizeMismatch, wb.label, wb.size)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return gpu.ErrDeviceReleased
	}
	return d.queue.WriteBuffer(wb.buf, offset, data)
}

func bindingType(a gpu.Access) wgpu.BufferBindingType {
	if a == gpu.AccessRead {
		return wgpu.BufferBindingTypeReadOnlyStorage
	}
	return wgpu.BufferBindingTypeStorage
}

// CreateKernel builds an explicit layout from the kernel's own bindings, so each
// stage sees only the buffers it declares.
func (d *Device) CreateKernel(src gpu.KernelSource, bindings []gpu.BufferBinding) (gpu.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gpu.ErrDeviceReleased
	}

	p := &pipeline{label: src.Label}
	layoutEntries := make([]wgpu.BindGroupLayoutEntry, 0, len(bindings))
	groupEntries := make([]wgpu.BindGroupEntry, 0, len(bindings))
	for _, b := range bindings {
		wb, err := d.own(b.Buffer)
		if err != nil {
			return nil, err
		}
		layoutEntries = append(layoutEntries, wgpu.BindGroupLayoutEntry{
			Binding:    b.Slot,
			Visibility: wgpu.ShaderStageCompute,
			Buffer:     wgpu.BufferBindingLayout{Type: bindingType(b.Access)},
		})
		groupEntries = append(groupEntries, wgpu.BindGroupEntry{
			Binding: b.Slot,
			Buffer:  wb.buf,
			Size:    wb.size,
		})
	}

	var err error
	p.module, err = d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          src.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: src.WGSL},
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: shader %s: %w", src.Label, err)
	}

	p.layout, err = d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   src.Label + "_layout",
		Entries: layoutEntries,
	})
	if err != nil {
		p.release()
		return nil, fmt.Errorf("webgpu: bind group layout %s: %w", src.Label, err)
	}

	p.plLayout, err = d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            src.Label + "_pipeline_layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{p.layout},
	})
	if err != nil {
		p.release()
		return nil, fmt.Errorf("webgpu: pipeline layout %s: %w", src.Label, err)
	}

	p.pipeline, err = d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  src.Label,
		Layout: p.plLayout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     p.module,
			EntryPoint: src.EntryPoint,
		},
	})
	if err != nil {
		p.release()
		return nil, fmt.Errorf("webgpu: pipeline %s: %w", src.Label, err)
	}

	p.bindGroup, err = d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   src.Label + "_bindgroup",
		Layout:  p.layout,
		Entries: groupEntries,
	})
	if err != nil {
		p.release()
		return nil, fmt.Errorf("webgpu: bind group %s: %w", src.Label, err)
	}

	d.pipelines = append(d.pipelines, p)
	return p, nil
}

// arena packs every recorded write of a submission into one upload buffer. Copies
// need 4-byte aligned offsets and sizes.
func arena(ops []gpu.Op) ([]byte, []uint64) {
	var data []byte
	offsets := make([]uint64, len(ops))
	for i, op := range ops {
		if op.Kind != gpu.OpWrite {
			continue
		}
		offsets[i] = uint64(len(data))
		data = append(data, op.Data...)
		for len(data)%4 != 0 {
			data = append(data, 0)
		}
	}
	return data, offsets
}

// Submit encodes cmds into one command buffer. Recorded writes become copies out of
// a staging arena, placed between the compute passes of the dispatches around them.
func (d *Device) Submit(cmds *gpu.Commands) (gpu.Submission, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gpu.ErrDeviceReleased
	}

	ops := cmds.Ops()
	data, offsets := arena(ops)
	var upload *wgpu.Buffer
	if len(data) > 0 {
		var err error
		upload, err = d.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
			Label:    cmds.Label + "_arena",
			Contents: data,
			Usage:    wgpu.BufferUsageCopySrc,
		})
		if err != nil {
			return nil, fmt.Errorf("webgpu: staging arena: %w", err)
		}
		defer upload.Release()
	}

	encoder, err := d.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: cmds.Label})
	if err != nil {
		return nil, fmt.Errorf("webgpu: command encoder: %w", err)
	}
	defer encoder.Release()

	var pass *wgpu.ComputePassEncoder
	endPass := func() {
		if pass != nil {
			pass.End()
			pass.Release()
			pass = nil
		}
	}
	for i, op := range ops {
		switch op.Kind {
		case gpu.OpWrite:
			wb, err := d.own(op.Buffer)
			if err != nil {
				endPass()
				return nil, err
			}
			if op.Offset+uint64(len(op.Data)) > wb.size {
				endPass()
				return nil, fmt.Errorf("%w: %q holds %d bytes", gpu.ErrSizeMismatch, wb.label, wb.size)
			}
			endPass()
			size := uint64(len(op.Data)+3) &^ 3
			encoder.CopyBufferToBuffer(upload, offsets[i], wb.buf, op.Offset, size)
		case gpu.OpDispatch:
			p, ok := op.Pipeline.(*pipeline)
			if !ok {
				endPass()
				return nil, fmt.Errorf("webgpu: foreign pipeline %v", op.Pipeline)
			}
			if pass == nil {
				pass = encoder.BeginComputePass(nil)
			}
			pass.SetPipeline(p.pipeline)
			pass.SetBindGroup(0, p.bindGroup, nil)
			pass.DispatchWorkgroups(op.Groups, 1, 1)
		}
	}
	endPass()

	commands, err := encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("webgpu: finish: %w", err)
	}
	defer commands.Release()
	d.queue.Submit(commands)

	status := make(chan wgpu.QueueWorkDoneStatus, 1)
	d.queue.OnSubmittedWorkDone(func(st wgpu.QueueWorkDoneStatus) { status <- st })

	sub := &submission{done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		d.device.Poll(true, nil)
		select {
		case st := <-status:
			sub.err = workDoneErr(st)
		default:
		}
		if err := d.lostErr(); err != nil {
			sub.err = err
		}
	}()
	return sub, nil
}

func (d *Device) stagingFor(b *buffer) (*wgpu.Buffer, error) {
	if s, ok := d.staging[b]; ok {
		return s, nil
	}
	s, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: b.label + "_readback",
		Size:  b.size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	d.staging[b] = s
	return s, nil
}

// ReadBuffer copies buf into its readback buffer behind all queued work, maps it and
// hands the mapping to fn. The readback buffer is unmapped on every path; one left
// behind by a timeout is dropped from the cache and unmapped once its map resolves.
func (d *Device) ReadBuffer(ctx context.Context, b gpu.Buffer, fn func(mapped []byte) error) error {
	wb, err := d.own(b)
	if err != nil {
		return err
	}
	if !wb.usage.Has(gpu.UsageCopySrc) {
		return fmt.Errorf("%w: %q is not readable by the host", gpu.ErrMapFailure, wb.label)
	}

	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return gpu.ErrDeviceReleased
	}
	staging, err := d.stagingFor(wb)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("%w: readback buffer: %v", gpu.ErrMapFailure, err)
	}
	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("%w: %v", gpu.ErrMapFailure, err)
	}
	encoder.CopyBufferToBuffer(wb.buf, 0, staging, 0, wb.size)
	commands, err := encoder.Finish(nil)
	encoder.Release()
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("%w: %v", gpu.ErrMapFailure, err)
	}
	d.queue.Submit(commands)
	commands.Release()

	mapped := make(chan error, 1)
	err = staging.MapAsync(wgpu.MapModeRead, 0, wb.size, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapped <- fmt.Errorf("%w: %q: %v", gpu.ErrMapFailure, wb.label, status)
			return
		}
		mapped <- nil
	})
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %v", gpu.ErrMapFailure, err)
	}

	polled := make(chan struct{})
	go func() {
		defer close(polled)
		d.device.Poll(true, nil)
	}()

	timedOut := func() error {
		d.mu.Lock()
		if d.staging[wb] == staging {
			delete(d.staging, wb)
		}
		d.mu.Unlock()
		abandon(mapped, staging.Unmap, staging.Release)
		return fmt.Errorf("%w: %v", gpu.ErrDeviceTimeout, ctx.Err())
	}

	var mapErr error
	select {
	case mapErr = <-mapped:
	case <-polled:
		select {
		case mapErr = <-mapped:
		case <-ctx.Done():
			return timedOut()
		}
	case <-ctx.Done():
		return timedOut()
	}
	if mapErr != nil {
		if err := d.lostErr(); err != nil {
			return err
		}
		return mapErr
	}
	defer staging.Unmap()

	return fn(staging.GetMappedRange(0, uint(wb.size)))
}

func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return
	}
	d.released = true
	for _, p := range d.pipelines {
		p.release()
	}
	for _, s := range d.staging {
		s.Release()
	}
	for _, b := range d.buffers {
		b.buf.Release()
	}
	if d.queue != nil {
		d.queue.Release()
	}
	d.device.Release()
	d.adapter.Release()
	d.instance.Release()
}
