package gpu

import (
	"fmt"

	"github.com/gekko3d/collide/particlert/rt/core"
)

type BufferName string

const (
	BufferParams     BufferName = "params"
	BufferParticles  BufferName = "particles"
	BufferSortParams BufferName = "sort-params"
	BufferCellIndex  BufferName = "cell-index"
	BufferResult     BufferName = "result"
)

// BufferSpec declares one logical buffer: its @binding slot, byte capacity and usage.
type BufferSpec struct {
	Name  BufferName
	Slot  uint32
	Size  uint64
	Usage BufferUsage
}

// Layout returns the five buffers for recordCapacity particle records and cellCount
// grid cells. Slots match the @binding numbers in the WGSL kernels.
func Layout(recordCapacity, cellCount uint32) []BufferSpec {
	cells := cellCount
	if cells < recordCapacity {
		cells = recordCapacity
	}
	return []BufferSpec{
		{Name: BufferParams, Slot: 0, Size: core.ParamsSize, Usage: UsageStorage | UsageCopyDst},
		{Name: BufferParticles, Slot: 1, Size: uint64(recordCapacity) * core.ParticleRecordSize, Usage: UsageStorage | UsageCopyDst},
		{Name: BufferSortParams, Slot: 2, Size: core.SortKeyPairSize, Usage: UsageStorage | UsageCopyDst},
		{Name: BufferCellIndex, Slot: 3, Size: uint64(cells) * core.CellIndexSize, Usage: UsageStorage},
		{Name: BufferResult, Slot: 4, Size: uint64(recordCapacity) * core.ResultRecordSize, Usage: UsageStorage | UsageCopySrc},
	}
}

type deviceBuffer struct {
	spec BufferSpec
	buf  Buffer
}

// DeviceBufferSet owns the device mirrors of particle state and parameters. Buffers
// are allocated once and never resized.
type DeviceBufferSet struct {
	dev     Device
	buffers map[BufferName]*deviceBuffer
	order   []BufferName
}

func NewDeviceBufferSet(dev Device, specs []BufferSpec) (*DeviceBufferSet, error) {
	set := &DeviceBufferSet{
		dev:     dev,
		buffers: make(map[BufferName]*deviceBuffer, len(specs)),
	}
	for _, spec := range specs {
		if _, dup := set.buffers[spec.Name]; dup {
			set.Release()
			return nil, fmt.Errorf("buffer set: duplicate buffer %q", spec.Name)
		}
		buf, err := dev.CreateBuffer(string(spec.Name), spec.Size, spec.Usage)
		if err != nil {
			set.Release()
			return nil, fmt.Errorf("buffer set: create %q: %w", spec.Name, err)
		}
		set.buffers[spec.Name] = &deviceBuffer{spec: spec, buf: buf}
		set.order = append(set.order, spec.Name)
	}
	return set, nil
}

func (s *DeviceBufferSet) get(name BufferName) (*deviceBuffer, error) {
	b, ok := s.buffers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBuffer, name)
	}
	return b, nil
}

func (s *DeviceBufferSet) Lookup(name BufferName) (Buffer, error) {
	b, err := s.get(name)
	if err != nil {
		return nil, err
	}
	return b.buf, nil
}

func (s *DeviceBufferSet) Spec(name BufferName) (BufferSpec, error) {
	b, err := s.get(name)
	if err != nil {
		return BufferSpec{}, err
	}
	return b.spec, nil
}

func (s *DeviceBufferSet) Names() []BufferName {
	out := make([]BufferName, len(s.order))
	copy(out, s.order)
	return out
}

func (s *DeviceBufferSet) checkFits(b *deviceBuffer, offset uint64, n int) error {
	if offset+uint64(n) > b.spec.Size {
		return fmt.Errorf("%w: %q holds %d bytes, write of %d at offset %d", ErrSizeMismatch, b.spec.Name, b.spec.Size, n, offset)
	}
	if !b.spec.Usage.Has(UsageCopyDst) {
		return fmt.Errorf("buffer set: %q is not host-writable", b.spec.Name)
	}
	return nil
}

// Write queues a host write into the named buffer.
func (s *DeviceBufferSet) Write(name BufferName, offset uint64, data []byte) error {
	b, err := s.get(name)
	if err != nil {
		return err
	}
	if err := s.checkFits(b, offset, len(data)); err != nil {
		return err
	}
	return s.dev.WriteBuffer(b.buf, offset, data)
}

// Record appends a write of the named buffer to cmds, ordered with its dispatches.
func (s *DeviceBufferSet) Record(cmds *Commands, name BufferName, offset uint64, data []byte) error {
	b, err := s.get(name)
	if err != nil {
		return err
	}
	if err := s.checkFits(b, offset, len(data)); err != nil {
		return err
	}
	cmds.Write(b.buf, offset, data)
	return nil
}

// Bind resolves a kernel's declared bindings to buffers of this set.
func (s *DeviceBufferSet) Bind(decls []BindingDecl) ([]BufferBinding, error) {
	out := make([]BufferBinding, 0, len(decls))
	for _, d := range decls {
		b, err := s.get(d.Buffer)
		if err != nil {
			return nil, err
		}
		out = append(out, BufferBinding{Slot: b.spec.Slot, Access: d.Access, Buffer: b.buf})
	}
	return out, nil
}

func (s *DeviceBufferSet) Release() {
	for _, name := range s.order {
		if r, ok := s.buffers[name].buf.(interface{ Release() }); ok {
			r.Release()
		}
	}
	s.buffers = map[BufferName]*deviceBuffer{}
	s.order = nil
}
