package gpu

import (
	"context"
	"fmt"
)

// WorkgroupSize is the invocation count of one thread group. Every kernel in
// particlert/rt/shaders declares @workgroup_size(64).
const WorkgroupSize = 64

type BufferUsage uint32

const (
	UsageStorage BufferUsage = 1 << iota
	UsageUniform
	UsageCopySrc
	UsageCopyDst
	UsageMapRead
)

func (u BufferUsage) Has(flag BufferUsage) bool { return u&flag == flag }

// Buffer is a device allocation. Handles are created by a Device and only valid on it.
type Buffer interface {
	Label() string
	Size() uint64
	Usage() BufferUsage
}

type Access uint8

const (
	AccessRead Access = iota
	AccessReadWrite
)

func (a Access) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessReadWrite:
		return "read_write"
	default:
		return fmt.Sprintf("Access(%d)", int(a))
	}
}

// BufferBinding attaches a buffer to one @binding slot of a kernel.
type BufferBinding struct {
	Slot   uint32
	Access Access
	Buffer Buffer
}

// HostKernel is the per-invocation body the headless device runs. bufs is indexed by
// binding slot; slots the kernel did not bind are nil.
type HostKernel func(gid uint32, bufs [][]byte)

// Pipeline is a compiled kernel with its bindings attached.
type Pipeline interface {
	Label() string
}

// Device is the explicitly owned compute context: buffers, kernels and the queue.
// Implementations: particlert/rt/headless and particlert/rt/webgpu.
type Device interface {
	Name() string
	CreateBuffer(label string, size uint64, usage BufferUsage) (Buffer, error)
	// WriteBuffer queues a host write that lands before any later submission.
	WriteBuffer(buf Buffer, offset uint64, data []byte) error
	CreateKernel(src KernelSource, bindings []BufferBinding) (Pipeline, error)
	// Submit hands a recorded command sequence to the queue and returns immediately.
	Submit(cmds *Commands) (Submission, error)
	// ReadBuffer waits for queued work, maps buf for reading and calls fn with the
	// mapped bytes. The mapping is released before ReadBuffer returns, whatever fn does.
	// fn must not retain mapped.
	ReadBuffer(ctx context.Context, buf Buffer, fn func(mapped []byte) error) error
	Release()
}

// Submission tracks one submitted command sequence.
type Submission interface {
	Done() <-chan struct{}
	Err() error
}

// Wait blocks until sub completes or ctx ends. A ctx that ends first yields
// ErrDeviceTimeout; the work itself keeps running on the device.
func Wait(ctx context.Context, sub Submission) error {
	select {
	case <-sub.Done():
		return sub.Err()
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrDeviceTimeout, ctx.Err())
	}
}

type OpKind uint8

const (
	OpWrite OpKind = iota
	OpDispatch
)

// Op is one recorded command.
type Op struct {
	Kind OpKind

	// OpWrite
	Buffer Buffer
	Offset uint64
	Data   []byte

	// OpDispatch
	Pipeline Pipeline
	Groups   uint32
}

// Commands is a backend-neutral command sequence. Ops execute strictly in recording
// order, so a write recorded between two dispatches is seen by the second only.
type Commands struct {
	Label string
	ops   []Op
}

func NewCommands(label string) *Commands {
	return &Commands{Label: label, ops: make([]Op, 0, 64)}
}

// Write records a buffer write. data is copied.
func (c *Commands) Write(buf Buffer, offset uint64, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	c.ops = append(c.ops, Op{Kind: OpWrite, Buffer: buf, Offset: offset, Data: cp})
}

// Dispatch records a kernel launch. Zero groups records nothing.
func (c *Commands) Dispatch(p Pipeline, groups uint32) {
	if groups == 0 {
		return
	}
	c.ops = append(c.ops, Op{Kind: OpDispatch, Pipeline: p, Groups: groups})
}

func (c *Commands) Ops() []Op { return c.ops }

func (c *Commands) Len() int { return len(c.ops) }

func (c *Commands) Dispatches() int {
	n := 0
	for _, op := range c.ops {
		if op.Kind == OpDispatch {
			n++
		}
	}
	return n
}

func (c *Commands) Writes() int { return len(c.ops) - c.Dispatches() }

// GroupsFor returns the thread groups needed to cover threads invocations.
func GroupsFor(threads uint32) uint32 {
	return (threads + WorkgroupSize - 1) / WorkgroupSize
}
