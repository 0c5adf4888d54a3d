package gpu

import (
	"fmt"
)

// BindingDecl names a buffer a kernel reads or writes. Kernels bind only what they use.
type BindingDecl struct {
	Buffer BufferName
	Access Access
}

// KernelSource is everything a backend needs to build one compute stage: WGSL for real
// devices and the equivalent host body for the headless one.
type KernelSource struct {
	Label      string
	EntryPoint string
	WGSL       string
	Bindings   []BindingDecl
	Host       HostKernel
}

// Kernel is a compiled stage bound to buffers of one DeviceBufferSet.
type Kernel struct {
	src      KernelSource
	pipeline Pipeline
	bindings []BufferBinding
}

func NewKernel(dev Device, set *DeviceBufferSet, src KernelSource) (*Kernel, error) {
	if src.EntryPoint == "" {
		src.EntryPoint = "main"
	}
	bindings, err := set.Bind(src.Bindings)
	if err != nil {
		return nil, fmt.Errorf("kernel %s: %w", src.Label, err)
	}
	p, err := dev.CreateKernel(src, bindings)
	if err != nil {
		return nil, fmt.Errorf("kernel %s: %w", src.Label, err)
	}
	return &Kernel{src: src, pipeline: p, bindings: bindings}, nil
}

func (k *Kernel) Label() string { return k.src.Label }

func (k *Kernel) Bindings() []BufferBinding { return k.bindings }

func (k *Kernel) Pipeline() Pipeline { return k.pipeline }

// Dispatch records groups thread groups of this kernel. Zero groups is a no-op.
func (k *Kernel) Dispatch(cmds *Commands, groups uint32) {
	cmds.Dispatch(k.pipeline, groups)
}

// DispatchThreads records enough groups to cover threads invocations.
func (k *Kernel) DispatchThreads(cmds *Commands, threads uint32) {
	k.Dispatch(cmds, GroupsFor(threads))
}
