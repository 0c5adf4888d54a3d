package headless

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/gekko3d/collide/particlert/rt/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// addOne increments the u32 at gid of slot 0 while gid < 10.
func addOne(gid uint32, bufs [][]byte) {
	if gid >= 10 {
		return
	}
	v := binary.LittleEndian.Uint32(bufs[0][gid*4:])
	binary.LittleEndian.PutUint32(bufs[0][gid*4:], v+1)
}

func newCounter(t *testing.T, d *Device) (gpu.Buffer, gpu.Pipeline) {
	t.Helper()
	buf, err := d.CreateBuffer("counter", 40, gpu.UsageStorage|gpu.UsageCopyDst|gpu.UsageCopySrc)
	require.NoError(t, err)
	p, err := d.CreateKernel(gpu.KernelSource{Label: "add_one", Host: addOne},
		[]gpu.BufferBinding{{Slot: 0, Access: gpu.AccessReadWrite, Buffer: buf}})
	require.NoError(t, err)
	return buf, p
}

func readU32s(t *testing.T, d *Device, buf gpu.Buffer) []uint32 {
	t.Helper()
	var out []uint32
	err := d.ReadBuffer(context.Background(), buf, func(mapped []byte) error {
		for i := 0; i+4 <= len(mapped); i += 4 {
			out = append(out, binary.LittleEndian.Uint32(mapped[i:]))
		}
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestDeviceExecutesInSubmissionOrder(t *testing.T) {
	d := NewDevice(4)
	defer d.Release()
	buf, p := newCounter(t, d)

	cmds := gpu.NewCommands("order")
	cmds.Dispatch(p, 1)
	// the write lands between the two dispatches
	cmds.Write(buf, 0, []byte{7, 0, 0, 0})
	cmds.Dispatch(p, 1)
	cmds.Dispatch(p, 0)

	sub, err := d.Submit(cmds)
	require.NoError(t, err)
	require.NoError(t, gpu.Wait(context.Background(), sub))

	got := readU32s(t, d, buf)
	assert.Equal(t, uint32(8), got[0])
	for i := 1; i < 10; i++ {
		assert.Equal(t, uint32(2), got[i])
	}
	assert.Equal(t, int64(2), d.Dispatches())
}

func TestDeviceWriteBufferLandsBeforeLaterSubmission(t *testing.T) {
	d := NewDevice(2)
	defer d.Release()
	buf, p := newCounter(t, d)

	payload := make([]byte, 40)
	binary.LittleEndian.PutUint32(payload[4:], 41)
	require.NoError(t, d.WriteBuffer(buf, 0, payload))

	cmds := gpu.NewCommands("after write")
	cmds.Dispatch(p, 1)
	sub, err := d.Submit(cmds)
	require.NoError(t, err)
	require.NoError(t, gpu.Wait(context.Background(), sub))

	assert.Equal(t, uint32(42), readU32s(t, d, buf)[1])
}

func TestDeviceRejectsOversizedWrites(t *testing.T) {
	d := NewDevice(1)
	defer d.Release()
	buf, _ := newCounter(t, d)

	err := d.WriteBuffer(buf, 0, make([]byte, 44))
	assert.ErrorIs(t, err, gpu.ErrSizeMismatch)

	cmds := gpu.NewCommands("oversized")
	cmds.Write(buf, 36, make([]byte, 8))
	_, err = d.Submit(cmds)
	assert.ErrorIs(t, err, gpu.ErrSizeMismatch)
}

func TestDeviceMappedBufferRejectsUse(t *testing.T) {
	d := NewDevice(1)
	defer d.Release()
	buf, p := newCounter(t, d)

	err := d.ReadBuffer(context.Background(), buf, func([]byte) error {
		assert.ErrorIs(t, d.WriteBuffer(buf, 0, []byte{1}), gpu.ErrBufferMapped)

		cmds := gpu.NewCommands("while mapped")
		cmds.Dispatch(p, 1)
		_, err := d.Submit(cmds)
		assert.ErrorIs(t, err, gpu.ErrBufferMapped)
		return nil
	})
	require.NoError(t, err)

	// unmapped again
	require.NoError(t, d.WriteBuffer(buf, 0, []byte{1}))
}

func TestDeviceReadBufferUnmapsOnError(t *testing.T) {
	d := NewDevice(1)
	defer d.Release()
	buf, _ := newCounter(t, d)

	boom := assert.AnError
	err := d.ReadBuffer(context.Background(), buf, func([]byte) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, d.WriteBuffer(buf, 0, []byte{1}))
}

func TestDeviceReadBufferRequiresHostReadableUsage(t *testing.T) {
	d := NewDevice(1)
	defer d.Release()
	buf, err := d.CreateBuffer("private", 16, gpu.UsageStorage)
	require.NoError(t, err)

	err = d.ReadBuffer(context.Background(), buf, func([]byte) error { return nil })
	assert.ErrorIs(t, err, gpu.ErrMapFailure)
}

func TestDeviceReadBufferTimesOut(t *testing.T) {
	d := NewDevice(1)
	defer d.Release()
	buf, _ := newCounter(t, d)

	gate := make(chan struct{})
	slow, err := d.CreateKernel(gpu.KernelSource{Label: "slow", Host: func(gid uint32, _ [][]byte) {
		if gid == 0 {
			<-gate
		}
	}}, []gpu.BufferBinding{{Slot: 0, Access: gpu.AccessRead, Buffer: buf}})
	require.NoError(t, err)

	cmds := gpu.NewCommands("slow")
	cmds.Dispatch(slow, 1)
	sub, err := d.Submit(cmds)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = d.ReadBuffer(ctx, buf, func([]byte) error { return nil })
	assert.ErrorIs(t, err, gpu.ErrDeviceTimeout)
	assert.ErrorIs(t, gpu.Wait(ctx, sub), gpu.ErrDeviceTimeout)

	close(gate)
	require.NoError(t, gpu.Wait(context.Background(), sub))
}

func TestDeviceKernelPanicFailsSubmission(t *testing.T) {
	d := NewDevice(2)
	defer d.Release()
	buf, _ := newCounter(t, d)

	bad, err := d.CreateKernel(gpu.KernelSource{Label: "bad", Host: func(gid uint32, bufs [][]byte) {
		_ = bufs[0][1<<20]
	}}, []gpu.BufferBinding{{Slot: 0, Access: gpu.AccessRead, Buffer: buf}})
	require.NoError(t, err)

	cmds := gpu.NewCommands("bad")
	cmds.Dispatch(bad, 1)
	sub, err := d.Submit(cmds)
	require.NoError(t, err)
	err = gpu.Wait(context.Background(), sub)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestDeviceRejectsForeignBuffers(t *testing.T) {
	a := NewDevice(1)
	defer a.Release()
	b := NewDevice(1)
	defer b.Release()

	buf, _ := newCounter(t, a)
	assert.Error(t, b.WriteBuffer(buf, 0, []byte{1}))
	_, err := b.CreateKernel(gpu.KernelSource{Label: "x", Host: addOne},
		[]gpu.BufferBinding{{Slot: 0, Buffer: buf}})
	assert.Error(t, err)
}

func TestDeviceReleased(t *testing.T) {
	d := NewDevice(1)
	buf, p := newCounter(t, d)
	d.Release()
	d.Release()

	_, err := d.CreateBuffer("late", 4, gpu.UsageStorage)
	assert.ErrorIs(t, err, gpu.ErrDeviceReleased)
	assert.ErrorIs(t, d.WriteBuffer(buf, 0, []byte{1}), gpu.ErrDeviceReleased)

	cmds := gpu.NewCommands("late")
	cmds.Dispatch(p, 1)
	_, err = d.Submit(cmds)
	assert.ErrorIs(t, err, gpu.ErrDeviceReleased)
}

func TestDeviceRejectsKernelWithBrokenWGSL(t *testing.T) {
	d := NewDevice(1)
	defer d.Release()
	buf, err := d.CreateBuffer("counter", 40, gpu.UsageStorage)
	require.NoError(t, err)
	bindings := []gpu.BufferBinding{{Slot: 0, Access: gpu.AccessReadWrite, Buffer: buf}}

	_, err = d.CreateKernel(gpu.KernelSource{
		Label: "broken",
		WGSL:  "@compute @workgroup_size(64)\nfn main(@builtin(global_invocation_id) id: vec3<u32> {\n",
		Host:  addOne,
	}, bindings)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shader broken")

	_, err = d.CreateKernel(gpu.KernelSource{
		Label: "add_one",
		WGSL: `@group(0) @binding(0) var<storage, read_write> counter: array<u32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    if (id.x < 10u) {
        counter[id.x] = counter[id.x] + 1u;
    }
}
`,
		Host: addOne,
	}, bindings)
	assert.NoError(t, err)
}
