package gpu

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type doneSub struct {
	ch  chan struct{}
	err error
}

func (s doneSub) Done() <-chan struct{} { return s.ch }
func (s doneSub) Err() error            { return s.err }

func TestWait(t *testing.T) {
	ch := make(chan struct{})
	close(ch)
	boom := errors.New("boom")
	assert.ErrorIs(t, Wait(context.Background(), doneSub{ch: ch, err: boom}), boom)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := Wait(ctx, doneSub{ch: make(chan struct{})})
	assert.ErrorIs(t, err, ErrDeviceTimeout)
	assert.True(t, IsTransient(err))
	assert.False(t, IsTransient(boom))
}

type fakePipeline string

func (p fakePipeline) Label() string { return string(p) }

func TestCommandsRecordInOrder(t *testing.T) {
	cmds := NewCommands("frame")
	data := []byte{1, 2, 3}
	cmds.Write(nil, 0, data)
	data[0] = 9
	cmds.Dispatch(fakePipeline("a"), 3)
	cmds.Dispatch(fakePipeline("b"), 0)

	ops := cmds.Ops()
	assert.Len(t, ops, 2)
	assert.Equal(t, OpWrite, ops[0].Kind)
	assert.Equal(t, []byte{1, 2, 3}, ops[0].Data, "write payload is copied")
	assert.Equal(t, OpDispatch, ops[1].Kind)
	assert.Equal(t, uint32(3), ops[1].Groups)
	assert.Equal(t, 1, cmds.Dispatches())
	assert.Equal(t, 1, cmds.Writes())
}

func TestGroupsFor(t *testing.T) {
	assert.Equal(t, uint32(0), GroupsFor(0))
	assert.Equal(t, uint32(1), GroupsFor(1))
	assert.Equal(t, uint32(1), GroupsFor(64))
	assert.Equal(t, uint32(2), GroupsFor(65))
}
