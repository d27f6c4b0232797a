package socket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestEmitterInvokesListenersInRegistrationOrder(t *testing.T) {
	e := newEmitter(zap.NewNop())
	var order []int

	e.On(EventMessage, func(any) { order = append(order, 1) })
	e.On(EventMessage, func(any) { order = append(order, 2) })
	e.On(EventMessage, func(any) { order = append(order, 3) })

	e.Emit(EventMessage, nil)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestEmitterOffRemovesListener(t *testing.T) {
	e := newEmitter(zap.NewNop())
	calls := 0
	id := e.On(EventOpen, func(any) { calls++ })

	e.Emit(EventOpen, nil)
	e.Off(EventOpen, id)
	e.Emit(EventOpen, nil)

	assert.Equal(t, 1, calls)
}

func TestEmitterSnapshotExcludesListenersAddedDuringEmit(t *testing.T) {
	e := newEmitter(zap.NewNop())
	secondCalls := 0

	e.On(EventOpen, func(any) {
		e.On(EventOpen, func(any) { secondCalls++ })
	})

	e.Emit(EventOpen, nil)
	assert.Equal(t, 0, secondCalls)

	e.Emit(EventOpen, nil)
	assert.Equal(t, 1, secondCalls)
}

func TestEmitterRecoversFromPanickingListener(t *testing.T) {
	e := newEmitter(zap.NewNop())
	ranAfterPanic := false

	e.On(EventError, func(any) { panic("boom") })
	e.On(EventError, func(any) { ranAfterPanic = true })

	assert.NotPanics(t, func() { e.Emit(EventError, nil) })
	assert.True(t, ranAfterPanic)
}
