package socket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferDisabledDropsPush(t *testing.T) {
	b := NewBuffer(BufferPolicy{Enabled: false})
	b.Push(Frame{Data: []byte("a")})
	assert.Equal(t, 0, b.Len())
}

func TestBufferDropsOldestWhenOverCap(t *testing.T) {
	b := NewBuffer(BufferPolicy{Enabled: true, MaxEnqueuedMessages: 2})
	b.Push(Frame{Data: []byte("1")})
	b.Push(Frame{Data: []byte("2")})
	b.Push(Frame{Data: []byte("3")})

	require := assert.New(t)
	require.Equal(2, b.Len())

	var seen []string
	b.Drain(func(f Frame) bool {
		seen = append(seen, string(f.Data))
		return true
	})
	require.Equal([]string{"2", "3"}, seen)
}

func TestBufferDrainStopsOnRejectionAndRetainsRemainder(t *testing.T) {
	b := NewBuffer(BufferPolicy{Enabled: true})
	b.Push(Frame{Data: []byte("1")})
	b.Push(Frame{Data: []byte("2")})
	b.Push(Frame{Data: []byte("3")})

	var sent []string
	b.Drain(func(f Frame) bool {
		sent = append(sent, string(f.Data))
		return string(f.Data) != "2"
	})

	assert.Equal(t, []string{"1", "2"}, sent)
	assert.Equal(t, 2, b.Len())

	var again []string
	b.Drain(func(f Frame) bool {
		again = append(again, string(f.Data))
		return true
	})
	assert.Equal(t, []string{"2", "3"}, again)
	assert.Equal(t, 0, b.Len())
}

func TestBufferClear(t *testing.T) {
	b := NewBuffer(BufferPolicy{Enabled: true})
	b.Push(Frame{Data: []byte("1")})
	b.Clear()
	assert.Equal(t, 0, b.Len())
}
