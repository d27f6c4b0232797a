package socket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClockFiresDueTimersInOrder(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))

	var fired []string
	clock.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	clock.AfterFunc(1*time.Second, func() { fired = append(fired, "a") })
	clock.AfterFunc(1*time.Second, func() { fired = append(fired, "a2") })

	clock.Advance(time.Second)
	assert.Equal(t, []string{"a", "a2"}, fired)

	clock.Advance(time.Second)
	assert.Equal(t, []string{"a", "a2", "b"}, fired)
}

func TestFakeClockStopPreventsFire(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	fired := false
	timer := clock.AfterFunc(time.Second, func() { fired = true })

	timer.Stop()
	clock.Advance(2 * time.Second)

	assert.False(t, fired)
	assert.Equal(t, 0, clock.PendingCount())
}

func TestFakeClockSetFiresPastDeadlines(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	fired := false
	clock.AfterFunc(5*time.Second, func() { fired = true })

	clock.Set(time.Unix(10, 0))
	assert.True(t, fired)
}

func TestFakeClockPendingCount(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	clock.AfterFunc(time.Second, func() {})
	clock.AfterFunc(2*time.Second, func() {})
	assert.Equal(t, 2, clock.PendingCount())

	clock.Advance(time.Second)
	assert.Equal(t, 1, clock.PendingCount())
}
