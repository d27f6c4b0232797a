package socket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHeartbeat(t *testing.T, clock *FakeClock, sent *[]Frame, missExceeded *bool) *HeartbeatController {
	t.Helper()
	opts := (&Options{
		HeartbeatInterval:   10 * time.Second,
		PingTimeout:         2 * time.Second,
		MaxMissedPings:      1,
		IgnoreFocusEvents:   true,
		IgnoreNetworkEvents: true,
		Clock:               clock,
	}).withDefaults()

	var lastSent time.Time
	h := NewHeartbeatController(opts, clock, heartbeatCallbacks{
		send: func(f Frame) bool {
			*sent = append(*sent, f)
			lastSent = clock.Now()
			return true
		},
		onMissExceeded: func() { *missExceeded = true },
	}, func() time.Time { return lastSent })
	return h
}

func TestHeartbeatSendsPingAfterInterval(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	var sent []Frame
	var missed bool
	h := newTestHeartbeat(t, clock, &sent, &missed)

	h.Start()
	defer h.Stop()

	clock.Advance(10 * time.Second)
	require.Len(t, sent, 1)
	assert.Equal(t, "ping", string(sent[0].Data))
}

func TestHeartbeatPongResetsMissCountAndReschedules(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	var sent []Frame
	var missed bool
	h := newTestHeartbeat(t, clock, &sent, &missed)

	h.Start()
	defer h.Stop()

	clock.Advance(10 * time.Second)
	require.Len(t, sent, 1)

	consumed := h.ObserveInbound(Frame{Data: []byte("pong")})
	assert.True(t, consumed)
	assert.Equal(t, 0, h.Missed())

	clock.Advance(10 * time.Second)
	require.Len(t, sent, 2)
}

func TestHeartbeatMissExceededFiresCallback(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	var sent []Frame
	var missed bool
	h := newTestHeartbeat(t, clock, &sent, &missed)

	h.Start()
	defer h.Stop()

	clock.Advance(10 * time.Second) // ping sent
	require.Len(t, sent, 1)

	clock.Advance(2 * time.Second) // pong timeout -> miss 1 > MaxMissedPings(1)? no: 1 > 1 false
	assert.False(t, missed)
	assert.Equal(t, 1, h.Missed())

	// Second ping cycle without a pong drives missed to 2, exceeding MaxMissedPings=1.
	clock.Advance(10 * time.Second)
	clock.Advance(2 * time.Second)
	assert.True(t, missed)
}

// TestHeartbeatMissRescheduleAnchorsToMissNotToLastPing walks the
// heartbeat-miss scenario: heartbeatInterval=1000,
// pingTimeout=500, maxMissedPings=1. Ping at t=1000, miss declared at
// t=1500 (tolerated, missed=1 is not > 1), the next ping must be
// scheduled a full interval after the miss (t=2500), and teardown fires
// at t=3000 — not at t=2000/t=2500 as a last-ping-anchored reschedule
// would produce.
func TestHeartbeatMissRescheduleAnchorsToMissNotToLastPing(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	var sent []Frame
	var sentAt []time.Time
	var missed bool

	opts := (&Options{
		HeartbeatInterval:   time.Second,
		PingTimeout:         500 * time.Millisecond,
		MaxMissedPings:      1,
		IgnoreFocusEvents:   true,
		IgnoreNetworkEvents: true,
		Clock:               clock,
	}).withDefaults()

	var lastSent time.Time = clock.Now()
	h := NewHeartbeatController(opts, clock, heartbeatCallbacks{
		send: func(f Frame) bool {
			sent = append(sent, f)
			lastSent = clock.Now()
			sentAt = append(sentAt, lastSent)
			return true
		},
		onMissExceeded: func() { missed = true },
	}, func() time.Time { return lastSent })

	h.Start()
	defer h.Stop()

	clock.Advance(1000 * time.Millisecond) // t=1000: first ping
	require.Len(t, sent, 1)
	assert.Equal(t, clock.Now(), sentAt[0])

	clock.Advance(500 * time.Millisecond) // t=1500: tolerated miss declared
	assert.False(t, missed)
	assert.Equal(t, 1, h.Missed())

	clock.Advance(999 * time.Millisecond) // t=2499: one ms short of the next ping
	require.Len(t, sent, 1, "next ping must not fire before a full interval past the miss")

	clock.Advance(1 * time.Millisecond) // t=2500: next ping, a full interval after the miss
	require.Len(t, sent, 2)

	clock.Advance(499 * time.Millisecond) // t=2999: one ms short of teardown
	assert.False(t, missed)

	clock.Advance(1 * time.Millisecond) // t=3000: second unanswered miss exceeds MaxMissedPings
	assert.True(t, missed)
}

func TestHeartbeatObserveInboundIgnoresNonPongFrames(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	var sent []Frame
	var missed bool
	h := newTestHeartbeat(t, clock, &sent, &missed)

	consumed := h.ObserveInbound(Frame{Data: []byte("hello")})
	assert.False(t, consumed)
}

func TestHeartbeatDisabledWhenIntervalZero(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	opts := (&Options{Clock: clock}).withDefaults()
	h := NewHeartbeatController(opts, clock, heartbeatCallbacks{
		send:           func(Frame) bool { return true },
		onMissExceeded: func() {},
	}, func() time.Time { return clock.Now() })

	assert.False(t, h.Enabled())
	h.Start()
	assert.Equal(t, 0, clock.PendingCount())
}
