package socket

import (
	"sync"
	"time"
)

// heartbeatCallbacks are the core's hooks into the heartbeat controller.
type heartbeatCallbacks struct {
	// send writes the ping payload to the transport and reports
	// whether it succeeded.
	send func(Frame) bool
	// onMissExceeded is invoked when Missed exceeds MaxMissedPings; the
	// core tears down the transport and reconnects.
	onMissExceeded func()
}

// heartbeatState is the data model of SPEC_FULL.md §3 "Heartbeat state".
type heartbeatState struct {
	inFlight bool
	sentAt   time.Time
	missed   int
}

// HeartbeatController drives ping emission, pong matching, miss
// accounting, and focus/online-triggered liveness probes (§4.5). One
// instance is created per Socket; it is started on each transport open
// and stopped on any teardown.
type HeartbeatController struct {
	opts  *Options
	clock Clock
	cbs   heartbeatCallbacks

	mu    sync.Mutex
	state heartbeatState

	pingTimer  Timer
	missTimer  Timer
	running    bool

	unsubFocus  func()
	unsubOnline func()

	lastMessageSent func() time.Time
}

// NewHeartbeatController constructs a controller. lastMessageSent reads
// the Socket's LastMessageSent so the ping scheduler measures inactivity
// from the true last handoff, including buffered-flush and previous
// pings.
func NewHeartbeatController(opts *Options, clock Clock, cbs heartbeatCallbacks, lastMessageSent func() time.Time) *HeartbeatController {
	return &HeartbeatController{opts: opts, clock: clock, cbs: cbs, lastMessageSent: lastMessageSent}
}

// Enabled reports whether HeartbeatInterval configures the controller on.
func (h *HeartbeatController) Enabled() bool {
	return h.opts.HeartbeatInterval > 0
}

// Start begins scheduling pings from the transport's open moment and
// subscribes to focus/online triggers.
func (h *HeartbeatController) Start() {
	if !h.Enabled() {
		return
	}

	h.mu.Lock()
	h.running = true
	h.state = heartbeatState{}
	h.mu.Unlock()

	h.scheduleNextPing()

	if !h.opts.IgnoreFocusEvents {
		h.unsubFocus = h.opts.EnvSignals.OnFocus(h.triggerImmediatePing)
	}
	if !h.opts.IgnoreNetworkEvents {
		h.unsubOnline = h.opts.EnvSignals.OnOnline(h.triggerImmediatePing)
	}
}

// Stop cancels all timers and signal subscriptions. Idempotent.
func (h *HeartbeatController) Stop() {
	h.mu.Lock()
	h.running = false
	if h.pingTimer != nil {
		h.pingTimer.Stop()
		h.pingTimer = nil
	}
	if h.missTimer != nil {
		h.missTimer.Stop()
		h.missTimer = nil
	}
	h.mu.Unlock()

	if h.unsubFocus != nil {
		h.unsubFocus()
		h.unsubFocus = nil
	}
	if h.unsubOnline != nil {
		h.unsubOnline()
		h.unsubOnline = nil
	}
}

func (h *HeartbeatController) scheduleNextPing() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}

	elapsed := h.clock.Now().Sub(h.lastMessageSent())
	wait := h.opts.HeartbeatInterval - elapsed
	if wait < 0 {
		wait = 0
	}

	if h.pingTimer != nil {
		h.pingTimer.Stop()
	}
	h.pingTimer = h.clock.AfterFunc(wait, h.firePing)
}

// scheduleNextPingFromNow arms the next ping exactly d from the moment
// of the call, rather than net of elapsed time since lastMessageSent.
// Used after a tolerated miss (§4.5), where the next probe must follow a
// full HeartbeatInterval from when the miss was declared, not from the
// prior ping's send time.
func (h *HeartbeatController) scheduleNextPingFromNow(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}

	if h.pingTimer != nil {
		h.pingTimer.Stop()
	}
	h.pingTimer = h.clock.AfterFunc(d, h.firePing)
}

func (h *HeartbeatController) firePing() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	if h.state.inFlight {
		// Already waiting on a pong; let its timeout resolve first.
		h.mu.Unlock()
		return
	}
	h.state.inFlight = true
	h.state.sentAt = h.clock.Now()
	if h.missTimer != nil {
		h.missTimer.Stop()
	}
	h.missTimer = h.clock.AfterFunc(h.opts.PingTimeout, h.fireMiss)
	h.mu.Unlock()

	h.cbs.send(Frame{Data: []byte(h.opts.PingMessage)})
}

// triggerImmediatePing forces an out-of-cycle ping on a focus/online
// signal, unless one is already in flight (§4.5).
func (h *HeartbeatController) triggerImmediatePing() {
	h.mu.Lock()
	if !h.running || h.state.inFlight {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()
	h.firePing()
}

func (h *HeartbeatController) fireMiss() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.state.inFlight = false
	h.state.missed++
	missed := h.state.missed
	exceeded := missed > h.opts.MaxMissedPings
	h.mu.Unlock()

	if exceeded {
		h.cbs.onMissExceeded()
		return
	}
	h.scheduleNextPingFromNow(h.opts.HeartbeatInterval)
}

// ObserveInbound inspects an inbound frame. It returns true if the frame
// was a pong and was consumed (must not reach message listeners).
func (h *HeartbeatController) ObserveInbound(f Frame) (consumed bool) {
	if !h.Enabled() {
		return false
	}
	if string(f.Data) != h.opts.PongMessage {
		return false
	}

	h.mu.Lock()
	if h.missTimer != nil {
		h.missTimer.Stop()
		h.missTimer = nil
	}
	h.state.inFlight = false
	h.state.missed = 0
	h.mu.Unlock()

	h.scheduleNextPing()
	return true
}

// Missed reports the current consecutive-miss count, for metrics/tests.
func (h *HeartbeatController) Missed() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.missed
}
