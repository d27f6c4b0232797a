package socket

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Socket is a reconnecting WebSocket client. It owns a lifecycle state
// machine (§4.8), an outbound Buffer, a HeartbeatController, and a
// lost-connection grace-period detector (§4.9). All state transitions
// are serialized behind a single mutex per SPEC_FULL.md §5: every public
// entry point and every timer/transport callback takes the lock, mutates
// state, and releases it before invoking the Event Emitter, so listener
// code never runs while the transition lock is held.
type Socket struct {
	url  string
	opts *Options

	buffer    *Buffer
	metrics   *socketMetrics
	debug     *debugRing
	emitter   *emitter
	attempt   *connectionAttempt
	heartbeat *HeartbeatController

	mu              sync.Mutex
	status          Status
	transport       Transport
	transportGen    int
	retryCount      int
	lastError       error
	explicitClose   bool
	lostArmed       bool
	lostEmitted     bool
	lostTimer       Timer
	retryTimer      Timer
	attemptCancel   context.CancelFunc
	lastMessageSent time.Time
}

// New constructs a Socket for url and immediately begins connecting,
// unless Options.StartClosed is set. protocols, if non-empty, overrides
// Options.Protocols.
func New(url string, protocols []string, opts *Options) *Socket {
	o := opts.withDefaults()
	if len(protocols) > 0 {
		o.Protocols = protocols
	}

	s := &Socket{
		url:     url,
		opts:    o,
		buffer:  NewBuffer(o.Buffering),
		metrics: newSocketMetrics(o.MetricsRegistry),
		debug:   newDebugRing(o.DebugTraceSize, o.Clock, o.Debug, o.DebugLogger, o.Logger),
		emitter: newEmitter(o.Logger),
	}
	s.attempt = newConnectionAttempt(url, o, o.Clock)
	s.heartbeat = NewHeartbeatController(o, o.Clock, heartbeatCallbacks{
		send:           s.sendHeartbeatFrame,
		onMissExceeded: s.onHeartbeatMissExceeded,
	}, s.LastMessageSent)

	if err := o.Validate(); err != nil {
		o.Logger.Error("invalid socket options, constructing disconnected", zap.Error(err))
		s.status = StatusDisconnected
		s.explicitClose = true
		s.lastError = err
		s.debug.Trace("status -> disconnected (invalid options: %v)", err)
		return s
	}

	if o.StartClosed {
		s.status = StatusDisconnected
		s.explicitClose = true
		return s
	}

	s.status = StatusConnecting
	s.debug.Trace("status -> connecting (initial)")
	go s.beginAttempt(RetryInfo{RetryCount: 0, StartedAt: o.Clock.Now()})
	return s
}

// Status reports the current lifecycle status.
func (s *Socket) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// CanSend reports whether Send will hand a frame directly to the
// transport instead of buffering or dropping it.
func (s *Socket) CanSend() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusConnected && s.transport != nil && s.transport.ReadyState() == ReadyStateOpen
}

// URL returns the URL the Socket was constructed with (pre-query-merge).
func (s *Socket) URL() string { return s.url }

// RetryCount reports the number of consecutive failed attempts so far.
func (s *Socket) RetryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryCount
}

// LastError reports the error from the most recent failed attempt or
// drop, nil if none has occurred yet.
func (s *Socket) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// BufferedLen reports the number of frames pending in the outbound
// Buffer.
func (s *Socket) BufferedLen() int { return s.buffer.Len() }

// Protocol reports the negotiated subprotocol of the live transport, ""
// if not connected.
func (s *Socket) Protocol() string {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	if t == nil {
		return ""
	}
	return t.Protocol()
}

// Extensions reports the negotiated extensions of the live transport, ""
// if not connected.
func (s *Socket) Extensions() string {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	if t == nil {
		return ""
	}
	return t.Extensions()
}

// ReadyState mirrors the live transport's numeric ready state,
// ReadyStateClosed when there is no transport.
func (s *Socket) ReadyState() ReadyState {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	if t == nil {
		return ReadyStateClosed
	}
	return t.ReadyState()
}

// DebugTrace returns up to n of the most recent internal trace lines
// (§6), regardless of Options.Debug.
func (s *Socket) DebugTrace(n int) []TraceEntry { return s.debug.Last(n) }

// AddEventListener registers fn for kind and returns an ID usable with
// RemoveEventListener.
func (s *Socket) AddEventListener(kind EventKind, fn Listener) ListenerID {
	return s.emitter.On(kind, fn)
}

// RemoveEventListener unregisters a previously-added listener. Idempotent.
func (s *Socket) RemoveEventListener(kind EventKind, id ListenerID) {
	s.emitter.Off(kind, id)
}

// LastMessageSent reports when the most recent frame (application or
// heartbeat) was last handed to the transport, used by the heartbeat
// scheduler to measure inactivity.
func (s *Socket) LastMessageSent() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMessageSent
}

// Send hands f directly to the transport when connected and writable;
// otherwise it queues f in the outbound Buffer (if enabled) or drops it.
func (s *Socket) Send(f Frame) {
	s.mu.Lock()
	t := s.transport
	status := s.status
	s.mu.Unlock()

	if status != StatusConnected || t == nil || t.ReadyState() != ReadyStateOpen {
		s.bufferOrDrop(f)
		return
	}

	if s.opts.RateLimiter != nil && !s.opts.RateLimiter.Allow() {
		s.bufferOrDrop(f)
		return
	}

	if err := t.Send(f); err != nil {
		s.bufferOrDrop(f)
		return
	}
	s.mu.Lock()
	s.lastMessageSent = s.opts.Clock.Now()
	s.mu.Unlock()
}

func (s *Socket) bufferOrDrop(f Frame) {
	if !s.opts.Buffering.Enabled {
		s.debug.Trace("dropped frame: not connected and buffering disabled")
		return
	}
	s.buffer.Push(f)
	s.metrics.setBufferDepth(s.buffer.Len())
	s.debug.Trace("buffered frame (queue depth %d)", s.buffer.Len())
}

func (s *Socket) sendHeartbeatFrame(f Frame) bool {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	if t == nil {
		return false
	}
	if err := t.Send(f); err != nil {
		return false
	}
	s.mu.Lock()
	s.lastMessageSent = s.opts.Clock.Now()
	s.mu.Unlock()
	return true
}

// Close tears the Socket down terminally: it cancels any in-flight
// attempt and pending timers, closes the live transport if any, emits
// close and status(disconnected), and clears the outbound buffer.
// Idempotent: once disconnected, repeated calls do nothing further.
func (s *Socket) Close() {
	s.mu.Lock()
	if s.status == StatusDisconnected {
		s.explicitClose = true
		s.mu.Unlock()
		return
	}

	prevStatus := s.status
	s.status = StatusDisconnected
	s.explicitClose = true
	t := s.transport
	s.transport = nil
	s.transportGen++
	if s.attemptCancel != nil {
		s.attemptCancel()
		s.attemptCancel = nil
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	if s.lostTimer != nil {
		s.lostTimer.Stop()
		s.lostTimer = nil
	}
	s.lostArmed = false
	s.lostEmitted = false
	s.mu.Unlock()

	s.heartbeat.Stop()

	ev := CloseEvent{Code: 1000, Reason: "client closed before connecting", WasClean: true}
	if t != nil {
		_ = t.Close(1000, "client closed")
		ev.Reason = "client closed"
	}

	s.metrics.recordTransition(StatusDisconnected)
	s.debug.Trace("status %s -> disconnected (explicit close)", prevStatus)
	s.emitter.Emit(EventClose, ev)
	s.emitter.Emit(EventStatus, StatusDisconnected)
	s.buffer.Clear()
	s.metrics.setBufferDepth(0)
}

// Reconnect begins a fresh Connection Attempt from StatusDisconnected,
// resetting retryCount. It is a no-op from any other status.
func (s *Socket) Reconnect() {
	s.mu.Lock()
	if s.status != StatusDisconnected {
		s.mu.Unlock()
		return
	}
	s.explicitClose = false
	s.retryCount = 0
	s.status = StatusConnecting
	s.mu.Unlock()

	s.metrics.recordTransition(StatusConnecting)
	s.debug.Trace("status disconnected -> connecting (explicit reconnect)")
	s.emitter.Emit(EventStatus, StatusConnecting)
	go s.beginAttempt(RetryInfo{RetryCount: 0, StartedAt: s.opts.Clock.Now()})
}

// beginAttempt runs one Connection Attempt and routes its outcome to
// handleAttemptSuccess or handleAttemptFailure. It is always invoked on
// its own goroutine since connectionAttempt.run blocks for up to
// ConnectionTimeout.
func (s *Socket) beginAttempt(info RetryInfo) {
	s.mu.Lock()
	if s.status == StatusDisconnected {
		s.mu.Unlock()
		return
	}
	s.transportGen++
	gen := s.transportGen
	ctx, cancel := context.WithCancel(context.Background())
	s.attemptCancel = cancel
	s.mu.Unlock()

	transport, err := s.attempt.run(ctx, info, func(t Transport) {
		t.OnMessage(func(f Frame) { s.onTransportMessage(gen, f) })
		t.OnClose(func(ev CloseEvent) { s.onTransportClose(gen, ev) })
	})

	if err != nil {
		s.handleAttemptFailure(gen, err)
		return
	}
	s.handleAttemptSuccess(gen, transport)
}

func (s *Socket) handleAttemptSuccess(gen int, transport Transport) {
	s.mu.Lock()
	if gen != s.transportGen {
		s.mu.Unlock()
		_ = transport.Close(1000, "superseded")
		return
	}

	prevStatus := s.status
	s.transport = transport
	s.retryCount = 0
	s.attemptCancel = nil
	s.status = StatusConnected
	s.lastMessageSent = s.opts.Clock.Now()

	armed := s.lostArmed
	emittedLost := s.lostEmitted
	s.lostArmed = false
	s.lostEmitted = false
	if s.lostTimer != nil {
		s.lostTimer.Stop()
		s.lostTimer = nil
	}
	s.mu.Unlock()

	s.metrics.recordTransition(StatusConnected)
	s.debug.Trace("status %s -> connected", prevStatus)
	s.emitter.Emit(EventStatus, StatusConnected)
	s.emitter.Emit(EventOpen, nil)

	s.heartbeat.Start()

	s.buffer.Drain(func(f Frame) bool {
		if s.opts.RateLimiter != nil {
			if err := s.opts.RateLimiter.Wait(context.Background()); err != nil {
				return false
			}
		}
		if err := transport.Send(f); err != nil {
			return false
		}
		s.mu.Lock()
		s.lastMessageSent = s.opts.Clock.Now()
		s.mu.Unlock()
		return true
	})
	s.metrics.setBufferDepth(s.buffer.Len())

	if armed && emittedLost {
		s.emitter.Emit(EventLostConnection, LostConnectionRestored)
	}
}

func (s *Socket) handleAttemptFailure(gen int, err error) {
	s.mu.Lock()
	if gen != s.transportGen {
		s.mu.Unlock()
		return
	}

	s.attemptCancel = nil
	s.lastError = err
	prevStatus := s.status

	var stop *StopRetryError
	isStop := errors.As(err, &stop)

	s.retryCount++
	rc := s.retryCount
	terminal := isStop || s.opts.Retry.RetriesExhausted(rc)

	if terminal {
		s.status = StatusDisconnected
		armed := s.lostArmed
		emittedLost := s.lostEmitted
		s.lostArmed = false
		s.lostEmitted = false
		if s.lostTimer != nil {
			s.lostTimer.Stop()
			s.lostTimer = nil
		}
		s.mu.Unlock()

		s.metrics.recordTransition(StatusDisconnected)
		s.debug.Trace("status %s -> disconnected (terminal attempt failure: %v)", prevStatus, err)
		s.emitter.Emit(EventStatus, StatusDisconnected)

		var payload any
		if isStop {
			payload = stop
		} else {
			payload = &RetriesExhaustedError{LastError: err, Attempts: rc}
		}
		s.emitter.Emit(EventDisconnect, payload)

		if armed && emittedLost {
			s.emitter.Emit(EventLostConnection, LostConnectionFailed)
		}
		s.buffer.Clear()
		s.metrics.setBufferDepth(0)
		return
	}

	s.status = StatusReconnecting
	needArm := !s.lostArmed
	if needArm {
		s.lostArmed = true
	}
	delay := s.opts.Retry.NextDelay(RetryInfo{RetryCount: rc, LastError: err, StartedAt: s.opts.Clock.Now()})
	s.mu.Unlock()

	s.metrics.recordReconnect()
	s.metrics.recordTransition(StatusReconnecting)
	s.debug.Trace("status %s -> reconnecting (attempt %d failed: %v; retry in %s)", prevStatus, rc, err, delay)
	s.emitter.Emit(EventStatus, StatusReconnecting)
	s.emitter.Emit(EventError, err)

	if needArm {
		s.armLostConnectionTimer()
	}
	s.scheduleRetry(delay, RetryInfo{RetryCount: rc, LastError: err, StartedAt: s.opts.Clock.Now()})
}

func (s *Socket) onTransportMessage(gen int, f Frame) {
	s.mu.Lock()
	if gen != s.transportGen || s.status != StatusConnected {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if s.heartbeat.ObserveInbound(f) {
		return
	}
	s.emitter.Emit(EventMessage, f)
}

func (s *Socket) onTransportClose(gen int, ev CloseEvent) {
	s.mu.Lock()
	if gen != s.transportGen || s.status == StatusDisconnected {
		s.mu.Unlock()
		return
	}
	s.transportGen++
	s.transport = nil
	s.mu.Unlock()

	s.heartbeat.Stop()
	s.emitter.Emit(EventClose, ev)
	s.handleDrop(ev)
}

// onHeartbeatMissExceeded is the HeartbeatController's onMissExceeded
// callback (§4.5): the transport is still open from the network's
// perspective but has stopped answering pings, so the core tears it
// down itself and synthesizes the drop instead of waiting for a close
// frame that may never arrive.
func (s *Socket) onHeartbeatMissExceeded() {
	s.metrics.recordHeartbeatMiss()

	s.mu.Lock()
	old := s.transport
	s.transport = nil
	s.transportGen++
	s.mu.Unlock()

	s.heartbeat.Stop()
	if old != nil {
		_ = old.Close(1006, "heartbeat timeout")
	}

	ev := CloseEvent{Code: 1006, Reason: "heartbeat timeout exceeded", WasClean: false}
	s.emitter.Emit(EventClose, ev)
	s.handleDrop(ev)
}

// handleDrop implements the shared tail of both a transport-driven close
// and a heartbeat-synthesized close: terminal CloseCodes send the socket
// to StatusDisconnected, anything else schedules a reconnect (§4.8).
func (s *Socket) handleDrop(ev CloseEvent) {
	s.mu.Lock()
	prevStatus := s.status

	if s.opts.isTerminalCloseCode(ev.Code) {
		s.status = StatusDisconnected
		armed := s.lostArmed
		emittedLost := s.lostEmitted
		s.lostArmed = false
		s.lostEmitted = false
		if s.lostTimer != nil {
			s.lostTimer.Stop()
			s.lostTimer = nil
		}
		if s.retryTimer != nil {
			s.retryTimer.Stop()
			s.retryTimer = nil
		}
		s.mu.Unlock()

		s.metrics.recordTransition(StatusDisconnected)
		s.debug.Trace("status %s -> disconnected (fatal close code %d)", prevStatus, ev.Code)
		s.emitter.Emit(EventStatus, StatusDisconnected)
		evCopy := ev
		s.emitter.Emit(EventDisconnect, &CloseByServerFatalError{Event: evCopy})
		if armed && emittedLost {
			s.emitter.Emit(EventLostConnection, LostConnectionFailed)
		}
		s.buffer.Clear()
		s.metrics.setBufferDepth(0)
		return
	}

	s.retryCount++
	rc := s.retryCount
	needArm := !s.lostArmed
	if needArm {
		s.lostArmed = true
	}
	s.status = StatusReconnecting
	delay := s.opts.Retry.NextDelay(RetryInfo{RetryCount: rc, StartedAt: s.opts.Clock.Now()})
	s.mu.Unlock()

	s.metrics.recordReconnect()
	s.metrics.recordTransition(StatusReconnecting)
	s.debug.Trace("status %s -> reconnecting (dropped: code %d %s)", prevStatus, ev.Code, ev.Reason)
	s.emitter.Emit(EventStatus, StatusReconnecting)

	if needArm {
		s.armLostConnectionTimer()
	}
	s.scheduleRetry(delay, RetryInfo{RetryCount: rc, StartedAt: s.opts.Clock.Now()})
}

// armLostConnectionTimer starts the grace-period timer the first time
// the socket enters StatusReconnecting (§4.9). It is a no-op if a timer
// is already armed.
func (s *Socket) armLostConnectionTimer() {
	s.mu.Lock()
	if s.lostTimer != nil {
		s.mu.Unlock()
		return
	}
	s.lostTimer = s.opts.Clock.AfterFunc(s.opts.LostConnectionTimeout, s.fireLostConnectionTimeout)
	s.mu.Unlock()
}

func (s *Socket) fireLostConnectionTimeout() {
	s.mu.Lock()
	if s.status != StatusReconnecting {
		s.mu.Unlock()
		return
	}
	s.lostEmitted = true
	s.lostTimer = nil
	s.mu.Unlock()

	s.emitter.Emit(EventLostConnection, LostConnectionLost)
}

func (s *Socket) scheduleRetry(delay time.Duration, info RetryInfo) {
	s.mu.Lock()
	if s.retryTimer != nil {
		s.retryTimer.Stop()
	}
	s.retryTimer = s.opts.Clock.AfterFunc(delay, func() {
		s.mu.Lock()
		s.retryTimer = nil
		s.mu.Unlock()
		go s.beginAttempt(info)
	})
	s.mu.Unlock()
}
