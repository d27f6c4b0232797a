package socket

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventKind identifies one of the event channels a Socket fans out.
type EventKind int

const (
	EventOpen EventKind = iota
	EventClose
	EventMessage
	EventError
	EventStatus
	EventDisconnect
	EventLostConnection
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventClose:
		return "close"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventStatus:
		return "status"
	case EventDisconnect:
		return "disconnect"
	case EventLostConnection:
		return "lostConnection"
	default:
		return "unknown"
	}
}

// Listener receives an emitted payload. The concrete type of payload is
// documented per EventKind in SPEC_FULL.md §6.
type Listener func(payload any)

// ListenerID identifies a registered listener for removal.
type ListenerID string

type registeredListener struct {
	id     ListenerID
	fn     Listener
	active bool
}

// emitter is a typed multi-listener fan-out with add/remove and a
// snapshot-per-emit contract: listeners added during Emit never fire for
// the event in progress, removals take effect immediately.
type emitter struct {
	mu        sync.Mutex
	listeners map[EventKind][]*registeredListener
	logger    *zap.Logger
}

func newEmitter(logger *zap.Logger) *emitter {
	return &emitter{
		listeners: make(map[EventKind][]*registeredListener),
		logger:    logger,
	}
}

// On registers a listener for kind and returns an ID usable with Off.
func (e *emitter) On(kind EventKind, fn Listener) ListenerID {
	id := ListenerID(uuid.NewString())
	e.mu.Lock()
	e.listeners[kind] = append(e.listeners[kind], &registeredListener{id: id, fn: fn, active: true})
	e.mu.Unlock()
	return id
}

// Off removes the listener with the given ID for kind. Idempotent.
func (e *emitter) Off(kind EventKind, id ListenerID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.listeners[kind]
	for i, l := range list {
		if l.id == id {
			l.active = false
			e.listeners[kind] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Emit invokes every listener registered for kind, in registration order,
// from a snapshot taken before the first invocation. A panicking listener
// is recovered and logged; subsequent listeners still run.
func (e *emitter) Emit(kind EventKind, payload any) {
	e.mu.Lock()
	snapshot := make([]*registeredListener, len(e.listeners[kind]))
	copy(snapshot, e.listeners[kind])
	e.mu.Unlock()

	for _, l := range snapshot {
		e.invoke(kind, l, payload)
	}
}

func (e *emitter) invoke(kind EventKind, l *registeredListener, payload any) {
	defer func() {
		if r := recover(); r != nil {
			if e.logger != nil {
				e.logger.Error("event listener panicked",
					zap.String("event", kind.String()),
					zap.Any("recovered", r))
			}
		}
	}()

	e.mu.Lock()
	stillActive := l.active
	e.mu.Unlock()
	if !stillActive {
		return
	}

	l.fn(payload)
}
