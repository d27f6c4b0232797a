// Package socketui adapts a *socket.Socket into the reactive,
// subscription-shaped surface a component-tree UI runtime expects:
// a provider owning the socket's lifetime plus hook-like accessors that
// swap a mutable callback slot instead of resubscribing on every render.
package socketui

import (
	"context"
	"sync"

	"github.com/mattsp1290/gosocket/pkg/socket"
)

// Config bundles everything needed to construct the provider's Socket:
// the connection target plus the library Options (§4.11 groups these
// under a single "config" object).
type Config struct {
	URL       string
	Protocols []string
	Options   socket.Options
}

// SocketContext is a factory for SocketProviders sharing one Config.
type SocketContext struct {
	cfg Config
}

// NewSocketContext builds a factory from cfg. The same SocketContext may
// back multiple independent Providers (e.g. one per test case), each
// owning its own Socket.
func NewSocketContext(cfg Config) *SocketContext {
	return &SocketContext{cfg: cfg}
}

// Provider constructs and returns a new SocketProvider whose Socket
// begins connecting immediately (unless Options.StartClosed). If ctx is
// cancelled, the provider disposes itself.
func (c *SocketContext) Provider(ctx context.Context) *SocketProvider {
	opts := c.cfg.Options
	sock := socket.New(c.cfg.URL, c.cfg.Protocols, &opts)

	p := &SocketProvider{sock: sock}

	if ctx != nil {
		go func() {
			<-ctx.Done()
			p.Dispose()
		}()
	}

	return p
}

// subscription holds one hook's live callback behind a mutex, so a
// render loop can swap in a fresh closure every frame without the
// provider re-registering at the Socket's event emitter.
type subscription[T any] struct {
	mu sync.Mutex
	cb func(T)
}

func (s *subscription[T]) set(cb func(T)) {
	s.mu.Lock()
	s.cb = cb
	s.mu.Unlock()
}

func (s *subscription[T]) invoke(v T) {
	s.mu.Lock()
	cb := s.cb
	s.mu.Unlock()
	if cb != nil {
		cb(v)
	}
}

// SocketProvider owns exactly one *socket.Socket for its lifetime. Each
// hook below is backed by exactly one Socket-level listener, registered
// lazily on first use; repeated calls (e.g. once per render) only swap
// the callback held in the corresponding subscription's mutable slot.
type SocketProvider struct {
	sock *socket.Socket

	mu       sync.Mutex
	disposed bool

	statusSub *subscription[socket.Status]
	statusID  socket.ListenerID

	messageSub *subscription[socket.Frame]
	messageID  socket.ListenerID

	lostSub *subscription[socket.LostConnectionKind]
	lostID  socket.ListenerID
}

// UseSocket returns the stable underlying Socket reference.
func (p *SocketProvider) UseSocket() *socket.Socket { return p.sock }

// UseStatus subscribes onChange to every subsequent status transition
// and returns the status read synchronously at call time. onChange may
// be nil to just read current without subscribing. The returned
// unsubscribe tears down the underlying listener entirely; calling
// UseStatus again afterward re-subscribes.
func (p *SocketProvider) UseStatus(onChange func(socket.Status)) (current socket.Status, unsubscribe func()) {
	current = p.sock.Status()
	if onChange == nil {
		return current, func() {}
	}

	p.mu.Lock()
	if p.statusSub == nil {
		p.statusSub = &subscription[socket.Status]{cb: onChange}
		p.statusID = p.sock.AddEventListener(socket.EventStatus, func(payload any) {
			if st, ok := payload.(socket.Status); ok {
				p.statusSub.invoke(st)
			}
		})
	} else {
		p.statusSub.set(onChange)
	}
	p.mu.Unlock()

	return current, func() {
		p.mu.Lock()
		if p.statusSub != nil {
			p.sock.RemoveEventListener(socket.EventStatus, p.statusID)
			p.statusSub = nil
		}
		p.mu.Unlock()
	}
}

// UseMessage subscribes cb to inbound frames for the caller's lifetime.
// Calling it again (e.g. from a fresh render) swaps cb into the same
// underlying subscription instead of registering a second listener.
func (p *SocketProvider) UseMessage(cb func(socket.Frame)) (unsubscribe func()) {
	p.mu.Lock()
	if p.messageSub == nil {
		p.messageSub = &subscription[socket.Frame]{cb: cb}
		p.messageID = p.sock.AddEventListener(socket.EventMessage, func(payload any) {
			if f, ok := payload.(socket.Frame); ok {
				p.messageSub.invoke(f)
			}
		})
	} else {
		p.messageSub.set(cb)
	}
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		if p.messageSub != nil {
			p.sock.RemoveEventListener(socket.EventMessage, p.messageID)
			p.messageSub = nil
		}
		p.mu.Unlock()
	}
}

// UseLostConnectionListener subscribes cb to lostConnection transitions
// (lost/restored/failed), with the same swap-not-resubscribe semantics
// as UseMessage.
func (p *SocketProvider) UseLostConnectionListener(cb func(socket.LostConnectionKind)) (unsubscribe func()) {
	p.mu.Lock()
	if p.lostSub == nil {
		p.lostSub = &subscription[socket.LostConnectionKind]{cb: cb}
		p.lostID = p.sock.AddEventListener(socket.EventLostConnection, func(payload any) {
			if k, ok := payload.(socket.LostConnectionKind); ok {
				p.lostSub.invoke(k)
			}
		})
	} else {
		p.lostSub.set(cb)
	}
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		if p.lostSub != nil {
			p.sock.RemoveEventListener(socket.EventLostConnection, p.lostID)
			p.lostSub = nil
		}
		p.mu.Unlock()
	}
}

// Dispose removes the provider's Socket-level listeners, closes the
// underlying Socket, and is idempotent.
func (p *SocketProvider) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	if p.statusSub != nil {
		p.sock.RemoveEventListener(socket.EventStatus, p.statusID)
		p.statusSub = nil
	}
	if p.messageSub != nil {
		p.sock.RemoveEventListener(socket.EventMessage, p.messageID)
		p.messageSub = nil
	}
	if p.lostSub != nil {
		p.sock.RemoveEventListener(socket.EventLostConnection, p.lostID)
		p.lostSub = nil
	}
	p.mu.Unlock()

	p.sock.Close()
}
