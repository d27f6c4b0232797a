package socket

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// EnvSignals exposes the host environment's focus/visibility and
// network-online notifications. Absence degrades heartbeat triggering
// gracefully; nothing else depends on these signals. Implementations must
// be safe for concurrent Subscribe/unsubscribe calls.
type EnvSignals interface {
	// OnFocus registers cb to run whenever the host signals it regained
	// focus/visibility. Returns an unsubscribe func.
	OnFocus(cb func()) (unsubscribe func())
	// OnOnline registers cb to run whenever the host signals the network
	// came back online. Returns an unsubscribe func.
	OnOnline(cb func()) (unsubscribe func())
}

// NopEnvSignals is the zero-cost EnvSignals used when the host has no
// notion of focus/online events (e.g. a headless worker process).
type NopEnvSignals struct{}

func (NopEnvSignals) OnFocus(func()) (unsubscribe func())  { return func() {} }
func (NopEnvSignals) OnOnline(func()) (unsubscribe func()) { return func() {} }

// ProcessSignals adapts OS signals to focus/online triggers for
// long-running daemon processes that embed a Socket: SIGUSR1 is treated
// as a "focus regained" probe (operators can wire this to a supervisor
// hook), SIGUSR2 as a "network online" probe. Both are best-effort; a
// platform without these signals (e.g. Windows) simply never fires them.
type ProcessSignals struct {
	mu        sync.Mutex
	focusSubs map[int]func()
	onlineSubs map[int]func()
	nextID    int
	stop      chan struct{}
	once      sync.Once
}

// NewProcessSignals starts listening for SIGUSR1/SIGUSR2 and returns an
// EnvSignals implementation. Callers must call Close when the owning
// Socket shuts down.
func NewProcessSignals() *ProcessSignals {
	p := &ProcessSignals{
		focusSubs:  make(map[int]func()),
		onlineSubs: make(map[int]func()),
		stop:       make(chan struct{}),
	}
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, syscall.SIGUSR1, syscall.SIGUSR2)
	go p.loop(ch)
	return p
}

func (p *ProcessSignals) loop(ch chan os.Signal) {
	for {
		select {
		case <-p.stop:
			signal.Stop(ch)
			return
		case sig := <-ch:
			switch sig {
			case syscall.SIGUSR1:
				p.fire(p.focusSubs)
			case syscall.SIGUSR2:
				p.fire(p.onlineSubs)
			}
		}
	}
}

func (p *ProcessSignals) fire(subs map[int]func()) {
	p.mu.Lock()
	cbs := make([]func(), 0, len(subs))
	for _, cb := range subs {
		cbs = append(cbs, cb)
	}
	p.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

func (p *ProcessSignals) OnFocus(cb func()) (unsubscribe func()) {
	return p.subscribe(p.focusSubs, cb)
}

func (p *ProcessSignals) OnOnline(cb func()) (unsubscribe func()) {
	return p.subscribe(p.onlineSubs, cb)
}

func (p *ProcessSignals) subscribe(subs map[int]func(), cb func()) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	subs[id] = cb
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(subs, id)
		p.mu.Unlock()
	}
}

// Close stops the signal listener goroutine. Idempotent.
func (p *ProcessSignals) Close() {
	p.once.Do(func() { close(p.stop) })
}
