package socket

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// TraceEntry is one line in the bounded debug trace ring (§6). It is
// produced regardless of Options.Debug; only the routing to
// Options.DebugLogger is gated by that flag.
type TraceEntry struct {
	Seq  uint64
	At   time.Time
	Note string
}

// debugRing is a bounded ring of recent trace entries, generalized from
// the teacher's Connection.writeBacklog *lru.Cache[string, []byte] field:
// there a bounded write backlog keyed by message id, here a bounded ring
// of trace entries keyed by a monotonically increasing sequence number,
// evicting the oldest entry once the cap is reached.
type debugRing struct {
	mu     sync.Mutex
	cache  *lru.Cache[uint64, TraceEntry]
	nextSeq uint64

	clock  Clock
	debug  bool
	logger DebugLogger
	zlog   *zap.Logger
}

func newDebugRing(size int, clock Clock, debug bool, logger DebugLogger, zlog *zap.Logger) *debugRing {
	cache, _ := lru.New[uint64, TraceEntry](size)
	return &debugRing{cache: cache, clock: clock, debug: debug, logger: logger, zlog: zlog}
}

// Trace records a formatted line and, if Debug is enabled, routes it to
// DebugLogger (or zap at debug level if DebugLogger is nil).
func (d *debugRing) Trace(format string, args ...any) {
	note := fmt.Sprintf(format, args...)

	d.mu.Lock()
	d.nextSeq++
	entry := TraceEntry{Seq: d.nextSeq, At: d.clock.Now(), Note: note}
	d.cache.Add(entry.Seq, entry)
	d.mu.Unlock()

	if !d.debug {
		return
	}
	if d.logger != nil {
		d.logger(format, args...)
		return
	}
	d.zlog.Debug(note)
}

// Last returns up to n most recent entries, oldest first.
func (d *debugRing) Last(n int) []TraceEntry {
	d.mu.Lock()
	defer d.mu.Unlock()

	keys := d.cache.Keys()
	if n > 0 && len(keys) > n {
		keys = keys[len(keys)-n:]
	}
	out := make([]TraceEntry, 0, len(keys))
	for _, k := range keys {
		if v, ok := d.cache.Peek(k); ok {
			out = append(out, v)
		}
	}
	return out
}
