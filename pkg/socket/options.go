package socket

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ParamsFunc resolves async credential/query parameters for a connection
// attempt. Returning the StopRetry sentinel ends the socket terminally.
type ParamsFunc func(ctx context.Context, info RetryInfo) (map[string]any, error)

// URLFuncArgs is passed to URLFunc when building the final connection URL.
type URLFuncArgs struct {
	RetryInfo RetryInfo
	URL       string
	Params    map[string]any
}

// URLFunc overrides the default query-string URL composition (§6).
type URLFunc func(URLFuncArgs) string

// ConnectionResolver delays attempt success past transport open until an
// externally-driven check (e.g. an application-level handshake ack)
// completes.
type ConnectionResolver struct {
	// Resolve is called after transport open; the attempt only succeeds
	// once Resolve's returned channel is closed (or delivers a value).
	// Reject, if set, is called alongside it; an error on its channel
	// fails the attempt.
	Resolve func(ctx context.Context, t Transport) <-chan struct{}
	Reject  func(ctx context.Context, t Transport) <-chan error
}

// DebugLogger receives a free-form debug trace line. Options.Debug gates
// whether the socket calls it; DebugTrace (§6) is unconditional.
type DebugLogger func(format string, args ...any)

// Options configures a Socket. All fields are optional; zero values fall
// back to the defaults documented per field and in SPEC_FULL.md §4.
type Options struct {
	// Protocols are the WebSocket subprotocols offered during the
	// handshake.
	Protocols []string

	// Params resolves per-attempt query parameters. Nil disables
	// parameter resolution.
	Params ParamsFunc
	// ParamsTimeout bounds how long Params may take. Default 10s.
	ParamsTimeout time.Duration

	// URLFunc overrides URL composition. Nil uses the default
	// query-string append/merge behavior.
	URLFunc URLFunc

	// Dialer overrides the transport constructor. Nil uses DefaultDialer
	// (gorilla/websocket).
	Dialer TransportDialer
	// Header is passed to Dialer for every attempt (e.g. auth headers
	// not suited to query parameters).
	Header http.Header
	// ConnectionTimeout bounds how long a single attempt may take to
	// open. Default 10s.
	ConnectionTimeout time.Duration
	// ConnectionResolver, if set, gates attempt success on an
	// application-level handshake after transport open.
	ConnectionResolver *ConnectionResolver

	// Retry configures backoff and retry limits. Zero value is filled
	// in with DefaultRetryPolicy at construction (rolling the jittered
	// MinReconnectionDelay once).
	Retry RetryPolicy

	// CloseCodes lists server close codes treated as terminal (no
	// reconnect); checked by isTerminalCloseCode.
	CloseCodes []int

	// Buffering configures the outbound Buffer (§4.4).
	Buffering BufferPolicy

	// HeartbeatInterval enables the heartbeat controller when > 0.
	HeartbeatInterval time.Duration
	// PingTimeout bounds how long a pong may take to arrive. Default 3s.
	PingTimeout time.Duration
	// MaxMissedPings is the number of tolerated consecutive misses
	// before the socket tears down and reconnects. Default 1.
	MaxMissedPings int
	// PingMessage is the outbound ping payload. Default "ping".
	PingMessage string
	// PongMessage is the inbound payload recognized as a pong and
	// consumed before reaching message listeners. Default "pong".
	PongMessage string
	// IgnoreFocusEvents disables focus-triggered immediate pings.
	IgnoreFocusEvents bool
	// IgnoreNetworkEvents disables online-triggered immediate pings.
	// Kept distinct from IgnoreFocusEvents per the source ambiguity
	// noted in SPEC_FULL.md §9.
	IgnoreNetworkEvents bool
	// EnvSignals supplies focus/online notifications. Nil uses
	// NopEnvSignals.
	EnvSignals EnvSignals

	// LostConnectionTimeout is the grace period before a reconnect
	// attempt is surfaced as a user-visible "lost" toast. Default 5s.
	LostConnectionTimeout time.Duration

	// StartClosed creates the socket already in StatusDisconnected,
	// requiring an explicit Reconnect() to begin connecting.
	StartClosed bool

	// RateLimiter throttles outbound sends (direct and buffer-drained).
	// Nil disables throttling.
	RateLimiter *rate.Limiter

	// MetricsRegistry, if set, enables Prometheus instrumentation
	// (§2.11). Nil disables all metrics calls.
	MetricsRegistry *prometheus.Registry

	// DebugTraceSize bounds the in-memory debug trace ring (§6).
	// Default 256.
	DebugTraceSize int
	// Debug routes internal trace lines to DebugLogger (or a default
	// zap-backed logger) in addition to the always-on DebugTrace ring.
	Debug bool
	// DebugLogger receives trace lines when Debug is true. Nil uses a
	// default zap logger at debug level.
	DebugLogger DebugLogger
	// Logger is the structured logger backing the debug hook and all
	// internal diagnostics. Nil uses zap.NewNop().
	Logger *zap.Logger

	// Rand seeds the jittered default MinReconnectionDelay roll. Nil
	// uses a time-seeded source.
	Rand *rand.Rand

	// Clock abstracts wall-clock time and delayed callbacks throughout
	// the socket (§5). Nil uses RealClock; tests inject a FakeClock.
	Clock Clock
}

func (o *Options) withDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	out := *o

	if out.ParamsTimeout <= 0 {
		out.ParamsTimeout = 10 * time.Second
	}
	if out.ConnectionTimeout <= 0 {
		out.ConnectionTimeout = 10 * time.Second
	}
	if out.Dialer == nil {
		out.Dialer = DefaultDialer
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 3 * time.Second
	}
	if out.MaxMissedPings <= 0 {
		out.MaxMissedPings = 1
	}
	if out.PingMessage == "" {
		out.PingMessage = "ping"
	}
	if out.PongMessage == "" {
		out.PongMessage = "pong"
	}
	if out.EnvSignals == nil {
		out.EnvSignals = NopEnvSignals{}
	}
	if out.LostConnectionTimeout <= 0 {
		out.LostConnectionTimeout = 5 * time.Second
	}
	if out.DebugTraceSize <= 0 {
		out.DebugTraceSize = 256
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	if out.Clock == nil {
		out.Clock = NewRealClock()
	}

	retryUnset := out.Retry.GetDelay == nil &&
		out.Retry.MinReconnectionDelay <= 0 &&
		out.Retry.MaxReconnectionDelay <= 0 &&
		out.Retry.ReconnectionDelayGrowFactor <= 0 &&
		out.Retry.MaxRetries == 0

	if retryUnset {
		out.Retry = DefaultRetryPolicy(out.Rand)
	} else if out.Retry.GetDelay == nil {
		if out.Retry.MinReconnectionDelay <= 0 {
			out.Retry.MinReconnectionDelay = DefaultRetryPolicy(out.Rand).MinReconnectionDelay
		}
		if out.Retry.MaxReconnectionDelay <= 0 {
			out.Retry.MaxReconnectionDelay = 10 * time.Second
		}
		if out.Retry.ReconnectionDelayGrowFactor <= 0 {
			out.Retry.ReconnectionDelayGrowFactor = 1.3
		}
	}

	return &out
}

// Validate reports the first invalid field found on an already-defaulted
// Options (i.e. called after withDefaults). Grounded on the teacher's
// NewConnectionWithContext field checks in
// pkg/transport/websocket/connection.go, which return a *core.ConfigError
// naming the offending field rather than a generic error.
func (o *Options) Validate() error {
	if o.ParamsTimeout <= 0 {
		return &ConfigError{Field: "ParamsTimeout", Value: o.ParamsTimeout, Err: errNonPositiveDuration}
	}
	if o.ConnectionTimeout <= 0 {
		return &ConfigError{Field: "ConnectionTimeout", Value: o.ConnectionTimeout, Err: errNonPositiveDuration}
	}
	if o.PingTimeout <= 0 {
		return &ConfigError{Field: "PingTimeout", Value: o.PingTimeout, Err: errNonPositiveDuration}
	}
	if o.MaxMissedPings <= 0 {
		return &ConfigError{Field: "MaxMissedPings", Value: o.MaxMissedPings, Err: errNonPositiveInt}
	}
	if o.LostConnectionTimeout <= 0 {
		return &ConfigError{Field: "LostConnectionTimeout", Value: o.LostConnectionTimeout, Err: errNonPositiveDuration}
	}
	if o.DebugTraceSize <= 0 {
		return &ConfigError{Field: "DebugTraceSize", Value: o.DebugTraceSize, Err: errNonPositiveInt}
	}
	if o.Retry.GetDelay == nil {
		if o.Retry.MinReconnectionDelay <= 0 {
			return &ConfigError{Field: "Retry.MinReconnectionDelay", Value: o.Retry.MinReconnectionDelay, Err: errNonPositiveDuration}
		}
		if o.Retry.MaxReconnectionDelay < o.Retry.MinReconnectionDelay {
			return &ConfigError{Field: "Retry.MaxReconnectionDelay", Value: o.Retry.MaxReconnectionDelay, Err: errMaxBelowMin}
		}
		if o.Retry.ReconnectionDelayGrowFactor < 1 {
			return &ConfigError{Field: "Retry.ReconnectionDelayGrowFactor", Value: o.Retry.ReconnectionDelayGrowFactor, Err: errGrowFactorBelowOne}
		}
	}
	if o.Buffering.Enabled && o.Buffering.MaxEnqueuedMessages < 0 {
		return &ConfigError{Field: "Buffering.MaxEnqueuedMessages", Value: o.Buffering.MaxEnqueuedMessages, Err: errNegativeInt}
	}
	return nil
}

var (
	errNonPositiveDuration = errors.New("must be greater than zero")
	errNonPositiveInt      = errors.New("must be greater than zero")
	errNegativeInt         = errors.New("must not be negative")
	errMaxBelowMin         = errors.New("must not be less than MinReconnectionDelay")
	errGrowFactorBelowOne  = errors.New("must be at least 1")
)

func (o *Options) isTerminalCloseCode(code int) bool {
	for _, c := range o.CloseCodes {
		if c == code {
			return true
		}
	}
	return false
}
