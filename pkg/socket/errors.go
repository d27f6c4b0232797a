package socket

import "fmt"

// StopRetryError is the sentinel a Params function returns to end the
// socket terminally instead of driving another retry. Construct it with
// StopRetry.
type StopRetryError struct {
	Reason string
}

func (e *StopRetryError) Error() string {
	return fmt.Sprintf("stop retry: %s", e.Reason)
}

// StopRetry builds the StopRetry sentinel carrying reason.
func StopRetry(reason string) *StopRetryError {
	return &StopRetryError{Reason: reason}
}

// ParamsTimeoutError is returned when Params does not resolve within
// ParamsTimeout.
type ParamsTimeoutError struct {
	Timeout string
}

func (e *ParamsTimeoutError) Error() string {
	return fmt.Sprintf("params did not resolve within %s", e.Timeout)
}

// ConnectionTimeoutError is returned when the transport does not open
// within ConnectionTimeout.
type ConnectionTimeoutError struct {
	Timeout string
}

func (e *ConnectionTimeoutError) Error() string {
	return fmt.Sprintf("connection did not open within %s", e.Timeout)
}

// TransportError wraps an error surfaced by the underlying transport. It
// is not fatal on its own; the socket core decides whether it drives a
// reconnect based on the close event that follows.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport error: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// CloseByServerFatalError represents a server-initiated close whose code
// is configured as terminal (CloseCodes).
type CloseByServerFatalError struct {
	Event CloseEvent
}

func (e *CloseByServerFatalError) Error() string {
	return fmt.Sprintf("closed by server with fatal code %d: %s", e.Event.Code, e.Event.Reason)
}

// RetriesExhaustedError is the terminal error fired on disconnect when
// MaxRetries consecutive attempts have failed.
type RetriesExhaustedError struct {
	LastError error
	Attempts  int
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.LastError)
}
func (e *RetriesExhaustedError) Unwrap() error { return e.LastError }

// ConfigError reports an invalid Options field, surfaced from
// Options.Validate.
type ConfigError struct {
	Field string
	Value any
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid option %s=%v: %v", e.Field, e.Value, e.Err)
}
func (e *ConfigError) Unwrap() error { return e.Err }

// CloseEvent mirrors the standard WebSocket close event.
type CloseEvent struct {
	Code     int
	Reason   string
	WasClean bool
}
