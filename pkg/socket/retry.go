package socket

import (
	"math"
	"math/rand"
	"time"
)

// RetryInfo is the metadata passed into Params and GetDelay on every
// connection attempt.
type RetryInfo struct {
	RetryCount int
	LastError  error
	StartedAt  time.Time
}

// RetryPolicy computes the delay before the next reconnection attempt.
type RetryPolicy struct {
	// GetDelay, if set, is called with the current RetryInfo and its
	// return value is used unchanged, bypassing MinReconnectionDelay /
	// MaxReconnectionDelay / ReconnectionDelayGrowFactor entirely.
	GetDelay func(RetryInfo) time.Duration

	MinReconnectionDelay        time.Duration
	MaxReconnectionDelay        time.Duration
	ReconnectionDelayGrowFactor float64

	// MaxRetries caps consecutive failed attempts. Zero or negative
	// means unbounded.
	MaxRetries int
}

// DefaultRetryPolicy returns a RetryPolicy matching the spec defaults,
// rolling MinReconnectionDelay once (1000ms + rand()*4000ms) as the spec
// requires ("rolled once per socket").
func DefaultRetryPolicy(rng *rand.Rand) RetryPolicy {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return RetryPolicy{
		MinReconnectionDelay:        time.Duration(1000+rng.Float64()*4000) * time.Millisecond,
		MaxReconnectionDelay:        10 * time.Second,
		ReconnectionDelayGrowFactor: 1.3,
		MaxRetries:                 0,
	}
}

// NextDelay returns the delay before the attempt described by info.
func (p RetryPolicy) NextDelay(info RetryInfo) time.Duration {
	if p.GetDelay != nil {
		return p.GetDelay(info)
	}

	delay := float64(p.MinReconnectionDelay) * math.Pow(p.ReconnectionDelayGrowFactor, float64(info.RetryCount))
	return clampDuration(time.Duration(delay), p.MinReconnectionDelay, p.MaxReconnectionDelay)
}

// RetriesExhausted reports whether retryCount has reached MaxRetries.
// MaxRetries <= 0 means unbounded, so this is always false in that case.
func (p RetryPolicy) RetriesExhausted(retryCount int) bool {
	return p.MaxRetries > 0 && retryCount >= p.MaxRetries
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
