package socketui

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattsp1290/gosocket/pkg/socket"
)

func TestSocketProviderUseStatusReportsCurrentAndSubscribesToChanges(t *testing.T) {
	clock := socket.NewFakeClock(time.Unix(0, 0))
	ctx := NewSocketContext(Config{
		URL: "wss://example.test/socket",
		Options: socket.Options{
			Clock:       clock,
			StartClosed: true,
		},
	})

	provider := ctx.Provider(context.Background())
	defer provider.Dispose()

	current, unsubscribe := provider.UseStatus(nil)
	assert.Equal(t, socket.StatusDisconnected, current)
	unsubscribe()

	var seen []socket.Status
	current, unsubscribe = provider.UseStatus(func(st socket.Status) { seen = append(seen, st) })
	defer unsubscribe()
	assert.Equal(t, socket.StatusDisconnected, current)

	provider.UseSocket().Reconnect()
	require.Eventually(t, func() bool { return len(seen) > 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestSocketProviderUseMessageSwapsCallbackWithoutResubscribing(t *testing.T) {
	clock := socket.NewFakeClock(time.Unix(0, 0))
	ctx := NewSocketContext(Config{
		URL:     "wss://example.test/socket",
		Options: socket.Options{Clock: clock, StartClosed: true},
	})
	provider := ctx.Provider(context.Background())
	defer provider.Dispose()

	var firstCalls, secondCalls int
	provider.UseMessage(func(socket.Frame) { firstCalls++ })
	unsubscribe := provider.UseMessage(func(socket.Frame) { secondCalls++ })

	provider.UseSocket().AddEventListener(socket.EventMessage, func(payload any) {})
	provider.mu.Lock()
	sub := provider.messageSub
	provider.mu.Unlock()
	require.NotNil(t, sub)
	sub.invoke(socket.Frame{Data: []byte("x")})

	assert.Equal(t, 0, firstCalls)
	assert.Equal(t, 1, secondCalls)

	unsubscribe()
	provider.mu.Lock()
	assert.Nil(t, provider.messageSub)
	provider.mu.Unlock()
}

func TestSocketProviderDisposeClosesSocketAndIsIdempotent(t *testing.T) {
	clock := socket.NewFakeClock(time.Unix(0, 0))
	ctx := NewSocketContext(Config{
		URL:     "wss://example.test/socket",
		Options: socket.Options{Clock: clock, StartClosed: true},
	})
	provider := ctx.Provider(context.Background())

	provider.Dispose()
	provider.Dispose()

	assert.Equal(t, socket.StatusDisconnected, provider.UseSocket().Status())
}

func TestSocketProviderDisposesOnContextCancellation(t *testing.T) {
	clock := socket.NewFakeClock(time.Unix(0, 0))
	ctx := NewSocketContext(Config{
		URL:     "wss://example.test/socket",
		Options: socket.Options{Clock: clock, StartClosed: true},
	})
	cancelCtx, cancel := context.WithCancel(context.Background())
	provider := ctx.Provider(cancelCtx)

	cancel()
	require.Eventually(t, func() bool {
		provider.mu.Lock()
		defer provider.mu.Unlock()
		return provider.disposed
	}, 2*time.Second, 5*time.Millisecond)
}
