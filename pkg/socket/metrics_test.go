package socket

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketMetricsNilWhenNoRegistry(t *testing.T) {
	m := newSocketMetrics(nil)
	assert.Nil(t, m)
	assert.NotPanics(t, func() {
		m.recordReconnect()
		m.recordHeartbeatMiss()
		m.setBufferDepth(3)
		m.recordTransition(StatusConnected)
	})
}

func TestSocketMetricsRecordsAgainstRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newSocketMetrics(reg)
	require.NotNil(t, m)

	m.recordReconnect()
	m.recordHeartbeatMiss()
	m.setBufferDepth(5)
	m.recordTransition(StatusConnected)
	m.recordTransition(StatusConnected)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
