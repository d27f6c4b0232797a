package socket

import "github.com/prometheus/client_golang/prometheus"

// socketMetrics wires optional Prometheus instrumentation. Every method
// is a no-op when the Socket was constructed without a MetricsRegistry,
// mirroring the teacher's nil-able optional-subsystem pattern (e.g.
// Transport.performanceManager).
type socketMetrics struct {
	reconnects  prometheus.Counter
	heartbeatMisses prometheus.Counter
	bufferDepth prometheus.Gauge
	transitions *prometheus.CounterVec
}

func newSocketMetrics(reg *prometheus.Registry) *socketMetrics {
	if reg == nil {
		return nil
	}

	m := &socketMetrics{
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gosocket_reconnects_total",
			Help: "Number of reconnection attempts scheduled after a failed or dropped connection.",
		}),
		heartbeatMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gosocket_heartbeat_misses_total",
			Help: "Number of heartbeat pongs not received before the configured timeout.",
		}),
		bufferDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gosocket_buffer_depth",
			Help: "Current number of frames queued in the outbound buffer.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gosocket_status_transitions_total",
			Help: "Number of status transitions, labeled by the new status.",
		}, []string{"status"}),
	}

	reg.MustRegister(m.reconnects, m.heartbeatMisses, m.bufferDepth, m.transitions)
	return m
}

func (m *socketMetrics) recordReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *socketMetrics) recordHeartbeatMiss() {
	if m == nil {
		return
	}
	m.heartbeatMisses.Inc()
}

func (m *socketMetrics) setBufferDepth(n int) {
	if m == nil {
		return
	}
	m.bufferDepth.Set(float64(n))
}

func (m *socketMetrics) recordTransition(status Status) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status.String()).Inc()
}
