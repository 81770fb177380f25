package chat

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricActiveConnections       = "chat_active_connections"
	MetricSendingClients          = "chat_sending_clients"
	MetricMessagesProcessing      = "chat_messages_processing"
	MetricMessagesTotal           = "chat_messages_total"
	MetricRepliesTotal            = "chat_replies_total"
	MetricHeartbeatEvictionsTotal = "chat_heartbeat_evictions_total"
)

// Accepted label values for the messages counter.
const (
	AcceptedTrue  = "true"
	AcceptedFalse = "false"
)

// Metrics contains Prometheus metrics for the chat pipeline.
// All operations are thread-safe.
type Metrics struct {
	activeConnections  prometheus.Gauge
	sendingClients     prometheus.Gauge
	messagesProcessing prometheus.Gauge
	messagesTotal      *prometheus.CounterVec
	repliesTotal       *prometheus.CounterVec
	heartbeatEvictions prometheus.Counter
}

// NewMetrics creates a Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a
// registry.
func NewMetrics() *Metrics {
	return &Metrics{
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricActiveConnections,
			Help: "Number of currently connected websocket clients",
		}),
		sendingClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricSendingClients,
			Help: "Number of clients currently holding a sending slot",
		}),
		messagesProcessing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricMessagesProcessing,
			Help: "Number of messages currently in the processing pipeline",
		}),
		messagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricMessagesTotal,
				Help: "Total number of messages received by type and acceptance",
			},
			[]string{"type", "accepted"},
		),
		repliesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRepliesTotal,
				Help: "Total number of replies emitted by reply type",
			},
			[]string{"reply_type"},
		),
		heartbeatEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricHeartbeatEvictionsTotal,
			Help: "Total number of connections evicted for missed heartbeats",
		}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.activeConnections,
		m.sendingClients,
		m.messagesProcessing,
		m.messagesTotal,
		m.repliesTotal,
		m.heartbeatEvictions,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// SetActiveConnections records the current connection count.
func (m *Metrics) SetActiveConnections(n int) {
	m.activeConnections.Set(float64(n))
}

// SetSendingClients records the current number of held sending slots.
func (m *Metrics) SetSendingClients(n int) {
	m.sendingClients.Set(float64(n))
}

// SetMessagesProcessing records the current processing pipeline depth.
func (m *Metrics) SetMessagesProcessing(n int) {
	m.messagesProcessing.Set(float64(n))
}

// IncMessagesTotal increments the messages counter.
func (m *Metrics) IncMessagesTotal(messageType string, accepted bool) {
	label := AcceptedFalse
	if accepted {
		label = AcceptedTrue
	}
	m.messagesTotal.WithLabelValues(messageType, label).Inc()
}

// IncRepliesTotal increments the replies counter.
func (m *Metrics) IncRepliesTotal(replyType string) {
	m.repliesTotal.WithLabelValues(replyType).Inc()
}

// IncHeartbeatEvictions increments the heartbeat eviction counter.
func (m *Metrics) IncHeartbeatEvictions() {
	m.heartbeatEvictions.Inc()
}
