package server

import (
	"github.com/aeolun/wirechat/pkg/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the server. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Session metrics
	activeSessions       prometheus.Gauge
	sessionsCreated      prometheus.Counter
	sessionsDisconnected prometheus.Counter
	onlineUsers          prometheus.Gauge

	// Frame metrics
	framesReceived *prometheus.CounterVec // by command
	framesSent     *prometheus.CounterVec // by command
	malformed      prometheus.Counter

	// Routing metrics
	messagesDelivered prometheus.Counter
	messagesQueued    prometheus.Counter
	queueFlushSize    prometheus.Histogram
	commandErrors     *prometheus.CounterVec // by command
}

// NewMetrics registers the server metrics with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "wirechat_active_sessions",
				Help: "Current number of open connections",
			},
		),
		sessionsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "wirechat_sessions_created_total",
				Help: "Total number of sessions created",
			},
		),
		sessionsDisconnected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "wirechat_sessions_disconnected_total",
				Help: "Total number of sessions disconnected",
			},
		),
		onlineUsers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "wirechat_online_users",
				Help: "Current number of logged-in accounts",
			},
		),
		framesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wirechat_frames_received_total",
				Help: "Total number of frames received from clients by command",
			},
			[]string{"command"},
		),
		framesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wirechat_frames_sent_total",
				Help: "Total number of frames sent to clients by command",
			},
			[]string{"command"},
		),
		malformed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "wirechat_malformed_frames_total",
				Help: "Connections dropped because of an undecodable frame",
			},
		),
		messagesDelivered: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "wirechat_messages_delivered_total",
				Help: "Chat messages pushed to a mutually connected peer",
			},
		),
		messagesQueued: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "wirechat_messages_queued_total",
				Help: "Chat messages held because the pairing was not mutual",
			},
		),
		queueFlushSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wirechat_queue_flush_size",
				Help:    "Number of queued messages released when a pairing became mutual",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
			},
		),
		commandErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wirechat_command_errors_total",
				Help: "Rejected commands by command",
			},
			[]string{"command"},
		),
	}
}

// RecordActiveSessions updates the active session count
func (m *Metrics) RecordActiveSessions(count int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(count))
}

// RecordSessionCreated increments the session creation counter
func (m *Metrics) RecordSessionCreated() {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
}

// RecordSessionDisconnected increments the session disconnection counter
func (m *Metrics) RecordSessionDisconnected() {
	if m == nil {
		return
	}
	m.sessionsDisconnected.Inc()
}

// RecordOnlineUsers updates the logged-in account count
func (m *Metrics) RecordOnlineUsers(count int) {
	if m == nil {
		return
	}
	m.onlineUsers.Set(float64(count))
}

// RecordFrameReceived increments the received counter for a command
func (m *Metrics) RecordFrameReceived(cmd protocol.Command) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(cmd.String()).Inc()
}

// RecordFrameSent increments the sent counter for a command
func (m *Metrics) RecordFrameSent(cmd protocol.Command) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(cmd.String()).Inc()
}

// RecordMalformedFrame counts a connection dropped for a bad frame
func (m *Metrics) RecordMalformedFrame() {
	if m == nil {
		return
	}
	m.malformed.Inc()
}

// RecordMessageDelivered counts an immediately routed chat message
func (m *Metrics) RecordMessageDelivered() {
	if m == nil {
		return
	}
	m.messagesDelivered.Inc()
}

// RecordMessageQueued counts a chat message held for later
func (m *Metrics) RecordMessageQueued() {
	if m == nil {
		return
	}
	m.messagesQueued.Inc()
}

// RecordQueueFlush records how many queued messages were released at once
func (m *Metrics) RecordQueueFlush(n int) {
	if m == nil {
		return
	}
	m.queueFlushSize.Observe(float64(n))
}

// RecordCommandError counts a rejected command
func (m *Metrics) RecordCommandError(cmd protocol.Command) {
	if m == nil {
		return
	}
	m.commandErrors.WithLabelValues(cmd.String()).Inc()
}
