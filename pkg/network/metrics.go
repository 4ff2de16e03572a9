package network

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ZentaChain/zentalk-wsnet/pkg/protocol"
)

// Metrics holds the transport client collectors. A nil *Metrics records nothing.
type Metrics struct {
	Requests        *prometheus.CounterVec
	Responses       *prometheus.CounterVec
	Timeouts        prometheus.Counter
	Orphaned        prometheus.Counter
	ProtocolErrors  prometheus.Counter
	PeerEvents      prometheus.Counter
	Pending         prometheus.Gauge
	ConnectAttempts prometheus.Counter
}

// NewMetrics registers the client collectors with reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsnet",
			Name:      "requests_total",
			Help:      "Requests written to the transport node.",
		}, []string{"action"}),
		Responses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsnet",
			Name:      "responses_total",
			Help:      "Responses matched to a pending request.",
		}, []string{"result"}),
		Timeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "wsnet",
			Name:      "request_timeouts_total",
			Help:      "Pending requests reclaimed by the liveness monitor.",
		}),
		Orphaned: f.NewCounter(prometheus.CounterOpts{
			Namespace: "wsnet",
			Name:      "orphaned_responses_total",
			Help:      "Error responses for unknown transactions.",
		}),
		ProtocolErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "wsnet",
			Name:      "protocol_errors_total",
			Help:      "Inbound frames that could not be decoded.",
		}),
		PeerEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: "wsnet",
			Name:      "peer_events_total",
			Help:      "Unsolicited frames relayed from peers.",
		}),
		Pending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "wsnet",
			Name:      "pending_requests",
			Help:      "Requests awaiting a response.",
		}),
		ConnectAttempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "wsnet",
			Name:      "connect_attempts_total",
			Help:      "Connection attempts to transport nodes.",
		}),
	}
}

func (m *Metrics) request(action protocol.Action) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(string(action)).Inc()
}

func (m *Metrics) response(failed bool) {
	if m == nil {
		return
	}
	result := "ok"
	if failed {
		result = "error"
	}
	m.Responses.WithLabelValues(result).Inc()
}

func (m *Metrics) timeouts(n int) {
	if m == nil {
		return
	}
	m.Timeouts.Add(float64(n))
}

func (m *Metrics) orphaned() {
	if m == nil {
		return
	}
	m.Orphaned.Inc()
}

func (m *Metrics) protocolError() {
	if m == nil {
		return
	}
	m.ProtocolErrors.Inc()
}

func (m *Metrics) peerEvent() {
	if m == nil {
		return
	}
	m.PeerEvents.Inc()
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.Pending.Set(float64(n))
}

func (m *Metrics) connectAttempt() {
	if m == nil {
		return
	}
	m.ConnectAttempts.Inc()
}
