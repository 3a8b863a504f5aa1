// Package metrics provides Prometheus collectors for the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Connection kinds used as label values.
const (
	KindConnect = "connect"
	KindHTTP    = "http"
	KindInvalid = "invalid"
)

// Relay directions used as label values.
const (
	DirectionUpstream   = "upstream"
	DirectionDownstream = "downstream"
)

// Metrics holds all collectors for the relay.
type Metrics struct {
	Registry *prometheus.Registry

	ConnectionsTotal  *prometheus.CounterVec
	ConnectionsActive prometheus.Gauge
	SessionErrors     *prometheus.CounterVec
	UpstreamDials     *prometheus.CounterVec
	BytesRelayed      *prometheus.CounterVec
	RequestsRelayed   prometheus.Counter
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		ConnectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linerelay_connections_total",
			Help: "Accepted client connections by routed kind.",
		}, []string{"kind"}),

		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "linerelay_connections_active",
			Help: "Client connections currently being relayed.",
		}),

		SessionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linerelay_session_errors_total",
			Help: "Sessions that ended with an error, by kind.",
		}, []string{"kind"}),

		UpstreamDials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linerelay_upstream_dials_total",
			Help: "Upstream connection attempts by result.",
		}, []string{"result"}),

		BytesRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linerelay_bytes_total",
			Help: "Bytes copied between client and upstream, by direction.",
		}, []string{"direction"}),

		RequestsRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linerelay_http_requests_total",
			Help: "HTTP requests forwarded by the HTTP relay, including pipelined ones.",
		}),
	}

	reg.MustRegister(
		m.ConnectionsTotal,
		m.ConnectionsActive,
		m.SessionErrors,
		m.UpstreamDials,
		m.BytesRelayed,
		m.RequestsRelayed,
	)

	return m
}

// DialResult records the outcome of an upstream dial.
func (m *Metrics) DialResult(err error) {
	if err != nil {
		m.UpstreamDials.WithLabelValues("error").Inc()
		return
	}
	m.UpstreamDials.WithLabelValues("ok").Inc()
}

// AddBytes records n bytes relayed in direction.
func (m *Metrics) AddBytes(direction string, n int64) {
	if n > 0 {
		m.BytesRelayed.WithLabelValues(direction).Add(float64(n))
	}
}
