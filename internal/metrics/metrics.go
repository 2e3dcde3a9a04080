// Package metrics holds the prometheus collectors of the dispatch engine and
// the HTTP handler that exposes them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "oneshot"
	subsystem = "server"
)

// Use buckets ranging from 100us to 10s.
var latencyBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.025, 0.1, 0.5, 2.5, 10}

// Metrics groups the server collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Connections       prometheus.Counter
	ActiveConnections prometheus.Gauge
	BindErrors        prometheus.Counter
	Requests          *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connections_total",
			Help:      "Number of accepted connections",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_connections",
			Help:      "Number of connections currently being served",
		}),
		BindErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bind_errors_total",
			Help:      "Number of connections whose transport could not be built",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "Number of requests handled, by result",
		}, []string{"result"}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "Service latency per request in seconds",
			Buckets:   latencyBuckets,
		}),
	}
	reg.MustRegister(m.Connections, m.ActiveConnections, m.BindErrors, m.Requests, m.RequestDuration)
	return m
}

func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.Connections.Inc()
	m.ActiveConnections.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

func (m *Metrics) BindFailed() {
	if m == nil {
		return
	}
	m.BindErrors.Inc()
}

// Observe records one service call.
func (m *Metrics) Observe(seconds float64, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Requests.WithLabelValues(result).Inc()
	m.RequestDuration.Observe(seconds)
}

// Handler serves /metrics from g and a /healthz probe.
func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
