// Package metrics provides Prometheus instrumentation for the proxy.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the proxy's collectors.
type Metrics struct {
	// Listener
	ConnectionsAccepted prometheus.Counter
	AcceptErrors        prometheus.Counter
	InFlight            prometheus.Gauge

	// Handler
	Requests          *prometheus.CounterVec
	FetchDuration     *prometheus.HistogramVec
	ResponseSize      *prometheus.HistogramVec
	FramingConflicts  prometheus.Counter
	RecoveredPanics   prometheus.Counter
	ClientWriteErrors prometheus.Counter
}

// New registers the proxy's collectors with reg under namespace.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "fetchproxy"
	}
	f := promauto.With(reg)

	return &Metrics{
		ConnectionsAccepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Client connections accepted by the listener",
		}),
		AcceptErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accept_errors_total",
			Help:      "Accept calls that failed",
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "handlers_in_flight",
			Help:      "Connection handlers currently running",
		}),
		Requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Requests handled, by protocol and outcome",
			},
			[]string{"protocol", "outcome"},
		),
		FetchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Time spent waiting on the upstream adapter",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"protocol"},
		),
		ResponseSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "response_body_bytes",
				Help:      "Size of response bodies relayed to clients",
				Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
			},
			[]string{"protocol"},
		),
		FramingConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "framing_conflicts_total",
			Help:      "Response bodies containing a line equal to the frame terminator",
		}),
		RecoveredPanics: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovered_panics_total",
			Help:      "Panics recovered inside connection handlers",
		}),
		ClientWriteErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_write_errors_total",
			Help:      "Responses that could not be written back to the client",
		}),
	}
}

// NewRegistry returns a registry carrying the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
