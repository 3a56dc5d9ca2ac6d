// Package metrics provides Prometheus metrics for the bridge.
package metrics

import (
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"coap-bridge/internal/model"
)

// Default histogram buckets for request latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Request outcome label values (bounded cardinality).
const (
	OutcomeSuccess           = "success"
	OutcomeUnsupportedMethod = "unsupported_method"
	OutcomeMalformedPath     = "malformed_path"
	OutcomeTransportFailure  = "transport_failure"
	OutcomeError             = "error"
)

// Metrics holds all Prometheus metric collectors for the bridge.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	BackendDuration  *prometheus.HistogramVec
	BackendResponses *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coap_bridge_requests_total",
			Help: "Total inbound CoAP requests.",
		}, []string{"method", "outcome"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coap_bridge_request_duration_seconds",
			Help:    "Inbound CoAP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "outcome"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coap_bridge_requests_in_flight",
			Help: "Number of CoAP requests currently being processed.",
		}),

		BackendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coap_bridge_backend_request_duration_seconds",
			Help:    "Backend HTTP call latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method"}),

		BackendResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coap_bridge_backend_responses_total",
			Help: "Total backend HTTP responses by method and status code.",
		}, []string{"method", "status_code"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.BackendDuration,
		m.BackendResponses,
	)

	return m
}

// NormalizeMethod returns a bounded CoAP method label for Prometheus metrics.
// Codes outside the bridged verbs are mapped to "other" to prevent
// cardinality explosion.
func NormalizeMethod(code codes.Code) string {
	switch code {
	case codes.GET:
		return "GET"
	case codes.POST:
		return "POST"
	case codes.PUT:
		return "PUT"
	case codes.DELETE:
		return "DELETE"
	case model.CodePATCH:
		return "PATCH"
	}
	return "other"
}
