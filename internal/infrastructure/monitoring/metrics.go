package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for one applet session
type Metrics struct {
	registry *prometheus.Registry

	// Harness HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Conductor metrics
	ConductorCalls    *prometheus.CounterVec
	ConductorDuration *prometheus.HistogramVec
	BreakerState      *prometheus.GaugeVec

	// Bootstrap metrics
	Authorizations          *prometheus.CounterVec
	ProvisioningTransitions *prometheus.CounterVec
	ProvisioningState       prometheus.Gauge
	StageDuration           *prometheus.HistogramVec
}

// NewMetrics creates a metrics collector on its own registry, so several
// sessions (or tests) never collide on registration.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "applet_http_requests_total",
				Help: "Total number of harness HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "applet_http_request_duration_seconds",
				Help:    "Harness HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		ConductorCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "applet_conductor_calls_total",
				Help: "Total number of conductor requests by endpoint, request type and status",
			},
			[]string{"endpoint", "request", "status"},
		),
		ConductorDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "applet_conductor_call_duration_seconds",
				Help:    "Conductor request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"endpoint", "request"},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "applet_conductor_breaker_state",
				Help: "Circuit breaker state per endpoint (0 closed, 1 half-open, 2 open)",
			},
			[]string{"endpoint"},
		),

		Authorizations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "applet_signing_authorizations_total",
				Help: "Signing credential authorizations by outcome",
			},
			[]string{"outcome"},
		),
		ProvisioningTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "applet_provisioning_transitions_total",
				Help: "Neighbourhood provisioning state transitions",
			},
			[]string{"from", "to"},
		),
		ProvisioningState: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "applet_provisioning_state",
				Help: "Current provisioning state (0 unprovisioned, 1 provisioning, 2 provisioned)",
			},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "applet_provisioning_stage_duration_seconds",
				Help:    "Duration of each create/join pipeline stage",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"action", "stage", "status"},
		),
	}
}

// Registry exposes the underlying registry (for tests and custom collectors)
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus exposition handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records a harness HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordConductorCall records one request to the runtime
func (m *Metrics) RecordConductorCall(endpoint, request, status string, duration time.Duration) {
	m.ConductorCalls.WithLabelValues(endpoint, request, status).Inc()
	m.ConductorDuration.WithLabelValues(endpoint, request).Observe(duration.Seconds())
}

// SetBreakerState records the breaker state of an endpoint
func (m *Metrics) SetBreakerState(endpoint string, state int) {
	m.BreakerState.WithLabelValues(endpoint).Set(float64(state))
}

// RecordAuthorization records one authorization outcome
// ("granted", "cached", "failed")
func (m *Metrics) RecordAuthorization(outcome string) {
	m.Authorizations.WithLabelValues(outcome).Inc()
}

// RecordTransition records a provisioning state change
func (m *Metrics) RecordTransition(from, to string, level int) {
	m.ProvisioningTransitions.WithLabelValues(from, to).Inc()
	m.ProvisioningState.Set(float64(level))
}

// RecordStage records the duration of one pipeline stage
func (m *Metrics) RecordStage(action, stage, status string, duration time.Duration) {
	m.StageDuration.WithLabelValues(action, stage, status).Observe(duration.Seconds())
}
