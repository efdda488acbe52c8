package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps Prometheus collectors for simstack runs.
type Metrics struct {
	registry               *prometheus.Registry
	startupDurationSeconds prometheus.Histogram
	probeAttemptsTotal     *prometheus.CounterVec
	scenariosTotal         *prometheus.CounterVec
	scenarioDuration       prometheus.Histogram
	servicesReadyGauge     prometheus.Gauge
}

// New initializes a Metrics registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		startupDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simstack_startup_duration_seconds",
			Help:    "Time from first launch until the whole stack was ready.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		probeAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simstack_probe_attempts_total",
			Help: "Health-check attempts by service.",
		}, []string{"service"}),
		scenariosTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simstack_scenarios_total",
			Help: "Scenario executions by outcome.",
		}, []string{"outcome"}),
		scenarioDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simstack_scenario_duration_seconds",
			Help:    "Duration of scenario executions in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		servicesReadyGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simstack_services_ready",
			Help: "Number of services currently in the ready state.",
		}),
	}

	registry.MustRegister(
		m.startupDurationSeconds,
		m.probeAttemptsTotal,
		m.scenariosTotal,
		m.scenarioDuration,
		m.servicesReadyGauge,
	)

	return m
}

// Handler returns a Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStartupDuration records how long the stack took to become ready.
func (m *Metrics) ObserveStartupDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.startupDurationSeconds.Observe(duration.Seconds())
}

// IncProbeAttempt counts one health-check attempt for a service.
func (m *Metrics) IncProbeAttempt(service string) {
	if m == nil {
		return
	}
	m.probeAttemptsTotal.WithLabelValues(service).Inc()
}

// ObserveScenario records one scenario execution.
func (m *Metrics) ObserveScenario(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.scenariosTotal.WithLabelValues(outcome).Inc()
	m.scenarioDuration.Observe(duration.Seconds())
}

// SetServicesReady sets the number of ready services.
func (m *Metrics) SetServicesReady(count int) {
	if m == nil {
		return
	}
	m.servicesReadyGauge.Set(float64(count))
}
