package load

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics are the Prometheus collectors of one load run. Each run gets
// its own registry so repeated runs in one process do not collide.
type Metrics struct {
	Registry *prometheus.Registry

	duration   *prometheus.HistogramVec
	failed     *prometheus.CounterVec
	checks     *prometheus.CounterVec
	iterations *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conform_http_req_duration_seconds",
				Help:    "Duration of load test requests (seconds).",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2, 3, 5, 10},
			},
			[]string{"flow", "step"},
		),
		failed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conform_http_req_failed_total",
				Help: "Number of failed load test requests.",
			},
			[]string{"flow", "step"},
		),
		checks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conform_checks_total",
				Help: "Number of evaluated checks by result.",
			},
			[]string{"flow", "result"},
		),
		iterations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conform_iterations_total",
				Help: "Number of completed flow iterations.",
			},
			[]string{"flow"},
		),
	}
	m.Registry.MustRegister(m.duration, m.failed, m.checks, m.iterations)
	return m
}

func (m *Metrics) observe(flow string, s Sample) {
	m.duration.WithLabelValues(flow, s.Step).Observe(s.Duration.Seconds())
	if s.Failed {
		m.failed.WithLabelValues(flow, s.Step).Inc()
	}
}

func (m *Metrics) check(flow string, pass bool) {
	result := "pass"
	if !pass {
		result = "fail"
	}
	m.checks.WithLabelValues(flow, result).Inc()
}

func (m *Metrics) iteration(flow string) {
	m.iterations.WithLabelValues(flow).Inc()
}

// Push sends the registry to a Prometheus Pushgateway.
func (m *Metrics) Push(url, job string) error {
	if err := push.New(url, job).Gatherer(m.Registry).Push(); err != nil {
		return fmt.Errorf("load: failed to push metrics: %w", err)
	}
	return nil
}
