package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes orchestration counters and latencies.
type Metrics struct {
	deployments *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	queueDepth  prometheus.Gauge
}

// NewMetrics builds and registers the orchestration metrics on the given
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		deployments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deployments_total",
			Help: "Deployment attempts by environment and terminal status.",
		}, []string{"environment", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deployment_failures_total",
			Help: "Deployment failures by environment and error class.",
		}, []string{"environment", "class"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deployment_duration_seconds",
			Help:    "Wall-clock duration of deployment attempts.",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		}, []string{"environment"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deployment_queue_depth",
			Help: "Deploy requests waiting for a worker.",
		}),
	}
	reg.MustRegister(m.deployments, m.failures, m.duration, m.queueDepth)
	return m
}

func (m *Metrics) ObserveDeployment(environment, status string, elapsed time.Duration) {
	m.deployments.WithLabelValues(environment, status).Inc()
	m.duration.WithLabelValues(environment).Observe(elapsed.Seconds())
}

func (m *Metrics) CountFailure(environment, class string) {
	m.failures.WithLabelValues(environment, class).Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}
