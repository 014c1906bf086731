package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder is the abstract observability sink a Session reports
// into (C10). A nil recorder is replaced by NoOpMetrics, mirroring the
// Logger pattern so every caller can omit it safely.
type MetricsRecorder interface {
	SessionStarted()
	SessionEnded()
	ObserveLag(stage string, seconds float64)
	WorkerError(stage string)
}

// NoOpMetrics discards everything. It is the default when a caller does
// not care to wire Prometheus.
type NoOpMetrics struct{}

func (NoOpMetrics) SessionStarted()                      {}
func (NoOpMetrics) SessionEnded()                         {}
func (NoOpMetrics) ObserveLag(stage string, seconds float64) {}
func (NoOpMetrics) WorkerError(stage string)              {}

// PrometheusMetrics is the production MetricsRecorder, grounded on the
// client_golang usage pulled into the pack for exactly this kind of
// per-stage lag/error instrumentation.
type PrometheusMetrics struct {
	activeSessions prometheus.Gauge
	lag            *prometheus.GaugeVec
	workerErrors   *prometheus.CounterVec
}

// NewPrometheusMetrics registers its collectors against reg and returns a
// ready-to-use MetricsRecorder. Pass prometheus.DefaultRegisterer to use
// the global registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "engine",
			Name:      "active_sessions",
			Help:      "Number of streaming sessions currently open.",
		}),
		lag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "engine",
			Name:      "lag_seconds",
			Help:      "Processing lag behind stream time, by stage.",
		}, []string{"stage"}),
		workerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "engine",
			Name:      "worker_errors_total",
			Help:      "Count of recovered per-item worker errors, by stage.",
		}, []string{"stage"}),
	}

	reg.MustRegister(m.activeSessions, m.lag, m.workerErrors)
	return m
}

func (m *PrometheusMetrics) SessionStarted() { m.activeSessions.Inc() }
func (m *PrometheusMetrics) SessionEnded()   { m.activeSessions.Dec() }

func (m *PrometheusMetrics) ObserveLag(stage string, seconds float64) {
	m.lag.WithLabelValues(stage).Set(seconds)
}

func (m *PrometheusMetrics) WorkerError(stage string) {
	m.workerErrors.WithLabelValues(stage).Inc()
}
