package cleanup

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the Prometheus counters and the sweep-duration histogram
// exposed by StateCleanupService, grounded on the per-component metrics
// struct shape of pkg/observability's Metrics (the pack's kadirpekel-hector
// repo): one Counter per sweep outcome, built against a namespace/subsystem
// pair in a private registry rather than global default-registry metrics.
type Metrics struct {
	registry *prometheus.Registry

	sweepsTotal        prometheus.Counter
	sweepErrorsTotal   prometheus.Counter
	sweepDuration      prometheus.Histogram
	agentsExpired      prometheus.Counter
	tasksExpired       prometheus.Counter
	artifactsExpired   prometheus.Counter
}

// NewMetrics builds a Metrics registered under namespace "turnengine",
// subsystem "cleanup". A nil *Metrics disables metrics entirely (the record
// methods become no-ops, mirroring the pack's nil-receiver-safe Metrics
// methods).
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.sweepsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "turnengine", Subsystem: "cleanup", Name: "sweeps_total",
		Help: "Total number of cleanup sweeps run.",
	})
	m.sweepErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "turnengine", Subsystem: "cleanup", Name: "sweep_errors_total",
		Help: "Total number of cleanup sweeps that returned an error.",
	})
	m.sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "turnengine", Subsystem: "cleanup", Name: "sweep_duration_seconds",
		Help:    "Duration of a cleanup sweep in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	m.agentsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "turnengine", Subsystem: "cleanup", Name: "agents_expired_total",
		Help: "Total number of agent states pruned for exceeding their TTL.",
	})
	m.tasksExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "turnengine", Subsystem: "cleanup", Name: "message_contexts_expired_total",
		Help: "Total number of message contexts cleared for exceeding their TTL.",
	})
	m.artifactsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "turnengine", Subsystem: "cleanup", Name: "artifact_contexts_expired_total",
		Help: "Total number of artifact contexts deleted for exceeding their TTL.",
	})

	m.registry.MustRegister(m.sweepsTotal, m.sweepErrorsTotal, m.sweepDuration,
		m.agentsExpired, m.tasksExpired, m.artifactsExpired)
	return m
}

// Registry exposes the underlying Prometheus registry so a caller can mount
// it behind an HTTP handler such as promhttp.HandlerFor; cmd/turnengine
// does not serve it.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) recordSweep(durationSeconds float64, err error) {
	if m == nil {
		return
	}
	m.sweepsTotal.Inc()
	m.sweepDuration.Observe(durationSeconds)
	if err != nil {
		m.sweepErrorsTotal.Inc()
	}
}

func (m *Metrics) recordAgentsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.agentsExpired.Add(float64(n))
}

func (m *Metrics) recordContextsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tasksExpired.Add(float64(n))
}

func (m *Metrics) recordArtifactsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.artifactsExpired.Add(float64(n))
}
