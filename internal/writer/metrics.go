package writer

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Metrics are the serializer's prometheus collectors.
type Metrics struct {
	writes          *prometheus.CounterVec
	duration        prometheus.Histogram
	queueDepth      prometheus.Gauge
	backupsRetained prometheus.Gauge
	stepFailures    *prometheus.CounterVec
}

// NewMetrics builds the collectors and registers them on reg. A collector that
// is already registered is reused, so several serializers may share a registry.
// A nil reg leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "capplan",
			Subsystem: "writer",
			Name:      "writes_total",
			Help:      "Write requests processed, by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "capplan",
			Subsystem: "writer",
			Name:      "write_duration_seconds",
			Help:      "Time spent executing one write request.",
			Buckets:   durationBuckets,
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "capplan",
			Subsystem: "writer",
			Name:      "queue_depth",
			Help:      "Write requests waiting for the serializer.",
		}),
		backupsRetained: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "capplan",
			Subsystem: "writer",
			Name:      "backups_retained",
			Help:      "Backup files present after the last prune.",
		}),
		stepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "capplan",
			Subsystem: "writer",
			Name:      "best_effort_failures_total",
			Help:      "Failures of best-effort write steps, by step.",
		}, []string{"step"}),
	}
	if reg == nil {
		return m
	}
	m.writes = register(reg, m.writes)
	m.duration = register(reg, m.duration)
	m.queueDepth = register(reg, m.queueDepth)
	m.backupsRetained = register(reg, m.backupsRetained)
	m.stepFailures = register(reg, m.stepFailures)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}
