package pipeline

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "cookflow"

// Metrics counts how far each message got and how long every step took.
type Metrics struct {
	stages   *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the pipeline collectors on reg. Registering twice on
// the same registerer reuses the collectors already present.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	stages, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "pipeline",
		Name:      "stage_total",
		Help:      "Number of readings that reached each pipeline stage.",
	}, []string{"stage"}))
	if err != nil {
		return nil, err
	}

	failures, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "pipeline",
		Name:      "failures_total",
		Help:      "Number of failed readings by step and retriability.",
	}, []string{"step", "retriable"}))
	if err != nil {
		return nil, err
	}

	duration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "pipeline",
		Name:      "step_duration_seconds",
		Help:      "Duration of each pipeline step.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"step"}))
	if err != nil {
		return nil, err
	}

	return &Metrics{stages: stages, failures: failures, duration: duration}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) stage(s Stage) {
	if m == nil {
		return
	}
	m.stages.WithLabelValues(string(s)).Inc()
}

func (m *Metrics) failure(step string, retriable bool) {
	if m == nil {
		return
	}
	label := "false"
	if retriable {
		label = "true"
	}
	m.failures.WithLabelValues(step, label).Inc()
}

func (m *Metrics) observe(step string, started time.Time) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(step).Observe(time.Since(started).Seconds())
}
