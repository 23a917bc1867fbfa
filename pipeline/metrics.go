package pipeline

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kubeagents",
			Subsystem: "pipeline",
			Name:      "attempts_total",
			Help:      "Total number of provisioning attempts by cloud, result and failure kind",
		},
		[]string{"cloud", "result", "kind"},
	)

	attemptDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kubeagents",
			Subsystem: "pipeline",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of provisioning attempts in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~8.5min
		},
		[]string{"cloud", "result"},
	)

	stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kubeagents",
			Subsystem: "pipeline",
			Name:      "step_duration_seconds",
			Help:      "Duration of individual pipeline steps in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 9), // 10ms to ~11min
		},
		[]string{"step", "result"},
	)
)

// RegisterMetrics registers the pipeline collectors. Collectors already
// registered with reg are left untouched.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{attemptsTotal, attemptDuration, stepDuration} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	return nil
}

func resultOf(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
