package kubernetes

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	oracleChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kubeagents",
			Subsystem: "provisioner",
			Name:      "oracle_checks_total",
			Help:      "Total number of admission checks by cloud and answer",
		},
		[]string{"cloud", "answer"},
	)

	cleanupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kubeagents",
			Subsystem: "provisioner",
			Name:      "cleanups_total",
			Help:      "Total number of pods left by failed attempts, by cloud and outcome",
		},
		[]string{"cloud", "outcome"},
	)
)

// RegisterMetrics registers the provisioner collectors. Collectors already
// registered with reg are left untouched.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{oracleChecksTotal, cleanupsTotal} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	return nil
}
