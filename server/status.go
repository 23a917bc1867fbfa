package main

import (
	"errors"

	schedulerpkg "github.com/gammadia/kubeagents/scheduler"
	"github.com/gammadia/kubeagents/server/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
)

// status mirrors the scheduler event stream into metrics.
type status struct {
	demand       *prometheus.GaugeVec
	nodes        *prometheus.GaugeVec
	failures     *prometheus.CounterVec
	unmet        *prometheus.CounterVec
	terminations prometheus.Counter
}

func newStatus(reg prometheus.Registerer) (*status, error) {
	s := &status{
		demand: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "kubeagents",
			Subsystem: "scheduler",
			Name:      "demand",
			Help:      "Number of nodes demanded by label",
		}, []string{"label"}),
		nodes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "kubeagents",
			Subsystem: "scheduler",
			Name:      "nodes",
			Help:      "Number of nodes known to the scheduler by cloud and status",
		}, []string{"cloud", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kubeagents",
			Subsystem: "scheduler",
			Name:      "provisioning_failures_total",
			Help:      "Total number of nodes that failed to provision by cloud",
		}, []string{"cloud"}),
		unmet: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kubeagents",
			Subsystem: "scheduler",
			Name:      "unmet_demand_total",
			Help:      "Total number of nodes no cloud accepted to provision by label",
		}, []string{"label"}),
		terminations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kubeagents",
			Subsystem: "scheduler",
			Name:      "terminations_total",
			Help:      "Total number of terminated nodes",
		}),
	}

	for _, c := range []prometheus.Collector{s.demand, s.nodes, s.failures, s.unmet, s.terminations} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Join(errors.New("failed to register scheduler metrics"), err)
		}
	}
	return s, nil
}

func (s *status) apply(event schedulerpkg.Event) {
	switch event := event.(type) {
	case schedulerpkg.EventDemandUpdated:
		s.demand.WithLabelValues(displayLabel(event.Label)).Set(float64(event.Count))
	case schedulerpkg.EventProvisioningFailed:
		s.failures.WithLabelValues(event.Cloud).Inc()
	case schedulerpkg.EventDemandUnmet:
		s.unmet.WithLabelValues(displayLabel(event.Label)).Add(float64(event.Missing))
		log.Warn("Demand cannot be met", "label", displayLabel(event.Label), "missing", event.Missing)
	case schedulerpkg.EventNodeTerminated:
		s.terminations.Inc()
	}
}

func (s *status) observeNodes(nodes []schedulerpkg.NodeInfo) {
	s.nodes.Reset()
	for key, count := range lo.CountValuesBy(nodes, func(n schedulerpkg.NodeInfo) lo.Tuple2[string, schedulerpkg.NodeStatus] {
		return lo.T2(n.Cloud, n.Status)
	}) {
		s.nodes.WithLabelValues(key.A, string(key.B)).Set(float64(count))
	}
}

func displayLabel(l string) string {
	return lo.Ternary(l == "", anyLabel, l)
}

// listenEvents runs as a dedicated goroutine (started in main.go) until the
// subscription is closed.
func listenEvents(c <-chan schedulerpkg.Event, s *status) {
	for event := range c {
		s.apply(event)
		s.observeNodes(scheduler.Nodes())
	}
}
