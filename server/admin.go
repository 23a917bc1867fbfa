package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	schedulerpkg "github.com/gammadia/kubeagents/scheduler"
	"github.com/gammadia/kubeagents/server/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type demandScheduler interface {
	SetDemand(label string, count int) error
	Nodes() []schedulerpkg.NodeInfo
}

// newAdminHandler serves metrics, the node list and demand updates:
//
//	GET /metrics
//	GET /nodes
//	PUT /demand?label=linux&count=3
func newAdminHandler(s demandScheduler, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /nodes", func(w http.ResponseWriter, r *http.Request) {
		nodes := s.Nodes()
		if nodes == nil {
			nodes = []schedulerpkg.NodeInfo{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(nodes); err != nil {
			log.Warn("Failed to write node list", "error", err)
		}
	})

	mux.HandleFunc("PUT /demand", func(w http.ResponseWriter, r *http.Request) {
		l, err := normalizeLabel(r.URL.Query().Get("label"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		count, err := strconv.Atoi(r.URL.Query().Get("count"))
		if err != nil || count < 0 {
			http.Error(w, "count must be a non-negative integer", http.StatusBadRequest)
			return
		}

		if err := s.SetDemand(l, count); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, schedulerpkg.ErrShuttingDown) {
				status = http.StatusServiceUnavailable
			}
			http.Error(w, err.Error(), status)
			return
		}
		log.Info("Demand updated through admin endpoint", "label", displayLabel(l), "count", count)
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}
