package main

import (
	"context"
	"errors"
	"time"

	"github.com/gammadia/kubeagents/pipeline"
	"github.com/gammadia/kubeagents/server/log"
	"github.com/samber/lo"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// cloudServicePrefix prefixes the per-cloud gRPC health services. The
// overall service ("") is serving as long as one cloud is.
const cloudServicePrefix = "kubeagents.cloud."

type feasibilityChecker interface {
	Name() string
	Feasible(ctx context.Context, label string) error
}

// refreshHealth checks every cloud once and publishes the result.
func refreshHealth(ctx context.Context, hs *health.Server, clouds []feasibilityChecker, timeout time.Duration) {
	serving := 0

	for _, c := range clouds {
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		err := c.Feasible(checkCtx, "")
		cancel()

		// A cloud at its instance cap is busy, not broken.
		healthy := err == nil || errors.Is(err, pipeline.ErrCapacityReached)
		if healthy {
			serving++
		} else {
			log.Warn("Cloud is not healthy", "cloud", c.Name(), "error", err)
		}
		hs.SetServingStatus(cloudServicePrefix+c.Name(), servingStatus(healthy))
	}

	hs.SetServingStatus("", servingStatus(serving > 0))
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	return lo.Ternary(ok, healthpb.HealthCheckResponse_SERVING, healthpb.HealthCheckResponse_NOT_SERVING)
}

// watchHealth refreshes health until ctx is done.
func watchHealth(ctx context.Context, hs *health.Server, clouds []feasibilityChecker, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		refreshHealth(ctx, hs, clouds, timeout)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
