package pipeline

import (
	"context"
	"fmt"
	"time"
)

// Executor runs a chain over one attempt.
type Executor struct {
	chain Chain
}

func NewExecutor(chain Chain) *Executor {
	return &Executor{chain: chain}
}

// Execute runs every step in order and stops at the first failure. Nothing is
// rolled back: the attempt is left as the failing step left it, so the caller
// can inspect what was created.
func (e *Executor) Execute(ctx context.Context, attempt *Attempt) (node Node, err error) {
	defer attempt.releaseReservation()
	defer func() {
		result, kind := resultOf(err), ""
		if err != nil {
			kind = string(KindOf(err))
		}
		attemptsTotal.WithLabelValues(attempt.Cloud.Name, result, kind).Inc()
		attemptDuration.WithLabelValues(attempt.Cloud.Name, result).Observe(time.Since(attempt.Started).Seconds())
	}()

	attempt.Log.Debug("Starting provisioning attempt", "label", attempt.RawLabel)

	for _, step := range e.chain {
		start := time.Now()
		attempt.Log.Debug("Running step", "step", step.Name())

		stepErr := step.Handle(ctx, attempt)
		stepDuration.WithLabelValues(step.Name(), resultOf(stepErr)).Observe(time.Since(start).Seconds())

		if stepErr != nil {
			attempt.Log.Debug("Step failed", "step", step.Name(), "error", stepErr)
			return Node{}, &StepError{Step: step.Name(), Err: stepErr}
		}
	}

	if node, err = attempt.Node(); err != nil {
		return Node{}, fmt.Errorf("chain completed without producing a node: %w", err)
	}

	attempt.Log.Info("Node provisioned", "node", node.Name(), "pod", node.Pod.String(), "took", time.Since(attempt.Started).Round(time.Millisecond))
	return node, nil
}
