package scheduler

import (
	"context"

	"github.com/gammadia/kubeagents/pipeline"
)

// Cloud is a source of build nodes.
type Cloud interface {
	Name() string
	// CanProvision tells, without side effects, whether at least one more
	// node could be provisioned for label. It never fails: problems are
	// reported as a negative answer.
	CanProvision(ctx context.Context, label string) bool
	// Provision starts count independent attempts and returns immediately
	// with one planned node per attempt.
	Provision(label string, count int) []*PlannedNode
	// Terminate releases a node previously provisioned by this cloud.
	Terminate(ctx context.Context, node pipeline.Node) error
	// Shutdown stops accepting new attempts and cancels running ones.
	Shutdown()
	// Wait blocks until every attempt has ended.
	// It must not return before Shutdown has been called.
	Wait()
}
