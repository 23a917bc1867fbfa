package scheduler

import (
	"context"
	"sync"

	"github.com/gammadia/kubeagents/namegen"
	"github.com/gammadia/kubeagents/pipeline"
)

// PlannedNode is the deferred result of one provisioning attempt. It resolves
// exactly once, to a node or to the reason the attempt failed.
type PlannedNode struct {
	// ID names the planned node until it resolves to a real node.
	ID    string
	Cloud string
	Label string

	once sync.Once
	done chan struct{}
	node pipeline.Node
	err  error
}

func NewPlannedNode(cloud, label string) *PlannedNode {
	return &PlannedNode{
		ID:    "planned-" + namegen.Get().String(),
		Cloud: cloud,
		Label: label,
		done:  make(chan struct{}),
	}
}

// Resolve sets the outcome of the attempt. Only the first call has an effect.
func (p *PlannedNode) Resolve(node pipeline.Node, err error) {
	p.once.Do(func() {
		p.node, p.err = node, err
		close(p.done)
	})
}

func (p *PlannedNode) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the planned node resolves or ctx is done.
func (p *PlannedNode) Wait(ctx context.Context) (pipeline.Node, error) {
	select {
	case <-p.done:
		return p.node, p.err
	case <-ctx.Done():
		return pipeline.Node{}, ctx.Err()
	}
}
