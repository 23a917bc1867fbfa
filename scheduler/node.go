package scheduler

import (
	"log/slog"

	"github.com/gammadia/kubeagents/pipeline"
)

type NodeStatus string

const (
	NodeStatusProvisioning NodeStatus = "provisioning"
	NodeStatusOnline       NodeStatus = "online"
	NodeStatusTerminating  NodeStatus = "terminating"
	NodeStatusFailed       NodeStatus = "failed"
)

// nodeState is only ever touched from the scheduler goroutine.
type nodeState struct {
	planned *PlannedNode
	cloud   Cloud
	label   string
	node    pipeline.Node
	status  NodeStatus
	log     *slog.Logger
}

func (ns *nodeState) name() string {
	if ns.node.Name() != "" {
		return ns.node.Name()
	}
	return ns.planned.ID
}
