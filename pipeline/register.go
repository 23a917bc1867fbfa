package pipeline

import (
	"context"
	"fmt"

	"github.com/gammadia/kubeagents/namegen"
)

// RegisterPendingNode announces the node to the host scheduler's registry
// under a freshly generated name. The same name is used for the pod.
type RegisterPendingNode struct {
	Registry NodeRegistry
}

// RegisterPendingNode implements Step
var _ Step = RegisterPendingNode{}

func (RegisterPendingNode) Name() string { return "register-pending-node" }

func (s RegisterPendingNode) Handle(ctx context.Context, a *Attempt) error {
	descriptor := NodeDescriptor{
		Name:      namegen.PodName(a.Cloud.Name),
		Cloud:     a.Cloud.Name,
		Namespace: a.Cloud.Namespace,
		Label:     a.RawLabel,
		Attempt:   a.ID,
	}

	handle, err := s.Registry.RegisterPendingNode(ctx, descriptor)
	if err != nil {
		return fmt.Errorf("failed to register pending node '%s': %w", descriptor.Name, err)
	}

	a.Log = a.Log.With("node", handle.Name)
	return a.pendingNode.put(handle)
}
