package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gammadia/kubeagents/pipeline"
	"github.com/samber/lo"
)

var ErrUnknownNode = errors.New("unknown node")

// OnlineProbe tells whether the agent of a node is connected, for agents that
// do not announce themselves through MarkOnline.
type OnlineProbe func(ctx context.Context, handle pipeline.NodeHandle) (bool, error)

// RegisteredNode is a snapshot of a registry entry.
type RegisteredNode struct {
	pipeline.NodeDescriptor
	Online       bool
	RegisteredAt time.Time
	OnlineAt     time.Time
}

func (n RegisteredNode) Handle() pipeline.NodeHandle {
	return pipeline.NodeHandle{Name: n.Name, Cloud: n.Cloud}
}

// Registry keeps track of the build nodes known to the scheduler, from the
// moment they are announced until they are removed.
type Registry struct {
	mu     sync.RWMutex
	nodes  map[string]*RegisteredNode
	probes map[string]OnlineProbe
	log    *slog.Logger
}

// Registry implements pipeline.NodeRegistry
var _ pipeline.NodeRegistry = (*Registry)(nil)

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		nodes:  map[string]*RegisteredNode{},
		probes: map[string]OnlineProbe{},
		log:    logger.With("component", "registry"),
	}
}

// SetOnlineProbe sets the probe used for the nodes of the given cloud.
func (r *Registry) SetOnlineProbe(cloud string, probe OnlineProbe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[cloud] = probe
}

func (r *Registry) RegisterPendingNode(_ context.Context, descriptor pipeline.NodeDescriptor) (pipeline.NodeHandle, error) {
	if descriptor.Name == "" {
		return pipeline.NodeHandle{}, errors.New("node name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodes[descriptor.Name]; ok {
		return pipeline.NodeHandle{}, fmt.Errorf("node '%s' is already registered", descriptor.Name)
	}

	node := &RegisteredNode{NodeDescriptor: descriptor, RegisteredAt: time.Now()}
	r.nodes[descriptor.Name] = node
	r.log.Debug("Pending node registered", "node", descriptor.Name, "cloud", descriptor.Cloud)

	return node.Handle(), nil
}

func (r *Registry) IsAgentOnline(ctx context.Context, handle pipeline.NodeHandle) (bool, error) {
	r.mu.RLock()
	node, ok := r.nodes[handle.Name]
	online := ok && node.Online
	probe := r.probes[handle.Cloud]
	r.mu.RUnlock()

	if !ok {
		return false, fmt.Errorf("%w '%s'", ErrUnknownNode, handle.Name)
	}
	if online || probe == nil {
		return online, nil
	}

	online, err := probe(ctx, handle)
	if err != nil {
		return false, fmt.Errorf("failed to probe agent '%s': %w", handle.Name, err)
	}
	if online {
		// The node may have been removed while probing.
		if err := r.MarkOnline(handle.Name); err != nil {
			return false, err
		}
	}
	return online, nil
}

// MarkOnline records that the agent of the named node has connected.
func (r *Registry) MarkOnline(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[name]
	if !ok {
		return fmt.Errorf("%w '%s'", ErrUnknownNode, name)
	}
	if !node.Online {
		node.Online, node.OnlineAt = true, time.Now()
		r.log.Info("Agent online", "node", name, "after", node.OnlineAt.Sub(node.RegisteredAt).Round(time.Millisecond))
	}
	return nil
}

// RemoveNode forgets the named node. It reports whether the node was known.
func (r *Registry) RemoveNode(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodes[name]; !ok {
		return false
	}
	delete(r.nodes, name)
	r.log.Debug("Node removed", "node", name)
	return true
}

func (r *Registry) Get(name string) (RegisteredNode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	node, ok := r.nodes[name]
	if !ok {
		return RegisteredNode{}, false
	}
	return *node, true
}

// Nodes returns every registered node, sorted by name.
func (r *Registry) Nodes() []RegisteredNode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := lo.MapToSlice(r.nodes, func(_ string, n *RegisteredNode) RegisteredNode { return *n })
	slices.SortFunc(nodes, func(a, b RegisteredNode) int { return strings.Compare(a.Name, b.Name) })
	return nodes
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}
