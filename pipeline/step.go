package pipeline

import (
	"context"
	"time"

	"github.com/gammadia/kubeagents/cloud"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/labels"
)

// Step is one unit of work of the provisioning chain.
type Step interface {
	Name() string
	Handle(ctx context.Context, attempt *Attempt) error
}

// StepFunc adapts a function to the Step interface.
type StepFunc struct {
	StepName string
	Fn       func(ctx context.Context, attempt *Attempt) error
}

// StepFunc implements Step
var _ Step = StepFunc{}

func (s StepFunc) Name() string {
	return s.StepName
}

func (s StepFunc) Handle(ctx context.Context, attempt *Attempt) error {
	return s.Fn(ctx, attempt)
}

// Cluster is the part of the cluster API the chain needs.
type Cluster interface {
	CreatePod(ctx context.Context, namespace string, pod *corev1.Pod) (*corev1.Pod, error)
	PodPhase(ctx context.Context, namespace, name string) (corev1.PodPhase, error)
	CountPods(ctx context.Context, namespace string, selector labels.Selector) (int, error)
}

// NodeRegistry is the host scheduler's registry of build nodes.
type NodeRegistry interface {
	RegisterPendingNode(ctx context.Context, descriptor NodeDescriptor) (NodeHandle, error)
	IsAgentOnline(ctx context.Context, handle NodeHandle) (bool, error)
}

// Timing holds the polling parameters of the readiness waits.
type Timing struct {
	PollInterval       time.Duration
	PodRunningTimeout  time.Duration
	AgentOnlineTimeout time.Duration
}

func TimingFor(c cloud.Cloud) Timing {
	return Timing{
		PollInterval:       c.PollInterval,
		PodRunningTimeout:  c.PodRunningTimeout,
		AgentOnlineTimeout: c.AgentOnlineTimeout,
	}
}

type Dependencies struct {
	Cluster  Cluster
	Registry NodeRegistry
	// Capacity may be nil, in which case no instance cap is enforced.
	Capacity *Capacity
	Timing   Timing
}

// Chain is an ordered sequence of steps. Order matters: every step may only
// read what the steps before it produced.
type Chain []Step

// NewChain returns the provisioning chain, in execution order.
func NewChain(deps Dependencies) Chain {
	return Chain{
		AdmissionCheck{Cluster: deps.Cluster, Capacity: deps.Capacity},
		RegisterPendingNode{Registry: deps.Registry},
		SelectTemplate{},
		BuildPodSpec{},
		DeployPod{Cluster: deps.Cluster},
		AwaitPodRunning{Cluster: deps.Cluster, Interval: deps.Timing.PollInterval, Timeout: deps.Timing.PodRunningTimeout},
		AwaitNodeOnline{Registry: deps.Registry, Interval: deps.Timing.PollInterval, Timeout: deps.Timing.AgentOnlineTimeout},
	}
}

func (c Chain) Names() []string {
	names := make([]string, len(c))
	for i, s := range c {
		names[i] = s.Name()
	}
	return names
}
