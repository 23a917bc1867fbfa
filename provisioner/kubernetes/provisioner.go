package kubernetes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gammadia/kubeagents/cloud"
	"github.com/gammadia/kubeagents/label"
	"github.com/gammadia/kubeagents/pipeline"
	"github.com/gammadia/kubeagents/scheduler"
	"github.com/samber/lo"
	"golang.org/x/sync/semaphore"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/labels"
)

var ErrShutdown = errors.New("provisioner is shut down")

// Cluster is everything the provisioner needs from a cluster.
type Cluster interface {
	pipeline.Cluster
	Probe(ctx context.Context, namespace string) (string, error)
	PodReady(ctx context.Context, namespace, name string) (bool, error)
	DeletePod(ctx context.Context, namespace, name string) error
	ListPods(ctx context.Context, namespace string, selector labels.Selector) ([]corev1.Pod, error)
}

// Registry is the node registry the provisioner reports to.
type Registry interface {
	pipeline.NodeRegistry
	RemoveNode(name string) bool
}

// Provisioner provisions build nodes as pods of one cloud.
type Provisioner struct {
	cloud    cloud.Cloud
	cluster  Cluster
	registry Registry
	executor *pipeline.Executor
	capacity *pipeline.Capacity
	pool     *semaphore.Weighted
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	shutdown bool
	wg       sync.WaitGroup
}

// Provisioner implements scheduler.Cloud
var _ scheduler.Cloud = (*Provisioner)(nil)

// Client implements Cluster
var _ Cluster = (*Client)(nil)

func New(c cloud.Cloud, cluster Cluster, registry Registry, logger *slog.Logger) *Provisioner {
	ctx, cancel := context.WithCancel(context.Background())
	capacity := pipeline.NewCapacity(c.InstanceCap)

	chain := pipeline.NewChain(pipeline.Dependencies{
		Cluster:  cluster,
		Registry: registry,
		Capacity: capacity,
		Timing:   pipeline.TimingFor(c),
	})

	return &Provisioner{
		cloud:    c,
		cluster:  cluster,
		registry: registry,
		executor: pipeline.NewExecutor(chain),
		capacity: capacity,
		pool:     semaphore.NewWeighted(int64(c.PoolSize)),
		log:      logger.With("component", "provisioner", "cloud", c.Name),

		ctx:    ctx,
		cancel: cancel,
	}
}

func (p *Provisioner) Name() string {
	return p.cloud.Name
}

func (p *Provisioner) Cloud() cloud.Cloud {
	return p.cloud
}

// Feasible tells why no node could be provisioned for rawLabel right now, or
// returns nil. It creates nothing.
func (p *Provisioner) Feasible(ctx context.Context, rawLabel string) error {
	if _, err := p.cluster.Probe(ctx, p.cloud.Namespace); err != nil {
		return fmt.Errorf("cloud '%s' is unreachable: %w", p.cloud.Name, err)
	}

	var expr label.Expression
	if rawLabel != "" {
		var err error
		if expr, err = label.Parse(rawLabel); err != nil {
			return err
		}
	}

	if len(p.cloud.Templates) == 0 {
		return pipeline.ErrNoTemplates
	}
	if !lo.SomeBy(p.cloud.Templates, func(t cloud.PodTemplate) bool { return t.Matches(expr) }) {
		return fmt.Errorf("%w for label '%s'", pipeline.ErrNoMatchingTemplate, rawLabel)
	}

	// A capped cloud must decline so that the next cloud gets asked.
	return p.capacity.Check(ctx, func(ctx context.Context) (int, error) {
		return p.cluster.CountPods(ctx, p.cloud.Namespace, pipeline.CloudSelector(p.cloud.Name))
	})
}

// CanProvision is the admission oracle: problems, including an unreachable
// cluster, are logged and turned into a negative answer.
func (p *Provisioner) CanProvision(ctx context.Context, rawLabel string) bool {
	err := p.Feasible(ctx, rawLabel)
	oracleChecksTotal.WithLabelValues(p.cloud.Name, lo.Ternary(err == nil, "accepted", "declined")).Inc()

	if err != nil {
		p.log.Warn("Cannot provision", "label", rawLabel, "reason", err)
		return false
	}
	return true
}

// Provision starts count attempts and returns at once. Each attempt runs on
// its own goroutine, bounded by the cloud's pool size, and is isolated from
// the others: a failed attempt only fails its own planned node.
func (p *Provisioner) Provision(rawLabel string, count int) []*scheduler.PlannedNode {
	planned := make([]*scheduler.PlannedNode, max(count, 0))

	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range planned {
		pn := scheduler.NewPlannedNode(p.cloud.Name, rawLabel)
		planned[i] = pn

		if p.shutdown {
			pn.Resolve(pipeline.Node{}, ErrShutdown)
			continue
		}

		p.wg.Add(1)
		go p.run(pn)
	}

	return planned
}

func (p *Provisioner) run(pn *scheduler.PlannedNode) {
	defer p.wg.Done()

	if err := p.pool.Acquire(p.ctx, 1); err != nil {
		pn.Resolve(pipeline.Node{}, fmt.Errorf("provisioning aborted: %w", err))
		return
	}
	defer p.pool.Release(1)

	pn.Resolve(p.attempt(p.ctx, pn.Label))
}

func (p *Provisioner) attempt(ctx context.Context, rawLabel string) (pipeline.Node, error) {
	a, err := pipeline.NewAttempt(p.cloud, rawLabel, p.log)
	if err != nil {
		return pipeline.Node{}, err
	}

	node, err := p.executor.Execute(ctx, a)
	if err != nil {
		a.Log.Warn("Provisioning attempt failed", "error", err, "kind", pipeline.KindOf(err))
		p.cleanup(a, err)
		return pipeline.Node{}, err
	}
	return node, nil
}

// Terminate deletes the pod backing node and forgets the node.
func (p *Provisioner) Terminate(ctx context.Context, node pipeline.Node) error {
	p.registry.RemoveNode(node.Name())

	if err := p.deletePod(ctx, node.Pod); err != nil {
		return fmt.Errorf("failed to terminate node '%s': %w", node.Name(), err)
	}
	p.log.Info("Node terminated", "node", node.Name(), "pod", node.Pod.String())
	return nil
}

// Pods lists the agent pods of the cloud, whatever their phase.
func (p *Provisioner) Pods(ctx context.Context) ([]corev1.Pod, error) {
	return p.cluster.ListPods(ctx, p.cloud.Namespace, pipeline.CloudSelector(p.cloud.Name))
}

// OnlineProbe considers an agent online as soon as its pod is ready.
func (p *Provisioner) OnlineProbe() scheduler.OnlineProbe {
	return func(ctx context.Context, handle pipeline.NodeHandle) (bool, error) {
		return p.cluster.PodReady(ctx, p.cloud.Namespace, handle.Name)
	}
}

// RenderPod renders a template the way attempts do, for inspection.
func (p *Provisioner) RenderPod(templateID, rawLabel string) (*corev1.Pod, error) {
	return RenderPod(p.cloud, templateID, rawLabel)
}

// RenderPod renders one of c's templates with placeholder attempt data.
func RenderPod(c cloud.Cloud, templateID, rawLabel string) (*corev1.Pod, error) {
	t, ok := c.Template(templateID)
	if !ok {
		return nil, fmt.Errorf("unknown template '%s' in cloud '%s'", templateID, c.Name)
	}

	return pipeline.RenderPod(t, pipeline.TemplateData{
		Name:      "render-" + t.ID,
		Namespace: c.Namespace,
		Cloud:     c.Name,
		Label:     rawLabel,
		Labels:    t.LabelSet().String(),
		Template:  t.ID,
		Attempt:   "render",
	})
}

// Shutdown cancels running attempts. Attempts that already created a pod
// still clean up after themselves.
func (p *Provisioner) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.shutdown {
		p.log.Info("Provisioner is shutting down")
		p.shutdown = true
		p.cancel()
	}
}

// Wait blocks until Shutdown has been called and every attempt has ended.
func (p *Provisioner) Wait() {
	<-p.ctx.Done()
	p.wg.Wait()
}
