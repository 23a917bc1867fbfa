// Package local simulates a Kubernetes cluster in memory. Pods go through
// Pending, then Running, then become ready, after configurable delays. It
// backs the playground and the server's local mode.
package local

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gammadia/kubeagents/provisioner/kubernetes"
	"github.com/google/uuid"
	"github.com/samber/lo"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/validation"
)

const Version = "v0.0.0-local"

var podsResource = schema.GroupResource{Resource: "pods"}

type simulatedPod struct {
	pod     *corev1.Pod
	created time.Time
	fails   bool
}

type Cluster struct {
	config Config
	log    *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	pods map[string]*simulatedPod
}

// Cluster implements kubernetes.Cluster
var _ kubernetes.Cluster = (*Cluster)(nil)

func New(config Config) *Cluster {
	logger := lo.Ternary(config.Logger != nil, config.Logger, slog.Default())

	return &Cluster{
		config: config,
		log:    logger.With("component", "local-cluster"),
		now:    time.Now,
		pods:   map[string]*simulatedPod{},
	}
}

func key(namespace, name string) string {
	return namespace + "/" + name
}

func (c *Cluster) Probe(_ context.Context, namespace string) (string, error) {
	if len(c.config.Namespaces) > 0 && !slices.Contains(c.config.Namespaces, namespace) {
		return "", fmt.Errorf("failed to get namespace '%s': %w", namespace, apierrors.NewNotFound(schema.GroupResource{Resource: "namespaces"}, namespace))
	}
	return Version, nil
}

func (c *Cluster) CreatePod(ctx context.Context, namespace string, pod *corev1.Pod) (*corev1.Pod, error) {
	if _, err := c.Probe(ctx, namespace); err != nil {
		return nil, err
	}
	if errs := validation.IsDNS1123Subdomain(pod.Name); len(errs) > 0 {
		return nil, apierrors.NewBadRequest(fmt.Sprintf("invalid pod name '%s': %s", pod.Name, strings.Join(errs, ", ")))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(namespace, pod.Name)
	if _, ok := c.pods[k]; ok {
		return nil, apierrors.NewAlreadyExists(podsResource, pod.Name)
	}

	created := pod.DeepCopy()
	created.Namespace = namespace
	created.UID = types.UID(uuid.NewString())
	created.CreationTimestamp = metav1.NewTime(c.now())
	created.Status.Phase = corev1.PodPending

	c.pods[k] = &simulatedPod{
		pod:     created,
		created: c.now(),
		fails:   c.config.FailPod != nil && c.config.FailPod(created),
	}
	c.log.Debug("Pod created", "pod", k)

	return created.DeepCopy(), nil
}

// refresh moves the pod along its lifecycle according to the elapsed time.
func (c *Cluster) refresh(sp *simulatedPod) {
	elapsed := c.now().Sub(sp.created)

	switch {
	case elapsed < c.config.StartupDelay:
		sp.pod.Status.Phase = corev1.PodPending
	case sp.fails:
		sp.pod.Status.Phase = corev1.PodFailed
		sp.pod.Status.Reason = "Simulated"
	default:
		sp.pod.Status.Phase = corev1.PodRunning
		if elapsed >= c.config.StartupDelay+c.config.ReadyDelay {
			sp.pod.Status.Conditions = []corev1.PodCondition{{Type: corev1.PodReady, Status: corev1.ConditionTrue}}
		}
	}
}

func (c *Cluster) get(namespace, name string) (*corev1.Pod, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sp, ok := c.pods[key(namespace, name)]
	if !ok {
		return nil, apierrors.NewNotFound(podsResource, name)
	}
	c.refresh(sp)
	return sp.pod.DeepCopy(), nil
}

func (c *Cluster) PodPhase(_ context.Context, namespace, name string) (corev1.PodPhase, error) {
	pod, err := c.get(namespace, name)
	if err != nil {
		return "", err
	}
	return pod.Status.Phase, nil
}

func (c *Cluster) PodReady(_ context.Context, namespace, name string) (bool, error) {
	pod, err := c.get(namespace, name)
	if err != nil {
		return false, err
	}
	return lo.ContainsBy(pod.Status.Conditions, func(cond corev1.PodCondition) bool {
		return cond.Type == corev1.PodReady && cond.Status == corev1.ConditionTrue
	}), nil
}

func (c *Cluster) DeletePod(_ context.Context, namespace, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.pods, key(namespace, name))
	c.log.Debug("Pod deleted", "pod", key(namespace, name))
	return nil
}

// ListPods returns the pods matching selector, sorted by name.
func (c *Cluster) ListPods(_ context.Context, namespace string, selector labels.Selector) ([]corev1.Pod, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var pods []corev1.Pod
	for _, sp := range c.pods {
		if sp.pod.Namespace != namespace || !selector.Matches(labels.Set(sp.pod.Labels)) {
			continue
		}
		c.refresh(sp)
		pods = append(pods, *sp.pod.DeepCopy())
	}
	slices.SortFunc(pods, func(a, b corev1.Pod) int { return strings.Compare(a.Name, b.Name) })
	return pods, nil
}

func (c *Cluster) CountPods(ctx context.Context, namespace string, selector labels.Selector) (int, error) {
	pods, err := c.ListPods(ctx, namespace, selector)
	if err != nil {
		return 0, err
	}
	return lo.CountBy(pods, func(pod corev1.Pod) bool {
		return pod.Status.Phase != corev1.PodSucceeded && pod.Status.Phase != corev1.PodFailed
	}), nil
}
