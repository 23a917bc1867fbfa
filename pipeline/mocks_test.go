package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gammadia/kubeagents/cloud"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/types"
)

// --- Mock cluster ---

type mockCluster struct {
	createFunc func(pod *corev1.Pod) error
	phaseFunc  func(name string) (corev1.PodPhase, error)
	countFunc  func() (int, error)

	mu      sync.Mutex
	created []*corev1.Pod
}

func (c *mockCluster) CreatePod(_ context.Context, namespace string, pod *corev1.Pod) (*corev1.Pod, error) {
	if c.createFunc != nil {
		if err := c.createFunc(pod); err != nil {
			return nil, err
		}
	}

	created := pod.DeepCopy()
	created.Namespace = namespace
	created.UID = types.UID("uid-" + pod.Name)

	c.mu.Lock()
	c.created = append(c.created, created)
	c.mu.Unlock()
	return created, nil
}

func (c *mockCluster) PodPhase(_ context.Context, _, name string) (corev1.PodPhase, error) {
	if c.phaseFunc != nil {
		return c.phaseFunc(name)
	}
	return corev1.PodRunning, nil
}

func (c *mockCluster) CountPods(_ context.Context, _ string, _ labels.Selector) (int, error) {
	if c.countFunc != nil {
		return c.countFunc()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.created), nil
}

func (c *mockCluster) getCreated() []*corev1.Pod {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*corev1.Pod(nil), c.created...)
}

// --- Mock registry ---

type mockRegistry struct {
	registerErr error
	onlineFunc  func(handle NodeHandle) (bool, error)

	mu      sync.Mutex
	pending map[string]NodeDescriptor
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{pending: map[string]NodeDescriptor{}}
}

func (r *mockRegistry) RegisterPendingNode(_ context.Context, d NodeDescriptor) (NodeHandle, error) {
	if r.registerErr != nil {
		return NodeHandle{}, r.registerErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[d.Name]; ok {
		return NodeHandle{}, fmt.Errorf("node '%s' already registered", d.Name)
	}
	r.pending[d.Name] = d
	return NodeHandle{Name: d.Name, Cloud: d.Cloud}, nil
}

func (r *mockRegistry) IsAgentOnline(_ context.Context, handle NodeHandle) (bool, error) {
	if r.onlineFunc != nil {
		return r.onlineFunc(handle)
	}
	return true, nil
}

func (r *mockRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// --- Helpers ---

const testPod = `apiVersion: v1
kind: Pod
metadata:
  name: overridden
  labels:
    team: ci
spec:
  containers:
    - name: agent
      image: "registry.example.com/agent:{{ .Cloud }}"
      args: ["--name", "{{ .Name }}"]
`

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCloud(name string, templates ...cloud.PodTemplate) cloud.Cloud {
	c := cloud.Cloud{Name: name, Templates: templates}
	c.ApplyDefaults()
	return c
}

func newTestTemplate(id, labels string) cloud.PodTemplate {
	return cloud.PodTemplate{ID: id, Description: "template " + id, Labels: labels, Pod: testPod}
}

func newTestAttempt(c cloud.Cloud, rawLabel string) *Attempt {
	a, err := NewAttempt(c, rawLabel, silentLogger())
	if err != nil {
		panic(err)
	}
	return a
}

var fastTiming = Timing{
	PollInterval:       time.Millisecond,
	PodRunningTimeout:  50 * time.Millisecond,
	AgentOnlineTimeout: 50 * time.Millisecond,
}
