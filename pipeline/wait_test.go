package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// deployedAttempt returns an attempt that went through every step up to and
// including DeployPod.
func deployedAttempt(t *testing.T, cluster *mockCluster, registry *mockRegistry) *Attempt {
	t.Helper()

	a := newTestAttempt(newTestCloud("wait", newTestTemplate("default", "linux")), "")
	for _, step := range NewChain(Dependencies{Cluster: cluster, Registry: registry, Timing: fastTiming})[:5] {
		require.NoError(t, step.Handle(context.Background(), a), step.Name())
	}
	return a
}

func phases(sequence ...corev1.PodPhase) func(string) (corev1.PodPhase, error) {
	var calls atomic.Int32
	return func(string) (corev1.PodPhase, error) {
		i := int(calls.Add(1)) - 1
		return sequence[min(i, len(sequence)-1)], nil
	}
}

func TestAwaitPodRunning(t *testing.T) {
	t.Run("running immediately", func(t *testing.T) {
		var calls atomic.Int32
		cluster := &mockCluster{phaseFunc: func(string) (corev1.PodPhase, error) {
			calls.Add(1)
			return corev1.PodRunning, nil
		}}
		a := deployedAttempt(t, cluster, newMockRegistry())

		step := AwaitPodRunning{Cluster: cluster, Interval: time.Hour, Timeout: time.Hour}
		require.NoError(t, step.Handle(context.Background(), a))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("pending then running", func(t *testing.T) {
		cluster := &mockCluster{phaseFunc: phases(corev1.PodPending, corev1.PodUnknown, corev1.PodPending, corev1.PodRunning)}
		a := deployedAttempt(t, cluster, newMockRegistry())

		step := AwaitPodRunning{Cluster: cluster, Interval: time.Millisecond, Timeout: time.Second}
		assert.NoError(t, step.Handle(context.Background(), a))
	})

	t.Run("timeout", func(t *testing.T) {
		cluster := &mockCluster{phaseFunc: phases(corev1.PodPending)}
		a := deployedAttempt(t, cluster, newMockRegistry())

		step := AwaitPodRunning{Cluster: cluster, Interval: time.Millisecond, Timeout: 20 * time.Millisecond}
		err := step.Handle(context.Background(), a)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTimeoutExceeded)
		assert.True(t, IsTimeout(err))

		var timeout *TimeoutError
		require.ErrorAs(t, err, &timeout)
		assert.Equal(t, string(corev1.PodPending), timeout.Last)
		assert.Equal(t, 20*time.Millisecond, timeout.After)
	})

	t.Run("timeout keeps last error", func(t *testing.T) {
		unavailable := errors.New("connection refused")
		cluster := &mockCluster{}
		a := deployedAttempt(t, cluster, newMockRegistry())
		cluster.phaseFunc = func(string) (corev1.PodPhase, error) { return "", unavailable }

		step := AwaitPodRunning{Cluster: cluster, Interval: time.Millisecond, Timeout: 20 * time.Millisecond}
		err := step.Handle(context.Background(), a)

		assert.ErrorIs(t, err, ErrTimeoutExceeded)
		assert.ErrorIs(t, err, unavailable)
	})

	t.Run("terminated", func(t *testing.T) {
		cluster := &mockCluster{phaseFunc: phases(corev1.PodPending, corev1.PodFailed)}
		a := deployedAttempt(t, cluster, newMockRegistry())

		step := AwaitPodRunning{Cluster: cluster, Interval: time.Millisecond, Timeout: time.Second}
		err := step.Handle(context.Background(), a)

		var terminated *PodTerminatedError
		require.ErrorAs(t, err, &terminated)
		assert.Equal(t, corev1.PodFailed, terminated.Phase)
		assert.Equal(t, KindTimeout, KindOf(err))
	})

	t.Run("pod deleted", func(t *testing.T) {
		cluster := &mockCluster{}
		a := deployedAttempt(t, cluster, newMockRegistry())
		cluster.phaseFunc = func(name string) (corev1.PodPhase, error) {
			return "", apierrors.NewNotFound(schema.GroupResource{Resource: "pods"}, name)
		}

		step := AwaitPodRunning{Cluster: cluster, Interval: time.Millisecond, Timeout: time.Second}
		err := step.Handle(context.Background(), a)

		assert.True(t, apierrors.IsNotFound(err))
		assert.Equal(t, KindInfrastructure, KindOf(err))
	})

	t.Run("cancelled", func(t *testing.T) {
		cluster := &mockCluster{phaseFunc: phases(corev1.PodPending)}
		a := deployedAttempt(t, cluster, newMockRegistry())

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(10*time.Millisecond, cancel)

		step := AwaitPodRunning{Cluster: cluster, Interval: time.Millisecond, Timeout: time.Hour}
		assert.ErrorIs(t, step.Handle(ctx, a), context.Canceled)
	})
}

func TestAwaitNodeOnline(t *testing.T) {
	t.Run("online after a while", func(t *testing.T) {
		var calls atomic.Int32
		registry := newMockRegistry()
		registry.onlineFunc = func(NodeHandle) (bool, error) { return calls.Add(1) >= 3, nil }
		a := deployedAttempt(t, &mockCluster{}, registry)

		step := AwaitNodeOnline{Registry: registry, Interval: time.Millisecond, Timeout: time.Second}
		require.NoError(t, step.Handle(context.Background(), a))

		node, err := a.Node()
		require.NoError(t, err)
		handle, _ := a.PendingNode()
		assert.Equal(t, handle, node.Handle)
		assert.Equal(t, "default", node.Template)
	})

	t.Run("timeout", func(t *testing.T) {
		registry := newMockRegistry()
		registry.onlineFunc = func(NodeHandle) (bool, error) { return false, nil }
		a := deployedAttempt(t, &mockCluster{}, registry)

		step := AwaitNodeOnline{Registry: registry, Interval: time.Millisecond, Timeout: 20 * time.Millisecond}
		err := step.Handle(context.Background(), a)

		assert.ErrorIs(t, err, ErrTimeoutExceeded)
		assert.False(t, a.node.IsSet())
	})

	t.Run("requires deployed pod", func(t *testing.T) {
		a := newTestAttempt(newTestCloud("early", newTestTemplate("default", "")), "")
		require.NoError(t, RegisterPendingNode{Registry: newMockRegistry()}.Handle(context.Background(), a))

		err := AwaitNodeOnline{Registry: newMockRegistry(), Interval: time.Millisecond, Timeout: time.Second}.Handle(context.Background(), a)
		assert.ErrorIs(t, err, ErrNotComputed)
	})
}

func TestDeployPodFailure(t *testing.T) {
	cluster := &mockCluster{createFunc: func(*corev1.Pod) error { return errors.New("namespace not found") }}
	a := newTestAttempt(newTestCloud("deploy", newTestTemplate("default", "")), "")

	chain := NewChain(Dependencies{Cluster: cluster, Registry: newMockRegistry(), Timing: fastTiming})
	_, err := NewExecutor(chain).Execute(context.Background(), a)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "deploy-pod", stepErr.Step)
	assert.Equal(t, KindInfrastructure, KindOf(err))
	assert.False(t, a.pod.IsSet())
}
