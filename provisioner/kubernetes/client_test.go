package kubernetes

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gammadia/kubeagents/cloud"
	"github.com/gammadia/kubeagents/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

func agentPod(name, cloudName string, phase corev1.PodPhase) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "agents",
			Labels:    map[string]string{pipeline.LabelCloud: cloudName},
		},
		Status: corev1.PodStatus{Phase: phase},
	}
}

func TestClientProbe(t *testing.T) {
	ctx := context.Background()
	client := NewClientFromClientset(fake.NewClientset(&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "agents"}}))

	_, err := client.Probe(ctx, "agents")
	assert.NoError(t, err)

	_, err = client.Probe(ctx, "missing")
	assert.True(t, apierrors.IsNotFound(err))
}

func TestClientCountPods(t *testing.T) {
	client := NewClientFromClientset(fake.NewClientset(
		agentPod("a", "ci", corev1.PodRunning),
		agentPod("b", "ci", corev1.PodPending),
		agentPod("c", "ci", corev1.PodFailed),
		agentPod("d", "ci", corev1.PodSucceeded),
		agentPod("e", "other", corev1.PodRunning),
	))

	count, err := client.CountPods(context.Background(), "agents", pipeline.CloudSelector("ci"))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestClientPodReady(t *testing.T) {
	ready := agentPod("ready", "ci", corev1.PodRunning)
	ready.Status.Conditions = []corev1.PodCondition{{Type: corev1.PodReady, Status: corev1.ConditionTrue}}
	client := NewClientFromClientset(fake.NewClientset(ready, agentPod("starting", "ci", corev1.PodRunning)))
	ctx := context.Background()

	isReady, err := client.PodReady(ctx, "agents", "ready")
	require.NoError(t, err)
	assert.True(t, isReady)

	isReady, err = client.PodReady(ctx, "agents", "starting")
	require.NoError(t, err)
	assert.False(t, isReady)

	phase, err := client.PodPhase(ctx, "agents", "starting")
	require.NoError(t, err)
	assert.Equal(t, corev1.PodRunning, phase)

	_, err = client.PodPhase(ctx, "agents", "missing")
	assert.True(t, apierrors.IsNotFound(err))
}

func TestClientDeletePod(t *testing.T) {
	clientset := fake.NewClientset(agentPod("a", "ci", corev1.PodRunning))
	client := NewClientFromClientset(clientset)
	ctx := context.Background()

	require.NoError(t, client.DeletePod(ctx, "agents", "a"))
	require.NoError(t, client.DeletePod(ctx, "agents", "a"), "deleting a missing pod is not an error")

	clientset.PrependReactor("delete", "pods", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewForbidden(schema.GroupResource{Resource: "pods"}, "b", errors.New("rbac"))
	})
	assert.True(t, apierrors.IsForbidden(client.DeletePod(ctx, "agents", "b")))
}

const testKubeconfig = `apiVersion: v1
kind: Config
clusters:
  - name: one
    cluster:
      server: https://one.example.com:6443
  - name: two
    cluster:
      server: https://two.example.com:6443
contexts:
  - name: one
    context: {cluster: one, user: ci}
  - name: two
    context: {cluster: two, user: ci}
current-context: one
users:
  - name: ci
    user:
      token: secret
`

func TestRESTConfig(t *testing.T) {
	kubeconfig := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(kubeconfig, []byte(testKubeconfig), 0o600))

	tests := []struct {
		cloud    cloud.Cloud
		expected string
	}{
		{cloud.Cloud{Name: "default", Kubeconfig: kubeconfig}, "https://one.example.com:6443"},
		{cloud.Cloud{Name: "context", Kubeconfig: kubeconfig, Context: "two"}, "https://two.example.com:6443"},
		{cloud.Cloud{Name: "endpoint", Kubeconfig: kubeconfig, Endpoint: "https://lb.example.com"}, "https://lb.example.com"},
	}

	for _, tt := range tests {
		config, err := RESTConfig(tt.cloud)
		require.NoError(t, err, tt.cloud.Name)
		assert.Equal(t, tt.expected, config.Host, tt.cloud.Name)
		assert.Equal(t, "secret", config.BearerToken, tt.cloud.Name)
		assert.Equal(t, "kubeagents/"+tt.cloud.Name, config.UserAgent)
	}

	_, err := RESTConfig(cloud.Cloud{Kubeconfig: kubeconfig, Context: "missing"})
	assert.Error(t, err)

	_, err = NewClient(cloud.Cloud{Name: "ok", Kubeconfig: kubeconfig})
	assert.NoError(t, err)
}
