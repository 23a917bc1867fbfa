package pipeline

import (
	"context"
	"testing"

	"github.com/gammadia/kubeagents/cloud"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
)

func testData() TemplateData {
	return TemplateData{
		Name:      "ci-agent-x1",
		Namespace: "agents",
		Cloud:     "ci",
		Label:     "linux && large",
		Labels:    "large linux",
		Template:  "default",
		Attempt:   "attempt-1",
	}
}

func TestRenderPod(t *testing.T) {
	pod, err := RenderPod(newTestTemplate("default", "linux large"), testData())
	require.NoError(t, err)

	assert.Equal(t, "ci-agent-x1", pod.Name)
	assert.Equal(t, "agents", pod.Namespace)
	assert.Equal(t, "Pod", pod.Kind)
	assert.Equal(t, map[string]string{
		"team":        "ci",
		LabelCloud:    "ci",
		LabelTemplate: "default",
		LabelAgent:    "ci-agent-x1",
	}, pod.Labels)
	assert.Equal(t, "attempt-1", pod.Annotations[AnnotationAttempt])
	assert.Equal(t, "linux && large", pod.Annotations[AnnotationLabel])

	require.Len(t, pod.Spec.Containers, 1)
	container := pod.Spec.Containers[0]
	assert.Equal(t, "registry.example.com/agent:ci", container.Image)
	assert.Equal(t, []string{"--name", "ci-agent-x1"}, container.Args)
	assert.Equal(t, []corev1.EnvVar{
		{Name: EnvAgentName, Value: "ci-agent-x1"},
		{Name: EnvAgentLabels, Value: "large linux"},
	}, container.Env)
}

func TestRenderPodKeepsExplicitEnv(t *testing.T) {
	template := cloud.PodTemplate{ID: "env", Pod: `
spec:
  containers:
    - name: agent
      image: agent
      env:
        - name: AGENT_NAME
          value: fixed
`}

	pod, err := RenderPod(template, testData())
	require.NoError(t, err)

	env := pod.Spec.Containers[0].Env
	assert.Equal(t, []string{"fixed", "large linux"}, lo.Map(env, func(e corev1.EnvVar, _ int) string { return e.Value }))
}

func TestRenderPodSprig(t *testing.T) {
	template := cloud.PodTemplate{ID: "sprig", Pod: `
spec:
  containers:
    - name: {{ .Template | upper | lower | quote }}
      image: agent
      args: [{{ .Labels | splitList " " | join "," | quote }}]
`}

	pod, err := RenderPod(template, testData())
	require.NoError(t, err)
	assert.Equal(t, "default", pod.Spec.Containers[0].Name)
	assert.Equal(t, []string{"large,linux"}, pod.Spec.Containers[0].Args)
}

func TestRenderPodErrors(t *testing.T) {
	tests := map[string]string{
		"unknown key":   "spec:\n  containers: [{name: a, image: '{{ .Image }}'}]\n",
		"bad template":  "spec: {{ .Name",
		"unknown field": "spec:\n  containerz: []\n",
		"not a pod":     "kind: Deployment\nspec:\n  containers: [{name: a, image: b}]\n",
		"no container":  "spec:\n  containers: []\n",
		"invalid yaml":  "spec: [",
	}

	for name, source := range tests {
		_, err := RenderPod(cloud.PodTemplate{ID: "broken", Pod: source}, testData())
		assert.Error(t, err, name)
	}
}

func TestBuildPodSpecNamesAreUnique(t *testing.T) {
	c := newTestCloud("unique", newTestTemplate("default", ""))
	registry := newMockRegistry()
	names := map[string]bool{}

	for range 200 {
		a := newTestAttempt(c, "")
		require.NoError(t, RegisterPendingNode{Registry: registry}.Handle(context.Background(), a))
		require.NoError(t, SelectTemplate{}.Handle(context.Background(), a))
		require.NoError(t, BuildPodSpec{}.Handle(context.Background(), a))

		pod, err := a.PodSpec()
		require.NoError(t, err)
		assert.False(t, names[pod.Name], pod.Name)
		names[pod.Name] = true
	}
}

func TestBuildPodSpecNeedsTemplate(t *testing.T) {
	a := newTestAttempt(newTestCloud("needs", newTestTemplate("default", "")), "")
	require.NoError(t, RegisterPendingNode{Registry: newMockRegistry()}.Handle(context.Background(), a))

	err := BuildPodSpec{}.Handle(context.Background(), a)
	assert.ErrorIs(t, err, ErrNotComputed)
	assert.EqualError(t, err, "pod template: value not computed yet")
}
