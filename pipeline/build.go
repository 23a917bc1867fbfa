package pipeline

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/gammadia/kubeagents/cloud"
	sprig "github.com/go-task/slim-sprig/v3"
	"github.com/samber/lo"
	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/yaml"
)

// Labels and annotations put on every agent pod.
const (
	LabelCloud    = "kubeagents.gammadia.io/cloud"
	LabelTemplate = "kubeagents.gammadia.io/template"
	LabelAgent    = "kubeagents.gammadia.io/agent"

	AnnotationAttempt = "kubeagents.gammadia.io/attempt"
	AnnotationLabel   = "kubeagents.gammadia.io/label"
)

// Environment variables injected into every container that does not set
// them itself.
const (
	EnvAgentName   = "AGENT_NAME"
	EnvAgentLabels = "AGENT_LABELS"
)

// BuildPodSpec renders the selected template into the pod to deploy.
type BuildPodSpec struct{}

// BuildPodSpec implements Step
var _ Step = BuildPodSpec{}

func (BuildPodSpec) Name() string { return "build-pod-spec" }

func (BuildPodSpec) Handle(_ context.Context, a *Attempt) error {
	handle, err := needs(&a.pendingNode, "pending node")
	if err != nil {
		return err
	}
	t, err := needs(&a.template, "pod template")
	if err != nil {
		return err
	}

	pod, err := RenderPod(t, TemplateData{
		Name:      handle.Name,
		Namespace: a.Cloud.Namespace,
		Cloud:     a.Cloud.Name,
		Label:     a.RawLabel,
		Labels:    t.LabelSet().String(),
		Template:  t.ID,
		Attempt:   a.ID,
	})
	if err != nil {
		return err
	}

	return a.podSpec.put(pod)
}

// TemplateData is what pod templates can refer to, e.g. {{ .Name }}.
type TemplateData struct {
	Name      string
	Namespace string
	Cloud     string
	// Label is the requested label expression, empty when unconstrained.
	Label string
	// Labels are the labels the agent advertises, space separated.
	Labels   string
	Template string
	Attempt  string
}

// RenderPod evaluates the template's pod document and decodes it. The name,
// namespace and bookkeeping labels of the result always come from data,
// whatever the document says, so that two renders never yield the same pod.
func RenderPod(t cloud.PodTemplate, data TemplateData) (*corev1.Pod, error) {
	source, err := evaluateTemplate(t, data)
	if err != nil {
		return nil, err
	}

	pod := &corev1.Pod{}
	if err := yaml.UnmarshalStrict([]byte(source), pod); err != nil {
		return nil, fmt.Errorf("failed to decode pod of template '%s': %w", t.ID, err)
	}
	if pod.Kind != "" && pod.Kind != "Pod" {
		return nil, fmt.Errorf("template '%s' must describe a Pod, got %s", t.ID, pod.Kind)
	}
	if len(pod.Spec.Containers) == 0 {
		return nil, fmt.Errorf("pod of template '%s' has no container", t.ID)
	}

	pod.Kind, pod.APIVersion = "Pod", "v1"
	pod.Name = data.Name
	pod.GenerateName = ""
	pod.Namespace = data.Namespace

	pod.Labels = lo.Assign(pod.Labels, map[string]string{
		LabelCloud:    data.Cloud,
		LabelTemplate: data.Template,
		LabelAgent:    data.Name,
	})
	pod.Annotations = lo.Assign(pod.Annotations, map[string]string{
		AnnotationAttempt: data.Attempt,
	})
	if data.Label != "" {
		pod.Annotations[AnnotationLabel] = data.Label
	}

	for i := range pod.Spec.Containers {
		injectEnv(&pod.Spec.Containers[i], EnvAgentName, data.Name)
		injectEnv(&pod.Spec.Containers[i], EnvAgentLabels, data.Labels)
	}

	return pod, nil
}

func evaluateTemplate(t cloud.PodTemplate, data TemplateData) (string, error) {
	tmpl, err := template.New(t.ID).
		Option("missingkey=error").
		Funcs(sprig.TxtFuncMap()).
		Parse(t.Pod)
	if err != nil {
		return "", fmt.Errorf("failed to parse pod template '%s': %w", t.ID, err)
	}

	var output strings.Builder
	if err := tmpl.Execute(&output, data); err != nil {
		return "", fmt.Errorf("failed to execute pod template '%s': %w", t.ID, err)
	}

	return output.String(), nil
}

func injectEnv(container *corev1.Container, name, value string) {
	if lo.ContainsBy(container.Env, func(env corev1.EnvVar) bool { return env.Name == name }) {
		return
	}
	container.Env = append(container.Env, corev1.EnvVar{Name: name, Value: value})
}
