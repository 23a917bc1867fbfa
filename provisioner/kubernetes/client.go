package kubernetes

import (
	"context"
	"fmt"

	"github.com/gammadia/kubeagents/cloud"
	"github.com/gammadia/kubeagents/pipeline"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Client is the part of the Kubernetes API the provisioner relies on.
type Client struct {
	clientset kubernetes.Interface
}

// Client implements pipeline.Cluster
var _ pipeline.Cluster = (*Client)(nil)

// RESTConfig loads the connection settings of a cloud. Without an explicit
// kubeconfig, the standard loading rules apply (KUBECONFIG, ~/.kube/config,
// in-cluster service account).
func RESTConfig(c cloud.Cloud) (*rest.Config, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if c.Kubeconfig != "" {
		loadingRules = &clientcmd.ClientConfigLoadingRules{ExplicitPath: c.Kubeconfig}
	}

	overrides := &clientcmd.ConfigOverrides{}
	if c.Context != "" {
		overrides.CurrentContext = c.Context
	}
	if c.Endpoint != "" {
		overrides.ClusterInfo.Server = c.Endpoint
	}

	config, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}
	config.UserAgent = "kubeagents/" + c.Name

	return config, nil
}

func NewClient(c cloud.Cloud) (*Client, error) {
	config, err := RESTConfig(c)
	if err != nil {
		return nil, err
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	return NewClientFromClientset(clientset), nil
}

func NewClientFromClientset(clientset kubernetes.Interface) *Client {
	return &Client{clientset: clientset}
}

// Probe checks that the API server answers and that namespace exists. It
// returns the server version.
func (c *Client) Probe(ctx context.Context, namespace string) (string, error) {
	version, err := c.clientset.Discovery().ServerVersion()
	if err != nil {
		return "", fmt.Errorf("failed to reach API server: %w", err)
	}

	if _, err := c.clientset.CoreV1().Namespaces().Get(ctx, namespace, metav1.GetOptions{}); err != nil {
		return "", fmt.Errorf("failed to get namespace '%s': %w", namespace, err)
	}

	return version.GitVersion, nil
}

func (c *Client) CreatePod(ctx context.Context, namespace string, pod *corev1.Pod) (*corev1.Pod, error) {
	return c.clientset.CoreV1().Pods(namespace).Create(ctx, pod, metav1.CreateOptions{})
}

func (c *Client) PodPhase(ctx context.Context, namespace, name string) (corev1.PodPhase, error) {
	pod, err := c.clientset.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", err
	}
	return pod.Status.Phase, nil
}

// PodReady reports whether the pod is running with its Ready condition set.
func (c *Client) PodReady(ctx context.Context, namespace, name string) (bool, error) {
	pod, err := c.clientset.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return false, err
	}
	return isPodReady(pod), nil
}

// DeletePod deletes a pod. Deleting a pod that does not exist is not an error.
func (c *Client) DeletePod(ctx context.Context, namespace, name string) error {
	err := c.clientset.CoreV1().Pods(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return err
	}
	return nil
}

func (c *Client) ListPods(ctx context.Context, namespace string, selector labels.Selector) ([]corev1.Pod, error) {
	pods, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector.String()})
	if err != nil {
		return nil, err
	}
	return pods.Items, nil
}

// CountPods counts the pods matching selector that are not in a terminal phase.
func (c *Client) CountPods(ctx context.Context, namespace string, selector labels.Selector) (int, error) {
	pods, err := c.ListPods(ctx, namespace, selector)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, pod := range pods {
		if pod.Status.Phase != corev1.PodSucceeded && pod.Status.Phase != corev1.PodFailed {
			count++
		}
	}
	return count, nil
}

func isPodReady(pod *corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodRunning {
		return false
	}

	for _, condition := range pod.Status.Conditions {
		if condition.Type == corev1.PodReady &&
			condition.Status == corev1.ConditionTrue {
			return true
		}
	}

	return false
}
