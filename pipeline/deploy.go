package pipeline

import (
	"context"
	"fmt"
)

// DeployPod creates the built pod in the cloud's namespace. It does not retry.
type DeployPod struct {
	Cluster Cluster
}

// DeployPod implements Step
var _ Step = DeployPod{}

func (DeployPod) Name() string { return "deploy-pod" }

func (s DeployPod) Handle(ctx context.Context, a *Attempt) error {
	spec, err := needs(&a.podSpec, "pod spec")
	if err != nil {
		return err
	}

	created, err := s.Cluster.CreatePod(ctx, a.Cloud.Namespace, spec)
	if err != nil {
		return fmt.Errorf("failed to create pod '%s/%s': %w", a.Cloud.Namespace, spec.Name, err)
	}

	// The pod now counts against the instance cap by itself.
	a.releaseReservation()

	ref := PodRef{Namespace: created.Namespace, Name: created.Name, UID: string(created.UID)}
	if ref.Namespace == "" {
		ref.Namespace = a.Cloud.Namespace
	}

	a.Log.Info("Pod created", "pod", ref.String())
	return a.pod.put(ref)
}
