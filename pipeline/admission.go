package pipeline

import (
	"context"
	"fmt"

	"github.com/gammadia/kubeagents/cloud"
	"github.com/samber/lo"
	"k8s.io/apimachinery/pkg/labels"
)

// AdmissionCheck re-validates, inside the attempt, that provisioning is still
// permitted. It runs before anything is created, so failing here leaves
// nothing to clean up.
type AdmissionCheck struct {
	Cluster Cluster
	// Capacity is nil when the cloud has no instance cap to enforce.
	Capacity *Capacity
}

// AdmissionCheck implements Step
var _ Step = AdmissionCheck{}

func (AdmissionCheck) Name() string { return "admission-check" }

func (s AdmissionCheck) Handle(ctx context.Context, a *Attempt) error {
	if len(a.Templates) == 0 {
		return ErrNoTemplates
	}
	if !lo.SomeBy(a.Templates, func(t cloud.PodTemplate) bool { return t.Matches(a.Label) }) {
		return fmt.Errorf("%w for label '%s'", ErrNoMatchingTemplate, a.RawLabel)
	}

	if s.Capacity == nil {
		return nil
	}

	release, err := s.Capacity.Admit(ctx, func(ctx context.Context) (int, error) {
		return s.Cluster.CountPods(ctx, a.Cloud.Namespace, CloudSelector(a.Cloud.Name))
	})
	if err != nil {
		return err
	}
	a.hold(release)
	return nil
}

// CloudSelector selects every agent pod created for the named cloud.
func CloudSelector(cloudName string) labels.Selector {
	return labels.SelectorFromSet(labels.Set{LabelCloud: cloudName})
}
