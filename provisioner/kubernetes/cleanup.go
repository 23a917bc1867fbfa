package kubernetes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alessio/shellescape"
	"github.com/gammadia/kubeagents/cloud"
	"github.com/gammadia/kubeagents/pipeline"
	"github.com/gammadia/kubeagents/provisioner/internal"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

const (
	cleanupTimeout  = time.Minute
	cleanupAttempts = 3
)

// cleanup applies the cloud's cleanup policy to an attempt that failed with
// cause. The pending registry entry is always removed; the pod, if one was
// created, is deleted or kept for inspection.
func (p *Provisioner) cleanup(a *pipeline.Attempt, cause error) {
	if handle, err := a.PendingNode(); err == nil {
		p.registry.RemoveNode(handle.Name)
	}

	ref, err := a.Pod()
	if err != nil {
		var ok bool
		if ref, ok = p.interruptedCreate(a, cause); !ok {
			// Nothing was created.
			return
		}
	}

	if p.cloud.Cleanup == cloud.CleanupKeep {
		a.Log.Warn("Keeping pod of failed attempt", "pod", ref.String(), "inspect", kubectlHint(p.cloud, ref))
		cleanupsTotal.WithLabelValues(p.cloud.Name, "kept").Inc()
		return
	}

	// Runs even when the attempt was aborted by a shutdown.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), cleanupTimeout)
	defer cancel()

	if err := p.deletePod(ctx, ref); err != nil {
		a.Log.Error("Failed to delete pod of failed attempt", "pod", ref.String(), "error", err, "inspect", kubectlHint(p.cloud, ref))
		cleanupsTotal.WithLabelValues(p.cloud.Name, "failed").Inc()
		return
	}

	a.Log.Info("Deleted pod of failed attempt", "pod", ref.String())
	cleanupsTotal.WithLabelValues(p.cloud.Name, "deleted").Inc()
}

// interruptedCreate returns the pod an attempt may have created without
// knowing it: a create cut short by a cancelled or expired context can still
// have reached the API server. Such a pod is only ever deleted, never kept.
func (p *Provisioner) interruptedCreate(a *pipeline.Attempt, cause error) (pipeline.PodRef, bool) {
	if p.cloud.Cleanup != cloud.CleanupDelete {
		return pipeline.PodRef{}, false
	}
	if !errors.Is(cause, context.Canceled) && !errors.Is(cause, context.DeadlineExceeded) {
		return pipeline.PodRef{}, false
	}
	spec, err := a.PodSpec()
	if err != nil {
		return pipeline.PodRef{}, false
	}
	return pipeline.PodRef{Namespace: a.Cloud.Namespace, Name: spec.Name}, true
}

func (p *Provisioner) deletePod(ctx context.Context, ref pipeline.PodRef) error {
	return internal.RetryWithContext(ctx, cleanupAttempts, func() error {
		err := p.cluster.DeletePod(ctx, ref.Namespace, ref.Name)
		switch {
		case err == nil:
			return nil
		case apierrors.IsForbidden(err) || apierrors.IsUnauthorized(err):
			return internal.Permanent(fmt.Errorf("failed to delete pod '%s': %w", ref, err))
		default:
			return fmt.Errorf("failed to delete pod '%s': %w", ref, err)
		}
	})
}

// kubectlHint returns a command an operator can paste to inspect the pod.
func kubectlHint(c cloud.Cloud, ref pipeline.PodRef) string {
	args := []string{"kubectl"}
	if c.Kubeconfig != "" {
		args = append(args, "--kubeconfig", c.Kubeconfig)
	}
	if c.Context != "" {
		args = append(args, "--context", c.Context)
	}
	args = append(args, "--namespace", ref.Namespace, "describe", "pod", ref.Name)

	return shellescape.QuoteCommand(args)
}
