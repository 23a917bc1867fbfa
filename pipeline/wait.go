package pipeline

import (
	"context"
	"errors"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// AwaitPodRunning polls the deployed pod until its phase is Running.
//
// Pending and Unknown keep the wait going, Succeeded and Failed end it. A pod
// that disappeared is an error of its own; any other error reading the phase
// is considered transient and only reported if the wait times out.
type AwaitPodRunning struct {
	Cluster  Cluster
	Interval time.Duration
	Timeout  time.Duration
}

// AwaitPodRunning implements Step
var _ Step = AwaitPodRunning{}

func (AwaitPodRunning) Name() string { return "await-pod-running" }

func (s AwaitPodRunning) Handle(ctx context.Context, a *Attempt) error {
	ref, err := needs(&a.pod, "deployed pod")
	if err != nil {
		return err
	}

	var (
		last    corev1.PodPhase
		lastErr error
	)
	err = poll(ctx, s.Interval, s.Timeout, func(ctx context.Context) (bool, error) {
		phase, err := s.Cluster.PodPhase(ctx, ref.Namespace, ref.Name)
		if err != nil {
			if apierrors.IsNotFound(err) {
				return false, err
			}
			lastErr = err
			return false, nil
		}
		lastErr = nil

		if phase != last {
			a.Log.Debug("Pod phase changed", "pod", ref.String(), "phase", phase)
			last = phase
		}

		switch phase {
		case corev1.PodRunning:
			return true, nil
		case corev1.PodSucceeded, corev1.PodFailed:
			return false, &PodTerminatedError{Pod: ref, Phase: phase}
		default:
			return false, nil
		}
	})

	if errors.Is(err, errPollTimeout) {
		return &TimeoutError{Waiting: "pod '" + ref.String() + "' to be running", After: s.Timeout, Last: string(last), Err: lastErr}
	}
	return err
}

// AwaitNodeOnline polls the node registry until the agent is connected, then
// finalizes the attempt's node.
type AwaitNodeOnline struct {
	Registry NodeRegistry
	Interval time.Duration
	Timeout  time.Duration
}

// AwaitNodeOnline implements Step
var _ Step = AwaitNodeOnline{}

func (AwaitNodeOnline) Name() string { return "await-node-online" }

func (s AwaitNodeOnline) Handle(ctx context.Context, a *Attempt) error {
	handle, err := needs(&a.pendingNode, "pending node")
	if err != nil {
		return err
	}
	ref, err := needs(&a.pod, "deployed pod")
	if err != nil {
		return err
	}
	t, err := needs(&a.template, "pod template")
	if err != nil {
		return err
	}

	var lastErr error
	err = poll(ctx, s.Interval, s.Timeout, func(ctx context.Context) (bool, error) {
		online, err := s.Registry.IsAgentOnline(ctx, handle)
		lastErr = err
		return err == nil && online, nil
	})

	if errors.Is(err, errPollTimeout) {
		return &TimeoutError{Waiting: "agent '" + handle.Name + "' to come online", After: s.Timeout, Last: "connecting", Err: lastErr}
	} else if err != nil {
		return err
	}

	return a.node.put(Node{
		Handle:   handle,
		Pod:      ref,
		Template: t.ID,
		Labels:   t.LabelSet(),
	})
}
