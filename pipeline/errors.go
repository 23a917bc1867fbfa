package pipeline

import (
	"errors"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
)

// Kind classifies why an attempt failed.
type Kind string

const (
	// KindInfrastructure covers connectivity, authorization and rejected
	// requests: the cluster refused to do what was asked.
	KindInfrastructure Kind = "infrastructure"
	// KindPolicy covers demand that cannot be served right now, such as no
	// matching template or a reached instance cap.
	KindPolicy Kind = "policy"
	// KindTimeout covers pods the cluster accepted that never became healthy,
	// either because a wait timed out or because the pod terminated.
	KindTimeout Kind = "timeout"
)

var (
	ErrNoTemplates        = errors.New("no pod template configured")
	ErrNoMatchingTemplate = errors.New("no matching pod template")
	ErrCapacityReached    = errors.New("instance cap reached")
	ErrTimeoutExceeded    = errors.New("timeout exceeded")
)

// StepError wraps the failure of a single step.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step '%s' failed: %s", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// TimeoutError is returned by the readiness waits.
type TimeoutError struct {
	// Waiting describes the awaited condition, e.g. "pod to be running".
	Waiting string
	After   time.Duration
	// Last is the last observed state, if any.
	Last string
	// Err is the last error seen while polling, if any.
	Err error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %s waiting for %s", e.After, e.Waiting)
	if e.Last != "" {
		msg += fmt.Sprintf(" (last state: %s)", e.Last)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %s", e.Err)
	}
	return msg
}

func (e *TimeoutError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTimeoutExceeded}
	}
	return []error{ErrTimeoutExceeded, e.Err}
}

// PodTerminatedError is returned when a pod reaches a terminal phase while
// it was expected to become Running.
type PodTerminatedError struct {
	Pod    PodRef
	Phase  corev1.PodPhase
	Reason string
}

func (e *PodTerminatedError) Error() string {
	msg := fmt.Sprintf("pod '%s' terminated with phase %s", e.Pod, e.Phase)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func IsPolicy(err error) bool {
	return errors.Is(err, ErrNoTemplates) ||
		errors.Is(err, ErrNoMatchingTemplate) ||
		errors.Is(err, ErrCapacityReached)
}

func IsTimeout(err error) bool {
	var terminated *PodTerminatedError
	return errors.Is(err, ErrTimeoutExceeded) || errors.As(err, &terminated)
}

func KindOf(err error) Kind {
	switch {
	case IsPolicy(err):
		return KindPolicy
	case IsTimeout(err):
		return KindTimeout
	default:
		return KindInfrastructure
	}
}
