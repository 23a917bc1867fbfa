package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/gammadia/kubeagents/cloud"
	"github.com/gammadia/kubeagents/label"
	"github.com/google/uuid"
	corev1 "k8s.io/api/core/v1"
)

var (
	ErrAlreadySet  = errors.New("value already set")
	ErrNotComputed = errors.New("value not computed yet")
)

// Slot holds a value written at most once. Reading an unset slot is an
// error rather than a zero value, so a step cannot silently consume the
// output of a step that has not run.
type Slot[T any] struct {
	value T
	set   bool
}

func (s *Slot[T]) Get() (T, error) {
	if !s.set {
		var zero T
		return zero, ErrNotComputed
	}
	return s.value, nil
}

func (s *Slot[T]) IsSet() bool {
	return s.set
}

func (s *Slot[T]) put(value T) error {
	if s.set {
		return ErrAlreadySet
	}
	s.value, s.set = value, true
	return nil
}

// NodeDescriptor describes a node about to be provisioned, as handed to the
// node registry before any cluster resource exists.
type NodeDescriptor struct {
	Name      string
	Cloud     string
	Namespace string
	Label     string
	Attempt   string
}

// NodeHandle identifies a node inside the node registry.
type NodeHandle struct {
	Name  string
	Cloud string
}

// PodRef is the cluster-assigned identity of a deployed pod.
type PodRef struct {
	Namespace string
	Name      string
	UID       string
}

func (p PodRef) String() string {
	return p.Namespace + "/" + p.Name
}

// Node is the result of a successful attempt: a registered agent backed by a
// running pod.
type Node struct {
	Handle   NodeHandle
	Pod      PodRef
	Template string
	Labels   label.Set
}

func (n Node) Name() string {
	return n.Handle.Name
}

// Attempt is the state of one provisioning attempt. It is owned by exactly
// one goroutine for its whole life and must never be shared.
type Attempt struct {
	ID        string
	Cloud     cloud.Cloud
	Templates []cloud.PodTemplate
	// Label is nil when the demand carries no label constraint.
	Label    label.Expression
	RawLabel string
	Started  time.Time
	Log      *slog.Logger

	pendingNode Slot[NodeHandle]
	template    Slot[cloud.PodTemplate]
	podSpec     Slot[*corev1.Pod]
	pod         Slot[PodRef]
	node        Slot[Node]

	release func()
}

// NewAttempt prepares an attempt for c. An empty rawLabel means no constraint.
func NewAttempt(c cloud.Cloud, rawLabel string, logger *slog.Logger) (*Attempt, error) {
	var expr label.Expression
	if rawLabel != "" {
		var err error
		if expr, err = label.Parse(rawLabel); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	id := uuid.NewString()
	return &Attempt{
		ID:        id,
		Cloud:     c,
		Templates: slices.Clone(c.Templates),
		Label:     expr,
		RawLabel:  rawLabel,
		Started:   time.Now(),
		Log:       logger.With("cloud", c.Name, "attempt", id),
	}, nil
}

func (a *Attempt) PendingNode() (NodeHandle, error)     { return a.pendingNode.Get() }
func (a *Attempt) Template() (cloud.PodTemplate, error) { return a.template.Get() }
func (a *Attempt) PodSpec() (*corev1.Pod, error)        { return a.podSpec.Get() }
func (a *Attempt) Pod() (PodRef, error)                 { return a.pod.Get() }
func (a *Attempt) Node() (Node, error)                  { return a.node.Get() }

func (a *Attempt) hold(release func()) {
	a.releaseReservation()
	a.release = release
}

func (a *Attempt) releaseReservation() {
	if a.release != nil {
		a.release()
		a.release = nil
	}
}

// needs reads a slot on behalf of a step, naming what is missing.
func needs[T any](s *Slot[T], what string) (T, error) {
	v, err := s.Get()
	if err != nil {
		return v, fmt.Errorf("%s: %w", what, err)
	}
	return v, nil
}
