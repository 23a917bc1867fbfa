package local

import (
	"log/slog"
	"time"

	corev1 "k8s.io/api/core/v1"
)

type Config struct {
	// Logger to use
	Logger *slog.Logger
	// Namespaces that exist in the simulated cluster; empty means any
	Namespaces []string
	// How long a pod stays Pending before it runs
	StartupDelay time.Duration
	// How long a running pod takes to become ready
	ReadyDelay time.Duration
	// Decides, at creation, whether a pod fails instead of running
	FailPod func(pod *corev1.Pod) bool
}
