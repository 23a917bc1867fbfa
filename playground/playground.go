package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/gammadia/kubeagents/cloud"
	"github.com/gammadia/kubeagents/provisioner/kubernetes"
	"github.com/gammadia/kubeagents/provisioner/local"
	"github.com/gammadia/kubeagents/scheduler"
	corev1 "k8s.io/api/core/v1"
)

const agentPod = `
spec:
  containers:
    - name: agent
      image: "jenkins/inbound-agent:latest"
`

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	registry := scheduler.NewRegistry(logger)

	// The primary cloud is small and one pod out of three fails to start,
	// so that demand spills over to the fallback cloud.
	var created int
	primary := newCloud(registry, logger, "primary", 2, func(*corev1.Pod) bool {
		created++
		return created%3 == 0
	})
	fallback := newCloud(registry, logger, "fallback", 0, nil)

	sched := scheduler.New([]scheduler.Cloud{primary, fallback}, scheduler.Config{
		Logger:                      logger,
		MaxNodes:                    6,
		TickInterval:                5 * time.Second,
		ProvisioningFailureCooldown: 10 * time.Second,
		OracleTimeout:               time.Second,
	})

	events, unsubscribe := sched.Subscribe()
	go func() {
		for event := range events {
			fmt.Printf("%T %+v\n", event, event)
		}
	}()
	go sched.Run()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	go func() {
		<-sig
		sched.Shutdown()
		<-sig
		os.Exit(1)
	}()

	for l, count := range map[string]int{"linux": 3, "linux && docker": 2} {
		if err := sched.SetDemand(l, count); err != nil {
			fmt.Println(err)
		}
	}

	sched.Wait()
	unsubscribe()

	for _, node := range registry.Nodes() {
		fmt.Println("left behind:", node.Name, node.Cloud)
	}
}

func newCloud(registry *scheduler.Registry, logger *slog.Logger, name string, instanceCap int, fail func(*corev1.Pod) bool) *kubernetes.Provisioner {
	c := cloud.Cloud{
		Name:               name,
		InstanceCap:        instanceCap,
		PollInterval:       200 * time.Millisecond,
		PodRunningTimeout:  10 * time.Second,
		AgentOnlineTimeout: 10 * time.Second,
		Templates: []cloud.PodTemplate{
			{ID: "docker", Description: "Docker agent", Labels: "linux docker", Pod: agentPod},
			{ID: "plain", Description: "Plain agent", Labels: "linux", Pod: agentPod},
		},
	}
	c.ApplyDefaults()

	cluster := local.New(local.Config{
		Logger:       logger.With("cloud", name),
		StartupDelay: time.Second,
		ReadyDelay:   2 * time.Second,
		FailPod:      fail,
	})

	p := kubernetes.New(c, cluster, registry, logger)
	registry.SetOnlineProbe(name, p.OnlineProbe())
	return p
}
