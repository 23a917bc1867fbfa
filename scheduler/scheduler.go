package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gammadia/kubeagents/scheduler/internal"
	"github.com/samber/lo"
)

var ErrShuttingDown = errors.New("scheduler is shutting down")

const terminationTimeout = 2 * time.Minute

type demandUpdate struct {
	label string
	count int
}

// NodeInfo is a snapshot of a node known to the scheduler.
type NodeInfo struct {
	Name   string     `json:"name"`
	Cloud  string     `json:"cloud"`
	Label  string     `json:"label"`
	Status NodeStatus `json:"status"`
}

// Scheduler keeps, for every label, as many build nodes as demanded. Nodes are
// requested from the clouds in order: the first cloud whose admission check
// passes gets the whole missing count.
type Scheduler struct {
	clouds []Cloud
	config Config
	log    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	demand map[string]int
	// inflight counts nodes being requested from the clouds, per label.
	inflight map[string]int
	nodes    []*nodeState

	input        chan demandUpdate
	tickRequests chan any
	deferred     chan func()

	stop         chan any
	stopped      chan any
	shutdownOnce sync.Once

	listenersMu sync.Mutex
	listeners   []chan Event

	wg sync.WaitGroup
}

func New(clouds []Cloud, config Config) *Scheduler {
	logger := lo.Ternary(config.Logger != nil, config.Logger, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())

	scheduler := &Scheduler{
		clouds: clouds,
		config: config,
		log:    logger.With("component", "scheduler"),

		ctx:    ctx,
		cancel: cancel,

		demand:   map[string]int{},
		inflight: map[string]int{},

		input:        make(chan demandUpdate),
		tickRequests: make(chan any, 1),
		deferred:     make(chan func()),

		stop:    make(chan any),
		stopped: make(chan any),
	}

	// Accounts for Run, so that Wait cannot return while the loop is alive.
	scheduler.wg.Add(1)
	return scheduler
}

// SetDemand sets how many nodes should exist for label. An empty label
// stands for nodes without any label constraint.
func (s *Scheduler) SetDemand(label string, count int) error {
	if count < 0 {
		return fmt.Errorf("demand for label '%s' must not be negative", label)
	}

	select {
	case s.input <- demandUpdate{label: label, count: count}:
		return nil
	case <-s.stop:
		return ErrShuttingDown
	}
}

// Nodes returns the nodes currently known to the scheduler.
func (s *Scheduler) Nodes() []NodeInfo {
	result := make(chan []NodeInfo, 1)
	if !s.do(func() {
		result <- lo.Map(s.nodes, func(ns *nodeState, _ int) NodeInfo {
			return NodeInfo{Name: ns.name(), Cloud: ns.planned.Cloud, Label: ns.label, Status: ns.status}
		})
	}) {
		return nil
	}
	return <-result
}

// Subscribe returns a channel of events and a function closing it.
func (s *Scheduler) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 1024)

	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, ch)

	return ch, func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		if slices.Contains(s.listeners, ch) {
			s.listeners = lo.Without(s.listeners, ch)
			close(ch)
		}
	}
}

func (s *Scheduler) broadcast(event Event) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	for _, listener := range s.listeners {
		select {
		case listener <- event:
		default:
			s.log.Warn("Dropping event for slow subscriber", "event", fmt.Sprintf("%T", event))
		}
	}
}

func (s *Scheduler) Shutdown() {
	s.shutdownOnce.Do(func() { close(s.stop) })
}

// Wait blocks until the scheduler and every cloud have shut down.
func (s *Scheduler) Wait() {
	s.wg.Wait()
	for _, cloud := range s.clouds {
		cloud.Wait()
	}
}

func (s *Scheduler) Run() {
	defer s.wg.Done()
	defer close(s.stopped)

	s.log.Info("Scheduler is running", "clouds", lo.Map(s.clouds, func(c Cloud, _ int) string { return c.Name() }))

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case update := <-s.input:
			s.log.Info("Demand updated", "label", update.label, "count", update.count)
			if update.count == 0 {
				delete(s.demand, update.label)
			} else {
				s.demand[update.label] = update.count
			}
			s.broadcast(EventDemandUpdated{Label: update.label, Count: update.count})
			s.requestTick()

		case <-ticker.C:
			s.tick()

		case <-s.tickRequests:
			s.tick()

		case f := <-s.deferred:
			f()

		case <-s.stop:
			s.log.Info("Scheduler is stopping")
			s.cancel()
			for _, cloud := range s.clouds {
				cloud.Shutdown()
			}
			for _, ns := range s.nodes {
				if ns.status == NodeStatusOnline {
					s.terminate(ns)
				}
			}
			return
		}
	}
}

// requestTick requests a tick to be performed as soon as possible
// If a tick is already scheduled, this function does nothing
// This function is safe to call from multiple goroutines
func (s *Scheduler) requestTick() {
	select {
	case s.tickRequests <- nil:
	default:
	}
}

// do runs f on the scheduler goroutine. It reports false, without running f,
// once the scheduler has stopped.
func (s *Scheduler) do(f func()) bool {
	select {
	case s.deferred <- f:
		return true
	case <-s.stopped:
		return false
	}
}

// after schedules a function to be executed on the scheduler goroutine after
// a delay. This function is safe to call from multiple goroutines.
func (s *Scheduler) after(d time.Duration, f func()) {
	time.AfterFunc(d, func() {
		s.do(f)
	})
}

func (s *Scheduler) tick() {
	labels := lo.Uniq(append(lo.Keys(s.demand), lo.Map(s.nodes, func(ns *nodeState, _ int) string { return ns.label })...))
	slices.Sort(labels)

	total := len(s.nodes) + lo.Sum(lo.Values(s.inflight))

	for _, label := range labels {
		demand := s.demand[label]
		nodes := lo.Filter(s.nodes, func(ns *nodeState, _ int) bool { return ns.label == label })

		existing := lo.Filter(nodes, func(ns *nodeState, _ int) bool { return ns.status == NodeStatusOnline })
		// Failed nodes are kept around during the cooldown and hold their slot.
		incoming := s.inflight[label] + lo.CountBy(nodes, func(ns *nodeState) bool {
			return ns.status == NodeStatusProvisioning || ns.status == NodeStatusFailed
		})

		if n := internal.NbNodesToTerminate(demand, len(existing)); n > 0 {
			for _, ns := range existing[len(existing)-n:] {
				s.terminate(ns)
			}
		}

		if n := internal.NbNodesToCreate(s.config.MaxNodes, demand, len(existing), incoming, total); n > 0 {
			s.log.Info("Requesting nodes", "label", label, "count", n)
			total += n
			s.inflight[label] += n
			s.wg.Add(1)
			go s.provision(label, n)
		}
	}
}

// provision runs off the scheduler goroutine: admission checks may be slow.
func (s *Scheduler) provision(label string, count int) {
	defer s.wg.Done()

	for _, cloud := range s.clouds {
		ctx, cancel := context.WithTimeout(s.ctx, s.config.OracleTimeout)
		ok := cloud.CanProvision(ctx, label)
		cancel()

		if s.ctx.Err() != nil {
			return
		}
		if !ok {
			s.log.Debug("Cloud declined to provision", "cloud", cloud.Name(), "label", label)
			continue
		}

		states := lo.Map(cloud.Provision(label, count), func(planned *PlannedNode, _ int) *nodeState {
			return &nodeState{
				planned: planned,
				cloud:   cloud,
				label:   label,
				status:  NodeStatusProvisioning,
				log:     s.log.With("cloud", cloud.Name(), "planned", planned.ID),
			}
		})

		s.wg.Add(len(states))
		s.do(func() {
			s.inflight[label] -= count
			s.nodes = append(s.nodes, states...)
			for _, ns := range states {
				s.broadcast(EventNodeCreated{Planned: ns.planned.ID, Cloud: ns.planned.Cloud, Label: label})
			}
		})
		for _, ns := range states {
			go s.watchNodeProvisioning(ns)
		}
		return
	}

	s.log.Warn("No cloud can provision nodes", "label", label, "missing", count)
	s.do(func() {
		s.broadcast(EventDemandUnmet{Label: label, Missing: count})
		// Keep the slots reserved for a while so that clouds are not asked
		// again on every tick.
		s.after(s.config.ProvisioningFailureCooldown, func() {
			s.inflight[label] -= count
			s.requestTick()
		})
	})
}

func (s *Scheduler) watchNodeProvisioning(ns *nodeState) {
	defer s.wg.Done()

	select {
	case <-ns.planned.Done():
	case <-s.ctx.Done():
		return
	}
	node, err := ns.planned.Wait(s.ctx)

	s.do(func() {
		if err != nil {
			ns.log.Warn("Provisioning of node failed", "error", err)
			ns.status = NodeStatusFailed
			s.broadcast(EventProvisioningFailed{Planned: ns.planned.ID, Cloud: ns.planned.Cloud, Label: ns.label, Error: err.Error()})
			s.broadcast(EventNodeStatusUpdated{Planned: ns.planned.ID, Status: ns.status})

			s.after(s.config.ProvisioningFailureCooldown, func() {
				s.nodes = lo.Without(s.nodes, ns)
				s.requestTick()
			})
		} else {
			ns.node = node
			ns.status = NodeStatusOnline
			ns.log = ns.log.With("node", node.Name())
			ns.log.Info("Node is online")
			s.broadcast(EventNodeStatusUpdated{Planned: ns.planned.ID, Node: node.Name(), Status: ns.status})
		}
		s.requestTick()
	})
}

// terminate must be called from the scheduler goroutine.
func (s *Scheduler) terminate(ns *nodeState) {
	ns.log.Info("Terminating node")
	ns.status = NodeStatusTerminating
	s.broadcast(EventNodeStatusUpdated{Planned: ns.planned.ID, Node: ns.name(), Status: ns.status})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), terminationTimeout)
		defer cancel()

		if err := ns.cloud.Terminate(ctx, ns.node); err != nil {
			ns.log.Error("Termination of node failed", "error", err)
		} else {
			ns.log.Info("Node terminated")
		}
		s.broadcast(EventNodeTerminated{Node: ns.name()})

		s.do(func() {
			s.nodes = lo.Without(s.nodes, ns)
			s.requestTick()
		})
	}()
}
