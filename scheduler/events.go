package scheduler

type Event interface{}

// Nodes

type EventNodeCreated struct {
	Planned string
	Cloud   string
	Label   string
}

type EventNodeStatusUpdated struct {
	Planned string
	// Node is empty until the planned node resolved.
	Node   string
	Status NodeStatus
}

type EventNodeTerminated struct {
	Node string
}

// Demand

type EventDemandUpdated struct {
	Label string
	Count int
}

type EventProvisioningFailed struct {
	Planned string
	Cloud   string
	Label   string
	Error   string
}

// EventDemandUnmet is emitted when no cloud accepted to provision nodes for a
// label with missing nodes.
type EventDemandUnmet struct {
	Label   string
	Missing int
}
