package internal

import "math"

// NbNodesToCreate returns how many nodes to request for one label so that
// existing plus incoming nodes cover demand, without going over maxNodes in
// total. maxNodes <= 0 means unlimited.
func NbNodesToCreate(maxNodes, demand, existingNodes, incomingNodes, totalNodes int) int {
	requiredNodes := float64(demand - existingNodes - incomingNodes)
	maximumMoreNodes := math.Inf(1)
	if maxNodes > 0 {
		maximumMoreNodes = float64(maxNodes - totalNodes)
	}

	return int(math.Max(0, math.Min(requiredNodes, maximumMoreNodes)))
}

// NbNodesToTerminate returns how many existing nodes exceed demand. Incoming
// nodes are not taken into account: they may still fail.
func NbNodesToTerminate(demand, existingNodes int) int {
	return int(math.Max(0, float64(existingNodes-demand)))
}
