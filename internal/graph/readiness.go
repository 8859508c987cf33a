package graph

import (
	"sort"

	"github.com/nodadyoushutup/llmctl-engine/internal/store"
)

// RunState tracks the per-run connector and execution bookkeeping the
// scheduler accumulates as NodeRuns complete and their routing resolves.
// It is the caller's job to move connectors from pending into Fired or
// Dead as Resolve decides each completed node's routing; RunState only
// evaluates readiness from that accounting.
type RunState struct {
	// Fired connectors have been selected to propagate by Resolve.
	Fired map[string]bool
	// Dead connectors were considered but will never fire in this run
	// (unmatched decision branches).
	Dead map[string]bool
	// Suppressed connectors were explicitly marked as a "suppress"
	// production; a node downstream of a suppressed connector never
	// becomes ready through it.
	Suppressed map[string]bool
	// Executions counts completed NodeRuns per node id, used for both the
	// root-node single-fire rule and iteration_limit enforcement.
	Executions map[string]int
}

// NewRunState returns an empty RunState ready for use.
func NewRunState() RunState {
	return RunState{
		Fired:      make(map[string]bool),
		Dead:       make(map[string]bool),
		Suppressed: make(map[string]bool),
		Executions: make(map[string]int),
	}
}

func (s RunState) known(connectorID string) bool {
	return s.Fired[connectorID] || s.Dead[connectorID]
}

// ReadyNodes returns the nodes that are ready to be enqueued given the
// graph and the current run state: a node is ready when every inbound
// connector is accounted for (fired or dead), at least one inbound
// connector fired (or the node is a root with no inbound connectors and
// has not yet executed), and no inbound connector was suppressed. Results
// are ordered by ascending node_config.priority (default 0, lower first),
// then by ascending node id as the deterministic tie-break spec §4.7
// requires.
func ReadyNodes(g *FlowchartGraph, state RunState) []store.FlowchartNode {
	var ready []store.FlowchartNode

	for _, node := range g.Nodes() {
		if IterationLimitExceeded(g, state, node.ID) {
			continue
		}

		incoming := g.Incoming(node.ID)
		if len(incoming) == 0 {
			if state.Executions[node.ID] == 0 {
				ready = append(ready, node)
			}
			continue
		}

		anyFired := false
		anySuppressed := false
		allKnown := true
		for _, c := range incoming {
			if state.Suppressed[c.ID] {
				anySuppressed = true
			}
			if state.Fired[c.ID] {
				anyFired = true
			}
			if !state.known(c.ID) {
				allKnown = false
			}
		}
		if allKnown && anyFired && !anySuppressed {
			ready = append(ready, node)
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		pi, pj := nodePriority(ready[i]), nodePriority(ready[j])
		if pi != pj {
			return pi < pj
		}
		return ready[i].ID < ready[j].ID
	})

	return ready
}

func nodePriority(n store.FlowchartNode) int {
	switch v := n.Config["priority"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

// IterationLimitExceeded reports whether enqueuing another execution of
// nodeID would exceed the iteration_limit carried by one of its fired
// inbound connectors. A node with no limited inbound connector is never
// limited.
func IterationLimitExceeded(g *FlowchartGraph, state RunState, nodeID string) bool {
	limit := -1
	for _, c := range g.Incoming(nodeID) {
		if c.IterationLimit != nil && state.Fired[c.ID] {
			if limit < 0 || *c.IterationLimit < limit {
				limit = *c.IterationLimit
			}
		}
	}
	if limit < 0 {
		return false
	}
	return state.Executions[nodeID] >= limit
}
