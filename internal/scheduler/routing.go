package scheduler

import (
	"errors"
	"fmt"

	"github.com/nodadyoushutup/llmctl-engine/internal/enginerr"
	"github.com/nodadyoushutup/llmctl-engine/internal/graph"
	"github.com/nodadyoushutup/llmctl-engine/internal/store"
)

// buildRunState rebuilds a graph.RunState from a run's full persisted
// NodeRun history, the scheduler's way of honoring spec §5's
// "stateless across events" requirement: no readiness bookkeeping is
// held across ticks, it is recomputed from the Persistent Store every
// time. For a node with more than one completed NodeRun (a retry), the
// latest by execution_index decides routing; every completed NodeRun
// still counts toward Executions for iteration_limit enforcement.
//
// A non-nil *enginerr.Error return means the run must be failed: either
// a decision node matched no connector and had no default route
// (enginerr.CodeDecisionNoMatch), or a node pushed past its inbound
// connector's iteration_limit (enginerr.CodeIterationLimit).
func buildRunState(g *graph.FlowchartGraph, nodeRuns []store.NodeRun) (graph.RunState, *enginerr.Error, error) {
	state := graph.NewRunState()

	latest := map[string]store.NodeRun{}
	for _, nr := range nodeRuns {
		if nr.Status != "succeeded" {
			continue
		}
		state.Executions[nr.NodeID]++
		if cur, ok := latest[nr.NodeID]; !ok || nr.ExecutionIndex > cur.ExecutionIndex {
			latest[nr.NodeID] = nr
		}
	}

	for nodeID, nr := range latest {
		node, ok := g.Node(nodeID)
		if !ok {
			continue
		}
		if graph.IterationLimitExceeded(g, state, nodeID) {
			return state, enginerr.New(enginerr.CodeIterationLimit,
				fmt.Sprintf("node %s exceeded its inbound connector's iteration_limit", nodeID), false), nil
		}

		outgoing := g.Outgoing(nodeID)
		rs, err := graph.ParseRoutingState(nr.RoutingState)
		if err != nil {
			return state, nil, fmt.Errorf("scheduler: parse routing_state for node %s: %w", nodeID, err)
		}

		result, err := graph.Resolve(node, outgoing, rs)
		if errors.Is(err, graph.ErrDecisionAmbiguous) {
			return state, enginerr.New(enginerr.CodeValidation,
				fmt.Sprintf("node %s routing_state has empty matched_connector_ids and no_match=false", nodeID), false), nil
		}
		if err != nil {
			return state, enginerr.New(enginerr.CodeDecisionNoMatch,
				fmt.Sprintf("node %s matched no connector and has no default route", nodeID), false), nil
		}

		for _, c := range result.Dead {
			state.Dead[c.ID] = true
		}
		for _, c := range result.Fire {
			if c.ConnectorID == suppressConnectorID {
				state.Suppressed[c.ID] = true
			} else {
				state.Fired[c.ID] = true
			}
		}
	}

	return state, nil, nil
}
