package graph

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nodadyoushutup/llmctl-engine/internal/store"
)

// ErrDecisionAmbiguous is returned when a decision NodeRun's routing_state
// reports no matched connectors and no_match=false — both "matched
// something" and "matched nothing" cannot be false at once.
var ErrDecisionAmbiguous = errors.New("graph: decision routing_state has empty matched_connector_ids and no_match=false")

// ErrDecisionNoMatch is returned when a decision node has no matched
// connectors, no "else" connector, and its config does not set
// on_no_match=complete_ok.
var ErrDecisionNoMatch = errors.New("graph: decision node matched no connectors and has no default route")

const elseConnectorID = "else"

// Evaluation is one outgoing connector's matched/unmatched verdict, as
// recorded by a decision NodeRun.
type Evaluation struct {
	ConnectorID string `json:"connector_id"`
	Matched     bool   `json:"matched"`
	Reason      string `json:"reason"`
}

// RoutingState is the typed form of NodeRun.RoutingState for decision
// nodes.
type RoutingState struct {
	MatchedConnectorIDs []string     `json:"matched_connector_ids"`
	Evaluations         []Evaluation `json:"evaluations"`
	NoMatch             bool         `json:"no_match"`
}

// ParseRoutingState decodes the NodeRun's routing_state map into a typed
// RoutingState, round-tripping through JSON since the store keeps it as an
// opaque map[string]any.
func ParseRoutingState(raw map[string]any) (RoutingState, error) {
	var rs RoutingState
	if raw == nil {
		return rs, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return rs, fmt.Errorf("marshal routing_state: %w", err)
	}
	if err := json.Unmarshal(b, &rs); err != nil {
		return rs, fmt.Errorf("unmarshal routing_state: %w", err)
	}
	return rs, nil
}

// RouteResult is the outcome of resolving a completed NodeRun's outgoing
// connectors.
type RouteResult struct {
	// Fire holds the connectors that should fire (their downstream node
	// may become ready).
	Fire []store.FlowchartConnector
	// Dead holds outgoing connectors that were considered but will never
	// fire in this run (decision branches not taken).
	Dead []store.FlowchartConnector
	// NoMatchComplete is true when a decision node had no_match=true, no
	// "else" connector, and node config set on_no_match=complete_ok — the
	// branch terminates as a success with no downstream node to enqueue.
	NoMatchComplete bool
}

// Resolve computes which outgoing connectors of a completed node fire.
// Task/memory/rag/skill nodes fire every outgoing connector unconditionally.
// Decision nodes fire only the connectors named in matched_connector_ids,
// falling back to an "else" connector or an on_no_match=complete_ok config
// when nothing matched.
func Resolve(node store.FlowchartNode, outgoing []store.FlowchartConnector, rs RoutingState) (RouteResult, error) {
	if node.NodeType != "decision" {
		return RouteResult{Fire: append([]store.FlowchartConnector(nil), outgoing...)}, nil
	}

	if len(rs.MatchedConnectorIDs) == 0 && !rs.NoMatch {
		return RouteResult{}, ErrDecisionAmbiguous
	}

	matched := make(map[string]bool, len(rs.MatchedConnectorIDs))
	for _, id := range rs.MatchedConnectorIDs {
		matched[id] = true
	}

	var result RouteResult
	for _, c := range outgoing {
		if matched[c.ConnectorID] {
			result.Fire = append(result.Fire, c)
		} else {
			result.Dead = append(result.Dead, c)
		}
	}
	if len(result.Fire) > 0 {
		return result, nil
	}

	// no_match=true and nothing matched: try the distinguished "else"
	// connector, then on_no_match=complete_ok, then fail.
	for _, c := range outgoing {
		if c.ConnectorID == elseConnectorID {
			return RouteResult{Fire: []store.FlowchartConnector{c}}, nil
		}
	}
	if onNoMatch, _ := node.Config["on_no_match"].(string); onNoMatch == "complete_ok" {
		return RouteResult{NoMatchComplete: true}, nil
	}
	return RouteResult{}, ErrDecisionNoMatch
}
