// Package graph provides the in-memory flowchart DAG: adjacency lookups,
// readiness evaluation, decision routing, and iteration-limited cycle
// validation. It operates on the node/connector rows the Persistent Store
// owns; it never talks to the database itself.
package graph

import (
	"fmt"
	"sort"

	"github.com/nodadyoushutup/llmctl-engine/internal/store"
)

// FlowchartGraph is a directed adjacency view built from one flowchart's
// nodes and connectors.
type FlowchartGraph struct {
	nodes    map[string]store.FlowchartNode
	outgoing map[string][]store.FlowchartConnector // from_node -> connectors
	incoming map[string][]store.FlowchartConnector // to_node -> connectors
	order    []string                              // node ids, ascending
}

// Build constructs a FlowchartGraph from the store's node and connector
// rows for one flowchart. Nodes are expected in ascending id order (as
// Store.ListNodes returns them); Build re-sorts defensively so callers
// that assemble the slice themselves still get deterministic tie-break
// iteration.
func Build(nodes []store.FlowchartNode, connectors []store.FlowchartConnector) *FlowchartGraph {
	g := &FlowchartGraph{
		nodes:    make(map[string]store.FlowchartNode, len(nodes)),
		outgoing: make(map[string][]store.FlowchartConnector),
		incoming: make(map[string][]store.FlowchartConnector),
		order:    make([]string, 0, len(nodes)),
	}
	for _, n := range nodes {
		g.nodes[n.ID] = n
		g.order = append(g.order, n.ID)
	}
	sort.Strings(g.order)
	for _, c := range connectors {
		g.outgoing[c.FromNode] = append(g.outgoing[c.FromNode], c)
		g.incoming[c.ToNode] = append(g.incoming[c.ToNode], c)
	}
	return g
}

// Node returns the node with the given id and whether it exists.
func (g *FlowchartGraph) Node(id string) (store.FlowchartNode, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in ascending id order. Callers must not mutate
// the returned slice.
func (g *FlowchartGraph) Nodes() []store.FlowchartNode {
	out := make([]store.FlowchartNode, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Outgoing returns the connectors leading out of a node.
func (g *FlowchartGraph) Outgoing(nodeID string) []store.FlowchartConnector {
	return g.outgoing[nodeID]
}

// Incoming returns the connectors leading into a node.
func (g *FlowchartGraph) Incoming(nodeID string) []store.FlowchartConnector {
	return g.incoming[nodeID]
}

// RootNodes returns nodes with no inbound connectors — the entry points of
// a run.
func (g *FlowchartGraph) RootNodes() []store.FlowchartNode {
	var roots []store.FlowchartNode
	for _, id := range g.order {
		if len(g.incoming[id]) == 0 {
			roots = append(roots, g.nodes[id])
		}
	}
	return roots
}

// UnlimitedCycle reports the connector ids of the first cycle discovered
// that contains no connector carrying an iteration_limit. Per spec, a
// cycle is only permitted when at least one of its edges is
// iteration-limited; an unlimited cycle is a graph-definition error.
// Returns nil if the graph has no such cycle.
func (g *FlowchartGraph) UnlimitedCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.nodes))
	var path []string

	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = gray
		path = append(path, id)
		defer func() { path = path[:len(path)-1] }()

		for _, c := range g.outgoing[id] {
			switch color[c.ToNode] {
			case white:
				if cycle := visit(c.ToNode); cycle != nil {
					return cycle
				}
			case gray:
				start := indexOf(path, c.ToNode)
				if start < 0 {
					continue
				}
				cycleNodes := append(append([]string(nil), path[start:]...), c.ToNode)
				connIDs := make([]string, 0, len(cycleNodes))
				limited := c.IterationLimit != nil
				for i := 0; i < len(cycleNodes)-2; i++ {
					connID, limit := connectorBetween(g, cycleNodes[i], cycleNodes[i+1])
					connIDs = append(connIDs, connID)
					if limit != nil {
						limited = true
					}
				}
				connIDs = append(connIDs, c.ID)
				if !limited {
					return connIDs
				}
			}
		}

		color[id] = black
		return nil
	}

	for _, id := range g.order {
		if color[id] == white {
			if cycle := visit(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

func connectorBetween(g *FlowchartGraph, from, to string) (string, *int) {
	for _, c := range g.outgoing[from] {
		if c.ToNode == to {
			return c.ID, c.IterationLimit
		}
	}
	return "", nil
}

func indexOf(path []string, id string) int {
	for i, p := range path {
		if p == id {
			return i
		}
	}
	return -1
}

// ValidateConnector checks that adding the given connector to the graph
// does not introduce an iteration-unlimited cycle. Call this before
// persisting a new FlowchartConnector.
func ValidateConnector(nodes []store.FlowchartNode, connectors []store.FlowchartConnector, candidate store.FlowchartConnector) error {
	g := Build(nodes, append(append([]store.FlowchartConnector(nil), connectors...), candidate))
	if cycle := g.UnlimitedCycle(); cycle != nil {
		return fmt.Errorf("graph: connector %q would close a cycle %v with no iteration_limit", candidate.ID, cycle)
	}
	return nil
}
