// Package temporal wires the Flowchart Execution Scheduler to a durable
// Temporal workflow per NodeRun dispatch. Generalized from the teacher's
// CortexAgentWorkflow shape (internal/temporal/workflow.go): one
// workflow execution per unit of work, activities doing the actual I/O,
// a RetryPolicy on each ActivityOptions instead of hand-rolled retry
// loops.
package temporal

import (
	"github.com/nodadyoushutup/llmctl-engine/internal/noderun"
	"github.com/nodadyoushutup/llmctl-engine/internal/store"
)

// NodeExecutionInput is the payload carried by a NodeExecutionWorkflow
// execution, mirroring noderun.Dispatch field for field so it survives a
// Temporal JSON round trip (noderun.Dispatch itself keeps a
// store.FlowchartNode with an opaque map[string]any Config that is best
// left at the scheduler's edge rather than serialized onto the wire).
type NodeExecutionInput struct {
	RunID            string
	NodeID           string
	NodeType         string
	FlowchartID      string
	ExecutionIndex   int
	ProviderName     string
	Model            string
	TimeoutSeconds   int
	RawPrompt        string
	AgentID          string
	AgentName        string
	AgentDescription string
	AgentMarkdown    map[string]string
	MCPServerConfigs map[string]string
	DispatchID       string

	ExecutionProvider string
	Command           []string
}

// toDispatch rebuilds a noderun.Dispatch from the wire-safe input.
func (in NodeExecutionInput) toDispatch() noderun.Dispatch {
	d := noderun.Dispatch{
		RunID:            in.RunID,
		ExecutionIndex:   in.ExecutionIndex,
		ProviderName:     in.ProviderName,
		Model:            in.Model,
		TimeoutSeconds:   in.TimeoutSeconds,
		RawPrompt:        in.RawPrompt,
		AgentMarkdown:    in.AgentMarkdown,
		MCPServerConfigs: in.MCPServerConfigs,
		DispatchID:       in.DispatchID,

		ExecutionProvider: in.ExecutionProvider,
		Command:           in.Command,
	}
	d.Node = store.FlowchartNode{ID: in.NodeID, FlowchartID: in.FlowchartID, NodeType: in.NodeType}
	if in.AgentID != "" {
		d.Agent = &store.Agent{ID: in.AgentID, Name: in.AgentName, Description: in.AgentDescription}
	}
	return d
}

// NewNodeExecutionInput builds a NodeExecutionInput from a noderun.Dispatch,
// the inverse of toDispatch, used by the scheduler when enqueuing a node.
func NewNodeExecutionInput(d noderun.Dispatch) NodeExecutionInput {
	in := NodeExecutionInput{
		RunID:            d.RunID,
		NodeID:           d.Node.ID,
		NodeType:         d.Node.NodeType,
		FlowchartID:      d.Node.FlowchartID,
		ExecutionIndex:   d.ExecutionIndex,
		ProviderName:     d.ProviderName,
		Model:            d.Model,
		TimeoutSeconds:   d.TimeoutSeconds,
		RawPrompt:        d.RawPrompt,
		AgentMarkdown:    d.AgentMarkdown,
		MCPServerConfigs: d.MCPServerConfigs,
		DispatchID:       d.DispatchID,

		ExecutionProvider: d.ExecutionProvider,
		Command:           d.Command,
	}
	if d.Agent != nil {
		in.AgentID = d.Agent.ID
		in.AgentName = d.Agent.Name
		in.AgentDescription = d.Agent.Description
	}
	return in
}

// NodeExecutionOutput is the result of one NodeExecutionWorkflow
// execution.
type NodeExecutionOutput struct {
	NodeRunID string
	Status    string
	ErrorCode string
}

// RAGIndexInput is the payload for a RAGIndexWorkflow execution, routed
// to one of the rag.index/rag.git/rag.drive queues by source kind.
// Indexing itself (parsing/chunking documents) is out of scope (spec
// Non-goals); this workflow only records that a collection was
// (re)indexed so the Vector Retrieval contract has a collection to query
// against.
type RAGIndexInput struct {
	CollectionID string
	SourceKind   string
}

// RAGIndexOutput is the result of a RAGIndexWorkflow execution.
type RAGIndexOutput struct {
	CollectionID string
	Indexed      bool
}
