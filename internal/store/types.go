package store

import "time"

// Flowchart is the top-level container spec.md §3 defines: an ordered
// set of FlowchartNodes and a set of FlowchartConnectors.
type Flowchart struct {
	ID      string
	Name    string
	Version int
}

// FlowchartNode is one node in a flowchart's DAG.
type FlowchartNode struct {
	ID          string
	FlowchartID string
	NodeType    string // task, decision, memory, rag, skill
	RefID       string
	Config      map[string]any
}

// FlowchartConnector is a directed edge between two nodes, optionally
// labeled with a connector_id used by decision-node routing.
type FlowchartConnector struct {
	ID             string
	FlowchartID    string
	FromNode       string
	ToNode         string
	ConnectorID    string
	ConditionText  string
	IterationLimit *int
}

// FlowchartRun is one execution of a flowchart.
type FlowchartRun struct {
	ID          string
	FlowchartID string
	Status      string // queued, running, succeeded, failed, cancelled
	StartedAt   time.Time
	FinishedAt  *time.Time
	Initiator   string
}

// RunError is the typed error carried on a NodeRun, mirroring
// enginerr.Error's stable-code shape without importing it (store stays a
// leaf package).
type RunError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// NodeRun is one execution attempt of a FlowchartNode within a run.
// execution_index is strictly increasing and contiguous per (run_id,
// node_id); retries produce new NodeRuns, never mutate historical ones.
type NodeRun struct {
	ID                    string
	RunID                 string
	NodeID                string
	ExecutionIndex        int
	Status                string
	Stdout                string
	Stderr                string
	ExitCode              int
	StartedAt             time.Time
	FinishedAt            *time.Time
	Error                 *RunError
	ProviderMetadata      map[string]any
	RoutingState          map[string]any
	Degraded              bool
	DegradedReason        string
	CancelledDuringFlight bool
}

// NodeArtifact is an output produced by a NodeRun.
type NodeArtifact struct {
	ID             string
	NodeRunID      string
	ArtifactType   string // plan, task, decision, memory, rag
	Payload        map[string]any
	IdempotencyKey string
}

// Agent is a named role consumed by the Instruction Compiler.
type Agent struct {
	ID          string
	Name        string
	Description string
	Markdown    string
}

// Script is an attachment referenced by one or more nodes.
type Script struct {
	ID          string
	FileName    string
	FilePath    string
	ContentType string
	ContentHash string
}

// MCPServerRow is the persisted form of an MCP server launch config.
type MCPServerRow struct {
	ServerKey  string
	ConfigJSON string
}

// RAGCollection is a named vector collection used by rag nodes.
type RAGCollection struct {
	ID            string
	Name          string
	VectorBackend string
	Health        string
}

// ChatThread owns an ordered set of ChatMessages.
type ChatThread struct {
	ID                       string
	ContextWindowTokens      int
	HistoryCompactionSummary string
}

// ChatMessage is one ordered message within a ChatThread.
type ChatMessage struct {
	ID        string
	ThreadID  string
	Seq       int
	Role      string
	Content   string
	CreatedAt time.Time
}

// IntegrationSetting is a generic provider-scoped settings row,
// supplemented per SPEC_FULL.md §3 for Context Budgeter defaults and MCP
// server config storage.
type IntegrationSetting struct {
	Provider string
	Key      string
	Value    string
}
