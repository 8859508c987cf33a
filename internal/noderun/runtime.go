package noderun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nodadyoushutup/llmctl-engine/internal/enginerr"
	"github.com/nodadyoushutup/llmctl-engine/internal/instructions"
	"github.com/nodadyoushutup/llmctl-engine/internal/provider"
	"github.com/nodadyoushutup/llmctl-engine/internal/store"
	"github.com/nodadyoushutup/llmctl-engine/internal/workspace"
)

// Store is the subset of store.Store the runtime writes through.
// Narrowed so tests can exercise Runtime without a real database.
type Store interface {
	DispatchRegistrar
	InsertNodeRunWithArtifacts(ctx context.Context, nr store.NodeRun, artifacts []store.NodeArtifact) error
}

// Runtime executes one NodeRun dispatch end to end: acquire workspace,
// materialize instructions, invoke the Provider Adapter, persist the
// result. Grounded on internal/dispatch/dispatch.go's Dispatch function
// shape (acquire resource -> invoke backend -> record result -> release
// resource) generalized from a CLI subprocess to an SDK call.
type Runtime struct {
	Workspace *workspace.Manager
	Router    *provider.Router
	Store     Store

	// Containers backs the "docker" execution provider
	// (EXECUTION_PROVIDER_DOCKER from original_source's execution
	// contracts): when a Dispatch names it and carries a Command, the
	// command runs inside a container bind-mounted to the NodeRun's
	// workspace instead of calling the Provider Adapter. Nil disables
	// the provider entirely, so a Dispatch that names "docker" without
	// a configured Containers runner fails rather than silently
	// falling back to the in-process provider.
	Containers *workspace.ContainerRunner
}

// Dispatch describes one NodeRun attempt to execute.
type Dispatch struct {
	RunID          string
	Node           store.FlowchartNode
	ExecutionIndex int
	ProviderName   string
	Model          string

	// TimeoutSeconds is node_config.timeout_seconds, the per-NodeRun
	// deadline spec §5 assigns a default of 600s. It is carried here so
	// the Task Queue layer can set it as the workflow's
	// StartToCloseTimeout; the Runtime itself does not enforce it.
	TimeoutSeconds int

	// RawPrompt is the trigger's prompt text, parsed per
	// prompt_envelope.py's parse_prompt_input: either plain text or a
	// JSON-encoded envelope/payload.
	RawPrompt string

	// Agent is the bound Agent/Role for this node, or nil to fall back
	// to the quick node default profile.
	Agent *store.Agent

	// AgentMarkdown/MCPServerConfigs feed the Instruction Compiler
	// (internal/instructions), keyed by agent/server name.
	AgentMarkdown    map[string]string
	MCPServerConfigs map[string]string

	// DispatchID identifies this attempt for the idempotency registry,
	// e.g. a hash of (node_run intent, attempt number).
	DispatchID string

	// ExecutionProvider selects where this node's work runs:
	// "" / "workspace" calls the Provider Adapter in-process (the
	// default), "docker" runs Command inside a container via
	// Runtime.Containers. Mirrors EXECUTION_PROVIDER_WORKSPACE /
	// EXECUTION_PROVIDER_DOCKER from original_source's execution
	// contracts.
	ExecutionProvider string

	// Command is the argv to run when ExecutionProvider is "docker".
	// Unused for the default workspace provider.
	Command []string
}

// Execute runs one node dispatch: idempotency check, workspace
// acquisition, instruction materialization, provider call, and
// persistence, in that order.
func (rt *Runtime) Execute(ctx context.Context, d Dispatch) (store.NodeRun, error) {
	nodeRunID := uuid.New().String()
	executionID := fmt.Sprintf("%s:%s:%d", d.RunID, d.Node.ID, d.ExecutionIndex)

	firstSeen, err := rt.Store.RegisterDispatch(ctx, executionID, d.DispatchID)
	if err != nil {
		return store.NodeRun{}, fmt.Errorf("noderun: register dispatch: %w", err)
	}
	if !firstSeen {
		return rt.persistFailure(ctx, nodeRunID, d, enginerr.New(
			enginerr.CodeDispatch, "duplicate dispatch suppressed", false,
		))
	}

	workdir, release, err := rt.Workspace.Acquire(d.RunID, d.Node.ID, d.ExecutionIndex)
	if err != nil {
		return store.NodeRun{}, fmt.Errorf("noderun: acquire workspace: %w", err)
	}
	defer release()

	if d.ExecutionProvider == "docker" {
		return rt.executeInContainer(ctx, nodeRunID, workdir, d)
	}

	userRequest, sourcePayload := ParsePromptInput(d.RawPrompt)
	systemContract, agentProfile := d.resolveProfile()
	envelope := BuildEnvelope(BuildOptions{
		UserRequest:    userRequest,
		SystemContract: systemContract,
		AgentProfile:   agentProfile,
		SourcePayload:  sourcePayload,
	})
	serialized, err := Serialize(envelope)
	if err != nil {
		return store.NodeRun{}, fmt.Errorf("noderun: serialize envelope: %w", err)
	}

	compiled, err := instructions.Compile(instructions.Input{
		AgentMarkdown:    d.AgentMarkdown,
		MCPServerConfigs: d.MCPServerConfigs,
	})
	if err != nil {
		return store.NodeRun{}, fmt.Errorf("noderun: compile instructions: %w", err)
	}
	if _, err := instructions.Materialize(workdir, compiled); err != nil {
		return store.NodeRun{}, fmt.Errorf("noderun: materialize instructions: %w", err)
	}

	started := time.Now()
	result, execErr := rt.Router.Execute(ctx, d.ProviderName, provider.Request{
		Model:    d.Model,
		Messages: []provider.Message{{Role: "user", Content: serialized}},
	})
	if execErr != nil {
		return rt.persistFailure(ctx, nodeRunID, d, classifyExecError(execErr))
	}

	outputState, routingState, artifactType := buildOutputState(d.Node.NodeType, result.Content)
	degraded, degradedReason := computeDegraded(result)
	artifact := buildArtifact(d.RunID, nodeRunID, d.Node.NodeType, artifactType,
		map[string]any{"user_request": userRequest}, outputState, routingState)

	nr := store.NodeRun{
		ID:             nodeRunID,
		RunID:          d.RunID,
		NodeID:         d.Node.ID,
		ExecutionIndex: d.ExecutionIndex,
		Status:         "succeeded",
		Stdout:         result.Content,
		StartedAt:      started,
		FinishedAt:     timePtr(time.Now()),
		ProviderMetadata: map[string]any{
			"provider":           d.ProviderName,
			"model":              d.Model,
			"input_tokens":       result.Usage.InputTokens,
			"output_tokens":      result.Usage.OutputTokens,
			"stop_reason":        result.StopReason,
			"fallback_attempted": result.FallbackAttempted,
			"fallback_reason":    result.FallbackReason,
		},
		RoutingState:   routingState,
		Degraded:       degraded,
		DegradedReason: degradedReason,
		// ctx is only ever cancelled here by a run-level cancellation
		// racing the provider call: the call already returned
		// successfully, so per spec §4.6 this NodeRun still runs to
		// completion but is flagged rather than treated as a failure.
		CancelledDuringFlight: ctx.Err() != nil,
	}
	if err := rt.Store.InsertNodeRunWithArtifacts(ctx, nr, []store.NodeArtifact{artifact}); err != nil {
		return store.NodeRun{}, fmt.Errorf("noderun: persist node run: %w", err)
	}
	return nr, nil
}

// resolveProfile returns the node's bound Agent markdown as an
// agent_profile section, falling back to the quick node default when no
// Agent is bound.
func (d Dispatch) resolveProfile() (systemContract, agentProfile map[string]any) {
	if d.Agent == nil {
		return BuildQuickNodeSystemContract(), BuildQuickNodeAgentProfile()
	}
	return map[string]any{}, map[string]any{
		"id":          d.Agent.ID,
		"name":        d.Agent.Name,
		"description": d.Agent.Description,
	}
}

// artifactTypeForNodeType maps a FlowchartNode's node_type to the
// NodeArtifact.artifact_type enum (plan, task, decision, memory, rag).
// Four of the five node types (task, decision, memory, rag) name their
// artifact type directly; a "skill" node is the one node type without a
// same-named artifact type, so it produces the remaining "plan" artifact.
func artifactTypeForNodeType(nodeType string) string {
	switch nodeType {
	case "task", "decision", "memory", "rag":
		return nodeType
	default:
		return "plan"
	}
}

// buildOutputState parses a provider result's content into the node's
// output_state: structured output wins over raw, and a decision node's
// output must carry matched_connector_ids/evaluations/no_match so the
// scheduler can resolve routing from it. The same routing shape is
// returned separately for NodeRun.RoutingState.
func buildOutputState(nodeType, content string) (outputState, routingState map[string]any, artifactType string) {
	artifactType = artifactTypeForNodeType(nodeType)

	var structured map[string]any
	hasStructured := json.Unmarshal([]byte(content), &structured) == nil

	if nodeType != "decision" {
		outputState = map[string]any{"node_type": nodeType, "raw_output": content}
		if hasStructured {
			outputState["structured_output"] = structured
		}
		return outputState, nil, artifactType
	}

	if hasStructured {
		structured["node_type"] = nodeType
		return structured, structured, artifactType
	}

	// Malformed decision output: nothing parses as JSON, so there is no
	// routing information to resolve against.
	routingState = map[string]any{
		"matched_connector_ids": []any{},
		"evaluations":           []any{},
		"no_match":              true,
	}
	outputState = map[string]any{"node_type": nodeType, "raw_output": content}
	for k, v := range routingState {
		outputState[k] = v
	}
	return outputState, routingState, artifactType
}

// computeDegraded implements spec §7's degraded marker with precedence
// fallback_reason > deterministic_fallback_used > api_failure_category.
// The engine has no deterministic-fallback or distinct api-failure-
// category path outside the classified retry Router.Execute already
// performs, so fallback_reason is the only source in practice.
func computeDegraded(result provider.Result) (degraded bool, reason string) {
	if result.FallbackAttempted {
		return true, result.FallbackReason
	}
	return false, ""
}

// buildArtifact builds the mandatory NodeArtifact for a completed
// NodeRun: node_type, input_context, output_state, and routing_state
// (nil when the node isn't a decision) per the node-artifact contract,
// with an idempotency_key in the flowchart_run:<run>:node_run:<nr>:
// artifact:<type> form.
func buildArtifact(runID, nodeRunID, nodeType, artifactType string, inputContext, outputState, routingState map[string]any) store.NodeArtifact {
	payload := map[string]any{
		"node_type":     nodeType,
		"input_context": inputContext,
		"output_state":  outputState,
		"routing_state": routingState,
	}
	return store.NodeArtifact{
		ID:           uuid.New().String(),
		NodeRunID:    nodeRunID,
		ArtifactType: artifactType,
		Payload:      payload,
		IdempotencyKey: fmt.Sprintf(
			"flowchart_run:%s:node_run:%s:artifact:%s", runID, nodeRunID, artifactType,
		),
	}
}

// executeInContainer runs d.Command inside Runtime.Containers instead of
// calling the Provider Adapter, for nodes configured with the "docker"
// execution provider. A non-zero container exit code is persisted as a
// dispatch_error NodeRun failure, the same classification a failed exec
// backend dispatch gets.
func (rt *Runtime) executeInContainer(ctx context.Context, nodeRunID, workdir string, d Dispatch) (store.NodeRun, error) {
	if rt.Containers == nil {
		return rt.persistFailure(ctx, nodeRunID, d, enginerr.New(
			enginerr.CodeDispatch, "docker execution provider requested but no container runner is configured", false,
		))
	}
	if len(d.Command) == 0 {
		return rt.persistFailure(ctx, nodeRunID, d, enginerr.New(
			enginerr.CodeValidation, "docker execution provider requires a command", false,
		))
	}

	started := time.Now()
	stdout, exitCode, err := rt.Containers.Run(ctx, workdir, d.Command, nil)
	if err != nil {
		return rt.persistFailure(ctx, nodeRunID, d, enginerr.Wrap(enginerr.CodeDispatch, err.Error(), false, err))
	}
	if exitCode != 0 {
		return rt.persistFailure(ctx, nodeRunID, d, enginerr.New(
			enginerr.CodeDispatch, fmt.Sprintf("container exited %d", exitCode), false,
		))
	}

	outputState, routingState, artifactType := buildOutputState(d.Node.NodeType, stdout)
	artifact := buildArtifact(d.RunID, nodeRunID, d.Node.NodeType, artifactType,
		map[string]any{"user_request": d.RawPrompt}, outputState, routingState)
	nr := store.NodeRun{
		ID:             nodeRunID,
		RunID:          d.RunID,
		NodeID:         d.Node.ID,
		ExecutionIndex: d.ExecutionIndex,
		Status:         "succeeded",
		Stdout:         stdout,
		ExitCode:       exitCode,
		StartedAt:      started,
		FinishedAt:     timePtr(time.Now()),
		ProviderMetadata: map[string]any{
			"execution_provider": "docker",
		},
		RoutingState:          routingState,
		CancelledDuringFlight: ctx.Err() != nil,
	}
	if err := rt.Store.InsertNodeRunWithArtifacts(ctx, nr, []store.NodeArtifact{artifact}); err != nil {
		return store.NodeRun{}, fmt.Errorf("noderun: persist node run: %w", err)
	}
	return nr, nil
}

func (rt *Runtime) persistFailure(ctx context.Context, nodeRunID string, d Dispatch, runErr *enginerr.Error) (store.NodeRun, error) {
	nr := store.NodeRun{
		ID:             nodeRunID,
		RunID:          d.RunID,
		NodeID:         d.Node.ID,
		ExecutionIndex: d.ExecutionIndex,
		Status:         "failed",
		StartedAt:      time.Now(),
		FinishedAt:     timePtr(time.Now()),
		Error: &store.RunError{
			Code:      runErr.Code,
			Message:   runErr.Message,
			Retryable: runErr.Retryable,
		},
	}
	if err := rt.Store.InsertNodeRunWithArtifacts(ctx, nr, nil); err != nil {
		return store.NodeRun{}, fmt.Errorf("noderun: persist failed node run: %w", err)
	}
	return nr, nil
}

func classifyExecError(err error) *enginerr.Error {
	var engErr *enginerr.Error
	if errors.As(err, &engErr) {
		return engErr
	}
	return enginerr.Wrap(enginerr.CodeDispatch, err.Error(), false, err)
}

func timePtr(t time.Time) *time.Time { return &t }
