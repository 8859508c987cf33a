package noderun

// Quick node fallback profile: when a task node has no bound Agent/Role,
// the runtime synthesizes this default system contract and agent
// profile so the prompt envelope is always well-formed. Grounded on
// original_source's core/quick_node.py.

const (
	quickNodeRoleName        = "Quick"
	quickNodeRoleDescription = "You are Quick.\n" +
		"Handle short, one-off tasks with minimal overhead.\n" +
		"Ask only essential questions and respond concisely."
)

// BuildQuickNodeSystemContract returns the fallback system_contract
// section for a task node with no bound Agent/Role.
func BuildQuickNodeSystemContract() map[string]any {
	return map[string]any{
		"role": map[string]any{
			"name":        quickNodeRoleName,
			"description": quickNodeRoleDescription,
			"details": map[string]any{
				"name": "Quick",
				"description": "You are a generic, lightweight assistant for one-off tasks. " +
					"You have no specialized domain role and do not assume extra context. " +
					"You focus on fast, clear execution with minimal overhead.",
				"details": map[string]any{
					"deliverables": []any{
						"Direct answers",
						"Short checklists",
						"Light drafting/editing",
						"Simple summaries",
						"Small code snippets or commands (when asked)",
					},
					"focus": []any{
						"Speed",
						"Clarity",
						"Low ceremony",
						"Doing the asked task only",
					},
					"tone": []any{
						"Neutral",
						"Friendly",
						"Concise",
						"Pragmatic",
					},
				},
			},
		},
	}
}

// BuildQuickNodeAgentProfile returns the fallback agent_profile section
// for a task node with no bound Agent/Role.
func BuildQuickNodeAgentProfile() map[string]any {
	return map[string]any{
		"id":          "quick-node-default",
		"name":        "Quick Node",
		"description": "Default quick node profile for running free-form prompts.",
	}
}
