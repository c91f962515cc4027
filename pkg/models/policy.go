package models

import (
	"time"

	"github.com/umami-labs/brigade/pkg/config"
)

// LatencyBudget is the per-milestone latency allowance for a request.
type LatencyBudget struct {
	FirstToken time.Duration `json:"first_token"`
	LayerOne   time.Duration `json:"layer_one"`
	Total      time.Duration `json:"total"`
}

// ExecutionPolicy is the policy engine's output: the profile, the agent
// sets, the latency budget, and an optional downgrade reason for
// accountability on the trace.
type ExecutionPolicy struct {
	Profile           config.Profile  `json:"profile"`
	EnabledAgents     map[string]bool `json:"enabled_agents"`
	SpeculativeAgents map[string]bool `json:"speculative_agents"`
	Budget            LatencyBudget   `json:"budget"`
	DowngradeReason   string          `json:"downgrade_reason,omitempty"`

	// Accountability metadata locked onto the execution trace.
	PolicyID      string `json:"policy_id"`
	PolicyVersion string `json:"policy_version"`
	PolicyHash    string `json:"policy_hash"`
	Reason        string `json:"selection_reason"`
}

// AgentEnabled reports whether the named agent is in the enabled set.
func (p *ExecutionPolicy) AgentEnabled(name string) bool {
	return p.EnabledAgents[name]
}

// Intent is the structured interpretation of a user message produced by the
// intent agent.
type Intent struct {
	Goal        string   `json:"goal,omitempty"` // e.g. optimize_nutrition, modify_recipe, troubleshoot, diagnose
	Confidence  float64  `json:"confidence"`
	Ingredients []string `json:"ingredients,omitempty"`
	Dish        string   `json:"dish,omitempty"`
}

// InvocationStatus is the terminal state of one agent execution.
type InvocationStatus string

const (
	InvocationCompleted InvocationStatus = "completed"
	InvocationFailed    InvocationStatus = "failed"
	InvocationCancelled InvocationStatus = "cancelled"
	InvocationPruned    InvocationStatus = "pruned"
)

// AgentInvocation is the per-execution record of one scheduler vertex,
// appended to the execution trace.
type AgentInvocation struct {
	AgentName    string           `json:"agent_name"`
	Model        string           `json:"model,omitempty"`
	Status       InvocationStatus `json:"status"`
	Reason       string           `json:"reason,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	EndedAt      time.Time        `json:"ended_at"`
	OutputTokens int              `json:"output_tokens"`
	DependsOn    []string         `json:"depends_on,omitempty"`
}
