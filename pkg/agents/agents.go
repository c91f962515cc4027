// Package agents defines the enhancement agents scheduled by the DAG for a
// request. Each agent is an LLM call with its own persona; the graph wires
// them so recipe work feeds sensory, explanation, presentation, and the
// research tier in parallel.
package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/umami-labs/brigade/pkg/llm"
	"github.com/umami-labs/brigade/pkg/models"
	"github.com/umami-labs/brigade/pkg/policy"
	"github.com/umami-labs/brigade/pkg/scheduler"
)

// Output is one agent's contribution, injected downstream by node name.
type Output struct {
	Agent        string `json:"agent"`
	Content      string `json:"content"`
	Model        string `json:"model,omitempty"`
	OutputTokens int    `json:"output_tokens"`
}

type agentSpec struct {
	name      string
	system    string
	maxTokens int
	dependsOn []string
	luxury    bool
	spec      bool
	priority  int
	buildUser func(message string, intent *models.Intent, args map[string]any) string
}

var specs = []agentSpec{
	{
		name:      policy.AgentRecipe,
		system:    "You are the recipe strategist. Given the user's request, produce the core culinary answer: the dish or fix, key technique, and critical quantities. Two short paragraphs maximum.",
		maxTokens: 600,
		dependsOn: []string{policy.AgentIntent},
		priority:  10,
		buildUser: func(message string, intent *models.Intent, _ map[string]any) string {
			return withIntent(message, intent)
		},
	},
	{
		name:      policy.AgentSensoryModel,
		system:    "You are the sensory modeler. Given a proposed culinary approach, describe the texture, aroma, and flavor outcome it produces, and flag any sensory risk.",
		maxTokens: 400,
		dependsOn: []string{policy.AgentRecipe},
		priority:  5,
		buildUser: dependentPrompt("Proposed approach"),
	},
	{
		name:      policy.AgentExplanation,
		system:    "You are the explanation agent. Given a culinary approach, explain in plain language why it works. No numbers, no jargon without a gloss.",
		maxTokens: 400,
		dependsOn: []string{policy.AgentRecipe},
		priority:  5,
		buildUser: dependentPrompt("Approach to explain"),
	},
	{
		name:      policy.AgentPresentation,
		system:    "You are the presentation agent. Given the culinary answer, suggest plating, serving order, and one finishing touch. Three bullet points.",
		maxTokens: 300,
		dependsOn: []string{policy.AgentRecipe},
		priority:  3,
		buildUser: dependentPrompt("Final answer to present"),
	},
	{
		name:      policy.AgentRecipeRenderer,
		system:    "You are the recipe renderer. Re-express the culinary answer as a compact structured recipe card: title, ingredient list with quantities, numbered steps.",
		maxTokens: 500,
		dependsOn: []string{policy.AgentRecipe},
		luxury:    true,
		spec:      true,
		priority:  1,
		buildUser: dependentPrompt("Answer to render"),
	},
	{
		name:      policy.AgentFrontier,
		system:    "You are the frontier explorer. Given a culinary approach, propose three meaningfully different variants with one-line tradeoffs each.",
		maxTokens: 500,
		dependsOn: []string{policy.AgentRecipe},
		priority:  2,
		buildUser: dependentPrompt("Base approach"),
	},
	{
		name:      policy.AgentSelector,
		system:    "You are the selector. Given candidate variants, pick the single best for the user's stated goal and justify the choice in two sentences.",
		maxTokens: 300,
		dependsOn: []string{policy.AgentFrontier},
		priority:  2,
		buildUser: dependentPrompt("Candidate variants"),
	},
}

// BuildGraph registers the agent graph onto the scheduler. The intent is
// extracted deterministically before scheduling; its node completes
// immediately and anchors the graph so every downstream invocation records
// the dependency. Recipe output flows to its dependents through result
// injection. Agents outside the policy's enabled set are left off the
// graph; luxury agents are always added so the scheduler records their
// pruning.
func BuildGraph(s *scheduler.Scheduler, chat llm.ChatClient, pol *models.ExecutionPolicy, message string, intent *models.Intent) {
	s.AddNode(scheduler.Node{
		Name:     policy.AgentIntent,
		Priority: 20,
		Run: func(context.Context, map[string]any) (any, error) {
			return intent, nil
		},
	})
	for _, sp := range specs {
		sp := sp
		if !sp.luxury && !pol.AgentEnabled(sp.name) {
			continue
		}
		s.AddNode(scheduler.Node{
			Name:          sp.name,
			DependsOn:     sp.dependsOn,
			IsLuxury:      sp.luxury,
			IsSpeculative: sp.spec,
			Priority:      sp.priority,
			Run: func(ctx context.Context, args map[string]any) (any, error) {
				return runAgent(ctx, chat, sp, message, intent, args)
			},
		})
	}
}

func runAgent(ctx context.Context, chat llm.ChatClient, sp agentSpec, message string, intent *models.Intent, args map[string]any) (any, error) {
	result, err := chat.Complete(ctx, llm.Request{
		System:    sp.system,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: sp.buildUser(message, intent, args)}},
		MaxTokens: sp.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", sp.name, err)
	}
	return &Output{
		Agent:        sp.name,
		Content:      result.Text,
		Model:        result.Model,
		OutputTokens: result.OutputTokens,
	}, nil
}

// withIntent prefixes the user message with the parsed intent when one is
// confidently available.
func withIntent(message string, intent *models.Intent) string {
	if intent == nil || intent.Goal == "" {
		return message
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", intent.Goal)
	if intent.Dish != "" {
		fmt.Fprintf(&b, "Dish: %s\n", intent.Dish)
	}
	if len(intent.Ingredients) > 0 {
		fmt.Fprintf(&b, "Ingredients: %s\n", strings.Join(intent.Ingredients, ", "))
	}
	b.WriteString("Request: ")
	b.WriteString(message)
	return b.String()
}

// dependentPrompt builds a user prompt from the recipe (or other upstream)
// output injected under its node name.
func dependentPrompt(header string) func(string, *models.Intent, map[string]any) string {
	return func(message string, _ *models.Intent, args map[string]any) string {
		var upstream string
		for _, v := range args {
			if out, ok := v.(*Output); ok {
				upstream = out.Content
				break
			}
		}
		return fmt.Sprintf("%s:\n%s\n\nOriginal request: %s", header, upstream, message)
	}
}
