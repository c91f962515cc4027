package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umami-labs/brigade/pkg/config"
	"github.com/umami-labs/brigade/pkg/llm"
	"github.com/umami-labs/brigade/pkg/models"
	"github.com/umami-labs/brigade/pkg/policy"
	"github.com/umami-labs/brigade/pkg/resource"
	"github.com/umami-labs/brigade/pkg/scheduler"
)

func decideFor(t *testing.T, message string) *models.ExecutionPolicy {
	t.Helper()
	engine := policy.NewEngine(nil)
	return engine.Decide(message, "", policy.ResourceState{})
}

func TestExtractIntent(t *testing.T) {
	tests := []struct {
		name           string
		message        string
		wantGoal       string
		wantConfident  bool
	}{
		{"troubleshoot", "my hollandaise failed and split", GoalTroubleshoot, true},
		{"modify", "can I substitute butter with olive oil here", GoalModifyRecipe, true},
		{"diagnose", "why did my bread not rise overnight", GoalDiagnose, true},
		{"nutrition", "make this lasagna healthier for me", GoalOptimizeNutrition, true},
		{"general", "tell me about regional pasta shapes", GoalGeneral, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := ExtractIntent(tt.message)
			assert.Equal(t, tt.wantGoal, intent.Goal)
			if tt.wantConfident {
				assert.GreaterOrEqual(t, intent.Confidence, 0.6)
			} else {
				assert.Less(t, intent.Confidence, 0.6)
			}
		})
	}
}

func TestBuildGraphFastProfile(t *testing.T) {
	mock := llm.NewMock()
	pol := decideFor(t, "quick dinner")
	require.Equal(t, config.ProfileFast, pol.Profile)

	s := scheduler.New()
	BuildGraph(s, mock, pol, "quick dinner", ExtractIntent("quick dinner"))

	results, err := s.Execute(context.Background(), pol, false)
	require.NoError(t, err)

	// Required agents ran; research tier is absent; luxury renderer ran
	// because the profile enables it.
	assert.Contains(t, results, policy.AgentIntent)
	assert.Contains(t, results, policy.AgentRecipe)
	assert.Contains(t, results, policy.AgentPresentation)
	assert.Contains(t, results, policy.AgentRecipeRenderer)
	assert.NotContains(t, results, policy.AgentFrontier)
	assert.NotContains(t, results, policy.AgentSensoryModel)

	assert.Equal(t, models.InvocationCompleted, results[policy.AgentRecipe].Status)
}

func TestBuildGraphSpeculativePrunedWhenDegraded(t *testing.T) {
	mock := llm.NewMock()
	pol := decideFor(t, "quick dinner")

	s := scheduler.New()
	BuildGraph(s, mock, pol, "quick dinner", ExtractIntent("quick dinner"))

	results, err := s.Execute(context.Background(), pol, true)
	require.NoError(t, err)

	require.Contains(t, results, policy.AgentRecipeRenderer)
	assert.Equal(t, models.InvocationPruned, results[policy.AgentRecipeRenderer].Status)
	assert.Equal(t, models.InvocationCompleted, results[policy.AgentRecipe].Status)
}

func TestBuildGraphOptimizeRunsResearchTier(t *testing.T) {
	mock := llm.NewMock()
	mock.Responses = map[string]string{
		"Candidate variants": "variant two wins",
	}
	pol := decideFor(t, "what is the best way to improve my weeknight carbonara recipe so that the alternatives come out better overall tonight")
	require.Equal(t, config.ProfileOptimize, pol.Profile)

	s := scheduler.New()
	BuildGraph(s, mock, pol, "improve my carbonara", ExtractIntent("improve my carbonara"))

	results, err := s.Execute(context.Background(), pol, false)
	require.NoError(t, err)

	require.Contains(t, results, policy.AgentSelector)
	selector := results[policy.AgentSelector]
	require.Equal(t, models.InvocationCompleted, selector.Status)

	out, ok := selector.Value.(*Output)
	require.True(t, ok)
	assert.Equal(t, "variant two wins", out.Content)
}

func TestAgentFailureCascades(t *testing.T) {
	mock := llm.NewMock()
	mock.Err = assert.AnError
	pol := decideFor(t, "quick dinner")

	s := scheduler.New()
	BuildGraph(s, mock, pol, "quick dinner", ExtractIntent("quick dinner"))

	results, err := s.Execute(context.Background(), pol, false)
	require.NoError(t, err)

	assert.Equal(t, models.InvocationFailed, results[policy.AgentRecipe].Status)
	assert.Equal(t, models.InvocationCancelled, results[policy.AgentPresentation].Status)
}

// Guards the policy/scheduler seam: a degraded monitor forces FAST with
// empty speculative work.
func TestDegradedPolicyPrunesEverythingSpeculative(t *testing.T) {
	engine := policy.NewEngine(nil)
	pol := engine.Decide("what is the best texture for tempura", "", policy.ResourceState{Degraded: true})

	assert.Equal(t, config.ProfileFast, pol.Profile)
	assert.True(t, pol.SpeculativeAgents[policy.AgentRecipeRenderer])
	_ = resource.ErrBudgetExceeded // package seam exercised elsewhere
}
