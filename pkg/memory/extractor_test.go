package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umami-labs/brigade/pkg/config"
	"github.com/umami-labs/brigade/pkg/llm"
	"github.com/umami-labs/brigade/pkg/models"
)

func TestExtractNoTriggerSkipsLLM(t *testing.T) {
	mock := llm.NewMock()
	e := NewExtractor(mock)

	update, err := e.Extract(context.Background(), "what should I cook tonight?")
	require.NoError(t, err)
	assert.Nil(t, update)
	assert.Empty(t, mock.Calls, "stage 1 must gate the LLM call")
}

func TestExtractTriggeredFieldsOnly(t *testing.T) {
	mock := llm.NewMock()
	// The LLM over-reports: claims a dietary constraint the message never
	// triggered. Only the skill field may be accepted.
	mock.Default = `{"skill_level": "beginner", "dietary_constraints": ["vegan"]}`
	e := NewExtractor(mock)

	update, err := e.Extract(context.Background(), "I'm a beginner, keep it simple")
	require.NoError(t, err)
	require.NotNil(t, update)
	require.NotNil(t, update.SkillLevel)
	assert.Equal(t, config.SkillBeginner, *update.SkillLevel)
	assert.Empty(t, update.DietaryConstraints, "un-triggered fields are rejected")
	assert.Len(t, mock.Calls, 1)
}

func TestExtractDietary(t *testing.T) {
	mock := llm.NewMock()
	mock.Default = `{"dietary_constraints": ["peanut allergy"]}`
	e := NewExtractor(mock)

	update, err := e.Extract(context.Background(), "careful, I'm allergic to peanuts")
	require.NoError(t, err)
	require.NotNil(t, update)
	assert.Equal(t, []string{"peanut allergy"}, update.DietaryConstraints)
}

func TestApplyConfidences(t *testing.T) {
	now := time.Now()
	prefs := &models.UserPreferences{UserID: "u1"}
	skill := config.SkillExpert

	Apply(prefs, &PreferenceUpdate{
		SkillLevel:         &skill,
		Equipment:          []string{"stand mixer"},
		DietaryConstraints: []string{"vegetarian"},
	}, now)

	assert.Equal(t, 0.9, prefs.SkillLevel.Confidence)
	assert.Equal(t, 0.9, prefs.Equipment.Confidence)
	assert.Equal(t, 0.95, prefs.DietaryConstraints.Confidence, "dietary is safety-critical")
	assert.Equal(t, now, prefs.SkillLevel.LastConfirmedAt)
}

func TestApplyMergesLists(t *testing.T) {
	now := time.Now()
	prefs := &models.UserPreferences{
		Equipment: models.ConfidentValue[[]string]{Value: []string{"Dutch oven"}, Confidence: 0.9},
	}

	Apply(prefs, &PreferenceUpdate{Equipment: []string{"stand mixer", "dutch oven"}}, now)
	assert.Equal(t, []string{"Dutch oven", "stand mixer"}, prefs.Equipment.Value)
}

func TestDecay(t *testing.T) {
	now := time.Now()
	old := now.Add(-91 * 24 * time.Hour)
	fresh := now.Add(-10 * 24 * time.Hour)

	prefs := &models.UserPreferences{
		SkillLevel:         models.ConfidentValue[config.SkillLevel]{Value: config.SkillExpert, Confidence: 0.9, LastConfirmedAt: old},
		Equipment:          models.ConfidentValue[[]string]{Value: []string{"wok"}, Confidence: 0.1, LastConfirmedAt: old},
		DietaryConstraints: models.ConfidentValue[[]string]{Value: []string{"vegan"}, Confidence: 0.95, LastConfirmedAt: fresh},
	}

	Decay(prefs, now, 90*24*time.Hour, 0.2)

	assert.InDelta(t, 0.7, prefs.SkillLevel.Confidence, 1e-9)
	assert.Equal(t, 0.0, prefs.Equipment.Confidence, "clamped at zero")
	assert.Equal(t, 0.95, prefs.DietaryConstraints.Confidence, "fresh field untouched")
}

func TestInjectionBlock(t *testing.T) {
	prefs := &models.UserPreferences{
		SkillLevel:         models.ConfidentValue[config.SkillLevel]{Value: config.SkillExpert, Confidence: 0.9},
		Equipment:          models.ConfidentValue[[]string]{Value: []string{"wok"}, Confidence: 0.5},
		DietaryConstraints: models.ConfidentValue[[]string]{Value: []string{"vegan"}, Confidence: 0.95},
	}

	block := InjectionBlock(prefs)
	assert.Contains(t, block, "Skill level: expert")
	assert.Contains(t, block, "Dietary constraints: vegan")
	assert.NotContains(t, block, "wok", "below-threshold fields are not injected")

	assert.Empty(t, InjectionBlock(nil))
	assert.Empty(t, InjectionBlock(&models.UserPreferences{}))
}

func TestExtractContext(t *testing.T) {
	now := time.Now()

	ctx := ExtractContext("s1", "Make me a carbonara with 500g flour and guanciale", now)
	require.NotNil(t, ctx)
	assert.Equal(t, "carbonara", ctx.CurrentDish)
	assert.Contains(t, ctx.KeyIngredients, "flour")
	assert.Contains(t, ctx.KeyIngredients, "guanciale")

	// Nothing recognizable: nil, never an empty overwrite.
	assert.Nil(t, ExtractContext("s1", "thanks, that was great", now))

	// Technique lifts too.
	tech := ExtractContext("s1", "can I sous vide this instead", now)
	require.NotNil(t, tech)
	assert.Equal(t, "sous vide", tech.Technique)
}
