package mode

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/umami-labs/brigade/pkg/config"
	"github.com/umami-labs/brigade/pkg/models"
)

func confident(goal string) *models.Intent {
	return &models.Intent{Goal: goal, Confidence: 0.9}
}

func TestSelectPhases(t *testing.T) {
	s := NewSelector()

	tests := []struct {
		name string
		in   PhaseInput
		want []config.Phase
	}{
		{
			"fix question",
			PhaseInput{Message: "how do I fix my broken mayonnaise", Intent: confident("troubleshoot")},
			[]config.Phase{config.PhaseDiagnose, config.PhaseRecommend},
		},
		{
			"what if question",
			PhaseInput{Message: "what happens if I double the yeast", Intent: confident("")},
			[]config.Phase{config.PhaseModel, config.PhasePredict},
		},
		{
			"why question",
			PhaseInput{Message: "why does capsaicin taste hot?", Intent: confident("")},
			[]config.Phase{config.PhaseModel},
		},
		{
			"scientific keyword without confidence",
			PhaseInput{Message: "tell me about the maillard reaction", Intent: &models.Intent{Confidence: 0.1}},
			[]config.Phase{config.PhaseModel},
		},
		{
			"diagnostic phrase",
			PhaseInput{Message: "my bread won't rise at all today", Intent: confident("troubleshoot")},
			[]config.Phase{config.PhaseDiagnose},
		},
		{
			"procedural goes unphased",
			PhaseInput{Message: "recipe for focaccia with rosemary on top", Intent: confident("")},
			nil,
		},
		{
			"sticky diagnose from previous mode",
			PhaseInput{Message: "it is still not great honestly", Intent: confident(""), PrevMode: config.ModeDiagnostic},
			[]config.Phase{config.PhaseDiagnose},
		},
		{
			"default empty",
			PhaseInput{Message: "I enjoy simple pasta dishes", Intent: confident("")},
			nil,
		},
		{
			"empty message",
			PhaseInput{Message: ""},
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Select(tt.in))
		})
	}
}

func TestConfidenceGate(t *testing.T) {
	s := NewSelector()

	// Non-scientific with confidence below the gate: zero phases.
	below := PhaseInput{
		Message: "how do I fix my broken mayonnaise",
		Intent:  &models.Intent{Goal: "troubleshoot", Confidence: 0.59},
	}
	assert.Empty(t, s.Select(below))

	// Exactly 0.6 passes: the gate is strict-less-than.
	at := below
	at.Intent = &models.Intent{Goal: "troubleshoot", Confidence: 0.6}
	assert.Equal(t, []config.Phase{config.PhaseDiagnose, config.PhaseRecommend}, s.Select(at))

	// Nil intent on a non-scientific query: zero phases.
	assert.Empty(t, s.Select(PhaseInput{Message: "how do I fix my broken mayonnaise"}))
}

func TestBeginnerSkipsModel(t *testing.T) {
	s := NewSelector()
	beginner := &models.UserPreferences{
		SkillLevel: models.ConfidentValue[config.SkillLevel]{Value: config.SkillBeginner, Confidence: 0.9},
	}

	// Scientific query, not a why-question: beginner drops MODEL.
	in := PhaseInput{Message: "tell me about gluten development", Intent: confident(""), Prefs: beginner}
	assert.Empty(t, s.Select(in))

	// Explicit why-question keeps MODEL for beginners.
	why := PhaseInput{Message: "why does gluten make dough stretchy", Intent: confident(""), Prefs: beginner}
	assert.Equal(t, []config.Phase{config.PhaseModel}, s.Select(why))
}

func TestSelectIsPure(t *testing.T) {
	s := NewSelector()
	in := PhaseInput{Message: "why does capsaicin taste hot?", Intent: confident("")}
	first := s.Select(in)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, s.Select(in))
	}
}

func TestValidatePhaseContent(t *testing.T) {
	tests := []struct {
		name    string
		phase   config.Phase
		content string
		valid   bool
	}{
		{"recommend with action verb", config.PhaseRecommend, "Reduce the oven temperature and add steam.", true},
		{"recommend without action verb", config.PhaseRecommend, "It is what it is.", false},
		{"model without imperatives", config.PhaseModel, "Gluten forms an elastic network when hydrated.", true},
		{"model with imperative", config.PhaseModel, "First step: you should knead the dough.", false},
		{"diagnose long enough", config.PhaseDiagnose, "The crumb collapsed from overproofing.", true},
		{"diagnose too short", config.PhaseDiagnose, "  bad  ", false},
		{"predict long enough", config.PhasePredict, "The crust will darken much faster.", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidatePhaseContent(tt.phase, tt.content))
		})
	}
}
