package mode

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/umami-labs/brigade/pkg/config"
	"github.com/umami-labs/brigade/pkg/models"
)

func TestClassifyTransitions(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name    string
		message string
		intent  *models.Intent
		prev    config.Mode
		want    config.Mode
	}{
		// Topic shifts reset everything.
		{"shift from numeric", "anyway, tell me about knives", nil, config.ModeNumericAnalysis, config.ModeConversation},
		{"shift from procedural", "new question: what is sous vide", nil, config.ModeProcedural, config.ModeConversation},

		// NUMERIC_ANALYSIS stickiness and decay.
		{"numeric sticky", "and for two servings?", nil, config.ModeNumericAnalysis, config.ModeNumericAnalysis},
		{"numeric low relevance decays", "hm", nil, config.ModeNumericAnalysis, config.ModeConversation},
		{"numeric continuation stays", "ok", nil, config.ModeNumericAnalysis, config.ModeNumericAnalysis},

		// PROCEDURAL stickiness.
		{"procedural sticky", "what about the sauce", nil, config.ModeProcedural, config.ModeProcedural},
		{"procedural short followup sticky", "hm", nil, config.ModeProcedural, config.ModeProcedural},
		{"procedural nutrition jump", "how many calories is that", nil, config.ModeProcedural, config.ModeNumericAnalysis},

		// DIAGNOSTIC transitions.
		{"diagnostic sticky", "it still tastes off", nil, config.ModeDiagnostic, config.ModeDiagnostic},
		{"diagnostic low relevance decays", "hm", nil, config.ModeDiagnostic, config.ModeConversation},
		{"diagnostic nutrition jump", "what is the sugar content here", nil, config.ModeDiagnostic, config.ModeNumericAnalysis},
		{"diagnostic steps jump", "ok walk me through it again", nil, config.ModeDiagnostic, config.ModeProcedural},

		// Fresh conversation routing.
		{"nutrition request", "how many calories in one serving?", nil, config.ModeConversation, config.ModeNumericAnalysis},
		{"steps request", "recipe for carbonara please", nil, config.ModeConversation, config.ModeProcedural},
		{"failure phrase", "my hollandaise curdled", nil, config.ModeConversation, config.ModeDiagnostic},
		{"health question", "is this healthy for dinner", nil, config.ModeConversation, config.ModeDiagnostic},
		{"plain chat", "I love cooking on weekends", nil, config.ModeConversation, config.ModeConversation},
		{"empty message", "", nil, config.ModeConversation, config.ModeConversation},

		// Intent-goal routing.
		{"optimize_nutrition without numbers", "make this better for my diet plan", &models.Intent{Goal: "optimize_nutrition"}, config.ModeConversation, config.ModeDiagnostic},
		{"optimize_nutrition with numbers", "cut the calories in this dish", &models.Intent{Goal: "optimize_nutrition"}, config.ModeConversation, config.ModeNumericAnalysis},
		{"troubleshoot without steps", "something is off with my dough", &models.Intent{Goal: "troubleshoot"}, config.ModeConversation, config.ModeDiagnostic},
		{"modify_recipe with steps", "show me how to swap the butter", &models.Intent{Goal: "modify_recipe"}, config.ModeConversation, config.ModeProcedural},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.message, tt.intent, tt.prev))
		})
	}
}

func TestClassifyIdempotent(t *testing.T) {
	c := NewClassifier()
	msg := "my hollandaise curdled"
	first := c.Classify(msg, nil, config.ModeConversation)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, c.Classify(msg, nil, config.ModeConversation))
	}
}

func TestLowRelevance(t *testing.T) {
	tests := []struct {
		message string
		want    bool
	}{
		{"hm", true},
		{"ok", false},
		{"yes please", false},
		{"go on", false},
		{"what about the second rise", false},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.want, isLowRelevance(tt.message))
		})
	}
}
