// Package mode decides the response register and the reasoning structure
// for one turn: a sticky state machine over the user utterance plus the
// previous mode, and a confidence-gated phase selector. Both are pure
// functions of their inputs.
package mode

import (
	"log/slog"

	"github.com/umami-labs/brigade/pkg/config"
	"github.com/umami-labs/brigade/pkg/models"
)

// Classifier is the sticky response-mode state machine. Stateless itself;
// stickiness comes from threading the previous mode through Classify.
type Classifier struct{}

// NewClassifier creates a mode classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify returns the response mode for this turn. intent may be nil.
// Idempotent on identical (message, prev) pairs.
func (c *Classifier) Classify(message string, intent *models.Intent, prev config.Mode) config.Mode {
	next, rule := c.classify(message, intent, prev)
	slog.Info("Mode transition",
		"previous", prev, "next", next, "rule", rule)
	return next
}

func (c *Classifier) classify(message string, intent *models.Intent, prev config.Mode) (config.Mode, string) {
	if !prev.IsValid() {
		prev = config.ModeConversation
	}

	// Topic shifts reset every mode.
	if isTopicShift(message) {
		return config.ModeConversation, "topic_shift"
	}

	switch prev {
	case config.ModeNumericAnalysis:
		if isLowRelevance(message) {
			return config.ModeConversation, "numeric_low_relevance_decay"
		}
		return config.ModeNumericAnalysis, "numeric_sticky"

	case config.ModeProcedural:
		if asksForNutrition(message) {
			return config.ModeNumericAnalysis, "procedural_nutrition_jump"
		}
		return config.ModeProcedural, "procedural_sticky"

	case config.ModeDiagnostic:
		if isLowRelevance(message) {
			return config.ModeConversation, "diagnostic_low_relevance_decay"
		}
		if asksForNutrition(message) {
			return config.ModeNumericAnalysis, "diagnostic_nutrition_jump"
		}
		if asksForSteps(message) {
			return config.ModeProcedural, "diagnostic_steps_jump"
		}
		return config.ModeDiagnostic, "diagnostic_sticky"
	}

	// Fresh conversation.
	if asksForNutrition(message) {
		return config.ModeNumericAnalysis, "conversation_nutrition"
	}
	if asksForSteps(message) {
		return config.ModeProcedural, "conversation_steps"
	}
	if isDiagnosticPhrase(message) || asksForHealth(message) {
		return config.ModeDiagnostic, "conversation_diagnostic_phrase"
	}

	if intent != nil {
		switch intent.Goal {
		case "optimize_nutrition":
			if asksForNutrition(message) {
				return config.ModeNumericAnalysis, "intent_optimize_nutrition_numeric"
			}
			return config.ModeDiagnostic, "intent_optimize_nutrition"
		case "modify_recipe", "troubleshoot", "diagnose":
			if asksForSteps(message) {
				return config.ModeProcedural, "intent_modify_steps"
			}
			return config.ModeDiagnostic, "intent_modify"
		}
	}

	return config.ModeConversation, "conversation_default"
}
