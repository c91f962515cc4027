package mode

import "strings"

// Stable keyword sets for the classifier predicates. All matching is
// case-insensitive substring matching; the sets are fixed so classification
// stays deterministic across releases.

var topicShiftPhrases = []string{
	"new question", "anyway", "forget that", "never mind", "nevermind",
	"different topic", "changing topics", "moving on", "let's start over",
	"unrelated", "on another note",
}

var emotionalResetPhrases = []string{
	"ugh, whatever", "forget it", "i give up",
}

var nutritionMarkers = []string{
	"calorie", "calories", "kcal", "macros", "macro breakdown",
	"grams of protein", "grams of carbs", "grams of fat", "nutrition facts",
	"nutritional value", "how many grams", "scoville", "sodium content",
	"sugar content", "protein content", "carb count",
}

var healthTerms = []string{
	"healthy", "healthier", "low carb", "low-carb", "low fat", "low-fat",
	"good for me", "good for you", "nutritious", "diet friendly",
	"diet-friendly", "heart healthy",
}

var proceduralTriggers = []string{
	"how do i make", "how do i cook", "how to make", "how to cook",
	"walk me through", "recipe for", "step by step", "step-by-step",
	"give me the steps", "make me a", "make me an", "show me how",
	"instructions for",
}

var causalTriggers = []string{
	"why does", "why do", "why is", "why did", "how does", "how do enzymes",
	"mechanism", "what causes", "what makes",
}

var diagnosticPhrases = []string{
	"went wrong", "what happened to", "didn't work", "did not work",
	"turned out", "too salty", "too dry", "too dense", "too tough",
	"too bitter", "fell apart", "won't rise", "didn't rise", "ruined",
	"curdled", "burnt", "soggy", "gummy", "split", "seized", "broke",
	"fix my", "fix this", "fix it",
}

var continuationTokens = map[string]bool{
	"ok": true, "okay": true, "yes": true, "yeah": true, "yep": true,
	"sure": true, "thanks": true, "continue": true, "more": true,
	"go": true, "on": true, "please": true, "and": true,
}

// scientificKeywords gate the phase selector: a hit marks the query as
// scientific regardless of intent confidence.
var scientificKeywords = []string{
	"maillard", "gluten", "gelatinization", "caramelization", "emulsion",
	"emulsif", "fermentation", "enzyme", "protein denatur", "starch",
	"capsaicin", "oxidation", "acidity", "ph level", "osmosis", "brine",
	"coagulation", "crystallization", "hydration ratio", "yeast activity",
	"amylase", "pectin", "collagen", "retrogradation",
}

func matchesAny(message string, phrases []string) bool {
	lower := strings.ToLower(message)
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func isTopicShift(message string) bool {
	return matchesAny(message, topicShiftPhrases) || matchesAny(message, emotionalResetPhrases)
}

func asksForNutrition(message string) bool {
	return matchesAny(message, nutritionMarkers)
}

func asksForHealth(message string) bool {
	return matchesAny(message, healthTerms)
}

func asksForSteps(message string) bool {
	return matchesAny(message, proceduralTriggers)
}

func isCausalIntent(message string) bool {
	return matchesAny(message, causalTriggers)
}

func isDiagnosticPhrase(message string) bool {
	return matchesAny(message, diagnosticPhrases)
}

func isScientificQuery(message string) bool {
	return matchesAny(message, scientificKeywords)
}

// isLowRelevance marks utterances under 3 tokens that are not affirmations
// or continuation tokens.
func isLowRelevance(message string) bool {
	fields := strings.Fields(strings.ToLower(message))
	if len(fields) >= 3 {
		return false
	}
	for _, f := range fields {
		if continuationTokens[strings.Trim(f, ".,!?")] {
			return false
		}
	}
	return true
}
