// Package retrieval routes queries to named index sets, keeps heavy indexes
// inside a resident-set memory policy, and throttles embedding computations
// process-wide.
package retrieval

import (
	"log/slog"
	"strings"
)

// Named index sets the router can target.
const (
	IndexChemistry  = "chemistry"
	IndexScience    = "science"
	IndexBranded    = "nutrition_branded"
	IndexFoundation = "nutrition_foundation"
	IndexRecipes    = "recipes"
)

var chemistryKeywords = []string{
	"compound", "molecule", "molecular", "capsaicin", "maillard", "reaction",
	"acid", "alkaline", "ph", "scoville", "solubility", "emulsion",
}

var scienceKeywords = []string{
	"why", "how does", "mechanism", "temperature", "protein", "gluten",
	"fermentation", "enzyme", "starch", "gelatinization", "denature",
}

var brandedKeywords = []string{
	"brand", "branded", "store-bought", "packaged", "label", "product",
}

var nutritionKeywords = []string{
	"nutrition", "calorie", "kcal", "macro", "vitamin", "mineral",
	"fiber", "sodium", "nutrient",
}

// Route returns the index sets to query for the message, most specific
// first. Recipes is the fallback when nothing else matches. The routing
// decision is always logged.
func Route(message string) []string {
	lower := strings.ToLower(message)
	var indexes []string
	var reasons []string

	if containsAny(lower, chemistryKeywords) {
		indexes = append(indexes, IndexChemistry, IndexScience)
		reasons = append(reasons, "chemistry keywords")
	} else if containsAny(lower, scienceKeywords) {
		indexes = append(indexes, IndexScience)
		reasons = append(reasons, "science keywords")
	}

	if containsAny(lower, nutritionKeywords) {
		if containsAny(lower, brandedKeywords) {
			indexes = append(indexes, IndexBranded)
			reasons = append(reasons, "branded nutrition keywords")
		} else {
			indexes = append(indexes, IndexFoundation)
			reasons = append(reasons, "nutrition keywords")
		}
	}

	if len(indexes) == 0 {
		indexes = append(indexes, IndexRecipes)
		reasons = append(reasons, "default")
	}

	slog.Info("Retrieval routing decision",
		"indexes", indexes, "reasons", strings.Join(reasons, ", "))
	return indexes
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
