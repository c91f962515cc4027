package pubchem

import (
	"regexp"
	"strings"

	"github.com/umami-labs/brigade/pkg/models"
)

// recipeLineRe matches quantity-prefixed recipe lines such as
// "- 200g flour" or "- 2 tbsp olive oil", capturing the ingredient name.
var recipeLineRe = regexp.MustCompile(`(?m)^\s*-\s*\d+(?:\.\d+)?\s*(?:g|kg|mg|ml|l|oz|lb|tsp|tbsp|cup|cups)?\s+(.+)$`)

// DiscoverIngredients picks the ingredient list for resolution, trying
// sources in fixed priority order: an explicit list from the caller, the
// intent's parsed ingredients, quantity-prefixed lines in the message
// itself, then the session context's current ingredients. First non-empty
// source wins; results are deduplicated case-insensitively.
func DiscoverIngredients(explicit []string, intent *models.Intent, message string, sessCtx *models.SessionContext) []string {
	if len(explicit) > 0 {
		return dedupe(explicit)
	}
	if intent != nil && len(intent.Ingredients) > 0 {
		return dedupe(intent.Ingredients)
	}
	if fromLines := parseRecipeLines(message); len(fromLines) > 0 {
		return dedupe(fromLines)
	}
	if sessCtx != nil && len(sessCtx.KeyIngredients) > 0 {
		return dedupe(sessCtx.KeyIngredients)
	}
	return nil
}

func parseRecipeLines(message string) []string {
	var out []string
	for _, match := range recipeLineRe.FindAllStringSubmatch(message, -1) {
		name := strings.TrimSpace(match[1])
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(n))
	}
	return out
}
