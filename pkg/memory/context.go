package memory

import (
	"strings"
	"time"

	"github.com/umami-labs/brigade/pkg/models"
)

// Known dishes and techniques for the heuristic context lifter. The lifter
// is intentionally conservative: it returns nil rather than an empty
// context, so a null extraction never overwrites prior state.
var knownDishes = []string{
	"carbonara", "risotto", "focaccia", "sourdough", "hollandaise", "ramen",
	"paella", "lasagna", "gnocchi", "brisket", "croissant", "pavlova",
	"tiramisu", "bolognese", "pho", "curry", "tagine", "ratatouille",
	"omelette", "souffle", "pizza", "bread", "cheesecake", "brownies",
}

var knownTechniques = []string{
	"sous vide", "braise", "braising", "ferment", "fermenting", "smoking",
	"grilling", "roasting", "poaching", "blanching", "emulsify", "proofing",
	"kneading", "tempering", "deglazing", "reduction", "caramelizing",
	"searing", "confit", "pickling",
}

var ingredientHints = []string{
	"flour", "butter", "eggs", "egg", "sugar", "yeast", "milk", "cream",
	"garlic", "onion", "tomato", "basil", "olive oil", "parmesan",
	"guanciale", "pancetta", "chicken", "beef", "pork", "salmon", "rice",
	"pasta", "chocolate", "vanilla", "lemon", "chili", "capsaicin",
}

// ExtractContext lifts dish, technique, and key ingredients from the user
// message. Returns nil when nothing was found.
func ExtractContext(sessionID, message string, now time.Time) *models.SessionContext {
	lower := strings.ToLower(message)

	ctx := &models.SessionContext{SessionID: sessionID, UpdatedAt: now}
	found := false

	for _, dish := range knownDishes {
		if strings.Contains(lower, dish) {
			ctx.CurrentDish = dish
			found = true
			break
		}
	}
	for _, tech := range knownTechniques {
		if strings.Contains(lower, tech) {
			ctx.Technique = tech
			found = true
			break
		}
	}
	for _, ing := range ingredientHints {
		if containsWord(lower, ing) {
			ctx.KeyIngredients = append(ctx.KeyIngredients, ing)
			found = true
		}
	}

	if !found {
		return nil
	}
	return ctx
}

// containsWord matches ing as a whole word-ish token so "rice" does not hit
// inside "price".
func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isLetter(text[start-1])
		afterOK := end == len(text) || !isLetter(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
