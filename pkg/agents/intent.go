package agents

import (
	"strings"
	"time"

	"github.com/umami-labs/brigade/pkg/memory"
	"github.com/umami-labs/brigade/pkg/models"
)

// Goal values the intent extractor distinguishes.
const (
	GoalOptimizeNutrition = "optimize_nutrition"
	GoalModifyRecipe      = "modify_recipe"
	GoalTroubleshoot      = "troubleshoot"
	GoalDiagnose          = "diagnose"
	GoalGeneral           = "general"
)

const (
	intentHighConfidence = 0.9
	intentLowConfidence  = 0.4
)

var goalTriggers = []struct {
	goal     string
	keywords []string
}{
	{GoalOptimizeNutrition, []string{"healthier", "lower calorie", "more protein", "less fat", "nutritional", "macro"}},
	{GoalModifyRecipe, []string{"substitute", "replace", "instead of", "without", "swap", "make it", "adapt"}},
	{GoalTroubleshoot, []string{"went wrong", "failed", "didn't work", "fix", "too salty", "too dry", "burnt", "soggy"}},
	{GoalDiagnose, []string{"why did", "why is", "why does", "what happened", "what causes"}},
}

// ExtractIntent derives the request intent deterministically: keyword-hit
// goals carry high confidence, everything else degrades to a low-confidence
// general goal that downstream gates treat as absent.
func ExtractIntent(message string) *models.Intent {
	lower := strings.ToLower(message)

	intent := &models.Intent{Goal: GoalGeneral, Confidence: intentLowConfidence}
	for _, t := range goalTriggers {
		for _, kw := range t.keywords {
			if strings.Contains(lower, kw) {
				intent.Goal = t.goal
				intent.Confidence = intentHighConfidence
				break
			}
		}
		if intent.Goal != GoalGeneral {
			break
		}
	}

	if sc := memory.ExtractContext("", message, time.Now()); sc != nil {
		intent.Dish = sc.CurrentDish
		intent.Ingredients = sc.KeyIngredients
	}
	return intent
}
