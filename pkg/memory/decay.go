package memory

import (
	"log/slog"
	"strings"
	"time"

	"github.com/umami-labs/brigade/pkg/models"
)

// Decay subtracts amount from every preference confidence whose
// last-confirmed time is more than after in the past, clamped at zero.
// Called at session start.
func Decay(prefs *models.UserPreferences, now time.Time, after time.Duration, amount float64) {
	decayed := false
	apply := func(lastConfirmed time.Time, confidence *float64) {
		if lastConfirmed.IsZero() || now.Sub(lastConfirmed) <= after {
			return
		}
		*confidence = max(0, *confidence-amount)
		decayed = true
	}

	apply(prefs.SkillLevel.LastConfirmedAt, &prefs.SkillLevel.Confidence)
	apply(prefs.Equipment.LastConfirmedAt, &prefs.Equipment.Confidence)
	apply(prefs.DietaryConstraints.LastConfirmedAt, &prefs.DietaryConstraints.Confidence)

	if decayed {
		slog.Info("Preference confidences decayed",
			"user_id", prefs.UserID, "amount", amount)
	}
}

// InjectionBlock renders the preferences worth injecting into the generation
// prompt: at most one copy of each field with confidence at or above the
// injection threshold. Empty string when nothing qualifies.
func InjectionBlock(prefs *models.UserPreferences) string {
	if prefs == nil {
		return ""
	}
	var lines []string
	if prefs.SkillLevel.Value != "" && prefs.SkillLevel.Confidence >= injectionThreshold {
		lines = append(lines, "Skill level: "+string(prefs.SkillLevel.Value))
	}
	if len(prefs.Equipment.Value) > 0 && prefs.Equipment.Confidence >= injectionThreshold {
		lines = append(lines, "Equipment: "+strings.Join(prefs.Equipment.Value, ", "))
	}
	if len(prefs.DietaryConstraints.Value) > 0 && prefs.DietaryConstraints.Confidence >= injectionThreshold {
		lines = append(lines, "Dietary constraints: "+strings.Join(prefs.DietaryConstraints.Value, ", "))
	}
	if len(lines) == 0 {
		return ""
	}
	return "Known user preferences:\n" + strings.Join(lines, "\n")
}
