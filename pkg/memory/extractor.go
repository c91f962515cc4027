// Package memory maintains the two memory scopes: user-scoped preferences
// (skill, equipment, dietary constraints, each with decaying confidence)
// and session-scoped context (dish, ingredients, technique, replaced
// wholesale on update).
//
// Preference extraction is two-stage: a deterministic trigger filter first,
// and only when a trigger fires a constrained LLM extraction whose output
// is clipped to the triggered fields. No trigger, no LLM call.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/umami-labs/brigade/pkg/config"
	"github.com/umami-labs/brigade/pkg/llm"
	"github.com/umami-labs/brigade/pkg/models"
)

// Confidence assignments per trigger class. Dietary constraints are
// safety-critical and carry the highest confidence.
const (
	skillConfidence     = 0.9
	equipmentConfidence = 0.9
	dietaryConfidence   = 0.95
	injectionThreshold  = 0.6
)

var skillTriggers = []string{
	"i'm a beginner", "i am a beginner", "new to cooking", "just started cooking",
	"i'm an expert", "i am an expert", "professional chef", "i cook a lot",
	"experienced cook", "intermediate cook", "pretty good at cooking",
}

var equipmentTriggers = []string{
	"i have a", "i own a", "i don't have a", "i do not have a", "my oven",
	"my stove", "my blender", "my stand mixer", "my food processor",
	"my air fryer", "my sous vide", "my cast iron", "no oven", "without an oven",
}

var dietaryTriggers = []string{
	"i'm vegan", "i am vegan", "i'm vegetarian", "i am vegetarian",
	"allergic to", "allergy", "gluten-free", "gluten free", "lactose",
	"dairy-free", "dairy free", "kosher", "halal", "no pork", "no shellfish",
	"low sodium", "keto", "i can't eat", "i cannot eat", "intolerant",
}

// PreferenceUpdate is the accepted output of one extraction pass. Nil fields
// were not triggered or not extracted.
type PreferenceUpdate struct {
	SkillLevel         *config.SkillLevel
	Equipment          []string
	DietaryConstraints []string
}

// Empty reports whether the update carries nothing.
func (u *PreferenceUpdate) Empty() bool {
	return u == nil || (u.SkillLevel == nil && len(u.Equipment) == 0 && len(u.DietaryConstraints) == 0)
}

// Extractor runs the two-stage preference extraction.
type Extractor struct {
	client llm.ChatClient
}

// NewExtractor creates an extractor over the given chat backend.
func NewExtractor(client llm.ChatClient) *Extractor {
	return &Extractor{client: client}
}

// triggers is the stage-1 result.
type triggers struct {
	skill     bool
	equipment bool
	dietary   bool
}

func (t triggers) any() bool { return t.skill || t.equipment || t.dietary }

func detectTriggers(message string) triggers {
	lower := strings.ToLower(message)
	has := func(set []string) bool {
		for _, s := range set {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}
	return triggers{
		skill:     has(skillTriggers),
		equipment: has(equipmentTriggers),
		dietary:   has(dietaryTriggers),
	}
}

const extractionSystem = `Extract user preferences from the message as strict JSON with exactly these optional fields:
{"skill_level": "beginner|intermediate|expert", "equipment": ["..."], "dietary_constraints": ["..."]}
Include only fields the message states explicitly. Output the JSON object and nothing else.`

// rawExtraction mirrors the constrained LLM output schema.
type rawExtraction struct {
	SkillLevel         string   `json:"skill_level"`
	Equipment          []string `json:"equipment"`
	DietaryConstraints []string `json:"dietary_constraints"`
}

// Extract runs both stages against one user message. Returns nil when no
// trigger fired — un-triggered LLM updates are rejected by construction.
func (e *Extractor) Extract(ctx context.Context, message string) (*PreferenceUpdate, error) {
	trig := detectTriggers(message)
	if !trig.any() {
		return nil, nil
	}

	result, err := e.client.Complete(ctx, llm.Request{
		System:    extractionSystem,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: message}},
		MaxTokens: 256,
	})
	if err != nil {
		return nil, fmt.Errorf("preference extraction: %w", err)
	}

	var raw rawExtraction
	if err := json.Unmarshal([]byte(extractJSON(result.Text)), &raw); err != nil {
		slog.Warn("Preference extraction produced unparsable output", "error", err)
		return nil, nil
	}

	// Clip the output to the triggered fields.
	update := &PreferenceUpdate{}
	if trig.skill && config.SkillLevel(raw.SkillLevel).IsValid() {
		lvl := config.SkillLevel(raw.SkillLevel)
		update.SkillLevel = &lvl
	}
	if trig.equipment {
		update.Equipment = raw.Equipment
	}
	if trig.dietary {
		update.DietaryConstraints = raw.DietaryConstraints
	}
	if update.Empty() {
		return nil, nil
	}
	return update, nil
}

// Apply folds an update into the preferences, stamping confidences and
// last-confirmed times.
func Apply(prefs *models.UserPreferences, update *PreferenceUpdate, now time.Time) {
	if update.Empty() {
		return
	}
	if update.SkillLevel != nil {
		prefs.SkillLevel = models.ConfidentValue[config.SkillLevel]{
			Value: *update.SkillLevel, Confidence: skillConfidence, LastConfirmedAt: now,
		}
	}
	if len(update.Equipment) > 0 {
		merged := mergeList(prefs.Equipment.Value, update.Equipment)
		prefs.Equipment = models.ConfidentValue[[]string]{
			Value: merged, Confidence: equipmentConfidence, LastConfirmedAt: now,
		}
	}
	if len(update.DietaryConstraints) > 0 {
		merged := mergeList(prefs.DietaryConstraints.Value, update.DietaryConstraints)
		prefs.DietaryConstraints = models.ConfidentValue[[]string]{
			Value: merged, Confidence: dietaryConfidence, LastConfirmedAt: now,
		}
	}
	prefs.UpdatedAt = now
}

func mergeList(existing, incoming []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(existing)+len(incoming))
	for _, v := range append(append([]string{}, existing...), incoming...) {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(v))
	}
	return out
}

// extractJSON lifts the first {...} object out of LLM output that may carry
// prose around it.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return text
	}
	return text[start : end+1]
}
