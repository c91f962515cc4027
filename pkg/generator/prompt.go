// Package generator assembles mode-specific prompts and streams the chat
// response through a real-time artifact scrub and a token callback.
package generator

import (
	"fmt"
	"strings"

	"github.com/umami-labs/brigade/pkg/config"
	"github.com/umami-labs/brigade/pkg/models"
)

var modePersonas = map[config.Mode]string{
	config.ModeConversation: `You are a warm, knowledgeable culinary companion. Answer naturally and concisely, staying on food and cooking.`,
	config.ModeDiagnostic: `You are a culinary troubleshooter. Identify the most likely cause of the described failure, explain the underlying reason briefly, and give one concrete fix.`,
	config.ModeProcedural: `You are a precise recipe instructor. Respond with clear numbered steps, exact quantities and times, and note the critical step where things commonly go wrong.`,
	config.ModeNumericAnalysis: `You are a nutrition analyst. Provide numeric nutrition estimates with stated assumptions.`,
}

var modeConstraints = map[config.Mode]string{
	config.ModeConversation: `Do not state calorie counts, macro grams, or other nutrition numbers. If asked, offer to run a proper nutrition analysis instead.`,
	config.ModeDiagnostic: `Keep the diagnosis focused. Do not emit nutrition numbers; mechanisms yes, milligrams no.`,
	config.ModeProcedural: `Ingredient quantities and cooking measurements are expected. Do not attach nutrition figures to them.`,
	config.ModeNumericAnalysis: ``,
}

const numericConfidencePolicy = `Numeric policy:
- If serving size, portion count, or preparation method is missing, ask a clarifying question before giving numbers.
- Label every figure as an estimate and state the assumption it rests on.
- End with a one-line disclaimer that values are estimates, not measurements.`

// PromptInput carries everything the builder folds into the system prompt.
type PromptInput struct {
	Mode         config.Mode
	Phases       []config.Phase
	PhaseResults map[config.Phase]string
	Compounds    []models.ResolvedCompound
	Preferences  string // pre-rendered injection block, empty when none qualifies
}

// BuildSystemPrompt assembles the layered system prompt for a generation
// call. Sections are ordered persona, constraints, numeric policy, verified
// compounds, phase context, preferences; empty sections are skipped.
func BuildSystemPrompt(in PromptInput) string {
	var sections []string

	sections = append(sections, modePersonas[in.Mode])
	if c := modeConstraints[in.Mode]; c != "" {
		sections = append(sections, c)
	}
	if in.Mode == config.ModeNumericAnalysis {
		sections = append(sections, numericConfidencePolicy)
	}
	if block := compoundBlock(in.Compounds); block != "" {
		sections = append(sections, block)
	}
	if block := phaseBlock(in.Phases, in.PhaseResults); block != "" {
		sections = append(sections, block)
	}
	if in.Preferences != "" {
		// Pre-rendered by the memory layer; the block carries its own header.
		sections = append(sections, in.Preferences)
	}

	return strings.Join(sections, "\n\n")
}

func compoundBlock(compounds []models.ResolvedCompound) string {
	if len(compounds) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Verified compound intelligence (ground mechanistic statements in these only):\n")
	for _, c := range compounds {
		fmt.Fprintf(&b, "- %s (CID %d", c.Name, c.CID)
		if c.MolecularFormula != "" {
			fmt.Fprintf(&b, ", %s", c.MolecularFormula)
		}
		b.WriteString(")\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func phaseBlock(phases []config.Phase, results map[config.Phase]string) string {
	if len(results) == 0 {
		return ""
	}
	ordered := append([]config.Phase(nil), phases...)
	config.SortPhases(ordered)

	var b strings.Builder
	b.WriteString("Reasoning context from earlier phases:\n")
	wrote := false
	for _, p := range ordered {
		if r, ok := results[p]; ok && r != "" {
			fmt.Fprintf(&b, "[%s] %s\n", strings.ToUpper(string(p)), r)
			wrote = true
		}
	}
	if !wrote {
		return ""
	}
	return strings.TrimRight(b.String(), "\n")
}
