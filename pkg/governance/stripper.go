// Package governance validates generated responses after the fact: a
// mode-aware stripper removes numeric nutrition leakage, and a tiered
// claim-recovery path backfills claims when the narrative asserts
// mechanism without any extracted claim backing it.
package governance

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/umami-labs/brigade/pkg/config"
)

const neutralAmount = "a moderate amount"

const windowChars = 25

// Strict patterns are stripped in every governed mode.
var strictPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b\d[\d,]*(?:\.\d+)?\s*kcal\b`),
	regexp.MustCompile(`(?i)\b(?:calories|protein|fat|carbs?|carbohydrates?|sugars?)\s*:\s*~?\d[\d,]*(?:\.\d+)?\s*(?:g|mg|kcal|%)?`),
	regexp.MustCompile(`(?i)\b(?:provides|contains)\s+(?:about\s+|around\s+|approximately\s+)?\d[\d,]*(?:\.\d+)?\s*(?:g|mg)\b`),
	regexp.MustCompile(`(?i)\b\d[\d,]*(?:\.\d+)?\s*(?:scoville|shu)\b`),
}

// contextualUnitRe matches bare quantity-unit spans. The trailing word
// boundary keeps "200 grams" out of the g alternative.
var contextualUnitRe = regexp.MustCompile(`\b\d[\d,]*(?:\.\d+)?\s*(?:mg\b|g\b|%)`)

var ofWordRe = regexp.MustCompile(`^\s+of\s+[A-Za-z]`)

var strictNutrientKeywords = []string{
	"protein", "carb", "fiber", "sodium", "cholesterol", "vitamin",
}

var ambiguousNutrientKeywords = []string{"sugar", "fat"}

// softenRe collapses punctuation debris left behind by span removal.
var softenRe = regexp.MustCompile(`\s{2,}|\s+([.,;:!?])`)

// Strip removes numeric nutrition leakage from an assembled response.
// NUMERIC_ANALYSIS is the authorized numeric surface and passes through
// untouched. Returns the cleaned text and the number of spans stripped.
func Strip(mode config.Mode, text string) (string, int) {
	if mode == config.ModeNumericAnalysis {
		return text, 0
	}

	stripped := 0
	out := text
	for _, re := range strictPatterns {
		out = re.ReplaceAllStringFunc(out, func(string) string {
			stripped++
			return neutralAmount
		})
	}

	out = replaceContextual(mode, out, &stripped)

	if stripped > 0 {
		out = soften(out)
		slog.Debug("Nutrition governance stripped spans", "mode", mode, "count", stripped)
	}
	return out, stripped
}

func replaceContextual(mode config.Mode, text string, stripped *int) string {
	matches := contextualUnitRe.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	prev := 0
	for _, m := range matches {
		keep := keepContextual(mode, text, m[0], m[1])
		b.WriteString(text[prev:m[0]])
		if keep {
			b.WriteString(text[m[0]:m[1]])
		} else {
			b.WriteString(neutralAmount)
			*stripped++
		}
		prev = m[1]
	}
	b.WriteString(text[prev:])
	return b.String()
}

// keepContextual decides whether a bare quantity-unit span survives.
// PROCEDURAL keeps units except when a strict nutrient keyword sits in the
// surrounding window; other modes keep only culinary volume references
// ("NNN g of flour") with no nutrient keyword nearby.
func keepContextual(mode config.Mode, text string, start, end int) bool {
	window := strings.ToLower(surrounding(text, start, end))

	if mode == config.ModeProcedural {
		return !containsAny(window, strictNutrientKeywords)
	}

	if !ofWordRe.MatchString(text[end:]) {
		return false
	}
	return !containsAny(window, strictNutrientKeywords) &&
		!containsAny(window, ambiguousNutrientKeywords)
}

func surrounding(text string, start, end int) string {
	lo := start - windowChars
	if lo < 0 {
		lo = 0
	}
	hi := end + windowChars
	if hi > len(text) {
		hi = len(text)
	}
	return text[lo:hi]
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func soften(s string) string {
	return softenRe.ReplaceAllStringFunc(s, func(m string) string {
		trimmed := strings.TrimLeft(m, " \t")
		if trimmed == "" {
			return " "
		}
		return trimmed
	})
}
