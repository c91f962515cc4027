package governance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/umami-labs/brigade/pkg/config"
)

func TestStripStrictPatterns(t *testing.T) {
	tests := []struct {
		name string
		mode config.Mode
		in   string
	}{
		{"kcal in conversation", config.ModeConversation, "This dish has about 450 kcal per serving."},
		{"calorie label in diagnostic", config.ModeDiagnostic, "Calories: 500 for the whole tray."},
		{"protein label in procedural", config.ModeProcedural, "Protein: 32 g after resting."},
		{"contains grams", config.ModeConversation, "It contains 12 g per slice."},
		{"scoville claim", config.ModeDiagnostic, "Habaneros reach 350,000 Scoville easily."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, n := Strip(tt.mode, tt.in)
			assert.Greater(t, n, 0)
			assert.NotContains(t, out, "kcal")
			assert.NotContains(t, out, "500")
			assert.NotContains(t, out, "32 g")
			assert.NotContains(t, out, "12 g")
			assert.NotContains(t, out, "350,000")
		})
	}
}

func TestStripNumericModePassThrough(t *testing.T) {
	in := "Calories: 500, Protein: 32 g, roughly 450 kcal total."
	out, n := Strip(config.ModeNumericAnalysis, in)
	assert.Equal(t, in, out)
	assert.Zero(t, n)
}

func TestStripContextualUnits(t *testing.T) {
	tests := []struct {
		name      string
		mode      config.Mode
		in        string
		wantKept  string
		wantGone  string
	}{
		{
			name:     "procedural keeps recipe quantity",
			mode:     config.ModeProcedural,
			in:       "Add 200 g flour and knead for ten minutes.",
			wantKept: "200 g",
		},
		{
			name:     "procedural strips nutrient-labeled quantity",
			mode:     config.ModeProcedural,
			in:       "This step adds 15 g of protein to the dish.",
			wantGone: "15 g",
		},
		{
			name:     "conversation strips bare quantity",
			mode:     config.ModeConversation,
			in:       "You end up with roughly 30 g overall.",
			wantGone: "30 g",
		},
		{
			name:     "conversation keeps volume reference",
			mode:     config.ModeConversation,
			in:       "Use 250 g of flour for the base.",
			wantKept: "250 g",
		},
		{
			name:     "conversation strips volume reference near ambiguous keyword",
			mode:     config.ModeConversation,
			in:       "The fat content means 40 g of butter matters here.",
			wantGone: "40 g",
		},
		{
			name:     "percent stripped in diagnostic",
			mode:     config.ModeDiagnostic,
			in:       "That cheese is about 45% overall.",
			wantGone: "45%",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _ := Strip(tt.mode, tt.in)
			if tt.wantKept != "" {
				assert.Contains(t, out, tt.wantKept)
			}
			if tt.wantGone != "" {
				assert.NotContains(t, out, tt.wantGone)
			}
		})
	}
}

func TestStripLeavesPlainWordsAlone(t *testing.T) {
	in := "Use 200 grams of flour and bake until golden."
	out, n := Strip(config.ModeConversation, in)
	assert.Equal(t, in, out)
	assert.Zero(t, n)
}
