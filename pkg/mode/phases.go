package mode

import (
	"log/slog"
	"strings"

	"github.com/umami-labs/brigade/pkg/config"
	"github.com/umami-labs/brigade/pkg/models"
)

// intentConfidenceGate: non-scientific queries below this confidence take the
// zero-phase path. Strict less-than: exactly 0.6 passes.
const intentConfidenceGate = 0.6

// PhaseInput bundles the selector's inputs. The selector is a pure function
// of this struct.
type PhaseInput struct {
	Message  string
	Mode     config.Mode
	PrevMode config.Mode
	Intent   *models.Intent
	Prefs    *models.UserPreferences
}

// Selector chooses an ordered subset of the canonical phases.
type Selector struct{}

// NewSelector creates a phase selector.
func NewSelector() *Selector {
	return &Selector{}
}

// Select returns the phases for this turn in canonical order. An empty
// result means direct, unphased generation — silence beats wrong structure.
func (s *Selector) Select(in PhaseInput) []config.Phase {
	phases := s.selectRaw(in)
	config.SortPhases(phases)
	slog.Info("Phases selected", "phases", phases, "mode", in.Mode)
	return phases
}

func (s *Selector) selectRaw(in PhaseInput) []config.Phase {
	lower := strings.ToLower(in.Message)
	scientific := isScientificQuery(in.Message)

	// Confidence gate: no scientific hit and weak intent means no structure.
	if !scientific {
		conf := 0.0
		if in.Intent != nil {
			conf = in.Intent.Confidence
		}
		if conf < intentConfidenceGate {
			return nil
		}
	}

	procedural := asksForSteps(in.Message)

	var phases []config.Phase
	switch {
	case strings.Contains(lower, "how do i fix") || strings.Contains(lower, "how to fix"):
		phases = []config.Phase{config.PhaseDiagnose, config.PhaseRecommend}
	case strings.Contains(lower, "what if") || strings.Contains(lower, "what happens if"):
		phases = []config.Phase{config.PhasePredict, config.PhaseModel}
	case isCausalIntent(in.Message) || scientific:
		phases = []config.Phase{config.PhaseModel}
	case isDiagnosticPhrase(in.Message) && !procedural:
		phases = []config.Phase{config.PhaseDiagnose}
	case procedural:
		return nil // direct steps, no phasing
	case in.PrevMode == config.ModeDiagnostic:
		phases = []config.Phase{config.PhaseDiagnose}
	default:
		return nil
	}

	// Memory short-circuit: a procedural query from a user whose equipment
	// and skill are known skips the MODEL exposition.
	if procedural && in.Prefs != nil &&
		len(in.Prefs.Equipment.Value) > 0 && in.Prefs.SkillLevel.Value != "" {
		phases = remove(phases, config.PhaseModel)
		if len(phases) == 1 && phases[0] == config.PhaseRecommend {
			return nil
		}
	}

	// Beginners skip MODEL unless they explicitly asked why.
	if in.Prefs != nil && in.Prefs.SkillLevel.Value == config.SkillBeginner && !isCausalIntent(in.Message) {
		phases = remove(phases, config.PhaseModel)
	}

	return phases
}

func remove(phases []config.Phase, target config.Phase) []config.Phase {
	out := phases[:0]
	for _, p := range phases {
		if p != target {
			out = append(out, p)
		}
	}
	return out
}

// Per-phase content validation vocabularies.
var recommendActionVerbs = []string{
	"add", "reduce", "increase", "use", "try", "adjust", "heat", "cool",
	"mix", "stir", "fold", "whisk", "bake", "fry", "boil", "simmer",
}

var modelImperatives = []string{
	"you should", "first step", "next,", "then add", "start by", "begin by",
}

// ValidatePhaseContent checks generated text against the phase's content
// contract. Phases failing validation are dropped by the orchestrator.
func ValidatePhaseContent(phase config.Phase, content string) bool {
	switch phase {
	case config.PhaseRecommend:
		return matchesAny(content, recommendActionVerbs)
	case config.PhaseModel:
		return !matchesAny(content, modelImperatives)
	case config.PhaseDiagnose, config.PhasePredict:
		return len(strings.Join(strings.Fields(content), "")) >= 10
	default:
		return false
	}
}
