// Package policy implements the meta-learner: a sub-millisecond, purely
// deterministic mapping from (message, explicit profile, resource state) to
// an execution policy. No I/O, no clocks, no randomness — the same inputs
// always yield the same policy, and the selection reason is recorded for
// the trace's accountability block.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/umami-labs/brigade/pkg/config"
	"github.com/umami-labs/brigade/pkg/models"
)

// PolicyID and PolicyVersion identify the rule set on every trace.
const (
	PolicyID      = "meta-learner"
	PolicyVersion = "v1"
)

// shortUtteranceTokens is the clamp boundary: strictly fewer tokens than
// this (with no explicit profile) collapses to FAST.
const shortUtteranceTokens = 15

// optimizeTriggers route a message to the OPTIMIZE profile.
var optimizeTriggers = []string{
	"best", "optimize", "compare", "variants", "better",
	"improve", "perfect", "ideal", "alternatives",
}

// sensoryTriggers route a message to the SENSORY profile.
var sensoryTriggers = []string{
	"texture", "taste", "smooth", "crisp", "tender", "chewy", "mouthfeel",
	"crunchy", "soft", "juicy", "rich", "coating", "sensory", "feel",
	"bitter", "bitterness", "sweet", "sweetness", "sour", "sourness",
	"salty", "saltiness", "umami", "aromatic", "fragrant",
}

// ResourceState is the monitor snapshot the engine decides against.
type ResourceState struct {
	Degraded bool
	Pressure config.PressureClass
}

// Engine holds the research-only agent set (configurable; the rest of the
// rule tables are fixed) and the precomputed policy hash.
type Engine struct {
	researchAgents []string
	policyHash     string
}

// NewEngine creates the policy engine. researchAgents lists agents enabled
// only under the RESEARCH profile; may be empty.
func NewEngine(researchAgents []string) *Engine {
	return &Engine{
		researchAgents: researchAgents,
		policyHash:     computePolicyHash(researchAgents),
	}
}

// Decide maps the inputs to an execution policy. Pure: identical inputs
// produce identical outputs.
func (e *Engine) Decide(message string, explicit config.Profile, state ResourceState) *models.ExecutionPolicy {
	profile, reason, downgrade := e.selectProfile(message, explicit, state)

	pol := &models.ExecutionPolicy{
		Profile:           profile,
		EnabledAgents:     e.agentSet(profile),
		SpeculativeAgents: speculativeSet(profile),
		Budget:            budgetFor(profile),
		DowngradeReason:   downgrade,
		PolicyID:          PolicyID,
		PolicyVersion:     PolicyVersion,
		PolicyHash:        e.policyHash,
		Reason:            reason,
	}

	slog.Debug("Policy decided",
		"profile", profile, "reason", reason, "downgrade", downgrade)
	return pol
}

func (e *Engine) selectProfile(message string, explicit config.Profile, state ResourceState) (profile config.Profile, reason, downgrade string) {
	if state.Degraded {
		return config.ProfileFast, "gpu-degraded", "gpu-degraded"
	}
	if state.Pressure == config.PressureCritical {
		return config.ProfileFast, "critical memory", "critical memory pressure"
	}

	hasExplicit := explicit != "" && explicit.IsValid()
	if hasExplicit {
		profile = explicit
		reason = "explicit profile"
	} else {
		switch {
		case containsAny(message, optimizeTriggers):
			profile, reason = config.ProfileOptimize, "optimize keyword"
		case containsAny(message, sensoryTriggers):
			profile, reason = config.ProfileSensory, "sensory keyword"
		default:
			profile, reason = config.ProfileFast, "default"
		}
		if tokenCount(message) < shortUtteranceTokens {
			return config.ProfileFast, "short utterance", ""
		}
	}

	if state.Pressure == config.PressureModerate &&
		(profile == config.ProfileOptimize || profile == config.ProfileResearch) {
		return config.ProfileSensory, reason, "moderate memory pressure"
	}
	return profile, reason, ""
}

// Agent names used across the scheduler and policy tables.
const (
	AgentIntent         = "intent"
	AgentRecipe         = "recipe"
	AgentPresentation   = "presentation"
	AgentRecipeRenderer = "recipe_renderer"
	AgentSensoryModel   = "sensory_model"
	AgentExplanation    = "explanation"
	AgentFrontier       = "frontier"
	AgentSelector       = "selector"
)

func (e *Engine) agentSet(profile config.Profile) map[string]bool {
	set := map[string]bool{
		AgentIntent:       true,
		AgentRecipe:       true,
		AgentPresentation: true,
	}
	if profile == config.ProfileFast || profile == config.ProfileSensory {
		set[AgentRecipeRenderer] = true
	}
	if profile != config.ProfileFast {
		set[AgentSensoryModel] = true
		set[AgentExplanation] = true
	}
	if profile == config.ProfileOptimize || profile == config.ProfileResearch {
		set[AgentFrontier] = true
		set[AgentSelector] = true
	}
	if profile == config.ProfileResearch {
		for _, name := range e.researchAgents {
			set[name] = true
		}
	}
	return set
}

func speculativeSet(profile config.Profile) map[string]bool {
	switch profile {
	case config.ProfileFast, config.ProfileSensory:
		return map[string]bool{AgentRecipeRenderer: true}
	default:
		return map[string]bool{}
	}
}

func budgetFor(profile config.Profile) models.LatencyBudget {
	b := models.LatencyBudget{
		FirstToken: 2 * time.Second,
		LayerOne:   5 * time.Second,
		Total:      120 * time.Second,
	}
	switch profile {
	case config.ProfileFast:
		b.Total = 10 * time.Second
	case config.ProfileSensory:
		b.Total = 30 * time.Second
	}
	return b
}

func containsAny(message string, triggers []string) bool {
	lower := strings.ToLower(message)
	for _, t := range triggers {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

func tokenCount(message string) int {
	return len(strings.Fields(message))
}

// computePolicyHash fingerprints the rule tables so trace consumers can
// detect rule drift between deployments.
func computePolicyHash(researchAgents []string) string {
	var b strings.Builder
	b.WriteString(PolicyID + ":" + PolicyVersion + ";")
	b.WriteString(strings.Join(optimizeTriggers, ",") + ";")
	b.WriteString(strings.Join(sensoryTriggers, ",") + ";")
	sorted := append([]string(nil), researchAgents...)
	sort.Strings(sorted)
	b.WriteString(strings.Join(sorted, ","))
	b.WriteString(fmt.Sprintf(";short=%d", shortUtteranceTokens))
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:6])
}
