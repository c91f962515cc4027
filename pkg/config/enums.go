package config

import "sort"

// Profile defines the coarse execution profile chosen by the policy engine.
type Profile string

const (
	// ProfileFast is the minimal-latency profile (required agents only)
	ProfileFast Profile = "fast"
	// ProfileSensory adds the sensory model and explanation agents
	ProfileSensory Profile = "sensory"
	// ProfileOptimize adds the frontier and selector agents
	ProfileOptimize Profile = "optimize"
	// ProfileResearch is optimize plus any configured research-only agents
	ProfileResearch Profile = "research"
)

// IsValid checks if the profile is valid
func (p Profile) IsValid() bool {
	switch p {
	case ProfileFast, ProfileSensory, ProfileOptimize, ProfileResearch:
		return true
	default:
		return false
	}
}

// Mode defines the user-visible response register chosen by the classifier.
type Mode string

const (
	// ModeConversation is the default open register
	ModeConversation Mode = "conversation"
	// ModeDiagnostic answers why/what-went-wrong questions
	ModeDiagnostic Mode = "diagnostic"
	// ModeProcedural produces step-by-step instructions
	ModeProcedural Mode = "procedural"
	// ModeNumericAnalysis is the only register authorized to emit nutrition numbers
	ModeNumericAnalysis Mode = "numeric_analysis"
)

// IsValid checks if the mode is valid
func (m Mode) IsValid() bool {
	switch m {
	case ModeConversation, ModeDiagnostic, ModeProcedural, ModeNumericAnalysis:
		return true
	default:
		return false
	}
}

// Phase is a semantic block in the assistant's structured reasoning.
type Phase string

// Phases in canonical order: diagnose, model, predict, recommend.
const (
	PhaseDiagnose  Phase = "diagnose"
	PhaseModel     Phase = "model"
	PhasePredict   Phase = "predict"
	PhaseRecommend Phase = "recommend"
)

// CanonicalPhases lists all phases in canonical order.
var CanonicalPhases = []Phase{PhaseDiagnose, PhaseModel, PhasePredict, PhaseRecommend}

// IsValid checks if the phase is valid
func (p Phase) IsValid() bool {
	switch p {
	case PhaseDiagnose, PhaseModel, PhasePredict, PhaseRecommend:
		return true
	default:
		return false
	}
}

func (p Phase) rank() int {
	for i, c := range CanonicalPhases {
		if p == c {
			return i
		}
	}
	return len(CanonicalPhases)
}

// SortPhases sorts phases in place into canonical order.
func SortPhases(phases []Phase) {
	sort.SliceStable(phases, func(i, j int) bool {
		return phases[i].rank() < phases[j].rank()
	})
}

// PressureClass classifies swap pressure reported by the resource monitor.
type PressureClass string

const (
	PressureNone     PressureClass = "none"
	PressureModerate PressureClass = "moderate"
	PressureCritical PressureClass = "critical"
)

// SkillLevel is the user's self-reported cooking skill.
type SkillLevel string

const (
	SkillBeginner     SkillLevel = "beginner"
	SkillIntermediate SkillLevel = "intermediate"
	SkillExpert       SkillLevel = "expert"
)

// IsValid checks if the skill level is valid
func (s SkillLevel) IsValid() bool {
	switch s {
	case SkillBeginner, SkillIntermediate, SkillExpert:
		return true
	default:
		return false
	}
}

// StreamStatus is the terminal status carried by a done event.
type StreamStatus string

const (
	StreamStatusOK               StreamStatus = "OK"
	StreamStatusFailed           StreamStatus = "FAILED"
	StreamStatusResourceExceeded StreamStatus = "RESOURCE_EXCEEDED"
)

// IsValid checks if the stream status is valid
func (s StreamStatus) IsValid() bool {
	switch s {
	case StreamStatusOK, StreamStatusFailed, StreamStatusResourceExceeded:
		return true
	default:
		return false
	}
}
