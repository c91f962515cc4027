// Package models defines the core request-scoped data types shared across
// the pipeline: claims, intents, execution policies, agent invocation
// records, and resolved compounds. The source systems mixed loose maps for
// these; everything here is a tagged struct normalized at ingress.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// ClaimType categorizes a verifiable proposition.
type ClaimType string

const (
	ClaimQuantitative ClaimType = "quantitative"
	ClaimMechanistic  ClaimType = "mechanistic"
	ClaimQualitative  ClaimType = "qualitative"
)

// ClaimDecision is the governance decision attached to a claim.
type ClaimDecision string

const (
	DecisionAllow              ClaimDecision = "ALLOW"
	DecisionWithhold           ClaimDecision = "WITHHOLD"
	DecisionRequireMoreContext ClaimDecision = "REQUIRE_MORE_CONTEXT"
)

// Evidence is one supporting or contradicting item attached to a claim.
type Evidence struct {
	Source          string `json:"source"`
	EffectDirection string `json:"effect_direction"` // supporting, contradictory, neutral
	Excerpt         string `json:"excerpt,omitempty"`
}

// EffectContradictory marks evidence that contradicts its claim.
const EffectContradictory = "contradictory"

// Claim is an atomic verifiable proposition extracted from generated text.
// The ID is stable: the lower-cased first 16 hex chars of sha256 over the
// normalized claim text.
type Claim struct {
	ID              string        `json:"id"`
	Text            string        `json:"text"`
	Type            ClaimType     `json:"type"`
	Subject         string        `json:"subject,omitempty"`
	Predicate       string        `json:"predicate,omitempty"`
	VerificationLvl string        `json:"verification_level,omitempty"`
	Confidence      float64       `json:"confidence"`
	MechanismType   string        `json:"mechanism_type,omitempty"` // e.g. receptor, enzymatic, heuristic
	Evidence        []Evidence    `json:"evidence,omitempty"`
	Decision        ClaimDecision `json:"decision"`
	Importance      float64       `json:"importance"`
	Verified        bool          `json:"verified"`
	RunID           string        `json:"run_id,omitempty"`
	Pipeline        string        `json:"pipeline,omitempty"`
}

// ClaimID derives the stable claim id from claim text.
func ClaimID(text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return strings.ToLower(hex.EncodeToString(sum[:8]))
}

// Normalize fills derivable fields: a missing id from the text, and a
// decision mapped from an empty status (defaults to WITHHOLD until governance
// rules on it).
func (c *Claim) Normalize() {
	if c.ID == "" {
		c.ID = ClaimID(c.Text)
	}
	if c.Decision == "" {
		c.Decision = DecisionWithhold
	}
	if c.Type == "" {
		c.Type = ClaimQualitative
	}
}

// ResolvedCompound records one successful external compound lookup.
type ResolvedCompound struct {
	Name             string        `json:"name"`
	CID              int           `json:"cid"`
	MolecularFormula string        `json:"molecular_formula,omitempty"`
	MolecularWeight  string        `json:"molecular_weight,omitempty"`
	IUPACName        string        `json:"iupac_name,omitempty"`
	FromCache        bool          `json:"from_cache"`
	Duration         time.Duration `json:"duration_ms"`
}
