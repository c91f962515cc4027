// Package trace records one request's execution: agent invocations, claims,
// resolved compounds, confidence scores, and the policy-accountability
// block. The trace is append-only; AddClaims is the only claim mutator and
// deduplicates by claim id. Serialization without locked policy and version
// metadata is a hard developer-contract violation.
package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/umami-labs/brigade/pkg/models"
)

// SchemaVersion identifies the serialized trace layout.
const SchemaVersion = "3.1"

// ErrPolicyNotLocked is returned by ToMap when the policy accountability
// block was never filled. Developer contract — do not recover locally.
var ErrPolicyNotLocked = errors.New("trace serialized without locked policy metadata")

// ErrVersionsNotLocked is returned when resolution ran before LockVersions.
var ErrVersionsNotLocked = errors.New("trace versions not locked before resolution")

// Status is the trace lifecycle state.
type Status string

const (
	StatusInit      Status = "INIT"
	StatusStreaming Status = "STREAMING"
	StatusEnriching Status = "ENRICHING"
	StatusVerified  Status = "VERIFIED"
	StatusComplete  Status = "COMPLETE"
	StatusError     Status = "ERROR"
)

// ValidationStatus flags narrative/claim consistency.
type ValidationStatus string

const (
	ValidationOK      ValidationStatus = "ok"
	ValidationInvalid ValidationStatus = "invalid"
)

// CoverageMetrics are recomputed on every AddClaims call.
type CoverageMetrics struct {
	MOACoverage        float64 `json:"moa_coverage"`
	EvidenceCoverage   float64 `json:"evidence_coverage"`
	ContradictionRatio float64 `json:"contradiction_ratio"`
}

// Trace is the per-request execution record. One orchestration goroutine
// writes; the mutex guards against accidental cross-goroutine use.
type Trace struct {
	mu sync.Mutex

	RunID    string
	Pipeline string
	status   Status

	invocations []models.AgentInvocation
	claims      []models.Claim
	compounds   []models.ResolvedCompound

	varianceDrivers map[string]float64
	coverage        CoverageMetrics
	confidence      float64

	validation ValidationStatus

	// Policy accountability block.
	policyID      string
	policyVersion string
	policyHash    string
	policyReason  string

	// Registry version lock.
	versionLock     bool
	registryVersion string
	registryHash    string
	ontologyVersion string

	pubchemUsed  bool
	pubchemProof string

	createdAt time.Time
}

// New creates a trace for one request.
func New(pipeline string) *Trace {
	return &Trace{
		RunID:           uuid.NewString(),
		Pipeline:        pipeline,
		status:          StatusInit,
		varianceDrivers: make(map[string]float64),
		validation:      ValidationOK,
		createdAt:       time.Now().UTC(),
	}
}

// SetStatus advances the lifecycle state.
func (t *Trace) SetStatus(s Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
}

// Status returns the lifecycle state.
func (t *Trace) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// SetPolicy fills the accountability block from the decided policy.
func (t *Trace) SetPolicy(p *models.ExecutionPolicy) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.policyID = p.PolicyID
	t.policyVersion = p.PolicyVersion
	t.policyHash = p.PolicyHash
	t.policyReason = p.Reason
}

// LockVersions pins the registry and ontology versions. Must be called
// before any compound resolution is attached.
func (t *Trace) LockVersions(registryVersion, registryHash, ontologyVersion string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.registryVersion = registryVersion
	t.registryHash = registryHash
	t.ontologyVersion = ontologyVersion
	t.versionLock = true
}

// AddInvocation appends one agent invocation record. Always appends.
func (t *Trace) AddInvocation(inv models.AgentInvocation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.invocations = append(t.invocations, inv)
}

// AddClaims merges new claims into the trace. Each claim is normalized
// (id derived from text if missing, run id and pipeline injected),
// deduplicated against existing ids, then the full list is re-sorted by
// importance descending. Variance drivers merge by key-wise maximum.
// Relative order of equal-importance claims is not guaranteed.
func (t *Trace) AddClaims(newClaims []models.Claim, varianceDrivers map[string]float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing := make(map[string]bool, len(t.claims))
	for _, c := range t.claims {
		existing[c.ID] = true
	}

	added := 0
	for _, c := range newClaims {
		c.Normalize()
		if c.RunID == "" {
			c.RunID = t.RunID
		}
		if c.Pipeline == "" {
			c.Pipeline = t.Pipeline
		}
		if existing[c.ID] {
			continue
		}
		existing[c.ID] = true
		t.claims = append(t.claims, c)
		added++
	}

	for k, v := range varianceDrivers {
		if v > t.varianceDrivers[k] {
			t.varianceDrivers[k] = v
		}
	}

	sort.SliceStable(t.claims, func(i, j int) bool {
		return t.claims[i].Importance > t.claims[j].Importance
	})
	t.recomputeCoverage()

	slog.Debug("Claims merged", "run_id", t.RunID, "added", added, "total", len(t.claims))
}

// Claims returns a snapshot of the claim list.
func (t *Trace) Claims() []models.Claim {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.Claim, len(t.claims))
	copy(out, t.claims)
	return out
}

// Coverage returns the current coverage metrics.
func (t *Trace) Coverage() CoverageMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.coverage
}

// SetValidation flags narrative/claim consistency.
func (t *Trace) SetValidation(v ValidationStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.validation = v
}

// SetConfidence records the overall resolution confidence.
func (t *Trace) SetConfidence(c float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.confidence = c
}

// SetPubChemEnforcement attaches the compound resolution results to the
// trace's verification proof. Fails if versions were never locked.
func (t *Trace) SetPubChemEnforcement(compounds []models.ResolvedCompound) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.versionLock {
		return ErrVersionsNotLocked
	}
	t.compounds = append(t.compounds, compounds...)
	if len(t.compounds) > 0 {
		t.pubchemUsed = true
		t.pubchemProof = proofHash(t.compounds)
	}
	return nil
}

// PubChemUsed reports whether any compound resolution is attached.
func (t *Trace) PubChemUsed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pubchemUsed
}

// PubChemProof returns the verification proof hash, empty when no compound
// resolution is attached.
func (t *Trace) PubChemProof() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pubchemProof
}

// Compounds returns a copy of the attached compound resolutions.
func (t *Trace) Compounds() []models.ResolvedCompound {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.ResolvedCompound, len(t.compounds))
	copy(out, t.compounds)
	return out
}

// recomputeCoverage derives the coverage metrics from the claim list.
// Callers hold the mutex.
func (t *Trace) recomputeCoverage() {
	if len(t.claims) == 0 {
		t.coverage = CoverageMetrics{}
		return
	}
	var moa, withEvidence, evidenceTotal, contradictory int
	for _, c := range t.claims {
		if c.Decision == models.DecisionAllow && c.MechanismType != "heuristic" {
			moa++
		}
		if len(c.Evidence) > 0 {
			withEvidence++
		}
		for _, e := range c.Evidence {
			evidenceTotal++
			if e.EffectDirection == models.EffectContradictory {
				contradictory++
			}
		}
	}
	t.coverage.MOACoverage = float64(moa) / float64(len(t.claims))
	t.coverage.EvidenceCoverage = float64(withEvidence) / float64(len(t.claims))
	if evidenceTotal > 0 {
		t.coverage.ContradictionRatio = float64(contradictory) / float64(evidenceTotal)
	} else {
		t.coverage.ContradictionRatio = 0
	}
}

// ToMap serializes the trace in its layered form. Hard invariant: the
// policy accountability block must be set.
func (t *Trace) ToMap() (map[string]any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.policyID == "" || t.policyVersion == "" {
		slog.Error("Trace serialization rejected: policy metadata missing",
			"run_id", t.RunID)
		return nil, fmt.Errorf("%w: run %s", ErrPolicyNotLocked, t.RunID)
	}

	out := map[string]any{
		"schema_version": SchemaVersion,
		"run_id":         t.RunID,
		"pipeline":       t.Pipeline,
		"status":         string(t.status),
		"created_at":     t.createdAt.Format(time.RFC3339Nano),
		"scientific_layer": map[string]any{
			"claims":           t.claims,
			"compounds":        t.compounds,
			"coverage":         t.coverage,
			"confidence":       t.confidence,
			"variance_drivers": t.varianceDrivers,
			"registry_snapshot": map[string]any{
				"version":          t.registryVersion,
				"hash":             t.registryHash,
				"ontology_version": t.ontologyVersion,
				"locked":           t.versionLock,
			},
		},
		"policy_layer": map[string]any{
			"policy_id":        t.policyID,
			"policy_version":   t.policyVersion,
			"policy_hash":      t.policyHash,
			"selection_reason": t.policyReason,
		},
		"causality_layer": map[string]any{
			"validation_status": string(t.validation),
			"claim_count":       len(t.claims),
		},
		"system_audit": map[string]any{
			"invocations": t.invocations,
		},
	}
	if t.pubchemUsed {
		out["pubchem_proof"] = map[string]any{
			"proof_hash":     t.pubchemProof,
			"compound_count": len(t.compounds),
		}
	}
	return out, nil
}

// proofHash is the first 12 hex chars of sha256 over sorted name:cid pairs.
func proofHash(compounds []models.ResolvedCompound) string {
	pairs := make([]string, 0, len(compounds))
	for _, c := range compounds {
		pairs = append(pairs, fmt.Sprintf("%s:%d", strings.ToLower(c.Name), c.CID))
	}
	sort.Strings(pairs)
	sum := sha256.Sum256([]byte(strings.Join(pairs, ",")))
	return hex.EncodeToString(sum[:])[:12]
}
