package governance

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/umami-labs/brigade/pkg/llm"
	"github.com/umami-labs/brigade/pkg/models"
)

const regexTierConfidence = 0.5

// mechanisticMarkers are the narrative cues that a response is asserting
// causal mechanism. A response using them with zero extracted claims is
// unverifiable and invalidates the trace.
var mechanisticMarkers = []string{
	"because", "due to", "activates", "inhibits", "mechanism", "receptor", "cid:",
}

// mechanismRe catches subject-verb-object mechanism assertions for the
// cheap first recovery tier.
var mechanismRe = regexp.MustCompile(`(?i)\b([A-Za-z][A-Za-z -]{2,40}?)\s+(activates|inhibits|binds to|modulates|triggers|suppresses)\s+([A-Za-z][A-Za-z0-9 -]{2,40})`)

const extractionSystem = `Extract verifiable mechanistic claims from the assistant response below.
Respond with a JSON array only. Each element: {"text": "...", "subject": "...", "predicate": "...", "confidence": 0.0-1.0}.
Return [] if there are no mechanistic claims.`

// UsesMechanisticLanguage reports whether the response narrative asserts
// mechanism.
func UsesMechanisticLanguage(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range mechanisticMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Recoverer backfills claims when the pipeline produced none but the
// response asserts mechanism anyway.
type Recoverer struct {
	chat    llm.ChatClient
	timeout time.Duration
}

// NewRecoverer builds a claim recoverer; timeout bounds the LLM tier.
func NewRecoverer(chat llm.ChatClient, timeout time.Duration) *Recoverer {
	return &Recoverer{chat: chat, timeout: timeout}
}

// Recover runs the tiered recovery: regex extraction first, then a bounded
// LLM pass. Returns the recovered claims (possibly empty) and whether the
// trace should be marked invalid: true when the narrative is mechanistic
// and no tier recovered anything.
func (r *Recoverer) Recover(ctx context.Context, response string) ([]models.Claim, bool) {
	if !UsesMechanisticLanguage(response) {
		return nil, false
	}

	if claims := regexTier(response); len(claims) > 0 {
		slog.Info("Claim recovery succeeded via regex tier", "claims", len(claims))
		return claims, false
	}

	claims, err := r.llmTier(ctx, response)
	if err != nil {
		slog.Warn("Claim recovery LLM tier failed", "error", err)
		return nil, true
	}
	if len(claims) == 0 {
		slog.Warn("Mechanistic narrative with no recoverable claims")
		return nil, true
	}
	slog.Info("Claim recovery succeeded via LLM tier", "claims", len(claims))
	return claims, false
}

func regexTier(response string) []models.Claim {
	var claims []models.Claim
	for _, m := range mechanismRe.FindAllStringSubmatch(response, -1) {
		claim := models.Claim{
			Text:       strings.TrimSpace(m[0]),
			Type:       models.ClaimMechanistic,
			Subject:    strings.TrimSpace(m[1]),
			Predicate:  strings.ToLower(strings.TrimSpace(m[2])),
			Confidence: regexTierConfidence,
		}
		claim.Normalize()
		claims = append(claims, claim)
	}
	return claims
}

type recoveredClaim struct {
	Text       string  `json:"text"`
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Confidence float64 `json:"confidence"`
}

func (r *Recoverer) llmTier(ctx context.Context, response string) ([]models.Claim, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.chat.Complete(ctx, llm.Request{
		System:    extractionSystem,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: response}},
		MaxTokens: 1024,
	})
	if err != nil {
		return nil, err
	}

	raw := extractJSONArray(result.Text)
	var parsed []recoveredClaim
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, err
	}

	claims := make([]models.Claim, 0, len(parsed))
	for _, p := range parsed {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		claim := models.Claim{
			Text:       p.Text,
			Type:       models.ClaimMechanistic,
			Subject:    p.Subject,
			Predicate:  p.Predicate,
			Confidence: p.Confidence,
		}
		claim.Normalize()
		claims = append(claims, claim)
	}
	return claims, nil
}

// extractJSONArray pulls the first bracketed array out of a possibly
// fenced or chatty model reply.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start == -1 || end == -1 || end < start {
		return "[]"
	}
	return s[start : end+1]
}
