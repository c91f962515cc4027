// Package stream implements the per-request ordered event stream: a bounded
// queue drained to the client, a 1 Hz heartbeat, and a terminal contract of
// exactly one done event per stream.
package stream

import (
	"encoding/json"
	"fmt"

	"github.com/umami-labs/brigade/pkg/config"
)

// Kind is the event kind on the wire.
type Kind string

const (
	KindStatus          Kind = "status"
	KindThinkingPhase   Kind = "thinking_phase"
	KindToken           Kind = "token"
	KindEnhancement     Kind = "enhancement"
	KindNutritionReport Kind = "nutrition_report"
	KindExecutionTrace  Kind = "execution_trace"
	KindPing            Kind = "ping"
	KindError           Kind = "error_event"
	KindDone            Kind = "done"
)

// Event is one entry of the ordered stream. SeqID is strictly increasing
// per stream; TS is RFC3339Nano wall-clock time.
type Event struct {
	Kind    Kind
	SeqID   int64
	TS      string
	Payload any
}

// MarshalJSON flattens the payload fields next to seq_id and ts, matching
// the wire contract `{seq_id, ts, ...payload}`.
func (e *Event) MarshalJSON() ([]byte, error) {
	merged := map[string]any{
		"seq_id": e.SeqID,
		"ts":     e.TS,
	}
	if e.Payload != nil {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", e.Kind, err)
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("flatten %s payload: %w", e.Kind, err)
		}
		for k, v := range fields {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// StatusPayload reports an orchestration lifecycle transition.
type StatusPayload struct {
	State  string `json:"state"`            // initializing, planning, generating, enriching, finalizing
	Detail string `json:"detail,omitempty"` // free-form context
}

// ThinkingPhasePayload announces entry into a reasoning phase. The wire key
// is "type" for EventSource client compatibility.
type ThinkingPhasePayload struct {
	Phase   config.Phase `json:"type"`
	Content string       `json:"content,omitempty"`
}

// TokenPayload carries one generation token in stream order.
type TokenPayload struct {
	Token string `json:"token"`
}

// EnhancementPayload carries one enrichment agent's contribution.
type EnhancementPayload struct {
	Agent   string `json:"agent"`
	Content any    `json:"content"`
}

// NutritionReportPayload summarizes compound verification for the request.
type NutritionReportPayload struct {
	Resolved   int     `json:"resolved"`
	Unresolved int     `json:"unresolved"`
	Confidence float64 `json:"confidence"`
	Proof      string  `json:"proof,omitempty"`
}

// TracePayload carries the serialized execution trace.
type TracePayload struct {
	Trace map[string]any `json:"trace"`
}

// ErrorPayload is a non-wire-terminal error report; a done event follows.
type ErrorPayload struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// DonePayload terminates the stream.
type DonePayload struct {
	Status config.StreamStatus `json:"status"`
	Reason string              `json:"reason,omitempty"`
}
