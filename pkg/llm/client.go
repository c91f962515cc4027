// Package llm defines the chat-backend interface the pipeline generates
// against, plus the Anthropic implementation and a scripted mock used by
// tests. CPU/GPU-bound inference lives behind this interface; everything
// here suspends on network I/O and honors context cancellation.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when the backend produced no text at all.
var ErrEmptyResponse = errors.New("llm returned empty response")

// Role identifies a conversation participant on the wire.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn sent to the backend.
type Message struct {
	Role    Role
	Content string
}

// Request is one chat call.
type Request struct {
	System    string
	Messages  []Message
	MaxTokens int
}

// Result summarizes a completed generation.
type Result struct {
	Text         string
	OutputTokens int
	Model        string
}

// TokenFunc receives each streamed token in generation order. Implementations
// must be fast; the generator's callback only enqueues.
type TokenFunc func(token string)

// ChatClient is the minimal chat surface the pipeline needs.
type ChatClient interface {
	// Stream generates a response, invoking onToken for every token as it
	// arrives. Returns the accumulated result.
	Stream(ctx context.Context, req Request, onToken TokenFunc) (*Result, error)

	// Complete generates a response without streaming. Used by the memory
	// extractor and the claim-extraction fallback.
	Complete(ctx context.Context, req Request) (*Result, error)
}
