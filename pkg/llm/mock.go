package llm

import (
	"context"
	"strings"
	"sync"
)

// Mock is a scripted ChatClient for tests. Responses are matched against the
// last user message by substring, falling back to Default. Streaming splits
// the response into word tokens.
type Mock struct {
	mu sync.Mutex

	// Responses maps a substring of the last user message to a canned reply.
	Responses map[string]string

	// Default is returned when nothing matches.
	Default string

	// Err, if set, is returned by every call.
	Err error

	// Calls records every request for assertions.
	Calls []Request
}

// NewMock creates a mock with a generic default reply.
func NewMock() *Mock {
	return &Mock{
		Responses: map[string]string{},
		Default:   "Happy to help with that.",
	}
}

func (m *Mock) pick(req Request) string {
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			last = req.Messages[i].Content
			break
		}
	}
	for needle, reply := range m.Responses {
		if strings.Contains(last, needle) {
			return reply
		}
	}
	return m.Default
}

// Stream implements ChatClient.
func (m *Mock) Stream(ctx context.Context, req Request, onToken TokenFunc) (*Result, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	err := m.Err
	reply := m.pick(req)
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}

	words := strings.SplitAfter(reply, " ")
	for _, w := range words {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if onToken != nil && w != "" {
			onToken(w)
		}
	}
	return &Result{Text: reply, OutputTokens: len(words), Model: "mock"}, nil
}

// Complete implements ChatClient.
func (m *Mock) Complete(ctx context.Context, req Request) (*Result, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	err := m.Err
	reply := m.pick(req)
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return &Result{Text: reply, OutputTokens: len(strings.Fields(reply)), Model: "mock"}, nil
}
