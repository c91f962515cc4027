package generator

import (
	"context"
	"log/slog"
	"strings"

	"github.com/umami-labs/brigade/pkg/llm"
)

const defaultMaxTokens = 2048

// Generator produces the final response text for a request.
type Generator struct {
	chat      llm.ChatClient
	maxTokens int
}

// New builds a generator over the given chat backend.
func New(chat llm.ChatClient) *Generator {
	return &Generator{chat: chat, maxTokens: defaultMaxTokens}
}

// Generate streams a response for the conversation. Each token passes
// through the artifact scrubber before reaching onToken; the returned text
// is the scrubbed accumulation, so what the caller gets matches what was
// streamed.
func (g *Generator) Generate(ctx context.Context, in PromptInput, history []llm.Message, onToken llm.TokenFunc) (string, error) {
	system := BuildSystemPrompt(in)

	scrubber := &Scrubber{}
	var full strings.Builder

	emit := func(clean string) {
		if clean == "" {
			return
		}
		full.WriteString(clean)
		if onToken != nil {
			onToken(clean)
		}
	}

	result, err := g.chat.Stream(ctx, llm.Request{
		System:    system,
		Messages:  history,
		MaxTokens: g.maxTokens,
	}, func(token string) {
		emit(scrubber.Scrub(token))
	})
	if err != nil {
		return "", err
	}
	emit(scrubber.Flush())

	text := strings.TrimSpace(full.String())
	if text == "" {
		return "", llm.ErrEmptyResponse
	}

	slog.Debug("Generation complete",
		"mode", in.Mode, "output_tokens", result.OutputTokens, "model", result.Model)
	return text, nil
}
