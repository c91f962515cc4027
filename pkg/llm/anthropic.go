package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultMaxTokens = 2048

// AnthropicClient is the production ChatClient over the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
	model  string
}

// NewAnthropicClient creates a client for the given model. An empty apiKey
// falls back to the SDK's environment lookup.
func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &AnthropicClient{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

// Stream generates a response token by token.
func (c *AnthropicClient) Stream(ctx context.Context, req Request, onToken TokenFunc) (*Result, error) {
	stream := c.client.Messages.NewStreaming(ctx, c.params(req))

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, fmt.Errorf("accumulate stream event: %w", err)
		}
		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if onToken != nil {
					onToken(deltaVariant.Text)
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic stream: %w", err)
	}

	text := collectText(&message)
	if text == "" {
		return nil, ErrEmptyResponse
	}
	return &Result{
		Text:         text,
		OutputTokens: int(message.Usage.OutputTokens),
		Model:        string(message.Model),
	}, nil
}

// Complete generates a response in one shot.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (*Result, error) {
	message, err := c.client.Messages.New(ctx, c.params(req))
	if err != nil {
		return nil, fmt.Errorf("anthropic complete: %w", err)
	}
	text := collectText(message)
	if text == "" {
		return nil, ErrEmptyResponse
	}
	return &Result{
		Text:         text,
		OutputTokens: int(message.Usage.OutputTokens),
		Model:        string(message.Model),
	}, nil
}

func (c *AnthropicClient) params(req Request) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		switch m.Role {
		case RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(block))
		default:
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	return params
}

func collectText(message *anthropic.Message) string {
	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		slog.Debug("Anthropic message contained no text blocks",
			"blocks", len(message.Content))
	}
	return text
}
