package ai

import (
	"context"
	"errors"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"research-gateway/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AIServiceAdapter = (*CompatAdapter)(nil)

// CompatAdapter talks to any OpenAI-compatible gateway (OpenRouter, Metis,
// vLLM, ...) through its /chat/completions endpoint.
type CompatAdapter struct {
	client *goopenai.Client
	model  string
	maxOut int
}

func NewCompatAdapter(apiKey, model, baseURL string, maxOut int) (*CompatAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("compat api key empty")
	}
	if baseURL == "" {
		return nil, errors.New("compat base url empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	cfg := goopenai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	return &CompatAdapter{
		client: goopenai.NewClientWithConfig(cfg),
		model:  model,
		maxOut: maxOut,
	}, nil
}

func (c *CompatAdapter) Name() string { return "compat" }

func (c *CompatAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{c.model}, nil
}

func (c *CompatAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return countMessageTokens(modelOrDefault(model, c.model), messages), nil
}

func (c *CompatAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	reply, _, err := c.ChatWithUsage(ctx, model, messages)
	return reply, err
}

func (c *CompatAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	req := goopenai.ChatCompletionRequest{
		Model:     modelOrDefault(model, c.model),
		Messages:  toCompatMessages(messages),
		MaxTokens: c.maxOut,
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", adapter.Usage{}, wrapErr(c.Name(), err)
	}
	usage := adapter.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	for _, ch := range resp.Choices {
		if ch.Message.Content != "" {
			return ch.Message.Content, usage, nil
		}
	}
	return "", usage, errors.New("compat: no choice content")
}

func toCompatMessages(messages []adapter.Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := goopenai.ChatMessageRoleUser
		switch strings.ToLower(m.Role) {
		case "system":
			role = goopenai.ChatMessageRoleSystem
		case "assistant":
			role = goopenai.ChatMessageRoleAssistant
		}
		out = append(out, goopenai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}
