package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"research-gateway/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*AnthropicAdapter)(nil)

type AnthropicAdapter struct {
	client anthropic.Client
	model  string
	maxOut int
}

func NewAnthropicAdapter(apiKey, model string, maxOut int) (*AnthropicAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic api key empty")
	}
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	if maxOut <= 0 {
		// the Messages API requires max_tokens
		maxOut = 1024
	}
	return &AnthropicAdapter{
		client: anthropic.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0)),
		model:  model,
		maxOut: maxOut,
	}, nil
}

func (a *AnthropicAdapter) Name() string { return "anthropic" }

func (a *AnthropicAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{a.model}, nil
}

// CountTokens is a tiktoken estimate; Claude's tokenizer is not public.
func (a *AnthropicAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return countMessageTokens(fallbackEncoding, messages), nil
}

func (a *AnthropicAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	reply, _, err := a.ChatWithUsage(ctx, model, messages)
	return reply, err
}

func (a *AnthropicAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	system, turns := splitSystem(messages)
	if len(turns) == 0 {
		return "", adapter.Usage{}, errors.New("anthropic: no messages")
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelOrDefault(model, a.model)),
		MaxTokens: int64(a.maxOut),
		Messages:  toAnthropicMessages(turns),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", adapter.Usage{}, wrapErr(a.Name(), err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	u := adapter.Usage{
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
	}
	u.TotalTokens = u.PromptTokens + u.CompletionTokens
	if sb.Len() == 0 {
		return "", u, errors.New("anthropic: no text content")
	}
	return sb.String(), u, nil
}

func toAnthropicMessages(messages []adapter.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Content)
		if strings.ToLower(m.Role) == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(block))
			continue
		}
		out = append(out, anthropic.NewUserMessage(block))
	}
	return out
}
