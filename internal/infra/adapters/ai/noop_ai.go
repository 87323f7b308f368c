package ai

import (
	"context"

	"research-gateway/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*StaticAdapter)(nil)

const (
	StaticProvider = "fallback"
	StaticModel    = "static"
)

// StaticAdapter is the degraded-mode generator. It never touches the network
// and always answers with the same placeholder text.
type StaticAdapter struct {
	text string
}

func NewStaticAdapter(text string) *StaticAdapter {
	if text == "" {
		text = "The AI service is temporarily unavailable. This is placeholder content; please try again shortly."
	}
	return &StaticAdapter{text: text}
}

func (a *StaticAdapter) Name() string { return StaticProvider }

func (a *StaticAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{StaticModel}, nil
}

func (a *StaticAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return 0, nil
}

func (a *StaticAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	return a.text, nil
}

func (a *StaticAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	return a.text, adapter.Usage{}, nil
}
