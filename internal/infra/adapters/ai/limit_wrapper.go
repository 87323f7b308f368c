package ai

import (
	"context"
	"time"

	"research-gateway/internal/domain/ports/adapter"
	"research-gateway/internal/infra/metrics"
)

// Compile-time check
var _ adapter.AIServiceAdapter = (*limitedAI)(nil)

// limitedAI bounds in-flight calls to inner and records call metrics.
type limitedAI struct {
	inner adapter.AIServiceAdapter
	sem   chan struct{}
}

// NewLimitedAI wraps inner; maxConcurrent <= 0 disables the bound but keeps metrics.
func NewLimitedAI(inner adapter.AIServiceAdapter, maxConcurrent int) adapter.AIServiceAdapter {
	l := &limitedAI{inner: inner}
	if maxConcurrent > 0 {
		l.sem = make(chan struct{}, maxConcurrent)
	}
	return l
}

func (l *limitedAI) acquire(ctx context.Context) (func(), error) {
	if l.sem == nil {
		return func() {}, nil
	}
	select {
	case l.sem <- struct{}{}:
		return func() { <-l.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *limitedAI) Name() string { return l.inner.Name() }

func (l *limitedAI) ListModels(ctx context.Context) ([]string, error) {
	return l.inner.ListModels(ctx)
}

func (l *limitedAI) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	reply, _, err := l.ChatWithUsage(ctx, model, messages)
	return reply, err
}

func (l *limitedAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	release, err := l.acquire(ctx)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	defer release()

	start := time.Now()
	reply, u, err := l.inner.ChatWithUsage(ctx, model, messages)
	metrics.ObserveChatUsage(l.inner.Name(), model, u.PromptTokens, u.CompletionTokens, u.TotalTokens,
		time.Since(start).Milliseconds(), err == nil)
	return reply, u, err
}

func (l *limitedAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	release, err := l.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()
	return l.inner.CountTokens(ctx, model, messages)
}
