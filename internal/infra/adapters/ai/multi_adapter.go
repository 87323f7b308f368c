// File: internal/infra/adapters/ai/multi_adapter.go
package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"research-gateway/internal/domain"
	"research-gateway/internal/domain/ports/adapter"
)

// MultiAIAdapter routes calls to registered providers by name. It does not
// pick a fallback on its own: asking for an unregistered provider fails with
// domain.ErrProviderNotConfigured so the cascade can move on.
type MultiAIAdapter struct {
	byProvider map[string]adapter.AIServiceAdapter
	research   map[string]adapter.ResearchProvider
}

func NewMultiAIAdapter() *MultiAIAdapter {
	return &MultiAIAdapter{
		byProvider: map[string]adapter.AIServiceAdapter{},
		research:   map[string]adapter.ResearchProvider{},
	}
}

func (m *MultiAIAdapter) Register(a adapter.AIServiceAdapter) {
	m.byProvider[strings.ToLower(a.Name())] = a
}

func (m *MultiAIAdapter) RegisterResearch(p adapter.ResearchProvider) {
	m.research[strings.ToLower(p.Name())] = p
}

// Chat returns the adapter registered for provider.
func (m *MultiAIAdapter) Chat(provider string) (adapter.AIServiceAdapter, error) {
	if a := m.byProvider[strings.ToLower(provider)]; a != nil {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrProviderNotConfigured, provider)
}

// Research returns the research provider registered for provider.
func (m *MultiAIAdapter) Research(provider string) (adapter.ResearchProvider, error) {
	if p := m.research[strings.ToLower(provider)]; p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrProviderNotConfigured, provider)
}

// HasChat reports whether any chat provider is registered.
func (m *MultiAIAdapter) HasChat() bool { return len(m.byProvider) > 0 }

// HasResearch reports whether any research provider is registered.
func (m *MultiAIAdapter) HasResearch() bool { return len(m.research) > 0 }

// Providers lists registered chat provider names in sorted order.
func (m *MultiAIAdapter) Providers() []string {
	out := make([]string, 0, len(m.byProvider))
	for name := range m.byProvider {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ResolveProvider guesses the provider for a bare model name.
func ResolveProvider(model string) string {
	l := strings.ToLower(model)
	switch {
	case strings.HasPrefix(l, "gemini"):
		return "gemini"
	case strings.HasPrefix(l, "claude"):
		return "anthropic"
	case strings.HasPrefix(l, "gpt"), strings.HasPrefix(l, "o1"), strings.HasPrefix(l, "o3"), strings.HasPrefix(l, "o4"):
		return "openai"
	default:
		return "compat"
	}
}

// ListModels is the union of each provider's ListModels, as "provider/model".
func (m *MultiAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, name := range m.Providers() {
		list, err := m.byProvider[name].ListModels(ctx)
		if err != nil {
			return nil, err
		}
		for _, model := range list {
			if model == "" {
				continue
			}
			key := name + "/" + model
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				out = append(out, key)
			}
		}
	}
	return out, nil
}
