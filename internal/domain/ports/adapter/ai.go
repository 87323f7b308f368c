package adapter

import (
	"context"

	"research-gateway/internal/domain/model"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Usage for a single chat call.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// AIServiceAdapter is the port for single-shot LLM generation.
type AIServiceAdapter interface {
	// Name is the provider label used for routing, metrics and error normalization.
	Name() string

	ListModels(ctx context.Context) ([]string, error)

	// CountTokens must return prompt tokens for the provided messages
	// (provider-specific counting; best-effort when exact isn't available).
	CountTokens(ctx context.Context, model string, messages []Message) (int, error)

	// Chat returns only the assistant text
	Chat(ctx context.Context, model string, messages []Message) (string, error)

	// ChatWithUsage returns assistant text + usage as reported by the provider.
	ChatWithUsage(ctx context.Context, model string, messages []Message) (string, Usage, error)
}

// ResearchState is the provider's view of a remote research job.
type ResearchState struct {
	Status  model.JobStatus
	Outputs []model.ContentBlock
	// Reason is the provider's failure description when Status is failed.
	Reason string
}

// ResearchProvider is the port for providers with a "create, then poll" interaction model.
type ResearchProvider interface {
	Name() string
	StartResearch(ctx context.Context, model, input string) (remoteID string, err error)
	PollResearch(ctx context.Context, remoteID string) (ResearchState, error)
}
