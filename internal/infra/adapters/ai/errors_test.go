package ai

import (
	"errors"
	"testing"

	"research-gateway/internal/apperrors"
	"research-gateway/internal/domain/model"
	"research-gateway/internal/domain/ports/adapter"
)

func TestWrapErr_PlainErrorKeepsMessage(t *testing.T) {
	base := errors.New("Rate limit reached for requests")
	err := wrapErr("openai", base)
	if !errors.Is(err, base) {
		t.Fatal("wrapped error must unwrap to the original")
	}
	if got := apperrors.Normalize(err, "openai").Code; got != apperrors.CodeRateLimit {
		t.Fatalf("code = %s", got)
	}
}

func TestProviderError_StatusFeedsNormalizer(t *testing.T) {
	err := &ProviderError{Provider: "anthropic", StatusCode: 401, Err: errors.New("unauthorized")}
	if got := apperrors.Normalize(err, "anthropic").Code; got != apperrors.CodeAuth {
		t.Fatalf("code = %s", got)
	}
}

func TestMapResponseStatus(t *testing.T) {
	cases := map[string]model.JobStatus{
		"queued":      model.JobStatusPending,
		"in_progress": model.JobStatusInProgress,
		"completed":   model.JobStatusCompleted,
		"failed":      model.JobStatusFailed,
		"cancelled":   model.JobStatusFailed,
		"incomplete":  model.JobStatusFailed,
	}
	for in, want := range cases {
		if got := mapResponseStatus(in); got != want {
			t.Errorf("mapResponseStatus(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestSplitSystem(t *testing.T) {
	sys, rest := splitSystem([]adapter.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
		{Role: "system", Content: "cite sources"},
	})
	if sys != "be brief\n\ncite sources" {
		t.Fatalf("system = %q", sys)
	}
	if len(rest) != 1 || rest[0].Content != "hi" {
		t.Fatalf("rest = %+v", rest)
	}
}
