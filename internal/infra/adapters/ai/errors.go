package ai

import (
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/openai/openai-go/v2"
	goopenai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// ProviderError carries the HTTP status a provider SDK reported for a failed call.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: http %d: %v", e.Provider, e.StatusCode, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) HTTPStatusCode() int { return e.StatusCode }

// wrapErr tags err with the provider name and, when an SDK error type is
// recognized, with the HTTP status it carries.
func wrapErr(provider string, err error) error {
	if err == nil {
		return nil
	}
	if status := statusOf(err); status > 0 {
		return &ProviderError{Provider: provider, StatusCode: status, Err: err}
	}
	return fmt.Errorf("%s: %w", provider, err)
}

func statusOf(err error) int {
	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		return oaErr.StatusCode
	}
	var anErr *anthropic.Error
	if errors.As(err, &anErr) {
		return anErr.StatusCode
	}
	var gAPI genai.APIError
	if errors.As(err, &gAPI) {
		return gAPI.Code
	}
	var gAPIPtr *genai.APIError
	if errors.As(err, &gAPIPtr) {
		return gAPIPtr.Code
	}
	var goAPI *goopenai.APIError
	if errors.As(err, &goAPI) {
		return goAPI.HTTPStatusCode
	}
	var goReq *goopenai.RequestError
	if errors.As(err, &goReq) {
		return goReq.HTTPStatusCode
	}
	return 0
}
