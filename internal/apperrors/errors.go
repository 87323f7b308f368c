// Package apperrors normalizes provider, transport and validation failures into
// one closed taxonomy with user guidance.
package apperrors

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Code is the closed set of error kinds a caller can observe.
type Code string

const (
	CodeConnectionFailed Code = "CONNECTION_FAILED"
	CodeTimeout          Code = "TIMEOUT"
	CodeDNS              Code = "DNS_ERROR"
	CodeRateLimit        Code = "RATE_LIMIT"
	CodeQuotaExceeded    Code = "QUOTA_EXCEEDED"
	CodeAuth             Code = "AUTH_ERROR"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeBadRequest       Code = "BAD_REQUEST"
	CodeNotFound         Code = "NOT_FOUND"
	CodeProvider         Code = "PROVIDER_ERROR"
	CodeUnknown          Code = "UNKNOWN_ERROR"
)

// Codes lists every Code; catalog must hold an entry for each one.
var Codes = []Code{
	CodeConnectionFailed, CodeTimeout, CodeDNS, CodeRateLimit, CodeQuotaExceeded, CodeAuth,
	CodePermissionDenied, CodeBadRequest, CodeNotFound, CodeProvider, CodeUnknown,
}

type entry struct {
	message    string
	userAction string
	status     int
}

var catalog = map[Code]entry{
	CodeConnectionFailed: {
		message:    "Could not connect to the AI provider.",
		userAction: "Check your network connection and try again in a few moments.",
		status:     http.StatusBadGateway,
	},
	CodeTimeout: {
		message:    "The AI provider did not respond in time.",
		userAction: "Try again; if the problem persists, shorten the request.",
		status:     http.StatusGatewayTimeout,
	},
	CodeDNS: {
		message:    "The AI provider address could not be resolved.",
		userAction: "Check DNS and network settings, then try again.",
		status:     http.StatusBadGateway,
	},
	CodeRateLimit: {
		message:    "The AI provider is rate limiting requests.",
		userAction: "Wait a minute before sending another request.",
		status:     http.StatusTooManyRequests,
	},
	CodeQuotaExceeded: {
		message:    "The AI provider quota has been exhausted.",
		userAction: "Check the provider account's plan and billing, or try again later.",
		status:     http.StatusTooManyRequests,
	},
	CodeAuth: {
		message:    "The AI provider rejected the configured credentials.",
		userAction: "Verify the API key in the service configuration.",
		status:     http.StatusUnauthorized,
	},
	CodePermissionDenied: {
		message:    "The configured credentials are not allowed to use this model.",
		userAction: "Choose another model or request access from the provider.",
		status:     http.StatusForbidden,
	},
	CodeBadRequest: {
		message:    "The request is invalid.",
		userAction: "Fix the request parameters and try again.",
		status:     http.StatusBadRequest,
	},
	CodeNotFound: {
		message:    "The requested job was not found.",
		userAction: "Check the job id or start a new job.",
		status:     http.StatusNotFound,
	},
	CodeProvider: {
		message:    "The AI provider returned an error.",
		userAction: "Try again shortly; another model may be used automatically.",
		status:     http.StatusBadGateway,
	},
	CodeUnknown: {
		message:    "An unexpected error occurred.",
		userAction: "Try again. If the problem persists, contact support.",
		status:     http.StatusInternalServerError,
	},
}

// NormalizedError is the provider-independent form of a failure. It is only
// produced by Normalize and friends and is never mutated afterwards.
type NormalizedError struct {
	Code          Code      `json:"code"`
	Message       string    `json:"message"`
	UserAction    string    `json:"userAction"`
	Provider      string    `json:"provider"`
	OriginalError string    `json:"-"`
	Timestamp     time.Time `json:"timestamp"`

	cause error
}

func (e NormalizedError) Error() string {
	return string(e.Code) + ": " + e.Message
}

func (e NormalizedError) Unwrap() error { return e.cause }

// MarshalZerologObject lets loggers embed the normalized fields.
func (e NormalizedError) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("code", string(e.Code)).
		Str("provider", e.Provider).
		Str("user_action", e.UserAction).
		Str("original_error", e.OriginalError)
}

// HTTPStatus maps a code to the status used at the HTTP boundary.
func HTTPStatus(code Code) int {
	if e, ok := catalog[code]; ok {
		return e.status
	}
	return http.StatusInternalServerError
}

// New builds a NormalizedError of a known code with a caller-facing message.
// An empty message uses the catalog text.
func New(code Code, message, provider string) NormalizedError {
	e, ok := catalog[code]
	if !ok {
		code, e = CodeUnknown, catalog[CodeUnknown]
	}
	if message == "" {
		message = e.message
	}
	return NormalizedError{
		Code:          code,
		Message:       message,
		UserAction:    e.userAction,
		Provider:      providerOrUnknown(provider),
		OriginalError: message,
		Timestamp:     time.Now().UTC(),
	}
}

// BadRequest is the validation failure reported before any provider call.
func BadRequest(message string) NormalizedError { return New(CodeBadRequest, message, "") }

// NotFound reports an unknown job id.
func NotFound(jobID string) NormalizedError {
	return New(CodeNotFound, "job "+jobID+" not found", "")
}

func providerOrUnknown(p string) string {
	if p == "" {
		return "unknown"
	}
	return p
}

// WithCode reports err under a fixed code, keeping the catalog text for that
// code and err as the original error.
func WithCode(code Code, err error, provider string) NormalizedError {
	ne := New(code, "", provider)
	if err != nil {
		ne.OriginalError = err.Error()
		ne.cause = err
	}
	return ne
}
