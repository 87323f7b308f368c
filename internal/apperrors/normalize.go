package apperrors

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"syscall"
	"time"

	"research-gateway/internal/domain"
)

// FaultCoder is implemented by failures that carry a native transport fault
// code such as "ECONNREFUSED" or "ENOTFOUND".
type FaultCoder interface {
	FaultCode() string
}

// StatusCoder is implemented by provider failures that know the HTTP status
// returned by the remote API.
type StatusCoder interface {
	HTTPStatusCode() int
}

var faultCodes = map[string]Code{
	"ECONNREFUSED":    CodeConnectionFailed,
	"ECONNRESET":      CodeConnectionFailed,
	"ETIMEDOUT":       CodeTimeout,
	"ESOCKETTIMEDOUT": CodeTimeout,
	"ENOTFOUND":       CodeDNS,
	"EAI_AGAIN":       CodeDNS,
}

// Normalize maps any failure into a NormalizedError. It never panics and the
// resulting Code depends only on err's fault code, type and message.
//
// Classification order, first match wins:
//  1. an already normalized error or a domain validation sentinel;
//  2. native transport faults (connection refused, timeout, DNS);
//  3. message substrings "rate limit", "quota", "API key", "permission denied";
//  4. the provider's HTTP status, when known;
//  5. UNKNOWN_ERROR carrying the original message verbatim.
func Normalize(err error, provider string) NormalizedError {
	if err == nil {
		return New(CodeUnknown, "", provider)
	}

	var ne NormalizedError
	if errors.As(err, &ne) {
		if ne.Provider == "unknown" && provider != "" {
			ne.Provider = provider
		}
		return ne
	}

	raw := err.Error()
	code, ok := classify(err, raw)
	if !ok {
		return NormalizedError{
			Code:          CodeUnknown,
			Message:       raw,
			UserAction:    catalog[CodeUnknown].userAction,
			Provider:      providerOrUnknown(provider),
			OriginalError: raw,
			Timestamp:     time.Now().UTC(),
			cause:         err,
		}
	}

	e := catalog[code]
	msg := e.message
	if code == CodeBadRequest || code == CodeNotFound {
		// validation errors carry their own caller-facing detail
		msg = raw
	}
	return NormalizedError{
		Code:          code,
		Message:       msg,
		UserAction:    e.userAction,
		Provider:      providerOrUnknown(provider),
		OriginalError: raw,
		Timestamp:     time.Now().UTC(),
		cause:         err,
	}
}

func classify(err error, raw string) (Code, bool) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrUnknownVersion):
		return CodeBadRequest, true
	case errors.Is(err, domain.ErrNotFound):
		return CodeNotFound, true
	case errors.Is(err, domain.ErrProviderNotConfigured), errors.Is(err, domain.ErrNoProviders):
		return CodeProvider, true
	}

	if code, ok := transportCode(err); ok {
		return code, true
	}

	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "rate limit"):
		return CodeRateLimit, true
	case strings.Contains(lower, "quota"):
		return CodeQuotaExceeded, true
	case strings.Contains(lower, "api key"):
		return CodeAuth, true
	case strings.Contains(lower, "permission denied"):
		return CodePermissionDenied, true
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		switch status := sc.HTTPStatusCode(); {
		case status == 401:
			return CodeAuth, true
		case status == 403:
			return CodePermissionDenied, true
		case status == 429:
			return CodeRateLimit, true
		case status == 408 || status == 504:
			return CodeTimeout, true
		case status >= 400:
			return CodeProvider, true
		}
	}
	return "", false
}

func transportCode(err error) (Code, bool) {
	var fc FaultCoder
	if errors.As(err, &fc) {
		if code, ok := faultCodes[strings.ToUpper(fc.FaultCode())]; ok {
			return code, true
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return CodeTimeout, true
		}
		return CodeDNS, true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return CodeConnectionFailed, true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return CodeTimeout, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimeout, true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return CodeConnectionFailed, true
	}
	return "", false
}
