package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound              = errors.New("entity not found")
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrTerminalState         = errors.New("job already in a terminal state")
	ErrInvalidTransition     = errors.New("invalid job status transition")
	ErrProviderNotConfigured = errors.New("provider not configured")
	ErrNoProviders           = errors.New("no providers configured")
	ErrUnknownVersion        = errors.New("unknown generation version")
)
