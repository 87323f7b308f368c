// Package cascade tries an ordered list of (provider, model) candidates until one succeeds.
package cascade

import (
	"context"

	"research-gateway/internal/domain"
	"research-gateway/internal/domain/model"
)

// Result is the outcome of a successful cascade.
type Result[T any] struct {
	Value       T
	Used        model.Candidate
	Index       int
	WasFallback bool
}

// Failure is reported to Observer for every candidate that did not succeed.
type Failure struct {
	Candidate model.Candidate
	Index     int
	Err       error
}

// Observer receives per-candidate outcomes. Any field may be nil.
type Observer struct {
	OnFailure func(f Failure)
	OnSuccess func(used model.Candidate, index int)
}

// Run calls attempt for each candidate strictly in order and returns the first
// success. When every candidate fails, the last candidate's error is returned;
// earlier failures are only reported to the observer. A cancelled ctx stops the
// walk before the next candidate and returns the last failure seen.
func Run[T any](
	ctx context.Context,
	candidates []model.Candidate,
	attempt func(ctx context.Context, c model.Candidate) (T, error),
	obs Observer,
) (Result[T], error) {
	var zero Result[T]
	if len(candidates) == 0 {
		return zero, domain.ErrNoProviders
	}

	var lastErr error
	for i, c := range candidates {
		if i > 0 && ctx.Err() != nil {
			return zero, lastErr
		}
		v, err := attempt(ctx, c)
		if err == nil {
			if obs.OnSuccess != nil {
				obs.OnSuccess(c, i)
			}
			return Result[T]{Value: v, Used: c, Index: i, WasFallback: i > 0}, nil
		}
		lastErr = err
		if obs.OnFailure != nil {
			obs.OnFailure(Failure{Candidate: c, Index: i, Err: err})
		}
	}
	return zero, lastErr
}
