package repository

import (
	"context"
	"time"

	"research-gateway/internal/domain/model"
)

// JobRepository is the Job Registry. Implementations own the records and only
// ever return copies.
type JobRepository interface {
	// Create stores seed under a freshly allocated id and returns that id.
	// Outputs are always reset to empty.
	Create(ctx context.Context, seed model.Job) (string, error)
	// Get returns a snapshot or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*model.Job, error)
	// Update applies patch monotonically. Updating a terminal job is a no-op that
	// returns the unchanged snapshot together with domain.ErrTerminalState.
	Update(ctx context.Context, id string, patch model.JobPatch) (*model.Job, error)
	// DeleteTerminalBefore evicts completed/failed jobs last updated before cutoff.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
	// ListActive returns the ids of non-terminal jobs backed by a remote provider job.
	ListActive(ctx context.Context) ([]string, error)
}
