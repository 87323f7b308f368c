// Package jobstore holds the in-process Job Registry.
package jobstore

import (
	"context"
	"sync"
	"time"

	"research-gateway/internal/domain"
	"research-gateway/internal/domain/model"
	"research-gateway/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*MemoryStore)(nil)

// MemoryStore keeps jobs in a map guarded by a mutex. It is constructed
// explicitly and injected, never shared through package state.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*model.Job), now: time.Now}
}

func (s *MemoryStore) Create(_ context.Context, seed model.Job) (string, error) {
	if seed.Status == "" {
		seed.Status = model.JobStatusPending
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	id := model.NewJobID()
	for s.jobs[id] != nil {
		id = model.NewJobID()
	}
	j := seed.Clone()
	j.ID = id
	j.Outputs = []model.ContentBlock{}
	j.CreatedAt, j.UpdatedAt = now, now
	s.jobs[id] = j
	return id, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return j.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, patch model.JobPatch) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	next := j.Clone()
	if err := next.Apply(patch, s.now()); err != nil {
		return j.Clone(), err
	}
	s.jobs[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, j := range s.jobs {
		if j.Status.IsTerminal() && j.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListActive(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, j := range s.jobs {
		if !j.Status.IsTerminal() && j.RemoteID != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Len reports the number of stored jobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
