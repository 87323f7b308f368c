// File: internal/infra/redis/job_store.go
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"research-gateway/internal/domain"
	"research-gateway/internal/domain/model"
	"research-gateway/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*JobStore)(nil)

const maxWatchRetries = 8

// JobStore is a Job Registry shared by several service instances. Records are
// JSON blobs under "<prefix><id>"; terminal jobs get a TTL equal to retention.
type JobStore struct {
	cli       *redis.Client
	prefix    string
	retention time.Duration
	now       func() time.Time
}

func NewJobStore(c *Client, prefix string, retention time.Duration) *JobStore {
	if prefix == "" {
		prefix = "research:job:"
	}
	return &JobStore{cli: c.cli, prefix: prefix, retention: retention, now: time.Now}
}

func (s *JobStore) key(id string) string { return s.prefix + id }

func (s *JobStore) Create(ctx context.Context, seed model.Job) (string, error) {
	if seed.Status == "" {
		seed.Status = model.JobStatusPending
	}
	now := s.now()
	j := seed.Clone()
	j.Outputs = []model.ContentBlock{}
	j.CreatedAt, j.UpdatedAt = now, now

	for i := 0; i < maxWatchRetries; i++ {
		j.ID = model.NewJobID()
		b, err := json.Marshal(j)
		if err != nil {
			return "", err
		}
		ok, err := s.cli.SetNX(ctx, s.key(j.ID), b, s.ttlFor(j)).Result()
		if err != nil {
			return "", fmt.Errorf("redis create job: %w", err)
		}
		if ok {
			return j.ID, nil
		}
	}
	return "", errors.New("redis create job: could not allocate a unique id")
}

func (s *JobStore) Get(ctx context.Context, id string) (*model.Job, error) {
	b, err := s.cli.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get job: %w", err)
	}
	var j model.Job
	if err := json.Unmarshal(b, &j); err != nil {
		return nil, fmt.Errorf("redis decode job: %w", err)
	}
	return j.Clone(), nil
}

// Update applies patch inside WATCH/MULTI so concurrent writers from other
// instances cannot interleave a lost update.
func (s *JobStore) Update(ctx context.Context, id string, patch model.JobPatch) (*model.Job, error) {
	key := s.key(id)
	var out *model.Job
	var applyErr error

	txf := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		var j model.Job
		if err := json.Unmarshal(b, &j); err != nil {
			return err
		}
		if applyErr = j.Apply(patch, s.now()); applyErr != nil {
			out = j.Clone()
			return nil
		}
		nb, err := json.Marshal(&j)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, nb, s.ttlFor(&j))
			return nil
		})
		if err == nil {
			out = j.Clone()
		}
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.cli.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("redis update job: %w", err)
		}
		return out, applyErr
	}
	return nil, fmt.Errorf("redis update job %s: too much contention", id)
}

// DeleteTerminalBefore sweeps terminal jobs that outlived retention without a
// TTL, e.g. ones written before retention was configured.
func (s *JobStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	n := 0
	iter := s.cli.Scan(ctx, 0, s.prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		b, err := s.cli.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var j model.Job
		if json.Unmarshal(b, &j) != nil {
			continue
		}
		if j.Status.IsTerminal() && j.UpdatedAt.Before(cutoff) {
			if err := s.cli.Del(ctx, key).Err(); err == nil {
				n++
			}
		}
	}
	return n, iter.Err()
}

func (s *JobStore) ListActive(ctx context.Context) ([]string, error) {
	var ids []string
	iter := s.cli.Scan(ctx, 0, s.prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		b, err := s.cli.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var j model.Job
		if json.Unmarshal(b, &j) != nil {
			continue
		}
		if !j.Status.IsTerminal() && j.RemoteID != "" {
			ids = append(ids, j.ID)
		}
	}
	return ids, iter.Err()
}

func (s *JobStore) ttlFor(j *model.Job) time.Duration {
	if j.Status.IsTerminal() && s.retention > 0 {
		return s.retention
	}
	return 0
}
