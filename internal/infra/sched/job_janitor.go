// Package sched runs the periodic housekeeping of the Job Registry.
package sched

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"research-gateway/internal/domain"
	"research-gateway/internal/domain/model"
	"research-gateway/internal/domain/ports/repository"
	"research-gateway/internal/infra/metrics"
	"research-gateway/internal/infra/worker"
)

// StatusRefresher advances a job by polling its provider.
type StatusRefresher interface {
	Status(ctx context.Context, jobID string) (*model.Job, error)
}

type JanitorConfig struct {
	Retention       time.Duration
	SweepSchedule   string // cron spec; empty disables eviction
	RefreshSchedule string // cron spec; empty disables background refresh
	RefreshTimeout  time.Duration
}

// JobJanitor evicts terminal jobs past retention and keeps in-flight remote
// jobs moving when no client is polling them.
type JobJanitor struct {
	cron      *cron.Cron
	jobs      repository.JobRepository
	refresher StatusRefresher
	pool      *worker.Pool
	cfg       JanitorConfig
	now       func() time.Time
	log       *zerolog.Logger
}

func NewJobJanitor(jobs repository.JobRepository, refresher StatusRefresher, pool *worker.Pool, cfg JanitorConfig, logger *zerolog.Logger) (*JobJanitor, error) {
	l := logger.With().Str("component", "JobJanitor").Logger()
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 30 * time.Second
	}
	j := &JobJanitor{
		jobs:      jobs,
		refresher: refresher,
		pool:      pool,
		cfg:       cfg,
		now:       time.Now,
		log:       &l,
	}
	cl := cronLogger{log: &l}
	j.cron = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	if cfg.SweepSchedule != "" && cfg.Retention > 0 {
		if _, err := j.cron.AddFunc(cfg.SweepSchedule, func() { _, _ = j.Sweep(context.Background()) }); err != nil {
			return nil, fmt.Errorf("janitor sweep schedule %q: %w", cfg.SweepSchedule, err)
		}
	}
	if cfg.RefreshSchedule != "" && refresher != nil && pool != nil {
		if _, err := j.cron.AddFunc(cfg.RefreshSchedule, func() { _, _ = j.Refresh(context.Background()) }); err != nil {
			return nil, fmt.Errorf("janitor refresh schedule %q: %w", cfg.RefreshSchedule, err)
		}
	}
	return j, nil
}

// Run starts the schedule and blocks until ctx is done.
func (j *JobJanitor) Run(ctx context.Context) error {
	j.log.Info().Int("entries", len(j.cron.Entries())).Msg("Starting job janitor")
	j.cron.Start()
	<-ctx.Done()
	j.log.Info().Msg("Stopping job janitor")
	<-j.cron.Stop().Done()
	return ctx.Err()
}

// Sweep deletes terminal jobs last updated before now minus retention.
func (j *JobJanitor) Sweep(ctx context.Context) (int, error) {
	n, err := j.jobs.DeleteTerminalBefore(ctx, j.now().Add(-j.cfg.Retention))
	if err != nil {
		j.log.Error().Err(err).Msg("job sweep failed")
	}
	if n > 0 {
		metrics.AddJobsEvicted(n)
		j.log.Info().Int("count", n).Msg("terminal jobs evicted")
	}
	return n, err
}

// Refresh queues one status poll per in-flight remote job. It returns the
// number of polls queued; a full queue drops the rest until the next tick.
func (j *JobJanitor) Refresh(ctx context.Context) (int, error) {
	ids, err := j.jobs.ListActive(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("list active jobs failed")
		return 0, err
	}
	queued := 0
	for _, id := range ids {
		err := j.pool.Submit(func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, j.cfg.RefreshTimeout)
			defer cancel()
			_, err := j.refresher.Status(ctx, id)
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return err
		})
		if err != nil {
			j.log.Debug().Err(err).Int("pending", len(ids)-queued).Msg("refresh queue saturated")
			break
		}
		queued++
	}
	return queued, nil
}

// cronLogger routes cron's internal logging through zerolog.
type cronLogger struct{ log *zerolog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
