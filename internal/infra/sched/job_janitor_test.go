package sched

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"research-gateway/internal/domain/model"
	"research-gateway/internal/infra/jobstore"
	"research-gateway/internal/infra/worker"
)

type recordingRefresher struct {
	mu   sync.Mutex
	ids  []string
	seen chan string
}

func (r *recordingRefresher) Status(_ context.Context, id string) (*model.Job, error) {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
	r.seen <- id
	return &model.Job{ID: id}, nil
}

func status(s model.JobStatus) *model.JobStatus { return &s }

func TestSweepEvictsOnlyExpiredTerminalJobs(t *testing.T) {
	ctx := context.Background()
	log := zerolog.Nop()
	store := jobstore.NewMemoryStore()

	done, _ := store.Create(ctx, model.Job{Status: model.JobStatusInProgress})
	_, _ = store.Update(ctx, done, model.JobPatch{Status: status(model.JobStatusCompleted)})
	running, _ := store.Create(ctx, model.Job{Status: model.JobStatusInProgress})

	j, err := NewJobJanitor(store, nil, nil, JanitorConfig{Retention: time.Hour, SweepSchedule: "@every 1m"}, &log)
	if err != nil {
		t.Fatal(err)
	}

	if n, _ := j.Sweep(ctx); n != 0 {
		t.Fatalf("nothing has expired yet, evicted %d", n)
	}
	j.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if n, err := j.Sweep(ctx); err != nil || n != 1 {
		t.Fatalf("sweep = %d (%v), want 1", n, err)
	}
	if _, err := store.Get(ctx, running); err != nil {
		t.Fatal("running job must survive the sweep")
	}
}

func TestRefreshPollsInFlightRemoteJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := zerolog.Nop()
	store := jobstore.NewMemoryStore()

	remote, _ := store.Create(ctx, model.Job{Status: model.JobStatusInProgress, RemoteID: "resp_1"})
	_, _ = store.Create(ctx, model.Job{Status: model.JobStatusInProgress})

	pool := worker.NewPool(1, &log)
	pool.Start(ctx)
	defer pool.Stop()
	ref := &recordingRefresher{seen: make(chan string, 4)}

	j, err := NewJobJanitor(store, ref, pool, JanitorConfig{RefreshSchedule: "@every 1m"}, &log)
	if err != nil {
		t.Fatal(err)
	}
	n, err := j.Refresh(ctx)
	if err != nil || n != 1 {
		t.Fatalf("refresh queued %d (%v), want 1", n, err)
	}
	select {
	case id := <-ref.seen:
		if id != remote {
			t.Fatalf("refreshed %s, want %s", id, remote)
		}
	case <-time.After(time.Second):
		t.Fatal("refresh task never ran")
	}
}

func TestInvalidScheduleIsRejected(t *testing.T) {
	log := zerolog.Nop()
	_, err := NewJobJanitor(jobstore.NewMemoryStore(), nil, nil,
		JanitorConfig{Retention: time.Hour, SweepSchedule: "every now and then"}, &log)
	if err == nil {
		t.Fatal("expected a schedule parse error")
	}
}

func TestRunStopsWithContext(t *testing.T) {
	log := zerolog.Nop()
	j, err := NewJobJanitor(jobstore.NewMemoryStore(), nil, nil, JanitorConfig{Retention: time.Hour, SweepSchedule: "@every 1h"}, &log)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- j.Run(ctx) }()
	cancel()
	select {
	case <-errc:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
