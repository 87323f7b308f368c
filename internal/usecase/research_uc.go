// File: internal/usecase/research_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"research-gateway/internal/apperrors"
	"research-gateway/internal/cascade"
	"research-gateway/internal/domain"
	"research-gateway/internal/domain/model"
	"research-gateway/internal/domain/ports/adapter"
	"research-gateway/internal/domain/ports/repository"
	"research-gateway/internal/infra/logging"
	"research-gateway/internal/infra/metrics"
	"research-gateway/pkg/backoff"
)

// Compile-time check
var _ ResearchUseCase = (*researchUC)(nil)

const (
	SimulatedProvider = "simulated"
	SimulatedModel    = "simulated"
)

type ResearchUseCase interface {
	Start(ctx context.Context, input string, opts StartOptions) (*model.Job, error)
	// Status returns the job snapshot, first reconciling it with the remote
	// provider when the job is still running there.
	Status(ctx context.Context, jobID string) (*model.Job, error)
	Close()
}

// ResearchProviders is the lookup the research flow needs from the provider router.
type ResearchProviders interface {
	Research(provider string) (adapter.ResearchProvider, error)
	HasResearch() bool
}

type StartOptions struct {
	// Model, when set, is tried before the configured candidates.
	Model string
}

type ResearchConfig struct {
	Candidates     []model.Candidate
	Retry          backoff.Policy
	SimulatedDelay time.Duration
	// ResolveProvider maps a bare model name to a provider name.
	ResolveProvider func(model string) string
	// Dev logs research input unredacted.
	Dev bool
}

type researchUC struct {
	jobs      repository.JobRepository
	providers ResearchProviders
	cfg       ResearchConfig
	log       *zerolog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

func NewResearchUseCase(jobs repository.JobRepository, providers ResearchProviders, cfg ResearchConfig, logger *zerolog.Logger) *researchUC {
	if cfg.SimulatedDelay <= 0 {
		cfg.SimulatedDelay = 2 * time.Second
	}
	l := logger.With().Str("component", "ResearchUC").Logger()
	return &researchUC{
		jobs:      jobs,
		providers: providers,
		cfg:       cfg,
		log:       &l,
		timers:    map[string]*time.Timer{},
	}
}

func (r *researchUC) Start(ctx context.Context, input string, opts StartOptions) (*model.Job, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("%w: input is required", domain.ErrInvalidArgument)
	}
	r.log.Debug().Str("input", logging.Redact(input, r.cfg.Dev)).Str("model", opts.Model).Msg("research start requested")
	if r.providers == nil || !r.providers.HasResearch() {
		return r.startSimulated(ctx, input)
	}

	candidates := r.candidates(opts)
	var lastProvider string
	res, err := cascade.Run(ctx, candidates, func(ctx context.Context, c model.Candidate) (string, error) {
		lastProvider = c.Provider
		p, err := r.providers.Research(c.Provider)
		if err != nil {
			return "", err
		}
		policy := r.cfg.Retry
		policy.OnRetry = r.onRetry("research.start", c)
		return backoff.Do(ctx, policy, func(ctx context.Context) (string, error) {
			return p.StartResearch(ctx, c.Model, input)
		})
	}, cascade.Observer{OnFailure: r.onCandidateFailure})
	if err != nil {
		metrics.IncCascadeExhausted("research")
		return nil, apperrors.Normalize(err, lastProvider)
	}
	if res.WasFallback {
		metrics.IncCascadeFallback("research")
	}

	id, err := r.jobs.Create(ctx, model.Job{
		Status:      model.JobStatusInProgress,
		Provider:    res.Used.Provider,
		Model:       res.Used.Model,
		RemoteID:    res.Value,
		WasFallback: res.WasFallback,
		Input:       input,
	})
	if err != nil {
		return nil, err
	}
	metrics.IncJobStarted(res.Used.Provider)
	r.log.Info().Str("job_id", id).Str("provider", res.Used.Provider).Str("model", res.Used.Model).
		Bool("was_fallback", res.WasFallback).Msg("research job started")
	return r.jobs.Get(ctx, id)
}

func (r *researchUC) candidates(opts StartOptions) []model.Candidate {
	if opts.Model == "" {
		return r.cfg.Candidates
	}
	resolve := r.cfg.ResolveProvider
	if resolve == nil {
		resolve = func(string) string { return "openai" }
	}
	first := model.Candidate{Provider: resolve(opts.Model), Model: opts.Model}
	out := []model.Candidate{first}
	for _, c := range r.cfg.Candidates {
		if c != first {
			out = append(out, c)
		}
	}
	return out
}

func (r *researchUC) startSimulated(ctx context.Context, input string) (*model.Job, error) {
	id, err := r.jobs.Create(ctx, model.Job{
		Status:      model.JobStatusInProgress,
		Provider:    SimulatedProvider,
		Model:       SimulatedModel,
		WasFallback: true,
		Input:       input,
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if !r.closed {
		r.timers[id] = time.AfterFunc(r.cfg.SimulatedDelay, func() { r.completeSimulated(id, input) })
	}
	r.mu.Unlock()

	metrics.IncJobStarted(SimulatedProvider)
	r.log.Debug().Str("job_id", id).Dur("delay", r.cfg.SimulatedDelay).Msg("simulated research job scheduled")
	return r.jobs.Get(ctx, id)
}

func (r *researchUC) completeSimulated(id, input string) {
	r.mu.Lock()
	delete(r.timers, id)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	completed := model.JobStatusCompleted
	_, err := r.jobs.Update(ctx, id, model.JobPatch{
		Status:  &completed,
		Outputs: []model.ContentBlock{{Type: "text", Text: SimulatedReport(input)}},
	})
	switch {
	case err == nil:
		metrics.IncJobFinished(string(completed))
	case errors.Is(err, domain.ErrTerminalState), errors.Is(err, domain.ErrNotFound):
	default:
		r.log.Error().Err(err).Str("job_id", id).Msg("simulated completion failed")
	}
}

// SimulatedReport is the synthesized output of an offline research job.
func SimulatedReport(input string) string {
	return fmt.Sprintf("## Research summary\n\nSimulated findings for **%s**. No AI provider is configured, "+
		"so this report was generated locally.", input)
}

func (r *researchUC) Status(ctx context.Context, jobID string) (*model.Job, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, fmt.Errorf("%w: jobId is required", domain.ErrInvalidArgument)
	}
	job, err := r.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() || job.RemoteID == "" {
		return job, nil
	}
	return r.refresh(ctx, job)
}

// refresh polls the provider that owns job. Failures are normalized under
// that provider.
func (r *researchUC) refresh(ctx context.Context, job *model.Job) (*model.Job, error) {
	if r.providers == nil {
		// the job was started by another instance sharing the store
		return nil, apperrors.Normalize(domain.ErrProviderNotConfigured, job.Provider)
	}
	p, err := r.providers.Research(job.Provider)
	if err != nil {
		return nil, apperrors.Normalize(err, job.Provider)
	}
	st, err := p.PollResearch(ctx, job.RemoteID)
	if err != nil {
		return nil, apperrors.Normalize(err, job.Provider)
	}
	if st.Status == job.Status {
		return job, nil
	}

	patch := model.JobPatch{Status: &st.Status}
	switch st.Status {
	case model.JobStatusCompleted:
		patch.Outputs = st.Outputs
	case model.JobStatusFailed:
		ne := apperrors.New(apperrors.CodeProvider, st.Reason, job.Provider)
		patch.Error = &model.ErrorInfo{Code: string(ne.Code), Message: ne.Message, UserAction: ne.UserAction}
	}

	updated, err := r.jobs.Update(ctx, job.ID, patch)
	switch {
	case err == nil:
		if updated.Status.IsTerminal() {
			metrics.IncJobFinished(string(updated.Status))
			r.log.Info().Str("job_id", job.ID).Str("status", string(updated.Status)).Msg("research job finished")
		}
		return updated, nil
	case errors.Is(err, domain.ErrTerminalState), errors.Is(err, domain.ErrInvalidTransition):
		// another poller got there first, or the provider reported an older state
		return updated, nil
	default:
		return nil, err
	}
}

// Close stops pending simulated completions.
func (r *researchUC) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
}

func (r *researchUC) onRetry(op string, c model.Candidate) func(backoff.Attempt) {
	return func(a backoff.Attempt) {
		metrics.IncRetry(op)
		r.log.Warn().Err(a.Err).Str("provider", c.Provider).Str("model", c.Model).
			Int("attempt", a.Number).Int("max_attempts", a.MaxAttempts).Dur("delay", a.Delay).
			Msg("retrying provider call")
	}
}

func (r *researchUC) onCandidateFailure(f cascade.Failure) {
	ne := apperrors.Normalize(f.Err, f.Candidate.Provider)
	r.log.Warn().Object("error", ne).Str("model", f.Candidate.Model).Int("index", f.Index).
		Msg("research candidate failed")
}
