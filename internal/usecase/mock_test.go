package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"research-gateway/internal/domain"
	"research-gateway/internal/domain/model"
	"research-gateway/internal/domain/ports/adapter"
	"research-gateway/pkg/backoff"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// noSleep keeps retry tests instantaneous.
func noSleep(p backoff.Policy) backoff.Policy {
	p.Sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return p
}

// ---- research providers ----

type fakeResearch struct {
	name string

	mu       sync.Mutex
	startErr error
	starts   int
	polls    int
	states   []adapter.ResearchState // consumed in order; the last one repeats
	pollErr  error
}

func (f *fakeResearch) Name() string { return f.name }

func (f *fakeResearch) StartResearch(ctx context.Context, model, input string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return "", f.startErr
	}
	return f.name + "-resp-" + model, nil
}

func (f *fakeResearch) PollResearch(ctx context.Context, remoteID string) (adapter.ResearchState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.pollErr != nil {
		return adapter.ResearchState{}, f.pollErr
	}
	if len(f.states) == 0 {
		return adapter.ResearchState{Status: model.JobStatusInProgress}, nil
	}
	st := f.states[0]
	if len(f.states) > 1 {
		f.states = f.states[1:]
	}
	return st, nil
}

func (f *fakeResearch) counts() (starts, polls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.polls
}

type fakeProviders struct {
	research map[string]adapter.ResearchProvider
	chat     map[string]adapter.AIServiceAdapter
}

func (p *fakeProviders) Research(name string) (adapter.ResearchProvider, error) {
	if r, ok := p.research[name]; ok {
		return r, nil
	}
	return nil, domain.ErrProviderNotConfigured
}

func (p *fakeProviders) HasResearch() bool { return len(p.research) > 0 }

func (p *fakeProviders) Chat(name string) (adapter.AIServiceAdapter, error) {
	if a, ok := p.chat[name]; ok {
		return a, nil
	}
	return nil, domain.ErrProviderNotConfigured
}

func (p *fakeProviders) HasChat() bool { return len(p.chat) > 0 }

// ---- chat adapters ----

type fakeChat struct {
	name    string
	reply   string
	err     error
	noUsage bool // report zero usage, like providers that omit it
	tokens  int  // CountTokens answer

	mu          sync.Mutex
	calls       int
	tokenCounts int
}

func (f *fakeChat) Name() string { return f.name }
func (f *fakeChat) ListModels(ctx context.Context) ([]string, error) {
	return []string{f.name + "-model"}, nil
}
func (f *fakeChat) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenCounts++
	return f.tokens, nil
}
func (f *fakeChat) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	r, _, err := f.ChatWithUsage(ctx, model, messages)
	return r, err
}
func (f *fakeChat) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", adapter.Usage{}, f.err
	}
	if f.noUsage {
		return f.reply, adapter.Usage{}, nil
	}
	return f.reply, adapter.Usage{PromptTokens: 3, CompletionTokens: 5, TotalTokens: 8}, nil
}

func (f *fakeChat) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// ---- stream ----

type recordingSink struct {
	mu         sync.Mutex
	events     []model.StreamEvent
	heartbeats int
	failAfter  int // Send fails once this many events were delivered; 0 disables
}

var errSinkClosed = errors.New("sink closed")

func (s *recordingSink) Send(ev model.StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && len(s.events) >= s.failAfter {
		return errSinkClosed
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Heartbeat() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats++
	return nil
}

func (s *recordingSink) types() []model.StreamEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.StreamEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

// scriptedJobs returns one scripted answer per Status call; the last repeats.
type scriptedJobs struct {
	mu    sync.Mutex
	steps []scriptStep
	calls int
}

type scriptStep struct {
	job *model.Job
	err error
}

func (s *scriptedJobs) Status(ctx context.Context, jobID string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.calls++
	st := s.steps[i]
	if st.err != nil {
		return nil, st.err
	}
	return st.job.Clone(), nil
}
