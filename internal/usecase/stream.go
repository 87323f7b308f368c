// File: internal/usecase/stream.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"research-gateway/internal/apperrors"
	"research-gateway/internal/domain"
	"research-gateway/internal/domain/model"
	"research-gateway/internal/infra/logging"
	"research-gateway/internal/infra/metrics"
)

// EventSink receives the frames of one subscription. A non-nil error from
// either method means the subscriber is gone.
type EventSink interface {
	Send(ev model.StreamEvent) error
	Heartbeat() error
}

// JobStatusReader is what the publisher polls.
type JobStatusReader interface {
	Status(ctx context.Context, jobID string) (*model.Job, error)
}

// Renderer converts output text to HTML.
type Renderer interface {
	Render(text string) (string, error)
}

type StatusPayload struct {
	JobID       string          `json:"jobId"`
	Status      model.JobStatus `json:"status"`
	Provider    string          `json:"provider"`
	Model       string          `json:"model"`
	WasFallback bool            `json:"wasFallback"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type RenderedBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
	HTML string `json:"html,omitempty"`
}

type OutputsPayload struct {
	JobID   string          `json:"jobId"`
	Outputs []RenderedBlock `json:"outputs"`
}

type DonePayload struct {
	JobID  string           `json:"jobId"`
	Status model.JobStatus  `json:"status"`
	Error  *model.ErrorInfo `json:"error,omitempty"`
}

// RenderOutputs attaches an HTML rendering to each block. Blocks that fail to
// render keep their text only.
func RenderOutputs(r Renderer, blocks []model.ContentBlock) []RenderedBlock {
	out := make([]RenderedBlock, 0, len(blocks))
	for _, b := range blocks {
		rb := RenderedBlock{Type: b.Type, Text: b.Text}
		if r != nil {
			if h, err := r.Render(b.Text); err == nil {
				rb.HTML = h
			}
		}
		out = append(out, rb)
	}
	return out
}

// StreamPublisher drives one subscription per Subscribe call:
// Idle -> Streaming -> {Done, Errored}.
type StreamPublisher struct {
	jobs      JobStatusReader
	render    Renderer
	poll      time.Duration
	heartbeat time.Duration
	log       *zerolog.Logger
}

func NewStreamPublisher(jobs JobStatusReader, render Renderer, poll, heartbeat time.Duration, logger *zerolog.Logger) *StreamPublisher {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	l := logger.With().Str("component", "StreamPublisher").Logger()
	return &StreamPublisher{jobs: jobs, render: render, poll: poll, heartbeat: heartbeat, log: &l}
}

// Subscribe streams events for jobID until the job is terminal, a query
// fails, or ctx is cancelled. Query failures are delivered as an error event
// and end the stream with a nil return; the returned error is only non-nil
// when the subscriber went away.
func (p *StreamPublisher) Subscribe(ctx context.Context, jobID string, sink EventSink) error {
	defer metrics.StreamOpened()()

	ctx = logging.WithJobID(ctx, jobID)
	log := logging.With(ctx, p.log)
	job, err := p.jobs.Status(ctx, jobID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return p.sendError(log, sink, jobID, "", err)
	}
	log = logging.With(logging.WithProvider(ctx, job.Provider), p.log)
	if err := p.sendStatus(sink, job); err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return p.finish(sink, job)
	}

	poll := time.NewTicker(p.poll)
	defer poll.Stop()
	hb := time.NewTicker(p.heartbeat)
	defer hb.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("subscriber disconnected")
			return ctx.Err()
		case <-hb.C:
			if err := sink.Heartbeat(); err != nil {
				return err
			}
		case <-poll.C:
			next, err := p.jobs.Status(ctx, jobID)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return p.sendError(log, sink, jobID, job.Provider, err)
			}
			job = next
			if err := p.sendStatus(sink, job); err != nil {
				return err
			}
			if job.Status.IsTerminal() {
				return p.finish(sink, job)
			}
		}
	}
}

func (p *StreamPublisher) sendStatus(sink EventSink, job *model.Job) error {
	return sink.Send(model.StreamEvent{Type: model.StreamEventStatus, Data: StatusPayload{
		JobID:       job.ID,
		Status:      job.Status,
		Provider:    job.Provider,
		Model:       job.Model,
		WasFallback: job.WasFallback,
		UpdatedAt:   job.UpdatedAt,
	}})
}

func (p *StreamPublisher) finish(sink EventSink, job *model.Job) error {
	if len(job.Outputs) > 0 {
		ev := model.StreamEvent{Type: model.StreamEventOutputs, Data: OutputsPayload{
			JobID:   job.ID,
			Outputs: RenderOutputs(p.render, job.Outputs),
		}}
		if err := sink.Send(ev); err != nil {
			return err
		}
	}
	return sink.Send(model.StreamEvent{Type: model.StreamEventDone, Data: DonePayload{
		JobID:  job.ID,
		Status: job.Status,
		Error:  job.Error,
	}})
}

// sendError maps an unknown id to NOT_FOUND and any other query failure to
// PROVIDER_ERROR. A provider already attached to err wins over an empty one.
func (p *StreamPublisher) sendError(log *zerolog.Logger, sink EventSink, jobID, provider string, err error) error {
	var prior apperrors.NormalizedError
	if provider == "" && errors.As(err, &prior) {
		provider = prior.Provider
	}
	var ne apperrors.NormalizedError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		ne = apperrors.NotFound(jobID)
	case errors.Is(err, domain.ErrInvalidArgument):
		ne = apperrors.Normalize(err, provider)
	default:
		ne = apperrors.WithCode(apperrors.CodeProvider, err, provider)
	}
	metrics.IncNormalizedError(string(ne.Code), ne.Provider)
	log.Warn().Object("error", ne).Msg("job stream failed")
	return sink.Send(model.StreamEvent{Type: model.StreamEventError, Data: ne})
}
