package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"research-gateway/internal/domain"
	"research-gateway/internal/domain/model"
	"research-gateway/internal/domain/ports/adapter"
	"research-gateway/internal/infra/logging"
	"research-gateway/internal/usecase"
)

const maxBodyBytes = 1 << 20

// ModelLister reports the models of every configured provider.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Handler serves the research and generate API.
type Handler struct {
	research           usecase.ResearchUseCase
	generate           usecase.GenerateUseCase
	publisher          *usecase.StreamPublisher
	render             usecase.Renderer
	available          ModelLister
	researchCandidates []model.Candidate
	log                *zerolog.Logger
}

func NewHandler(
	research usecase.ResearchUseCase,
	generate usecase.GenerateUseCase,
	publisher *usecase.StreamPublisher,
	render usecase.Renderer,
	available ModelLister,
	researchCandidates []model.Candidate,
	logger *zerolog.Logger,
) *Handler {
	l := logger.With().Str("component", "http").Logger()
	return &Handler{
		research:           research,
		generate:           generate,
		publisher:          publisher,
		render:             render,
		available:          available,
		researchCandidates: researchCandidates,
		log:                &l,
	}
}

type startRequest struct {
	Input   string `json:"input"`
	Options struct {
		Model string `json:"model"`
	} `json:"options"`
}

type startResponse struct {
	JobID       string          `json:"jobId"`
	Status      model.JobStatus `json:"status"`
	Provider    string          `json:"provider"`
	Model       string          `json:"model"`
	WasFallback bool            `json:"wasFallback"`
}

type statusResponse struct {
	JobID       string                  `json:"jobId"`
	Status      model.JobStatus         `json:"status"`
	Outputs     []usecase.RenderedBlock `json:"outputs"`
	Provider    string                  `json:"provider"`
	Model       string                  `json:"model"`
	WasFallback bool                    `json:"wasFallback"`
	Error       *model.ErrorInfo        `json:"error,omitempty"`
	CreatedAt   time.Time               `json:"createdAt"`
	UpdatedAt   time.Time               `json:"updatedAt"`
}

type generateRequest struct {
	Prompt  string `json:"prompt"`
	Version string `json:"version"`
}

type generateResponse struct {
	Content     string                 `json:"content"`
	Provider    string                 `json:"provider"`
	Model       string                 `json:"model"`
	WasFallback bool                   `json:"wasFallback"`
	Usage       adapter.Usage          `json:"usage"`
	Error       *generateFailureDetail `json:"error,omitempty"`
}

// generateFailureDetail is attached when the placeholder replaced a failed cascade.
type generateFailureDetail struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	UserAction string `json:"userAction"`
	Provider   string `json:"provider"`
}

// decodeJSON rejects bodies that are not a single JSON object of the target shape.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("%w: field %q must be %s", domain.ErrInvalidArgument, typeErr.Field, typeErr.Type)
		}
		return fmt.Errorf("%w: malformed JSON body", domain.ErrInvalidArgument)
	}
	return nil
}

func (h *Handler) startResearch(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err, "")
		return
	}
	job, err := h.research.Start(r.Context(), req.Input, usecase.StartOptions{Model: req.Options.Model})
	if err != nil {
		writeError(w, r, h.log, err, "")
		return
	}
	writeJSON(w, http.StatusAccepted, startResponse{
		JobID:       job.ID,
		Status:      job.Status,
		Provider:    job.Provider,
		Model:       job.Model,
		WasFallback: job.WasFallback,
	})
}

func (h *Handler) researchStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("jobId")
	r = r.WithContext(logging.WithJobID(r.Context(), jobID))
	job, err := h.research.Status(r.Context(), jobID)
	if err != nil {
		writeError(w, r, h.log, err, "")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		JobID:       job.ID,
		Status:      job.Status,
		Outputs:     usecase.RenderOutputs(h.render, job.Outputs),
		Provider:    job.Provider,
		Model:       job.Model,
		WasFallback: job.WasFallback,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
	})
}

// researchStream reports every failure, including an unknown id, as an
// error event rather than an HTTP status.
func (h *Handler) researchStream(w http.ResponseWriter, r *http.Request) {
	sink, err := newSSESink(w)
	if err != nil {
		h.log.Error().Err(err).Msg("response writer cannot stream")
		return
	}
	jobID := r.URL.Query().Get("jobId")
	ctx := logging.WithJobID(r.Context(), jobID)
	if err := h.publisher.Subscribe(ctx, jobID, sink); err != nil && ctx.Err() == nil {
		logging.With(ctx, h.log).Debug().Err(err).Msg("stream ended early")
	}
}

func (h *Handler) generateContent(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err, "")
		return
	}
	res, err := h.generate.Generate(r.Context(), usecase.GenerateRequest{Prompt: req.Prompt, Version: req.Version})
	if err != nil {
		writeError(w, r, h.log, err, "")
		return
	}
	resp := generateResponse{
		Content:     res.Content,
		Provider:    res.Provider,
		Model:       res.Model,
		WasFallback: res.WasFallback,
		Usage:       res.Usage,
	}
	if res.Error != nil {
		resp.Error = &generateFailureDetail{
			Code:       string(res.Error.Code),
			Message:    res.Error.Message,
			UserAction: res.Error.UserAction,
			Provider:   res.Error.Provider,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// models reports the configured candidate lists and, under "available", the
// union of models the registered providers serve.
func (h *Handler) models(w http.ResponseWriter, r *http.Request) {
	versions := h.generate.Versions()
	available := []string{}
	if h.available != nil {
		list, err := h.available.ListModels(r.Context())
		if err != nil {
			writeError(w, r, h.log, err, "")
			return
		}
		available = append(available, list...)
	}
	writeJSON(w, http.StatusOK, struct {
		Versions  map[string][]model.Candidate `json:"versions"`
		Order     []string                     `json:"order"`
		Research  []model.Candidate            `json:"research"`
		Available []string                     `json:"available"`
	}{
		Versions:  versions,
		Order:     usecase.VersionNames(versions),
		Research:  h.researchCandidates,
		Available: available,
	})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
