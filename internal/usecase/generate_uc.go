// File: internal/usecase/generate_uc.go
package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"research-gateway/internal/apperrors"
	"research-gateway/internal/cascade"
	"research-gateway/internal/domain"
	"research-gateway/internal/domain/model"
	"research-gateway/internal/domain/ports/adapter"
	"research-gateway/internal/infra/logging"
	"research-gateway/internal/infra/metrics"
	"research-gateway/pkg/backoff"
)

// Compile-time check
var _ GenerateUseCase = (*generateUC)(nil)

type GenerateUseCase interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
	Versions() map[string][]model.Candidate
}

// ChatProviders is the lookup the generate flow needs from the provider router.
type ChatProviders interface {
	Chat(provider string) (adapter.AIServiceAdapter, error)
	HasChat() bool
}

type GenerateRequest struct {
	Prompt  string
	Version string
}

type GenerateResult struct {
	Content     string
	Provider    string
	Model       string
	WasFallback bool
	Usage       adapter.Usage
	// Error is the last candidate's failure when every candidate failed and
	// the static placeholder was served instead.
	Error *apperrors.NormalizedError
}

type GenerateConfig struct {
	DefaultVersion string
	Versions       map[string][]model.Candidate
	Retry          backoff.Policy
	// Dev logs prompts unredacted.
	Dev bool
}

type generateUC struct {
	providers ChatProviders
	static    adapter.AIServiceAdapter
	cfg       GenerateConfig
	log       *zerolog.Logger
}

// NewGenerateUseCase wires the cascade. static answers when no provider is
// configured or every candidate failed; its Name() is reported as provider.
func NewGenerateUseCase(providers ChatProviders, static adapter.AIServiceAdapter, cfg GenerateConfig, logger *zerolog.Logger) *generateUC {
	l := logger.With().Str("component", "GenerateUC").Logger()
	return &generateUC{providers: providers, static: static, cfg: cfg, log: &l}
}

func (g *generateUC) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", domain.ErrInvalidArgument)
	}
	version := strings.TrimSpace(req.Version)
	if version == "" {
		version = g.cfg.DefaultVersion
	}
	candidates, ok := g.cfg.Versions[version]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownVersion, version)
	}

	g.log.Debug().Str("version", version).Str("prompt", logging.Redact(prompt, g.cfg.Dev)).Msg("generate requested")

	msgs := []adapter.Message{{Role: "user", Content: prompt}}
	if g.providers == nil || !g.providers.HasChat() {
		g.log.Debug().Str("version", version).Msg("no provider configured, serving placeholder")
		return g.placeholder(ctx, msgs, nil)
	}

	type reply struct {
		text  string
		usage adapter.Usage
	}
	var lastProvider string
	res, err := cascade.Run(ctx, candidates, func(ctx context.Context, c model.Candidate) (reply, error) {
		lastProvider = c.Provider
		a, err := g.providers.Chat(c.Provider)
		if err != nil {
			return reply{}, err
		}
		policy := g.cfg.Retry
		policy.OnRetry = func(at backoff.Attempt) {
			metrics.IncRetry("generate")
			g.log.Warn().Err(at.Err).Str("provider", c.Provider).Str("model", c.Model).
				Int("attempt", at.Number).Int("max_attempts", at.MaxAttempts).Dur("delay", at.Delay).
				Msg("retrying provider call")
		}
		rep, err := backoff.Do(ctx, policy, func(ctx context.Context) (reply, error) {
			done := logging.TraceDuration(g.log, c.Provider+".ChatWithUsage")
			defer done()
			text, u, err := a.ChatWithUsage(ctx, c.Model, msgs)
			return reply{text: text, usage: u}, err
		})
		if err == nil && rep.usage.PromptTokens == 0 {
			rep.usage = g.countPrompt(ctx, a, c, msgs, rep.usage)
		}
		return rep, err
	}, cascade.Observer{OnFailure: func(f cascade.Failure) {
		ne := apperrors.Normalize(f.Err, f.Candidate.Provider)
		g.log.Warn().Object("error", ne).Str("model", f.Candidate.Model).Int("index", f.Index).
			Str("version", version).Msg("generate candidate failed")
	}})
	if err != nil {
		metrics.IncCascadeExhausted(version)
		ne := apperrors.Normalize(err, lastProvider)
		g.log.Error().Object("error", ne).Str("version", version).Msg("all candidates failed, serving placeholder")
		return g.placeholder(ctx, msgs, &ne)
	}
	if res.WasFallback {
		metrics.IncCascadeFallback(version)
	}
	return &GenerateResult{
		Content:     res.Value.text,
		Provider:    res.Used.Provider,
		Model:       res.Used.Model,
		WasFallback: res.WasFallback,
		Usage:       res.Value.usage,
	}, nil
}

// countPrompt fills prompt tokens from the adapter's tokenizer when the
// provider did not report usage.
func (g *generateUC) countPrompt(ctx context.Context, a adapter.AIServiceAdapter, c model.Candidate, msgs []adapter.Message, u adapter.Usage) adapter.Usage {
	n, err := a.CountTokens(ctx, c.Model, msgs)
	if err != nil {
		g.log.Debug().Err(err).Str("provider", c.Provider).Str("model", c.Model).Msg("token count unavailable")
		return u
	}
	u.PromptTokens = n
	u.TotalTokens = n + u.CompletionTokens
	return u
}

func (g *generateUC) placeholder(ctx context.Context, msgs []adapter.Message, cause *apperrors.NormalizedError) (*GenerateResult, error) {
	text, _, err := g.static.ChatWithUsage(ctx, "", msgs)
	if err != nil {
		return nil, err
	}
	mdl := ""
	if models, err := g.static.ListModels(ctx); err == nil && len(models) > 0 {
		mdl = models[0]
	}
	return &GenerateResult{
		Content:     text,
		Provider:    g.static.Name(),
		Model:       mdl,
		WasFallback: true,
		Error:       cause,
	}, nil
}

// Versions returns a copy of the configured candidate lists.
func (g *generateUC) Versions() map[string][]model.Candidate {
	out := make(map[string][]model.Candidate, len(g.cfg.Versions))
	for v, c := range g.cfg.Versions {
		out[v] = append([]model.Candidate(nil), c...)
	}
	return out
}

// VersionNames lists configured versions in sorted order.
func VersionNames(versions map[string][]model.Candidate) []string {
	names := make([]string, 0, len(versions))
	for v := range versions {
		names = append(names, v)
	}
	sort.Strings(names)
	return names
}
