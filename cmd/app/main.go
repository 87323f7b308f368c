// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"research-gateway/internal/config"
	"research-gateway/internal/domain/ports/adapter"
	"research-gateway/internal/domain/ports/repository"
	aiAdapters "research-gateway/internal/infra/adapters/ai"
	"research-gateway/internal/infra/jobstore"
	"research-gateway/internal/infra/logging"
	"research-gateway/internal/infra/metrics"
	red "research-gateway/internal/infra/redis"
	"research-gateway/internal/infra/render"
	"research-gateway/internal/infra/sched"
	"research-gateway/internal/infra/web"
	"research-gateway/internal/infra/worker"
	"research-gateway/internal/usecase"
	"research-gateway/pkg/backoff"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, verbose errors)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	if cfg.Runtime.Offline {
		logger.Warn().Msg("no AI provider credentials configured; research jobs are simulated and generation serves placeholders")
	}

	// ---- Providers ----
	providers, err := buildProviders(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("ai providers")
	}
	logger.Info().Strs("providers", providers.Providers()).Bool("research", providers.HasResearch()).Msg("providers ready")

	// ---- Job Registry ----
	jobs, closeStore, err := buildJobStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("store", cfg.Jobs.Store).Msg("job store")
	}
	defer closeStore()

	// ---- Use cases ----
	retry := backoff.Policy{MaxAttempts: cfg.Retry.MaxAttempts, BaseDelay: cfg.Retry.BaseDelay}
	researchUC := usecase.NewResearchUseCase(jobs, providers, usecase.ResearchConfig{
		Candidates:      cfg.Cascade.Research,
		Retry:           retry,
		SimulatedDelay:  cfg.Jobs.SimulatedDelay,
		ResolveProvider: aiAdapters.ResolveProvider,
		Dev:             cfg.Runtime.Dev,
	}, logger)
	defer researchUC.Close()

	generateUC := usecase.NewGenerateUseCase(providers, aiAdapters.NewStaticAdapter(""), usecase.GenerateConfig{
		DefaultVersion: cfg.Cascade.DefaultVersion,
		Versions:       cfg.Cascade.Versions,
		Retry:          retry,
		Dev:            cfg.Runtime.Dev,
	}, logger)

	md := render.NewMarkdown()
	publisher := usecase.NewStreamPublisher(researchUC, md, cfg.Jobs.PollInterval, cfg.Jobs.HeartbeatInterval, logger)

	// ---- Background housekeeping ----
	pool := worker.NewPool(cfg.Jobs.RefreshWorkers, logger)
	pool.Start(ctx)
	defer pool.Stop()

	janitor, err := sched.NewJobJanitor(jobs, researchUC, pool, sched.JanitorConfig{
		Retention:       cfg.Jobs.Retention,
		SweepSchedule:   cfg.Jobs.JanitorSchedule,
		RefreshSchedule: cfg.Jobs.RefreshSchedule,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("job janitor")
	}
	go func() { _ = janitor.Run(ctx) }()

	// ---- HTTP server ----
	handler := web.NewHandler(researchUC, generateUC, publisher, md, providers, cfg.Cascade.Research, logger)
	server := web.NewServer(cfg.HTTP.Port, handler.Routes(cfg.HTTP.RequestTimeout), logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown requested")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
}

// buildProviders registers one chat adapter per configured credential, each
// behind the shared concurrency limit. Deep research is OpenAI only.
func buildProviders(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*aiAdapters.MultiAIAdapter, error) {
	multi := aiAdapters.NewMultiAIAdapter()
	ai := cfg.AI
	register := func(a adapter.AIServiceAdapter) {
		multi.Register(aiAdapters.NewLimitedAI(a, ai.ConcurrentLimit))
		logger.Debug().Str("provider", a.Name()).Int("concurrent_limit", ai.ConcurrentLimit).Msg("provider registered")
	}

	if ai.OpenAIKey != "" {
		a, err := aiAdapters.NewOpenAIAdapter(ai.OpenAIKey, ai.OpenAIBaseURL, defaultModel(cfg, "openai"), ai.MaxOutputTokens)
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		register(a)

		r, err := aiAdapters.NewOpenAIResearch(ai.OpenAIKey, ai.OpenAIBaseURL)
		if err != nil {
			return nil, fmt.Errorf("openai research: %w", err)
		}
		multi.RegisterResearch(r)
	}
	if ai.AnthropicKey != "" {
		a, err := aiAdapters.NewAnthropicAdapter(ai.AnthropicKey, defaultModel(cfg, "anthropic"), ai.MaxOutputTokens)
		if err != nil {
			return nil, fmt.Errorf("anthropic: %w", err)
		}
		register(a)
	}
	if ai.GeminiKey != "" {
		a, err := aiAdapters.NewGeminiAdapter(ctx, ai.GeminiKey, "", defaultModel(cfg, "gemini"), ai.MaxOutputTokens)
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		register(a)
	}
	if ai.CompatKey != "" {
		a, err := aiAdapters.NewCompatAdapter(ai.CompatKey, defaultModel(cfg, "compat"), ai.CompatBaseURL, ai.MaxOutputTokens)
		if err != nil {
			return nil, fmt.Errorf("compat: %w", err)
		}
		register(a)
	}
	return multi, nil
}

// defaultModel is the first model the default cascade version lists for provider.
func defaultModel(cfg *config.Config, provider string) string {
	for _, c := range cfg.Cascade.Versions[cfg.Cascade.DefaultVersion] {
		if c.Provider == provider {
			return c.Model
		}
	}
	return ""
}

func buildJobStore(ctx context.Context, cfg *config.Config) (repository.JobRepository, func(), error) {
	if cfg.Jobs.Store != "redis" {
		return jobstore.NewMemoryStore(), func() {}, nil
	}
	cli, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	return red.NewJobStore(cli, cfg.Jobs.KeyPrefix, cfg.Jobs.Retention), func() { _ = cli.Close() }, nil
}
