// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"research-gateway/internal/domain/model"
)

type RuntimeConfig struct {
	Dev bool
	// Offline is set when no provider credential is configured. Research jobs
	// are then completed by the local simulator.
	Offline bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"` // non-streaming routes only
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AIConfig struct {
	OpenAIKey       string `yaml:"openai_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	AnthropicKey    string `yaml:"anthropic_key"`
	GeminiKey       string `yaml:"gemini_key"`
	CompatKey       string `yaml:"compat_key"`
	CompatBaseURL   string `yaml:"compat_base_url"`
	ConcurrentLimit int    `yaml:"concurrent_limit"` // max concurrent AI calls
	MaxOutputTokens int    `yaml:"max_output_tokens"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
}

type CascadeConfig struct {
	DefaultVersion string                       `yaml:"default_version"`
	Versions       map[string][]model.Candidate `yaml:"versions"`
	Research       []model.Candidate            `yaml:"research"`
}

type JobsConfig struct {
	Store             string        `yaml:"store"` // memory | redis
	KeyPrefix         string        `yaml:"key_prefix"`
	SimulatedDelay    time.Duration `yaml:"simulated_delay"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	Retention         time.Duration `yaml:"retention"`
	JanitorSchedule   string        `yaml:"janitor_schedule"` // cron spec
	RefreshSchedule   string        `yaml:"refresh_schedule"` // cron spec, empty disables
	RefreshWorkers    int           `yaml:"refresh_workers"`
}

type Config struct {
	Log     LogConfig     `yaml:"log"`
	HTTP    HTTPConfig    `yaml:"http"`
	Redis   RedisConfig   `yaml:"redis"`
	AI      AIConfig      `yaml:"ai"`
	Retry   RetryConfig   `yaml:"retry"`
	Cascade CascadeConfig `yaml:"cascade"`
	Jobs    JobsConfig    `yaml:"jobs"`

	Runtime RuntimeConfig `yaml:"-"`
}

// Defaults returns the configuration used for every field a config file
// leaves empty.
func Defaults() Config {
	return Config{
		Log:  LogConfig{Level: "info", Format: "json"},
		HTTP: HTTPConfig{Port: 8080, RequestTimeout: 60 * time.Second},
		AI: AIConfig{
			CompatBaseURL:   "https://openrouter.ai/api/v1",
			ConcurrentLimit: 16,
			MaxOutputTokens: 1024,
		},
		Retry: RetryConfig{MaxAttempts: 3, BaseDelay: time.Second},
		Cascade: CascadeConfig{
			DefaultVersion: "pilot",
			Versions: map[string][]model.Candidate{
				"pilot": {
					{Provider: "openai", Model: "gpt-4o"},
					{Provider: "anthropic", Model: "claude-sonnet-4-5"},
					{Provider: "gemini", Model: "gemini-2.5-flash"},
					{Provider: "compat", Model: "gpt-4o-mini"},
				},
				"standard": {
					{Provider: "openai", Model: "gpt-4o-mini"},
					{Provider: "gemini", Model: "gemini-2.5-flash"},
				},
			},
			Research: []model.Candidate{
				{Provider: "openai", Model: "o4-mini-deep-research"},
				{Provider: "openai", Model: "o3-deep-research"},
			},
		},
		Jobs: JobsConfig{
			Store:             "memory",
			KeyPrefix:         "research:job:",
			SimulatedDelay:    2 * time.Second,
			PollInterval:      2 * time.Second,
			HeartbeatInterval: 15 * time.Second,
			Retention:         time.Hour,
			JanitorSchedule:   "@every 5m",
			RefreshSchedule:   "@every 30s",
			RefreshWorkers:    4,
		},
	}
}

// LoadConfig reads path, fills unset fields from Defaults and applies
// environment overrides. A missing file is not an error: the service then
// runs on defaults and environment only.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := mergo.Merge(&cfg, Defaults()); err != nil {
		return nil, fmt.Errorf("merge defaults: %w", err)
	}
	applyEnv(&cfg, os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	cfg.Runtime.Offline = !cfg.AI.HasCredentials()
	return &cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&cfg.AI.OpenAIKey, "OPENAI_API_KEY")
	set(&cfg.AI.AnthropicKey, "ANTHROPIC_API_KEY")
	set(&cfg.AI.GeminiKey, "GEMINI_API_KEY")
	set(&cfg.AI.CompatKey, "COMPAT_API_KEY")
	set(&cfg.Redis.URL, "REDIS_URL")
	set(&cfg.Log.Level, "LOG_LEVEL")
	if v := getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = p
		}
	}
}

// HasCredentials reports whether at least one provider can be called.
func (c AIConfig) HasCredentials() bool {
	return c.OpenAIKey != "" || c.AnthropicKey != "" || c.GeminiKey != "" || c.CompatKey != ""
}

// Validate checks the fields that have no safe default.
func (c *Config) Validate() error {
	if _, ok := c.Cascade.Versions[c.Cascade.DefaultVersion]; !ok {
		return fmt.Errorf("cascade.default_version %q has no candidates", c.Cascade.DefaultVersion)
	}
	for v, cands := range c.Cascade.Versions {
		if len(cands) == 0 {
			return fmt.Errorf("cascade.versions.%s is empty", v)
		}
	}
	switch c.Jobs.Store {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("redis.url is required when jobs.store is redis")
		}
	default:
		return fmt.Errorf("unknown jobs.store %q", c.Jobs.Store)
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be at least 1")
	}
	return nil
}
