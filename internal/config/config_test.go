package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func clearProviderEnv(t *testing.T) {
	for _, k := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "COMPAT_API_KEY", "REDIS_URL", "LOG_LEVEL", "PORT"} {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	clearProviderEnv(t)
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), false)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTP.Port != 8080 || cfg.Retry.MaxAttempts != 3 || cfg.Retry.BaseDelay != time.Second {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if got := len(cfg.Cascade.Versions["pilot"]); got != 4 {
		t.Fatalf("pilot candidates = %d", got)
	}
	if !cfg.Runtime.Offline {
		t.Fatal("expected offline mode without credentials")
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	clearProviderEnv(t)
	p := writeConfig(t, `
http:
  port: 9090
retry:
  max_attempts: 5
cascade:
  default_version: fast
  versions:
    fast:
      - provider: gemini
        model: gemini-2.5-flash
jobs:
  simulated_delay: 10ms
`)
	cfg, err := LoadConfig(p, true)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTP.Port != 9090 || cfg.Retry.MaxAttempts != 5 {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if cfg.Jobs.SimulatedDelay != 10*time.Millisecond || cfg.Jobs.PollInterval != 2*time.Second {
		t.Fatalf("jobs = %+v", cfg.Jobs)
	}
	if c := cfg.Cascade.Versions["fast"]; len(c) != 1 || c[0].Provider != "gemini" {
		t.Fatalf("fast version = %+v", c)
	}
	if !cfg.Runtime.Dev {
		t.Fatal("dev flag not propagated")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("REDIS_URL", "localhost:6379")
	t.Setenv("PORT", "7000")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), false)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AI.OpenAIKey != "sk-test" || cfg.Redis.URL != "localhost:6379" || cfg.HTTP.Port != 7000 {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.Runtime.Offline {
		t.Fatal("credentials present, must not be offline")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	clearProviderEnv(t)
	cases := map[string]string{
		"unknown default version": "cascade:\n  default_version: nope\n",
		"redis store without url": "jobs:\n  store: redis\n",
		"unknown store":           "jobs:\n  store: postgres\n",
		"bad yaml":                "http: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, body), false); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
