package config_test

import (
	"log/slog"
	"testing"

	"github.com/cmtonkinson/brain-scheduler/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ENV", "PORT", "DATABASE_URL", "METRICS_PORT", "LOG_LEVEL",
		"JWKS_URL", "HMAC_SECRET", "REDIS_URL", "ANTHROPIC_API_KEY",
		"SLACK_WEBHOOK_URL", "RETRY_MAX_ATTEMPTS", "RETRY_BACKOFF_STRATEGY",
		"RETRY_BACKOFF_BASE_SECONDS", "CAPABILITY_ALLOWLIST", "CAPABILITY_DENYLIST",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/brain_scheduler")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Env != "local" {
		t.Errorf("Env = %q, want local", cfg.Env)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.RetryMaxAttempts != 3 {
		t.Errorf("RetryMaxAttempts = %d, want 3", cfg.RetryMaxAttempts)
	}
	if cfg.RetryBackoffStrategy != "exponential" {
		t.Errorf("RetryBackoffStrategy = %q, want exponential", cfg.RetryBackoffStrategy)
	}
	if cfg.CapabilityAllowlist == "" || cfg.CapabilityDenylist == "" {
		t.Error("CapabilityAllowlist/CapabilityDenylist should default to non-empty sets")
	}
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	clearEnv(t)
	if _, err := config.Load(); err == nil {
		t.Error("Load() with no DATABASE_URL should error")
	}
}

func TestLoad_InvalidEnumsFailValidation(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
	}{
		{"bad env", "ENV", "sandbox"},
		{"bad log level", "LOG_LEVEL", "verbose"},
		{"bad retry strategy", "RETRY_BACKOFF_STRATEGY", "linear"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("DATABASE_URL", "postgres://localhost/brain_scheduler")
			t.Setenv(c.key, c.val)
			if _, err := config.Load(); err == nil {
				t.Errorf("Load() with %s=%q should fail validation", c.key, c.val)
			}
		})
	}
}

func TestLoad_RetryMaxAttemptsOutOfRange(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/brain_scheduler")
	t.Setenv("RETRY_MAX_ATTEMPTS", "0")
	if _, err := config.Load(); err == nil {
		t.Error("Load() with RETRY_MAX_ATTEMPTS=0 should fail validation (min=1)")
	}
}

func TestSlogLevel(t *testing.T) {
	cases := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, c := range cases {
		cfg := &config.Config{LogLevel: c.level}
		if got := cfg.SlogLevel(); got != c.want {
			t.Errorf("SlogLevel() with LogLevel=%q = %v, want %v", c.level, got, c.want)
		}
	}
}
