// Package config loads and validates the service's environment-provided
// configuration.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config is the full set of environment-provided settings for the
// scheduler daemon.
type Config struct {
	Env  string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port string `env:"PORT" envDefault:"8080" validate:"required"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`

	// JWKSURL is the JWKS endpoint used to verify RS256 bearer tokens on the
	// reference HTTP surface. When set, it takes precedence over HMACSecret.
	JWKSURL string `env:"JWKS_URL"`

	// HMACSecret backs HS256 verification for local dev when JWKSURL is unset.
	HMACSecret string `env:"HMAC_SECRET"`

	// RedisURL backs the reference RedisResolver subject resolver.
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// AnthropicAPIKey backs the reference AnthropicInvoker agent runtime.
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`

	// SlackWebhookURL backs the reference SlackNotifier failure notifier.
	// Notification is skipped (not fatal) when unset.
	SlackWebhookURL string `env:"SLACK_WEBHOOK_URL"`

	// RetryMaxAttempts/RetryBackoffStrategy/RetryBackoffBaseSeconds are the
	// default RetryPolicy applied to schedules that don't specify their own.
	RetryMaxAttempts        int    `env:"RETRY_MAX_ATTEMPTS" envDefault:"3" validate:"min=1,max=50"`
	RetryBackoffStrategy    string `env:"RETRY_BACKOFF_STRATEGY" envDefault:"exponential" validate:"required,oneof=fixed exponential none"`
	RetryBackoffBaseSeconds int    `env:"RETRY_BACKOFF_BASE_SECONDS" envDefault:"30" validate:"min=1"`

	// CapabilityAllowlist/CapabilityDenylist seed the capability gate's
	// read-only/side-effecting partition, comma-separated capability ids.
	// Defaults are the normative C3 sets: the allowlist's read-only
	// capabilities and their write/send/notify/store/normalize/promote/emit
	// counterparts. A set CAPABILITY_ALLOWLIST/CAPABILITY_DENYLIST replaces
	// the corresponding default list entirely.
	CapabilityAllowlist string `env:"CAPABILITY_ALLOWLIST" envDefault:"obsidian.read,memory.propose,vault.search,messaging.read,calendar.read,reminders.read,blob.read,filesystem.read,github.read,web.fetch,scheduler.read,policy.read"`
	CapabilityDenylist  string `env:"CAPABILITY_DENYLIST" envDefault:"obsidian.write,memory.promote,vault.store,messaging.send,calendar.write,reminders.notify,blob.store,filesystem.write,github.write,web.emit,scheduler.write,policy.normalize"`

	// ReaperInterval/ReaperHeartbeatTimeout govern the stale-execution
	// reaper: how often it scans and how long an execution may sit in
	// running before it's considered stranded by a crashed worker.
	ReaperInterval         time.Duration `env:"REAPER_INTERVAL" envDefault:"30s" validate:"min=1"`
	ReaperHeartbeatTimeout time.Duration `env:"REAPER_HEARTBEAT_TIMEOUT" envDefault:"10m" validate:"min=1"`
}

// Load reads Config from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel converts LogLevel to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
