// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Env      string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT" envDefault:"8080" validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`
	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	WorkerCount           int `env:"WORKER_COUNT" envDefault:"5" validate:"min=1,max=100"`
	DispatchIntervalSec   int `env:"DISPATCH_INTERVAL_SEC" envDefault:"15" validate:"min=1,max=3600"`
	DispatchStaleAfterMin int `env:"DISPATCH_STALE_AFTER_MIN" envDefault:"60" validate:"min=1"`
	ReaperIntervalSec     int `env:"REAPER_INTERVAL_SEC" envDefault:"30" validate:"min=1,max=3600"`
	HeartbeatTimeoutSec   int `env:"HEARTBEAT_TIMEOUT_SEC" envDefault:"120" validate:"min=20"`
	QueueTimeoutMin       int `env:"QUEUE_TIMEOUT_MIN" envDefault:"1440" validate:"min=1"`

	QueueBackend string `env:"QUEUE_BACKEND" envDefault:"memory" validate:"oneof=memory redis"`
	RedisURL     string `env:"REDIS_URL" validate:"required_if=QueueBackend redis"`

	CourtsFile       string `env:"COURTS_FILE" envDefault:"config/courts.yaml" validate:"required"`
	PageSize         int    `env:"PAGE_SIZE" envDefault:"100" validate:"min=1,max=1000"`
	InterPageDelayMS int    `env:"INTER_PAGE_DELAY_MS" envDefault:"500" validate:"min=0"`
	HTTPTimeoutSec   int    `env:"HTTP_TIMEOUT_SEC" envDefault:"30" validate:"min=1"`
	ScheduleTimezone string `env:"SCHEDULE_TIMEZONE" envDefault:"UTC" validate:"timezone"`

	ClerkJWKSURL string `env:"CLERK_JWKS_URL" validate:"omitempty,url"`
	JWTSecret    string `env:"JWT_SECRET" validate:"omitempty,min=32"`
	ResendAPIKey string `env:"RESEND_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom   string `env:"RESEND_FROM" validate:"required_if=Env production,required_if=Env staging"`
}

// Load reads an optional .env file first; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.ClerkJWKSURL == "" && cfg.JWTSecret == "" {
		return nil, errors.New("invalid config: one of CLERK_JWKS_URL or JWT_SECRET is required")
	}
	if cfg.Env != "local" && cfg.ClerkJWKSURL == "" {
		return nil, errors.New("invalid config: CLERK_JWKS_URL is required outside local")
	}

	return cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
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

// Location falls back to UTC; the timezone is validated on load.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ScheduleTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) InterPageDelay() time.Duration {
	return time.Duration(c.InterPageDelayMS) * time.Millisecond
}

func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}
