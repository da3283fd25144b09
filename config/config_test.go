package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/ErlanBelekov/court-capture/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBase(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/capture")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
}

func TestLoad_Defaults(t *testing.T) {
	setBase(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "memory", cfg.QueueBackend)
	assert.Equal(t, 100, cfg.PageSize)
	assert.Equal(t, 1440, cfg.QueueTimeoutMin)
	assert.Equal(t, 500*time.Millisecond, cfg.InterPageDelay())
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
	assert.Equal(t, "UTC", cfg.Location().String())
}

func TestLoad_RedisBackendRequiresURL(t *testing.T) {
	setBase(t)
	t.Setenv("QUEUE_BACKEND", "redis")

	_, err := config.Load()
	require.Error(t, err)

	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.QueueBackend)
}

func TestLoad_ProductionRequiresJWKSAndResend(t *testing.T) {
	setBase(t)
	t.Setenv("ENV", "production")

	_, err := config.Load()
	require.Error(t, err)

	t.Setenv("RESEND_API_KEY", "re_test")
	t.Setenv("RESEND_FROM", "alerts@example.com")
	_, err = config.Load()
	require.Error(t, err, "JWKS URL still missing")

	t.Setenv("CLERK_JWKS_URL", "https://clerk.example.com/.well-known/jwks.json")
	_, err = config.Load()
	require.NoError(t, err)
}

func TestLoad_RejectsBadTimezone(t *testing.T) {
	setBase(t)
	t.Setenv("SCHEDULE_TIMEZONE", "Mars/Olympus")

	_, err := config.Load()
	require.Error(t, err)
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
	}
	for in, want := range cases {
		cfg := &config.Config{LogLevel: in}
		assert.Equal(t, want, cfg.SlogLevel(), in)
	}
}
