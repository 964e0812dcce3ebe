package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET_KEY", testSecret)
	t.Setenv("TELEGRAM_BOT_TOKEN", "123456:test-token")
	t.Setenv("TIMESHEET_CONFIG", "")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, DefaultListen, cfg.Listen)
	require.Equal(t, DefaultDatabasePath, cfg.DatabasePath)
	require.Equal(t, DefaultJWTExpiration, cfg.JWTExpiration)
	require.Equal(t, DefaultRateLimit, cfg.RateLimitPerMinute)
	require.Equal(t, "info", cfg.LogLevel)
	require.True(t, cfg.BotEnabled)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("LISTEN", ":9999")
	t.Setenv("JWT_EXPIRATION_MINUTES", "15")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Listen)
	require.Equal(t, 15*time.Minute, cfg.JWTExpiration)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_FileOverlay(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("LISTEN", ":9999")

	path := filepath.Join(t.TempDir(), "timesheet.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":7777\"\nrate_limit_per_minute: 10\n"), 0o600))
	t.Setenv("TIMESHEET_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":7777", cfg.Listen, "file overlays environment")
	require.Equal(t, 10, cfg.RateLimitPerMinute)
	require.Equal(t, DefaultDatabasePath, cfg.DatabasePath, "absent keys keep env values")
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := []struct {
		name string
		set  func(t *testing.T)
	}{
		{"missing jwt secret", func(t *testing.T) { t.Setenv("JWT_SECRET_KEY", "") }},
		{"short jwt secret", func(t *testing.T) { t.Setenv("JWT_SECRET_KEY", "short") }},
		{"missing bot token", func(t *testing.T) { t.Setenv("TELEGRAM_BOT_TOKEN", "") }},
		{"bad log level", func(t *testing.T) { t.Setenv("LOG_LEVEL", "loud") }},
		{"zero expiration", func(t *testing.T) { t.Setenv("JWT_EXPIRATION_MINUTES", "0") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setBaseEnv(t)
			tc.set(t)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoad_BotDisabledNeedsNoToken(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("BOT_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	require.False(t, cfg.BotEnabled)
}

func TestParseHelpers_FallBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "not-a-number")
	require.Equal(t, 7, ParseInt("SOME_INT", 7))

	t.Setenv("SOME_DUR", "eleventy")
	require.Equal(t, time.Minute, ParseDuration("SOME_DUR", time.Minute))

	t.Setenv("SOME_BOOL", "maybe")
	require.True(t, ParseBool("SOME_BOOL", true))
}
