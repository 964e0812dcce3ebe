// Package config loads the daemon configuration. Environment variables
// are the primary source; an optional YAML file named by
// TIMESHEET_CONFIG overlays non-zero values on top. Validation is
// fail-fast: a bad configuration stops the daemon at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for optional settings.
const (
	DefaultListen        = ":8080"
	DefaultMetricsListen = ":9090"
	DefaultDatabasePath  = "timesheet.sqlite"
	DefaultJWTExpiration = 60 * time.Minute
	DefaultLogLevel      = "info"
	DefaultRateLimit     = 60
	DefaultShutdownGrace = 10 * time.Second
)

// Config is the full daemon configuration.
type Config struct {
	Listen        string `yaml:"listen"`
	MetricsListen string `yaml:"metrics_listen"`
	DatabasePath  string `yaml:"database_path"`

	TelegramBotToken string `yaml:"telegram_bot_token"`
	BotEnabled       bool   `yaml:"bot_enabled"`

	JWTSecretKey  string        `yaml:"jwt_secret_key"`
	JWTExpiration time.Duration `yaml:"jwt_expiration"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`

	LogLevel string `yaml:"log_level"`

	// RateLimitPerMinute bounds requests per client IP on the API.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`

	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// Load assembles the configuration from the environment and the
// optional TIMESHEET_CONFIG YAML overlay, then validates it.
func Load() (*Config, error) {
	cfg := fromEnv()

	if path := os.Getenv("TIMESHEET_CONFIG"); path != "" {
		if err := overlayFile(cfg, path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() *Config {
	cfg := &Config{
		Listen:             ParseString("LISTEN", DefaultListen),
		MetricsListen:      ParseString("METRICS_LISTEN", DefaultMetricsListen),
		DatabasePath:       ParseString("DATABASE_PATH", DefaultDatabasePath),
		TelegramBotToken:   ParseString("TELEGRAM_BOT_TOKEN", ""),
		BotEnabled:         ParseBool("BOT_ENABLED", true),
		JWTSecretKey:       ParseString("JWT_SECRET_KEY", ""),
		JWTExpiration:      time.Duration(ParseInt("JWT_EXPIRATION_MINUTES", int(DefaultJWTExpiration/time.Minute))) * time.Minute,
		LogLevel:           ParseString("LOG_LEVEL", DefaultLogLevel),
		RateLimitPerMinute: ParseInt("RATE_LIMIT_PER_MINUTE", DefaultRateLimit),
		ShutdownGrace:      ParseDuration("SHUTDOWN_GRACE", DefaultShutdownGrace),
	}
	if origins := ParseString("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
			}
		}
	}
	return cfg
}

// fileConfig mirrors Config with pointer fields so the overlay can tell
// "absent" from "zero".
type fileConfig struct {
	Listen             *string        `yaml:"listen"`
	MetricsListen      *string        `yaml:"metrics_listen"`
	DatabasePath       *string        `yaml:"database_path"`
	TelegramBotToken   *string        `yaml:"telegram_bot_token"`
	BotEnabled         *bool          `yaml:"bot_enabled"`
	JWTSecretKey       *string        `yaml:"jwt_secret_key"`
	JWTExpiration      *time.Duration `yaml:"jwt_expiration"`
	CORSAllowedOrigins []string       `yaml:"cors_allowed_origins"`
	LogLevel           *string        `yaml:"log_level"`
	RateLimitPerMinute *int           `yaml:"rate_limit_per_minute"`
	ShutdownGrace      *time.Duration `yaml:"shutdown_grace"`
}

func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return err
	}

	if fc.Listen != nil {
		cfg.Listen = *fc.Listen
	}
	if fc.MetricsListen != nil {
		cfg.MetricsListen = *fc.MetricsListen
	}
	if fc.DatabasePath != nil {
		cfg.DatabasePath = *fc.DatabasePath
	}
	if fc.TelegramBotToken != nil {
		cfg.TelegramBotToken = *fc.TelegramBotToken
	}
	if fc.BotEnabled != nil {
		cfg.BotEnabled = *fc.BotEnabled
	}
	if fc.JWTSecretKey != nil {
		cfg.JWTSecretKey = *fc.JWTSecretKey
	}
	if fc.JWTExpiration != nil {
		cfg.JWTExpiration = *fc.JWTExpiration
	}
	if fc.CORSAllowedOrigins != nil {
		cfg.CORSAllowedOrigins = fc.CORSAllowedOrigins
	}
	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
	}
	if fc.RateLimitPerMinute != nil {
		cfg.RateLimitPerMinute = *fc.RateLimitPerMinute
	}
	if fc.ShutdownGrace != nil {
		cfg.ShutdownGrace = *fc.ShutdownGrace
	}
	return nil
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("DATABASE_PATH must not be empty"))
	}
	if c.JWTSecretKey == "" {
		errs = append(errs, errors.New("JWT_SECRET_KEY is required"))
	} else if len(c.JWTSecretKey) < 32 {
		errs = append(errs, fmt.Errorf("JWT_SECRET_KEY must be at least 32 bytes, got %d", len(c.JWTSecretKey)))
	}
	if c.BotEnabled && c.TelegramBotToken == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required while the bot is enabled"))
	}
	if c.JWTExpiration <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRATION_MINUTES must be positive"))
	}
	if c.RateLimitPerMinute <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must be positive"))
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_LEVEL %q", c.LogLevel))
	}
	return errors.Join(errs...)
}
