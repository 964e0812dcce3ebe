// Package log holds the process-wide zerolog setup. Packages obtain
// component child loggers through WithComponent instead of threading
// logger values around.
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for the global logger.
type Config struct {
	Level   string    // log level name; falls back to LOG_LEVEL, then info
	Output  io.Writer // defaults to os.Stdout
	Service string    // service field on every entry; defaults to timesheetd
}

var (
	once sync.Once
	base zerolog.Logger
)

// Configure initialises the global logger. Only the first call takes
// effect; later calls are no-ops so tests and main cannot fight over it.
func Configure(cfg Config) {
	once.Do(func() {
		zerolog.SetGlobalLevel(resolveLevel(cfg.Level))
		zerolog.TimeFieldFormat = time.RFC3339

		writer := cfg.Output
		if writer == nil {
			writer = os.Stdout
		}
		service := cfg.Service
		if service == "" {
			service = "timesheetd"
		}
		base = zerolog.New(writer).With().
			Timestamp().
			Str("service", service).
			Logger()
	})
}

func resolveLevel(name string) zerolog.Level {
	if name == "" {
		name = os.Getenv("LOG_LEVEL")
	}
	if parsed, err := zerolog.ParseLevel(name); err == nil && name != "" {
		return parsed
	}
	return zerolog.InfoLevel
}

func logger() zerolog.Logger {
	Configure(Config{})
	return base
}

// Base returns the configured base logger.
func Base() zerolog.Logger {
	return logger()
}

// WithComponent returns a child logger tagged with the component name.
func WithComponent(component string) zerolog.Logger {
	return logger().With().Str("component", component).Logger()
}
