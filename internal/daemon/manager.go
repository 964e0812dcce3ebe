// Package daemon owns the process lifecycle: it starts the HTTP servers
// and long-running components, then drives an ordered graceful shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/timesheet-app/timesheet/internal/log"
)

// ShutdownHook performs cleanup during graceful shutdown. Hooks run in
// reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

// Runner is a long-running component that blocks until its context is
// cancelled: the worker coordinator, the bot poll loop.
type Runner interface {
	Run(ctx context.Context) error
}

// NamedRunner pairs a runner with a name for logging.
type NamedRunner struct {
	Name   string
	Runner Runner
}

// Config tunes the servers and the shutdown budget.
type Config struct {
	ListenAddr      string
	MetricsAddr     string // empty disables the metrics server
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns production timeouts.
func DefaultConfig() Config {
	return Config{
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Manager starts the servers and runners, blocks until the context is
// cancelled or a server fails, then shuts everything down in order.
type Manager struct {
	cfg            Config
	apiHandler     http.Handler
	metricsHandler http.Handler
	runners        []NamedRunner

	apiServer     *http.Server
	metricsServer *http.Server

	runnerCancel context.CancelFunc
	runnerWG     sync.WaitGroup

	hooks    []namedHook
	started  bool
	stopping bool
	mu       sync.Mutex

	logger zerolog.Logger
}

type namedHook struct {
	name string
	hook ShutdownHook
}

// NewManager creates a lifecycle manager. metricsHandler may be nil.
func NewManager(cfg Config, apiHandler, metricsHandler http.Handler, runners ...NamedRunner) *Manager {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	return &Manager{
		cfg:            cfg,
		apiHandler:     apiHandler,
		metricsHandler: metricsHandler,
		runners:        runners,
		logger:         log.WithComponent("daemon"),
	}
}

// RegisterShutdownHook adds a cleanup function; hooks run LIFO.
func (m *Manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, namedHook{name: name, hook: hook})
}

// Start launches everything and blocks until ctx is cancelled or a
// server fails. Shutdown always runs before Start returns.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("daemon already started")
	}
	m.started = true
	m.mu.Unlock()

	m.logger.Info().
		Str("event", "daemon.start").
		Str("listen", m.cfg.ListenAddr).
		Str("metrics_listen", m.cfg.MetricsAddr).
		Msg("starting daemon")

	errChan := make(chan error, 2)
	m.startMetricsServer(errChan)
	m.startAPIServer(errChan)
	m.startRunners(ctx)

	select {
	case err := <-errChan:
		m.logger.Error().Err(err).Msg("server failed, shutting down")
		// Detached but bounded: shutdown completes even though the
		// parent context may already be cancelled.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
		defer cancel()
		if shutdownErr := m.Shutdown(shutdownCtx); shutdownErr != nil {
			return errors.Join(err, shutdownErr)
		}
		return err
	case <-ctx.Done():
		m.logger.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
		defer cancel()
		return m.Shutdown(shutdownCtx)
	}
}

func (m *Manager) startAPIServer(errChan chan<- error) {
	m.apiServer = &http.Server{
		Addr:              m.cfg.ListenAddr,
		Handler:           m.apiHandler,
		ReadTimeout:       m.cfg.ReadTimeout,
		ReadHeaderTimeout: m.cfg.ReadTimeout / 2,
		WriteTimeout:      m.cfg.WriteTimeout,
		IdleTimeout:       m.cfg.IdleTimeout,
	}
	go func() {
		m.logger.Info().Str("addr", m.cfg.ListenAddr).Msg("API server listening")
		if err := m.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("api server: %w", err)
		}
	}()
}

func (m *Manager) startMetricsServer(errChan chan<- error) {
	if m.cfg.MetricsAddr == "" || m.metricsHandler == nil {
		return
	}
	m.metricsServer = &http.Server{
		Addr:              m.cfg.MetricsAddr,
		Handler:           m.metricsHandler,
		ReadHeaderTimeout: m.cfg.ReadTimeout / 2,
	}
	go func() {
		m.logger.Info().Str("addr", m.cfg.MetricsAddr).Msg("metrics server listening")
		if err := m.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()
}

func (m *Manager) startRunners(ctx context.Context) {
	runnerCtx, cancel := context.WithCancel(ctx)
	m.runnerCancel = cancel

	for _, r := range m.runners {
		m.runnerWG.Add(1)
		go func() {
			defer m.runnerWG.Done()
			if err := r.Runner.Run(runnerCtx); err != nil && runnerCtx.Err() == nil {
				m.logger.Error().Err(err).Str("runner", r.Name).Msg("runner failed")
			}
		}()
	}
}

// Shutdown stops the servers, drains the runners and executes the
// registered hooks in LIFO order. Safe to call once; later calls no-op.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.stopping || !m.started {
		m.mu.Unlock()
		return nil
	}
	m.stopping = true
	m.mu.Unlock()

	m.logger.Info().Str("event", "daemon.stop").Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if m.apiServer != nil {
		if err := m.apiServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("api server shutdown: %w", err))
		}
	}
	if m.metricsServer != nil {
		if err := m.metricsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if m.runnerCancel != nil {
		m.runnerCancel()
		done := make(chan struct{})
		go func() {
			m.runnerWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			errs = append(errs, errors.New("runners did not drain before deadline"))
		}
	}

	for i := len(m.hooks) - 1; i >= 0; i-- {
		h := m.hooks[i]
		start := time.Now()
		if err := h.hook(shutdownCtx); err != nil {
			m.logger.Error().Err(err).
				Str("hook", h.name).
				Dur("duration", time.Since(start)).
				Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
			continue
		}
		m.logger.Debug().
			Str("hook", h.name).
			Dur("duration", time.Since(start)).
			Msg("shutdown hook completed")
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	m.logger.Info().Msg("daemon stopped cleanly")
	return nil
}
