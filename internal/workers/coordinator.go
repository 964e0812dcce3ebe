// Package workers runs the daemon's background loops: auto-shutdown of
// forgotten sessions, lunch reminders and the credential expiry sweeper.
// Each loop ticks on a fixed cadence scheduled from the start of the
// previous tick, so processing latency does not accumulate drift.
package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/timesheet-app/timesheet/internal/domain"
	"github.com/timesheet-app/timesheet/internal/log"
	"github.com/timesheet-app/timesheet/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// Notifier delivers a message to a user's front end. Delivery is
// best-effort: a failure never rolls back database state.
type Notifier interface {
	Notify(ctx context.Context, user *domain.User, message string) error
}

// NopNotifier discards notifications.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, *domain.User, string) error { return nil }

// Worker is one periodic background task.
type Worker interface {
	Name() string
	Interval() time.Duration
	Tick(ctx context.Context) error
}

// Coordinator drives a set of workers until the context is cancelled.
type Coordinator struct {
	workers []Worker
	logger  zerolog.Logger
}

// NewCoordinator bundles the given workers.
func NewCoordinator(workers ...Worker) *Coordinator {
	return &Coordinator{
		workers: workers,
		logger:  log.WithComponent("workers"),
	}
}

// Run starts every worker loop and blocks until ctx is cancelled and all
// in-flight ticks have drained.
func (c *Coordinator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range c.workers {
		g.Go(func() error {
			c.runLoop(ctx, w)
			return nil
		})
	}
	return g.Wait()
}

func (c *Coordinator) runLoop(ctx context.Context, w Worker) {
	logger := c.logger.With().Str("worker", w.Name()).Logger()
	logger.Info().
		Str("event", "worker.start").
		Dur("interval", w.Interval()).
		Msg("worker loop started")

	ticker := time.NewTicker(w.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Str("event", "worker.stop").Msg("worker loop stopped")
			return
		case <-ticker.C:
			start := time.Now()
			if err := w.Tick(ctx); err != nil && ctx.Err() == nil {
				// Per-item failures are handled inside Tick; an error
				// here means the whole pass failed. Log and keep
				// looping so one bad tick cannot stop the worker.
				logger.Error().
					Err(err).
					Str("event", "worker.tick_failed").
					Msg("tick failed")
			}
			metrics.ObserveWorkerTick(w.Name(), time.Since(start).Seconds())
		}
	}
}
