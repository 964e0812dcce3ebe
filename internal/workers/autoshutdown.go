package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/timesheet-app/timesheet/internal/domain"
	"github.com/timesheet-app/timesheet/internal/log"
	"github.com/timesheet-app/timesheet/internal/metrics"
	"github.com/timesheet-app/timesheet/internal/store/sqlite"
)

const (
	// AutoShutdownInterval is how often forgotten sessions are scanned.
	AutoShutdownInterval = 5 * time.Minute

	// historyWindow and minSamples bound the heuristic cap: a user needs
	// at least minSamples closed sessions of the same activity within
	// historyWindow before the threshold percentage applies.
	historyWindow = 30 * 24 * time.Hour
	minSamples    = 5
)

// AutoShutdown closes sessions whose duration exceeds the user's cap.
// A session is closed at the instant the cap was crossed, not at the
// tick that detected it, so the recorded duration is deterministic.
type AutoShutdown struct {
	store    *sqlite.Store
	notifier Notifier
	now      func() time.Time
	logger   zerolog.Logger
}

// NewAutoShutdown creates the worker. A nil notifier disables messages.
func NewAutoShutdown(store *sqlite.Store, notifier Notifier, now func() time.Time) *AutoShutdown {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if now == nil {
		now = time.Now
	}
	return &AutoShutdown{
		store:    store,
		notifier: notifier,
		now:      now,
		logger:   log.WithComponent("autoshutdown"),
	}
}

// Name implements Worker.
func (w *AutoShutdown) Name() string { return "autoshutdown" }

// Interval implements Worker.
func (w *AutoShutdown) Interval() time.Duration { return AutoShutdownInterval }

// Tick scans every active session and closes the overdue ones. Each
// closure commits independently so one failure cannot hold back the
// rest.
func (w *AutoShutdown) Tick(ctx context.Context) error {
	sessions, err := w.store.AllActiveSessions(ctx)
	if err != nil {
		return err
	}

	now := w.now().UTC()
	users := make(map[string]*domain.User)
	for _, sess := range sessions {
		user, ok := users[sess.UserID]
		if !ok {
			user, err = w.store.UserByID(ctx, sess.UserID)
			if err != nil {
				w.logger.Error().Err(err).
					Str("event", "autoshutdown.user_lookup_failed").
					Str("user_id", sess.UserID).
					Msg("skipping session")
				continue
			}
			if user == nil {
				continue
			}
			users[sess.UserID] = user
		}

		deadline, err := w.deadline(ctx, user, sess)
		if err != nil {
			w.logger.Error().Err(err).
				Str("event", "autoshutdown.deadline_failed").
				Str("session_id", sess.ID).
				Msg("skipping session")
			continue
		}
		if deadline == nil || now.Before(*deadline) {
			continue
		}

		if err := w.shutdown(ctx, user, sess, *deadline); err != nil {
			w.logger.Error().Err(err).
				Str("event", "autoshutdown.close_failed").
				Str("session_id", sess.ID).
				Msg("skipping session")
		}
	}
	return nil
}

// deadline returns the instant at which the session must be closed, or
// nil when no cap applies. An explicit per-activity cap wins; otherwise
// the threshold heuristic applies once enough history exists.
func (w *AutoShutdown) deadline(ctx context.Context, user *domain.User, sess *domain.Session) (*time.Time, error) {
	if capHours := user.CapHoursFor(sess.State); capHours != nil {
		d := sess.StartedAt.Add(hoursToDuration(*capHours))
		return &d, nil
	}

	pct := user.ForgotShutdownThresholdPercent
	if pct == nil {
		return nil, nil
	}
	durations, err := w.store.ClosedDurationsSince(ctx, user.ID, sess.State, w.now().UTC().Add(-historyWindow))
	if err != nil {
		return nil, err
	}
	if len(durations) < minSamples {
		return nil, nil
	}

	var total time.Duration
	for _, d := range durations {
		total += d
	}
	mean := total / time.Duration(len(durations))
	limit := time.Duration(float64(mean) * *pct / 100)
	d := sess.StartedAt.Add(limit)
	return &d, nil
}

func (w *AutoShutdown) shutdown(ctx context.Context, user *domain.User, sess *domain.Session, at time.Time) error {
	var closed bool
	err := w.store.RunInTx(ctx, func(tx *sqlite.Store) error {
		// Re-read inside the transaction: the user may have toggled the
		// session closed since the scan.
		current, err := tx.SessionByID(ctx, sess.ID)
		if err != nil {
			return err
		}
		if current == nil || !current.Active() {
			return nil
		}
		current.Close(at)
		if err := tx.UpdateSession(ctx, current); err != nil {
			return err
		}
		closed = true
		return nil
	})
	if err != nil || !closed {
		return err
	}

	metrics.RecordAutoShutdown()
	w.logger.Info().
		Str("event", "autoshutdown.closed").
		Str("session_id", sess.ID).
		Str("user_id", user.ID).
		Str("state", string(sess.State)).
		Time("ended_at", at).
		Msg("forgotten session closed")

	msg := fmt.Sprintf("Auto-shutdown: your %s session was closed at %s after exceeding its limit.",
		sess.State, user.Local(at).Format("15:04"))
	if err := w.notifier.Notify(ctx, user, msg); err != nil {
		w.logger.Warn().Err(err).
			Str("event", "autoshutdown.notify_failed").
			Str("user_id", user.ID).
			Msg("notification not delivered")
	}
	return nil
}

func hoursToDuration(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}
