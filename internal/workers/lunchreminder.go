package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/timesheet-app/timesheet/internal/domain"
	"github.com/timesheet-app/timesheet/internal/log"
	"github.com/timesheet-app/timesheet/internal/metrics"
	"github.com/timesheet-app/timesheet/internal/store/sqlite"
)

// LunchReminderInterval is the reminder scan cadence. One minute keeps
// the wall-clock match exact.
const LunchReminderInterval = time.Minute

// LunchReminder messages users at their configured local lunch time,
// but only while they are actively working. At most one reminder is
// sent per user per local day.
type LunchReminder struct {
	store    *sqlite.Store
	notifier Notifier
	now      func() time.Time
	logger   zerolog.Logger
}

// NewLunchReminder creates the worker. The per-day debounce lives in the
// store, so a restart inside the reminder window cannot repeat a message.
func NewLunchReminder(store *sqlite.Store, notifier Notifier, now func() time.Time) *LunchReminder {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if now == nil {
		now = time.Now
	}
	return &LunchReminder{
		store:    store,
		notifier: notifier,
		now:      now,
		logger:   log.WithComponent("lunchreminder"),
	}
}

// Name implements Worker.
func (w *LunchReminder) Name() string { return "lunchreminder" }

// Interval implements Worker.
func (w *LunchReminder) Interval() time.Duration { return LunchReminderInterval }

// Tick sends reminders due this minute.
func (w *LunchReminder) Tick(ctx context.Context) error {
	users, err := w.store.AllUsers(ctx)
	if err != nil {
		return err
	}

	now := w.now().UTC()
	for _, user := range users {
		if user.LunchReminderHour == nil || user.LunchReminderMinute == nil {
			continue
		}
		local := user.Local(now)
		if local.Hour() != *user.LunchReminderHour || local.Minute() != *user.LunchReminderMinute {
			continue
		}
		today := user.LocalDate(now)
		last, err := w.store.LunchRemindedOn(ctx, user.ID)
		if err != nil {
			w.logger.Error().Err(err).
				Str("event", "lunchreminder.debounce_failed").
				Str("user_id", user.ID).
				Msg("skipping user")
			continue
		}
		if last == today {
			continue
		}

		active, err := w.store.ActiveSession(ctx, user.ID)
		if err != nil {
			w.logger.Error().Err(err).
				Str("event", "lunchreminder.lookup_failed").
				Str("user_id", user.ID).
				Msg("skipping user")
			continue
		}
		if active == nil || active.State != domain.StateWorking {
			continue
		}

		if err := w.notifier.Notify(ctx, user, "Lunch time! Toggle lunch when you step away."); err != nil {
			w.logger.Warn().Err(err).
				Str("event", "lunchreminder.notify_failed").
				Str("user_id", user.ID).
				Msg("notification not delivered")
			continue
		}
		if err := w.store.MarkLunchReminded(ctx, user.ID, today); err != nil {
			w.logger.Error().Err(err).
				Str("event", "lunchreminder.mark_failed").
				Str("user_id", user.ID).
				Msg("debounce not persisted")
		}
		metrics.RecordLunchReminder()
		w.logger.Info().
			Str("event", "lunchreminder.sent").
			Str("user_id", user.ID).
			Str("date", today.String()).
			Msg("lunch reminder sent")
	}
	return nil
}
