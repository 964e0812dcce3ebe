package tracking

import (
	"context"
	"time"

	"github.com/timesheet-app/timesheet/internal/domain"
)

// ownedSession loads a session and verifies the user owns it.
func (s *Service) ownedSession(ctx context.Context, user *domain.User, sessionID string) (*domain.Session, error) {
	sess, err := s.store.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, domain.E(domain.KindNotFound, "entry not found")
	}
	if sess.UserID != user.ID {
		return nil, domain.E(domain.KindNotAuthorized, "entry belongs to another user")
	}
	return sess, nil
}

// AdjustStartTime shifts a session's start by delta. Works on closed and
// active sessions; rejects a start at or past the end, and a start inside
// the previous session of the same user.
func (s *Service) AdjustStartTime(ctx context.Context, user *domain.User, sessionID string, delta time.Duration) (*domain.Session, error) {
	unlock := s.locks.lock(user.ID)
	defer unlock()

	sess, err := s.ownedSession(ctx, user, sessionID)
	if err != nil {
		return nil, err
	}

	newStart := sess.StartedAt.Add(delta)
	if sess.EndedAt != nil && !newStart.Before(*sess.EndedAt) {
		return nil, domain.E(domain.KindConflict, "start must stay before the session end")
	}

	prev, err := s.store.PreviousClosed(ctx, user.ID, sess.StartedAt)
	if err != nil {
		return nil, err
	}
	if prev != nil && prev.ID != sess.ID && prev.EndedAt.After(newStart) {
		return nil, domain.E(domain.KindConflict, "start would overlap the previous session")
	}

	sess.StartedAt = newStart
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// AdjustEndTime shifts a closed session's end by delta. Active sessions
// cannot be adjusted; a toggle must end them first.
func (s *Service) AdjustEndTime(ctx context.Context, user *domain.User, sessionID string, delta time.Duration) (*domain.Session, error) {
	unlock := s.locks.lock(user.ID)
	defer unlock()

	sess, err := s.ownedSession(ctx, user, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Active() {
		return nil, domain.E(domain.KindConflict, "cannot adjust end of active session")
	}

	newEnd := sess.EndedAt.Add(delta)
	if !newEnd.After(sess.StartedAt) {
		return nil, domain.E(domain.KindConflict, "end must stay after the session start")
	}

	next, err := s.store.NextSession(ctx, user.ID, sess.StartedAt)
	if err != nil {
		return nil, err
	}
	if next != nil && newEnd.After(next.StartedAt) {
		return nil, domain.E(domain.KindConflict, "end would overlap the next session")
	}

	sess.EndedAt = &newEnd
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Delete removes a closed session owned by the user. Active sessions must
// be ended first.
func (s *Service) Delete(ctx context.Context, user *domain.User, sessionID string) error {
	unlock := s.locks.lock(user.ID)
	defer unlock()

	sess, err := s.ownedSession(ctx, user, sessionID)
	if err != nil {
		return err
	}
	if sess.Active() {
		return domain.E(domain.KindConflict, "cannot delete the active session; end it first")
	}
	return s.store.RemoveSession(ctx, sess.ID)
}

// Status describes the user's current activity.
type Status struct {
	Active   *domain.Session
	Duration time.Duration
	// WorkedToday is the summed length of today's closed working
	// sessions plus the active one when it is working.
	WorkedToday time.Duration
	// TargetWorkHours echoes the user's configured daily target, if any.
	TargetWorkHours *float64
}

// CurrentStatus reports the active session (if any), its running duration
// and progress against the daily work target.
func (s *Service) CurrentStatus(ctx context.Context, user *domain.User) (*Status, error) {
	now := s.now().UTC()

	active, err := s.store.ActiveSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	st := &Status{Active: active, TargetWorkHours: user.TargetWorkHours}
	if active != nil {
		st.Duration = active.Duration(now)
	}

	from, to := localDayWindow(user, now)
	sessions, err := s.store.SessionsInRange(ctx, user.ID, from, to)
	if err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		if sess.State == domain.StateWorking {
			st.WorkedToday += sess.Duration(now)
		}
	}
	return st, nil
}

// ListDay returns the user's sessions on the given local date, ascending.
// A zero date means today.
func (s *Service) ListDay(ctx context.Context, user *domain.User, day domain.Date) ([]*domain.Session, error) {
	if day.IsZero() {
		day = user.LocalDate(s.now())
	}
	from := day.Time().Add(-time.Duration(user.UTCOffsetMinutes) * time.Minute)
	return s.store.SessionsInRange(ctx, user.ID, from, from.Add(24*time.Hour))
}

// Recent returns the user's most recent sessions, newest first.
func (s *Service) Recent(ctx context.Context, user *domain.User, limit int) ([]*domain.Session, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.store.RecentSessions(ctx, user.ID, limit)
}

// UpdateSettings persists changed user settings.
func (s *Service) UpdateSettings(ctx context.Context, user *domain.User) error {
	if user.UTCOffsetMinutes < -720 || user.UTCOffsetMinutes > 840 {
		return domain.E(domain.KindInvalidRequest, "utc offset out of range")
	}
	if p := user.ForgotShutdownThresholdPercent; p != nil && *p <= 100 {
		return domain.E(domain.KindInvalidRequest, "forgot-shutdown threshold must exceed 100 percent")
	}
	return s.store.UpdateUser(ctx, user)
}
