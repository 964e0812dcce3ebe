package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/timesheet-app/timesheet/internal/domain"
)

const sessionColumns = `id, user_id, state, started_at, ended_at, commute_direction, note`

// InsertSession persists a session row.
func (s *Store) InsertSession(ctx context.Context, sess *domain.Session) error {
	query := `
	INSERT INTO tracking_sessions (` + sessionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.q.ExecContext(ctx, query,
		sess.ID, sess.UserID, string(sess.State),
		fmtTime(sess.StartedAt), fmtNullableTime(sess.EndedAt),
		nullableDirection(sess.Direction), sess.Note,
	)
	if err != nil {
		return domain.Wrap(domain.KindInternal, err, "insert session")
	}
	return nil
}

// UpdateSession persists changed times, note or closure of a session.
func (s *Store) UpdateSession(ctx context.Context, sess *domain.Session) error {
	query := `
	UPDATE tracking_sessions
	SET started_at = ?, ended_at = ?, note = ?
	WHERE id = ?
	`
	res, err := s.q.ExecContext(ctx, query,
		fmtTime(sess.StartedAt), fmtNullableTime(sess.EndedAt), sess.Note, sess.ID,
	)
	if err != nil {
		return domain.Wrap(domain.KindInternal, err, "update session")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.E(domain.KindNotFound, "session %s not found", sess.ID)
	}
	return nil
}

// RemoveSession deletes a session row.
func (s *Store) RemoveSession(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM tracking_sessions WHERE id = ?`, id)
	if err != nil {
		return domain.Wrap(domain.KindInternal, err, "delete session")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.E(domain.KindNotFound, "session %s not found", id)
	}
	return nil
}

// ActiveSession returns the user's open session, or nil. The partial index
// on (user_id) WHERE ended_at IS NULL makes this O(1).
func (s *Store) ActiveSession(ctx context.Context, userID string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM tracking_sessions WHERE user_id = ? AND ended_at IS NULL`
	return s.sessionBy(ctx, query, userID)
}

// SessionByID returns the session with the given id, or nil. Ownership is
// checked by the caller.
func (s *Store) SessionByID(ctx context.Context, id string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM tracking_sessions WHERE id = ?`
	return s.sessionBy(ctx, query, id)
}

// AllActiveSessions returns every open session across all users, for the
// auto-shutdown sweep.
func (s *Store) AllActiveSessions(ctx context.Context) ([]*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM tracking_sessions WHERE ended_at IS NULL ORDER BY started_at`
	return s.sessions(ctx, query)
}

// SessionsInRange returns the user's sessions with started_at in [from, to),
// ordered by started_at ascending. Sessions spilling outside the window are
// not split; callers needing spill must enlarge the window.
func (s *Store) SessionsInRange(ctx context.Context, userID string, from, to time.Time) ([]*domain.Session, error) {
	query := `
	SELECT ` + sessionColumns + ` FROM tracking_sessions
	WHERE user_id = ? AND started_at >= ? AND started_at < ?
	ORDER BY started_at
	`
	return s.sessions(ctx, query, userID, fmtTime(from), fmtTime(to))
}

// RecentSessions returns the user's most recent sessions, newest first.
func (s *Store) RecentSessions(ctx context.Context, userID string, limit int) ([]*domain.Session, error) {
	query := `
	SELECT ` + sessionColumns + ` FROM tracking_sessions
	WHERE user_id = ?
	ORDER BY started_at DESC
	LIMIT ?
	`
	return s.sessions(ctx, query, userID, limit)
}

// PreviousClosed returns the user's closed session with the latest start
// strictly before the given instant, or nil. Used for overlap checks.
func (s *Store) PreviousClosed(ctx context.Context, userID string, before time.Time) (*domain.Session, error) {
	query := `
	SELECT ` + sessionColumns + ` FROM tracking_sessions
	WHERE user_id = ? AND ended_at IS NOT NULL AND started_at < ?
	ORDER BY started_at DESC
	LIMIT 1
	`
	return s.sessionBy(ctx, query, userID, fmtTime(before))
}

// NextSession returns the user's session with the earliest start strictly
// after the given instant, or nil.
func (s *Store) NextSession(ctx context.Context, userID string, after time.Time) (*domain.Session, error) {
	query := `
	SELECT ` + sessionColumns + ` FROM tracking_sessions
	WHERE user_id = ? AND started_at > ?
	ORDER BY started_at
	LIMIT 1
	`
	return s.sessionBy(ctx, query, userID, fmtTime(after))
}

// ClosedDurationsSince returns the durations of the user's closed sessions
// in the given state started at or after since. Feeds the forgot-shutdown
// heuristic.
func (s *Store) ClosedDurationsSince(ctx context.Context, userID string, state domain.ActivityState, since time.Time) ([]time.Duration, error) {
	query := `
	SELECT started_at, ended_at FROM tracking_sessions
	WHERE user_id = ? AND state = ? AND ended_at IS NOT NULL AND started_at >= ?
	`
	rows, err := s.q.QueryContext(ctx, query, userID, string(state), fmtTime(since))
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, err, "query session durations")
	}
	defer func() { _ = rows.Close() }()

	var out []time.Duration
	for rows.Next() {
		var startStr, endStr string
		if err := rows.Scan(&startStr, &endStr); err != nil {
			return nil, domain.Wrap(domain.KindInternal, err, "scan session durations")
		}
		start, err := parseTime(startStr)
		if err != nil {
			return nil, domain.Wrap(domain.KindInternal, err, "scan session durations")
		}
		end, err := parseTime(endStr)
		if err != nil {
			return nil, domain.Wrap(domain.KindInternal, err, "scan session durations")
		}
		out = append(out, end.Sub(start))
	}
	return out, rows.Err()
}

func (s *Store) sessionBy(ctx context.Context, query string, args ...any) (*domain.Session, error) {
	row := s.q.QueryRowContext(ctx, query, args...)
	sess, err := scanSession(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, err, "query session")
	}
	return sess, nil
}

func (s *Store) sessions(ctx context.Context, query string, args ...any) ([]*domain.Session, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, err, "query sessions")
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows.Scan)
		if err != nil {
			return nil, domain.Wrap(domain.KindInternal, err, "scan session")
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func scanSession(scan func(dest ...any) error) (*domain.Session, error) {
	var (
		sess      domain.Session
		state     string
		startStr  string
		endStr    sql.NullString
		direction sql.NullString
	)
	if err := scan(&sess.ID, &sess.UserID, &state, &startStr, &endStr, &direction, &sess.Note); err != nil {
		return nil, err
	}
	sess.State = domain.ActivityState(state)

	start, err := parseTime(startStr)
	if err != nil {
		return nil, err
	}
	sess.StartedAt = start

	if endStr.Valid {
		end, err := parseTime(endStr.String)
		if err != nil {
			return nil, err
		}
		sess.EndedAt = &end
	}
	if direction.Valid {
		d := domain.CommuteDirection(direction.String)
		sess.Direction = &d
	}
	return &sess, nil
}

func nullableDirection(d *domain.CommuteDirection) any {
	if d == nil {
		return nil
	}
	return string(*d)
}
