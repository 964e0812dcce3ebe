package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/timesheet-app/timesheet/internal/domain"
)

const userColumns = `id, external_id, is_admin, utc_offset_minutes,
	max_work_hours, max_commute_hours, max_lunch_hours,
	lunch_reminder_hour, lunch_reminder_minute,
	target_work_hours, target_office_hours,
	forgot_shutdown_threshold_percent, created_at`

// InsertUser persists a new user. A duplicate external id maps to
// AlreadyRegistered.
func (s *Store) InsertUser(ctx context.Context, u *domain.User) error {
	query := `
	INSERT INTO users (` + userColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.q.ExecContext(ctx, query,
		u.ID, u.ExternalID, u.IsAdmin, u.UTCOffsetMinutes,
		u.MaxWorkHours, u.MaxCommuteHours, u.MaxLunchHours,
		u.LunchReminderHour, u.LunchReminderMinute,
		u.TargetWorkHours, u.TargetOfficeHours,
		u.ForgotShutdownThresholdPercent, fmtTime(u.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.E(domain.KindAlreadyRegistered, "user already registered")
		}
		return domain.Wrap(domain.KindInternal, err, "insert user")
	}
	return nil
}

// UpdateUser persists settings changes for an existing user.
func (s *Store) UpdateUser(ctx context.Context, u *domain.User) error {
	query := `
	UPDATE users SET
		is_admin = ?, utc_offset_minutes = ?,
		max_work_hours = ?, max_commute_hours = ?, max_lunch_hours = ?,
		lunch_reminder_hour = ?, lunch_reminder_minute = ?,
		target_work_hours = ?, target_office_hours = ?,
		forgot_shutdown_threshold_percent = ?
	WHERE id = ?
	`
	res, err := s.q.ExecContext(ctx, query,
		u.IsAdmin, u.UTCOffsetMinutes,
		u.MaxWorkHours, u.MaxCommuteHours, u.MaxLunchHours,
		u.LunchReminderHour, u.LunchReminderMinute,
		u.TargetWorkHours, u.TargetOfficeHours,
		u.ForgotShutdownThresholdPercent, u.ID,
	)
	if err != nil {
		return domain.Wrap(domain.KindInternal, err, "update user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.E(domain.KindNotFound, "user %s not found", u.ID)
	}
	return nil
}

// UserByID looks up a user by internal id; nil when absent.
func (s *Store) UserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.userBy(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// UserByExternalID looks up a user by messaging-platform id; nil when absent.
func (s *Store) UserByExternalID(ctx context.Context, externalID int64) (*domain.User, error) {
	return s.userBy(ctx, `SELECT `+userColumns+` FROM users WHERE external_id = ?`, externalID)
}

func (s *Store) userBy(ctx context.Context, query string, arg any) (*domain.User, error) {
	row := s.q.QueryRowContext(ctx, query, arg)
	u, err := scanUser(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, err, "query user")
	}
	return u, nil
}

// CountUsers returns the total number of registered users.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, domain.Wrap(domain.KindInternal, err, "count users")
	}
	return n, nil
}

// AllUsers returns every registered user, ordered by creation time. The
// closed group is small, so workers iterate the full set each tick.
func (s *Store) AllUsers(ctx context.Context) ([]*domain.User, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, err, "query users")
	}
	defer func() { _ = rows.Close() }()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, domain.Wrap(domain.KindInternal, err, "scan user")
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(scan func(dest ...any) error) (*domain.User, error) {
	var (
		u         domain.User
		createdAt string
	)
	err := scan(
		&u.ID, &u.ExternalID, &u.IsAdmin, &u.UTCOffsetMinutes,
		&u.MaxWorkHours, &u.MaxCommuteHours, &u.MaxLunchHours,
		&u.LunchReminderHour, &u.LunchReminderMinute,
		&u.TargetWorkHours, &u.TargetOfficeHours,
		&u.ForgotShutdownThresholdPercent, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// LunchRemindedOn returns the local date of the user's last lunch
// reminder, zero when none was ever sent. Persisted so a restart inside
// the reminder window cannot repeat the message.
func (s *Store) LunchRemindedOn(ctx context.Context, userID string) (domain.Date, error) {
	var on string
	err := s.q.QueryRowContext(ctx,
		`SELECT reminded_on FROM lunch_reminders WHERE user_id = ?`, userID).Scan(&on)
	if err == sql.ErrNoRows {
		return domain.Date{}, nil
	}
	if err != nil {
		return domain.Date{}, domain.Wrap(domain.KindInternal, err, "query lunch reminder")
	}
	return domain.ParseDate(on)
}

// MarkLunchReminded records that the user's reminder for day went out.
func (s *Store) MarkLunchReminded(ctx context.Context, userID string, day domain.Date) error {
	_, err := s.q.ExecContext(ctx, `
	INSERT INTO lunch_reminders (user_id, reminded_on) VALUES (?, ?)
	ON CONFLICT(user_id) DO UPDATE SET reminded_on = excluded.reminded_on
	`, userID, day.String())
	if err != nil {
		return domain.Wrap(domain.KindInternal, err, "mark lunch reminded")
	}
	return nil
}
