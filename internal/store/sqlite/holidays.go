package sqlite

import (
	"context"

	"github.com/timesheet-app/timesheet/internal/domain"
)

// InsertHoliday persists a holiday interval.
func (s *Store) InsertHoliday(ctx context.Context, h *domain.Holiday) error {
	query := `
	INSERT INTO holidays (id, user_id, start_date, end_date, type, description)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.q.ExecContext(ctx, query,
		h.ID, h.UserID, h.StartDate.String(), h.EndDate.String(),
		string(h.Type), h.Description,
	)
	if err != nil {
		return domain.Wrap(domain.KindInternal, err, "insert holiday")
	}
	return nil
}

// DeleteHoliday removes a holiday owned by the user.
func (s *Store) DeleteHoliday(ctx context.Context, userID, id string) error {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM holidays WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return domain.Wrap(domain.KindInternal, err, "delete holiday")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.E(domain.KindNotFound, "holiday not found")
	}
	return nil
}

// Holidays returns the user's holiday intervals overlapping [from, to],
// ordered by start date.
func (s *Store) Holidays(ctx context.Context, userID string, from, to domain.Date) ([]domain.Holiday, error) {
	// Half-open intervals: [start_date, end_date) overlaps [from, to]
	// when start_date <= to and end_date > from.
	query := `
	SELECT id, user_id, start_date, end_date, type, description
	FROM holidays
	WHERE user_id = ? AND start_date <= ? AND end_date > ?
	ORDER BY start_date
	`
	rows, err := s.q.QueryContext(ctx, query, userID, to.String(), from.String())
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, err, "query holidays")
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Holiday
	for rows.Next() {
		var (
			h          domain.Holiday
			start, end string
			typ        string
		)
		if err := rows.Scan(&h.ID, &h.UserID, &start, &end, &typ, &h.Description); err != nil {
			return nil, domain.Wrap(domain.KindInternal, err, "scan holiday")
		}
		sd, err := domain.ParseDate(start)
		if err != nil {
			return nil, err
		}
		ed, err := domain.ParseDate(end)
		if err != nil {
			return nil, err
		}
		h.StartDate, h.EndDate = sd, ed
		h.Type = domain.HolidayType(typ)
		out = append(out, h)
	}
	return out, rows.Err()
}
