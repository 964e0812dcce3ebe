package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/timesheet-app/timesheet/internal/domain"
)

// ReplaceEmployerRange replaces the user's attendance records in
// [from, to] and appends an import log row. Runs in one transaction so a
// refresh never leaves a partial range.
func (s *Store) ReplaceEmployerRange(ctx context.Context, userID string, from, to domain.Date, records []domain.EmployerAttendanceRecord, source string) error {
	return s.RunInTx(ctx, func(tx *Store) error {
		_, err := tx.q.ExecContext(ctx,
			`DELETE FROM employer_attendance_records WHERE user_id = ? AND date >= ? AND date <= ?`,
			userID, from.String(), to.String())
		if err != nil {
			return domain.Wrap(domain.KindInternal, err, "clear employer range")
		}

		conflicts := 0
		for _, rec := range records {
			if rec.HasConflict {
				conflicts++
			}
			id := rec.ID
			if id == "" {
				id = uuid.New().String()
			}
			_, err := tx.q.ExecContext(ctx, `
			INSERT INTO employer_attendance_records
				(id, user_id, date, clock_in, clock_out, working_hours, has_conflict)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			`,
				id, userID, rec.Date.String(),
				fmtNullableTime(rec.ClockIn), fmtNullableTime(rec.ClockOut),
				rec.WorkingHours, rec.HasConflict,
			)
			if err != nil {
				return domain.Wrap(domain.KindInternal, err, "insert employer record")
			}
		}

		_, err = tx.q.ExecContext(ctx, `
		INSERT INTO employer_import_logs (id, user_id, source, rows_imported, conflicts, imported_at)
		VALUES (?, ?, ?, ?, ?, ?)
		`,
			uuid.New().String(), userID, source, len(records), conflicts, fmtTime(time.Now()),
		)
		if err != nil {
			return domain.Wrap(domain.KindInternal, err, "insert import log")
		}
		return nil
	})
}

// EmployerRecords returns the user's attendance records with date in
// [from, to], ordered by date.
func (s *Store) EmployerRecords(ctx context.Context, userID string, from, to domain.Date) ([]domain.EmployerAttendanceRecord, error) {
	query := `
	SELECT id, user_id, date, clock_in, clock_out, working_hours, has_conflict
	FROM employer_attendance_records
	WHERE user_id = ? AND date >= ? AND date <= ?
	ORDER BY date
	`
	rows, err := s.q.QueryContext(ctx, query, userID, from.String(), to.String())
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, err, "query employer records")
	}
	defer func() { _ = rows.Close() }()

	var out []domain.EmployerAttendanceRecord
	for rows.Next() {
		var (
			rec     domain.EmployerAttendanceRecord
			dateStr string
			in, off sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &dateStr, &in, &off, &rec.WorkingHours, &rec.HasConflict); err != nil {
			return nil, domain.Wrap(domain.KindInternal, err, "scan employer record")
		}
		d, err := domain.ParseDate(dateStr)
		if err != nil {
			return nil, err
		}
		rec.Date = d
		if in.Valid {
			t, err := parseTime(in.String)
			if err != nil {
				return nil, domain.Wrap(domain.KindInternal, err, "scan employer record")
			}
			rec.ClockIn = &t
		}
		if off.Valid {
			t, err := parseTime(off.String)
			if err != nil {
				return nil, domain.Wrap(domain.KindInternal, err, "scan employer record")
			}
			rec.ClockOut = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
