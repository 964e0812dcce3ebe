package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/timesheet-app/timesheet/internal/domain"
)

// InsertMnemonic stores a pending credential. The phrase is the unique
// key; collisions map to Conflict.
func (s *Store) InsertMnemonic(ctx context.Context, m *domain.PendingMnemonic) error {
	query := `
	INSERT INTO pending_mnemonics (id, user_id, phrase, expires_at, is_consumed, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.q.ExecContext(ctx, query,
		m.ID, m.UserID, m.Phrase, fmtTime(m.ExpiresAt), m.IsConsumed, fmtTime(m.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.E(domain.KindConflict, "mnemonic already issued")
		}
		return domain.Wrap(domain.KindInternal, err, "insert mnemonic")
	}
	return nil
}

// ConsumeMnemonic atomically marks the phrase consumed and returns the
// consumed row. The single UPDATE is serialized by the engine, so exactly
// one of any concurrent attempts observes an affected row; all others get
// InvalidMnemonic.
func (s *Store) ConsumeMnemonic(ctx context.Context, phrase string, now time.Time) (*domain.PendingMnemonic, error) {
	query := `
	UPDATE pending_mnemonics
	SET is_consumed = 1
	WHERE phrase = ? AND is_consumed = 0 AND expires_at > ?
	`
	res, err := s.q.ExecContext(ctx, query, phrase, fmtTime(now))
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, err, "consume mnemonic")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.E(domain.KindInvalidMnemonic, "mnemonic not found, expired or already used")
	}

	m := &domain.PendingMnemonic{}
	var expiresAt, createdAt string
	err = s.q.QueryRowContext(ctx,
		`SELECT id, user_id, phrase, expires_at, is_consumed, created_at FROM pending_mnemonics WHERE phrase = ?`,
		phrase,
	).Scan(&m.ID, &m.UserID, &m.Phrase, &expiresAt, &m.IsConsumed, &createdAt)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, err, "load consumed mnemonic")
	}
	if m.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, err
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return m, nil
}

// DeleteExpiredMnemonics removes rows past their expiry, returning the
// number swept.
func (s *Store) DeleteExpiredMnemonics(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM pending_mnemonics WHERE expires_at < ?`, fmtTime(now))
	if err != nil {
		return 0, domain.Wrap(domain.KindInternal, err, "sweep mnemonics")
	}
	n, _ := res.RowsAffected()
	return n, nil
}
