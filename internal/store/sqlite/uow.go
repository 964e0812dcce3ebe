package sqlite

import (
	"context"
	"database/sql"

	"github.com/timesheet-app/timesheet/internal/domain"
)

// UnitOfWork carries an open transaction. The embedded Store is bound to
// the transaction, so every store method invoked through it participates.
// Callers must invoke Commit or Close on every exit path; Close after a
// successful Commit is a no-op, so `defer uow.Close()` is the usual shape.
type UnitOfWork struct {
	*Store
	tx   *sql.Tx
	done bool
}

// Begin opens a unit of work.
func (s *Store) Begin(ctx context.Context) (*UnitOfWork, error) {
	if s.db == nil {
		return nil, domain.E(domain.KindInternal, "nested unit of work")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.Wrap(domain.KindTransient, err, "begin transaction")
	}
	return &UnitOfWork{Store: &Store{q: tx}, tx: tx}, nil
}

// Commit commits the transaction.
func (u *UnitOfWork) Commit() error {
	if u.done {
		return nil
	}
	u.done = true
	if err := u.tx.Commit(); err != nil {
		return domain.Wrap(domain.KindTransient, err, "commit transaction")
	}
	return nil
}

// Close rolls back the transaction unless it was committed.
func (u *UnitOfWork) Close() {
	if u.done {
		return
	}
	u.done = true
	_ = u.tx.Rollback()
}

// RunInTx runs fn inside a unit of work, committing on success and rolling
// back on error or panic.
func (s *Store) RunInTx(ctx context.Context, fn func(tx *Store) error) error {
	uow, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Close()

	if err := fn(uow.Store); err != nil {
		return err
	}
	return uow.Commit()
}
