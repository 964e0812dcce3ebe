// Package tracking implements the toggle service over the session store:
// state transitions, backdated starts, in-place time adjustments and
// deletion, with the single-active-session invariant enforced under one
// transaction per user-facing operation.
package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/timesheet-app/timesheet/internal/domain"
	"github.com/timesheet-app/timesheet/internal/log"
	"github.com/timesheet-app/timesheet/internal/metrics"
	"github.com/timesheet-app/timesheet/internal/store/sqlite"
)

// DefaultMaxOffset bounds how far a toggle timestamp may deviate from now.
const DefaultMaxOffset = 12 * time.Hour

// Service coordinates toggles and edits for all users.
type Service struct {
	store     *sqlite.Store
	now       func() time.Time
	maxOffset time.Duration
	locks     keyedMutex
	logger    zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMaxOffset overrides the toggle timestamp bound.
func WithMaxOffset(d time.Duration) Option {
	return func(s *Service) { s.maxOffset = d }
}

// NewService creates a tracking service over the store.
func NewService(store *sqlite.Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		now:       time.Now,
		maxOffset: DefaultMaxOffset,
		logger:    log.WithComponent("tracking"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ToggleResult reports what a toggle did. Ended is the session closed by
// the toggle (if any); Started is the session opened (if any).
type ToggleResult struct {
	Started *domain.Session
	Ended   *domain.Session
}

// Toggle applies the requested activity for the user at the effective
// timestamp derived from spec. The close-and-open pair of a state switch
// commits atomically; concurrent toggles for one user serialize on a
// per-user lock above SQLite's single writer.
func (s *Service) Toggle(ctx context.Context, user *domain.User, state domain.ActivityState, spec TimeSpec) (*ToggleResult, error) {
	if !state.Valid() {
		return nil, domain.E(domain.KindInvalidRequest, "unknown activity %q", state)
	}

	t, err := spec.Resolve(s.now(), user, s.maxOffset)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(user.ID)
	defer unlock()

	uow, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Close()

	active, err := uow.ActiveSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	hadWork, err := s.hadWorkOnLocalDay(ctx, uow.Store, user, t)
	if err != nil {
		return nil, err
	}

	outcome, err := domain.Resolve(active, state, hadWork)
	if err != nil {
		return nil, err
	}

	result := &ToggleResult{}
	switch outcome.Kind {
	case domain.OutcomeStart:
		started, err := s.openSession(ctx, uow.Store, user, outcome, t)
		if err != nil {
			return nil, err
		}
		result.Started = started

	case domain.OutcomeEnd:
		if err := s.closeSession(ctx, uow.Store, active, t); err != nil {
			return nil, err
		}
		result.Ended = active

	case domain.OutcomeSwitch:
		if err := s.closeSession(ctx, uow.Store, active, t); err != nil {
			return nil, err
		}
		started, err := s.openSession(ctx, uow.Store, user, outcome, t)
		if err != nil {
			return nil, err
		}
		result.Ended = active
		result.Started = started
	}

	if err := uow.Commit(); err != nil {
		return nil, err
	}

	switch outcome.Kind {
	case domain.OutcomeStart:
		metrics.RecordToggle(string(state), "started")
	case domain.OutcomeEnd:
		metrics.RecordToggle(string(state), "ended")
	case domain.OutcomeSwitch:
		metrics.RecordToggle(string(state), "switched")
	}

	evt := s.logger.Info().
		Str("event", "tracking.toggle").
		Str("user_id", user.ID).
		Str("requested", string(state)).
		Time("effective", t)
	if result.Started != nil {
		evt = evt.Str("started", string(result.Started.State))
	}
	if result.Ended != nil {
		evt = evt.Str("ended", string(result.Ended.State))
	}
	evt.Msg("toggle applied")

	return result, nil
}

// hadWorkOnLocalDay reports whether the user has a working session whose
// start falls on the local date of t.
func (s *Service) hadWorkOnLocalDay(ctx context.Context, store *sqlite.Store, user *domain.User, t time.Time) (bool, error) {
	from, to := localDayWindow(user, t)
	sessions, err := store.SessionsInRange(ctx, user.ID, from, to)
	if err != nil {
		return false, err
	}
	for _, sess := range sessions {
		if sess.State == domain.StateWorking {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) openSession(ctx context.Context, store *sqlite.Store, user *domain.User, outcome domain.Outcome, t time.Time) (*domain.Session, error) {
	// A backdated start must not land inside the previously closed
	// session.
	prev, err := store.PreviousClosed(ctx, user.ID, t)
	if err != nil {
		return nil, err
	}
	if prev != nil && prev.EndedAt.After(t) {
		return nil, domain.E(domain.KindConflict, "start would overlap the %s session ending %s",
			prev.State, prev.EndedAt.Format(time.RFC3339))
	}

	sess := domain.NewSession(user.ID, outcome.NewState, t, outcome.Direction)
	if err := store.InsertSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) closeSession(ctx context.Context, store *sqlite.Store, sess *domain.Session, t time.Time) error {
	if !t.After(sess.StartedAt) {
		return domain.E(domain.KindConflict, "end %s is not after session start %s",
			t.Format(time.RFC3339), sess.StartedAt.Format(time.RFC3339))
	}
	sess.Close(t)
	return store.UpdateSession(ctx, sess)
}

// localDayWindow returns the UTC instants bounding the user-local calendar
// day containing t.
func localDayWindow(user *domain.User, t time.Time) (time.Time, time.Time) {
	day := user.LocalDate(t)
	offset := time.Duration(user.UTCOffsetMinutes) * time.Minute
	from := day.Time().Add(-offset)
	return from, from.Add(24 * time.Hour)
}

// keyedMutex serializes operations per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
