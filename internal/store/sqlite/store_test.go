package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/timesheet-app/timesheet/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "timesheet.sqlite")
	store, err := Open(dbPath, DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedUser(t *testing.T, s *Store, externalID int64) *domain.User {
	t.Helper()
	u := domain.NewUser(externalID, false, time.Now())
	require.NoError(t, s.InsertUser(context.Background(), u))
	return u
}

func TestInsertUser_DuplicateExternalID(t *testing.T) {
	s := openTestStore(t)
	seedUser(t, s, 1001)

	dup := domain.NewUser(1001, false, time.Now())
	err := s.InsertUser(context.Background(), dup)
	require.Error(t, err)
	require.Equal(t, domain.KindAlreadyRegistered, domain.KindOf(err))
}

func TestActiveSessionLookup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, 1)

	active, err := s.ActiveSession(ctx, u.ID)
	require.NoError(t, err)
	require.Nil(t, active)

	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	sess := domain.NewSession(u.ID, domain.StateWorking, start, nil)
	require.NoError(t, s.InsertSession(ctx, sess))

	active, err = s.ActiveSession(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, sess.ID, active.ID)
	require.True(t, active.StartedAt.Equal(start))
	require.Nil(t, active.EndedAt)

	sess.Close(start.Add(2 * time.Hour))
	require.NoError(t, s.UpdateSession(ctx, sess))

	active, err = s.ActiveSession(ctx, u.ID)
	require.NoError(t, err)
	require.Nil(t, active)
}

func TestSessionsInRange_HalfOpenOrdered(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, 2)

	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	for _, hour := range []int{9, 12, 15} {
		sess := domain.NewSession(u.ID, domain.StateWorking, base.Add(time.Duration(hour)*time.Hour), nil)
		sess.Close(sess.StartedAt.Add(time.Hour))
		require.NoError(t, s.InsertSession(ctx, sess))
	}

	got, err := s.SessionsInRange(ctx, u.ID, base.Add(9*time.Hour), base.Add(15*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2) // 15:00 start excluded by the half-open window
	require.True(t, got[0].StartedAt.Before(got[1].StartedAt))
}

func TestSessionsInRange_SubSecondStarts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, 7)

	// Fractional seconds are the norm: a plain toggle stamps time.Now()
	// at nanosecond precision. Stored order must survive mixed widths.
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	half := domain.NewSession(u.ID, domain.StateWorking, base.Add(500*time.Millisecond), nil)
	half.Close(half.StartedAt.Add(10 * time.Millisecond))
	require.NoError(t, s.InsertSession(ctx, half))

	later := domain.NewSession(u.ID, domain.StateLunch, base.Add(520*time.Millisecond), nil)
	later.Close(later.StartedAt.Add(10 * time.Millisecond))
	require.NoError(t, s.InsertSession(ctx, later))

	whole := domain.NewSession(u.ID, domain.StateWorking, base.Add(time.Second), nil)
	whole.Close(whole.StartedAt.Add(time.Second))
	require.NoError(t, s.InsertSession(ctx, whole))

	// A whole-second window boundary must not exclude fractional starts.
	got, err := s.SessionsInRange(ctx, u.ID, base, base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, half.ID, got[0].ID)
	require.Equal(t, later.ID, got[1].ID)
	require.Equal(t, whole.ID, got[2].ID)

	prev, err := s.PreviousClosed(ctx, u.ID, whole.StartedAt)
	require.NoError(t, err)
	require.NotNil(t, prev)
	require.Equal(t, later.ID, prev.ID)
}

func TestPreviousClosedAndNextSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, 3)

	first := domain.NewSession(u.ID, domain.StateWorking, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), nil)
	first.Close(first.StartedAt.Add(time.Hour))
	require.NoError(t, s.InsertSession(ctx, first))

	second := domain.NewSession(u.ID, domain.StateLunch, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), nil)
	second.Close(second.StartedAt.Add(30 * time.Minute))
	require.NoError(t, s.InsertSession(ctx, second))

	prev, err := s.PreviousClosed(ctx, u.ID, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, prev)
	require.Equal(t, first.ID, prev.ID)

	next, err := s.NextSession(ctx, u.ID, first.StartedAt)
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, second.ID, next.ID)

	next, err = s.NextSession(ctx, u.ID, second.StartedAt)
	require.NoError(t, err)
	require.Nil(t, next)
}

func TestConsumeMnemonic_SingleWinnerUnderConcurrency(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	m := &domain.PendingMnemonic{
		ID:        uuid.New().String(),
		Phrase:    "abandon ability able about above absent absorb abstract absurd abuse access accident account accuse achieve acid acoustic acquire across act action actor actress actual",
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
	require.NoError(t, s.InsertMnemonic(ctx, m))

	const attempts = 8
	var wg sync.WaitGroup
	wins := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ConsumeMnemonic(ctx, m.Phrase, now); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	require.Equal(t, 1, won)
}

func TestConsumeMnemonic_ExpiredRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	m := &domain.PendingMnemonic{
		ID:        uuid.New().String(),
		Phrase:    "test phrase expired",
		ExpiresAt: now.Add(-time.Minute),
		CreatedAt: now.Add(-2 * time.Hour),
	}
	require.NoError(t, s.InsertMnemonic(ctx, m))

	_, err := s.ConsumeMnemonic(ctx, m.Phrase, now)
	require.Error(t, err)
	require.Equal(t, domain.KindInvalidMnemonic, domain.KindOf(err))

	swept, err := s.DeleteExpiredMnemonics(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, swept)
}

func TestUnitOfWork_RollbackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, 4)

	err := s.RunInTx(ctx, func(tx *Store) error {
		sess := domain.NewSession(u.ID, domain.StateWorking, time.Now(), nil)
		if err := tx.InsertSession(ctx, sess); err != nil {
			return err
		}
		return domain.E(domain.KindConflict, "forced rollback")
	})
	require.Error(t, err)

	active, err := s.ActiveSession(ctx, u.ID)
	require.NoError(t, err)
	require.Nil(t, active)
}

func TestHolidayOverlapQuery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, 5)

	h := &domain.Holiday{
		ID:        uuid.New().String(),
		UserID:    u.ID,
		StartDate: domain.Date{Year: 2026, Month: time.July, Day: 6},
		EndDate:   domain.Date{Year: 2026, Month: time.July, Day: 10},
		Type:      domain.HolidayVacation,
	}
	require.NoError(t, s.InsertHoliday(ctx, h))

	// Window ending on the first holiday day overlaps.
	got, err := s.Holidays(ctx, u.ID,
		domain.Date{Year: 2026, Month: time.July, Day: 1},
		domain.Date{Year: 2026, Month: time.July, Day: 6})
	require.NoError(t, err)
	require.Len(t, got, 1)

	// Half-open end: a window starting on end_date does not overlap.
	got, err = s.Holidays(ctx, u.ID,
		domain.Date{Year: 2026, Month: time.July, Day: 10},
		domain.Date{Year: 2026, Month: time.July, Day: 12})
	require.NoError(t, err)
	require.Empty(t, got)
}
