package mnemonic

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/timesheet-app/timesheet/internal/domain"
	"github.com/timesheet-app/timesheet/internal/store/sqlite"
)

func newService(t *testing.T) (*Service, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.sqlite"), sqlite.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewService(store), store
}

func TestGenerate_TwentyFourValidWords(t *testing.T) {
	svc, _ := newService(t)

	phrase, err := svc.Generate()
	require.NoError(t, err)
	require.Len(t, strings.Fields(phrase), 24)

	normalized, err := Normalize(phrase)
	require.NoError(t, err)
	require.Equal(t, phrase, normalized)
}

func TestIssueAndConsume_RoundTrip(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	phrase, err := svc.Issue(ctx, 0)
	require.NoError(t, err)

	// Consumption is case- and whitespace-insensitive.
	require.NoError(t, svc.ValidateAndConsume(ctx, "  "+strings.ToUpper(phrase)+"  "))

	err = svc.ValidateAndConsume(ctx, phrase)
	require.Equal(t, domain.KindInvalidMnemonic, domain.KindOf(err))
}

func TestValidateAndConsume_MalformedPhrase(t *testing.T) {
	svc, _ := newService(t)

	err := svc.ValidateAndConsume(context.Background(), "too few words")
	require.Equal(t, domain.KindInvalidMnemonic, domain.KindOf(err))

	// 24 words with a broken checksum.
	bad := strings.TrimSpace(strings.Repeat("abandon ", 24))
	err = svc.ValidateAndConsume(context.Background(), bad)
	require.Equal(t, domain.KindInvalidMnemonic, domain.KindOf(err))
}

func TestValidateAndConsume_SingleWinner(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	phrase, err := svc.Issue(ctx, 0)
	require.NoError(t, err)

	const attempts = 8
	var wg sync.WaitGroup
	wins := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.ValidateAndConsume(ctx, phrase); err == nil {
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

func TestRegister_FirstUserIsAdmin(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	phrase, err := svc.Issue(ctx, 0)
	require.NoError(t, err)

	first, err := svc.Register(ctx, 1001, phrase)
	require.NoError(t, err)
	require.True(t, first.IsAdmin)

	phrase2, err := svc.Issue(ctx, 0)
	require.NoError(t, err)
	second, err := svc.Register(ctx, 1002, phrase2)
	require.NoError(t, err)
	require.False(t, second.IsAdmin)

	// Registering twice for the same platform identity fails before
	// the phrase is consumed.
	phrase3, err := svc.Issue(ctx, 0)
	require.NoError(t, err)
	_, err = svc.Register(ctx, 1001, phrase3)
	require.Equal(t, domain.KindAlreadyRegistered, domain.KindOf(err))
	require.NoError(t, svc.ValidateAndConsume(ctx, phrase3), "phrase must remain usable")

	u, err := store.UserByExternalID(ctx, 1001)
	require.NoError(t, err)
	require.NotNil(t, u)
}

func TestLogin_BoundToIssuingUser(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	phrase, err := svc.Issue(ctx, 0)
	require.NoError(t, err)
	user, err := svc.Register(ctx, 1001, phrase)
	require.NoError(t, err)

	login, err := svc.IssueLogin(ctx, user, 0)
	require.NoError(t, err)

	got, err := svc.Login(ctx, login)
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)

	// Single use.
	_, err = svc.Login(ctx, login)
	require.Equal(t, domain.KindInvalidMnemonic, domain.KindOf(err))
}

func TestLogin_RegistrationPhraseRejected(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	phrase, err := svc.Issue(ctx, 0)
	require.NoError(t, err)

	_, err = svc.Login(ctx, phrase)
	require.Equal(t, domain.KindInvalidMnemonic, domain.KindOf(err))
}

func TestRegister_LoginPhraseRejected(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	phrase, err := svc.Issue(ctx, 0)
	require.NoError(t, err)
	user, err := svc.Register(ctx, 1001, phrase)
	require.NoError(t, err)

	login, err := svc.IssueLogin(ctx, user, 0)
	require.NoError(t, err)

	_, err = svc.Register(ctx, 1002, login)
	require.Equal(t, domain.KindInvalidMnemonic, domain.KindOf(err))

	// The failed registration rolled back; the phrase is not burned and
	// still logs the issuing user in.
	got, err := svc.Login(ctx, login)
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
}

func TestRegister_FailureKeepsPhrasePending(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	first, err := svc.Issue(ctx, 0)
	require.NoError(t, err)
	_, err = svc.Register(ctx, 2001, first)
	require.NoError(t, err)

	// Same platform identity again: rejected before anything commits,
	// so the fresh phrase remains usable by someone else.
	second, err := svc.Issue(ctx, 0)
	require.NoError(t, err)
	_, err = svc.Register(ctx, 2001, second)
	require.Equal(t, domain.KindAlreadyRegistered, domain.KindOf(err))

	user, err := svc.Register(ctx, 2002, second)
	require.NoError(t, err)
	require.False(t, user.IsAdmin)
}

func TestSweepExpired(t *testing.T) {
	frozen := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.sqlite"), sqlite.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc := NewService(store, WithClock(func() time.Time { return frozen }))
	ctx := context.Background()

	_, err = svc.Issue(ctx, time.Minute)
	require.NoError(t, err)

	frozen = frozen.Add(2 * time.Minute)
	swept, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, swept)
}
