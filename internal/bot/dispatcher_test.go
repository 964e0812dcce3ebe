package bot

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/timesheet-app/timesheet/internal/domain"
	"github.com/timesheet-app/timesheet/internal/mnemonic"
	"github.com/timesheet-app/timesheet/internal/store/sqlite"
	"github.com/timesheet-app/timesheet/internal/tracking"
)

func newDispatcher(t *testing.T) (*Dispatcher, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.sqlite"), sqlite.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	d := NewDispatcher(store, tracking.NewService(store), mnemonic.NewService(store))
	return d, store
}

// registerUser walks the real registration flow and returns the chat id.
func registerUser(t *testing.T, d *Dispatcher, externalID int64) {
	t.Helper()
	phrase, err := d.mnemonics.Issue(context.Background(), 0)
	require.NoError(t, err)
	reply := d.HandleMessage(context.Background(), externalID, "register "+phrase)
	require.Contains(t, reply, "registered")
}

func TestDispatcher_UnregisteredSilentlyIgnored(t *testing.T) {
	d, _ := newDispatcher(t)
	ctx := context.Background()

	require.Empty(t, d.HandleMessage(ctx, 1, "w"))
	require.Empty(t, d.HandleMessage(ctx, 1, "status"))
	require.Empty(t, d.HandleMessage(ctx, 1, "complete gibberish"))

	// login and register are the exceptions.
	require.NotEmpty(t, d.HandleMessage(ctx, 1, "login"))
	require.NotEmpty(t, d.HandleMessage(ctx, 1, "register too few words"))
}

func TestDispatcher_RegisterFirstUserIsAdmin(t *testing.T) {
	d, _ := newDispatcher(t)
	ctx := context.Background()

	phrase, err := d.mnemonics.Issue(ctx, 0)
	require.NoError(t, err)
	reply := d.HandleMessage(ctx, 1, "register "+phrase)
	require.Contains(t, reply, "admin")

	phrase2, err := d.mnemonics.Issue(ctx, 0)
	require.NoError(t, err)
	reply = d.HandleMessage(ctx, 2, "register "+phrase2)
	require.Contains(t, reply, "registered")
	require.NotContains(t, reply, "admin")

	reply = d.HandleMessage(ctx, 1, "register "+phrase2)
	require.Contains(t, reply, "already registered")
}

func TestDispatcher_ToggleAndStatus(t *testing.T) {
	d, _ := newDispatcher(t)
	ctx := context.Background()
	registerUser(t, d, 1)

	reply := d.HandleMessage(ctx, 1, "w")
	require.Contains(t, reply, "Started working")

	reply = d.HandleMessage(ctx, 1, "status")
	require.Contains(t, reply, "Working since")
	require.Contains(t, reply, "Worked today")

	reply = d.HandleMessage(ctx, 1, "l")
	require.Contains(t, reply, "Switched working → lunch")

	reply = d.HandleMessage(ctx, 1, "l")
	require.Contains(t, reply, "Ended lunch")
}

func TestDispatcher_ListEditDelete(t *testing.T) {
	d, _ := newDispatcher(t)
	ctx := context.Background()
	registerUser(t, d, 1)

	d.HandleMessage(ctx, 1, "w -m 60")
	d.HandleMessage(ctx, 1, "w")

	reply := d.HandleMessage(ctx, 1, "list")
	require.Contains(t, reply, "Today:")
	require.Contains(t, reply, "1. working")

	reply = d.HandleMessage(ctx, 1, "edit start -m 10")
	require.Contains(t, reply, "Adjusted")

	// delete accepts the 8-char id prefix that list displays.
	sessions, err := d.tracking.Recent(ctx, mustUser(t, d, 1), 1)
	require.NoError(t, err)
	reply = d.HandleMessage(ctx, 1, "delete "+sessions[0].ID[:8])
	require.Equal(t, "Entry deleted.", reply)

	reply = d.HandleMessage(ctx, 1, "delete "+sessions[0].ID[:8])
	require.Contains(t, reply, "not found")

	// delete by recency index refuses an active session.
	d.HandleMessage(ctx, 1, "w")
	reply = d.HandleMessage(ctx, 1, "delete 1")
	require.Contains(t, reply, "end it first")
}

func TestDispatcher_EditIndexOutOfRange(t *testing.T) {
	d, _ := newDispatcher(t)
	ctx := context.Background()
	registerUser(t, d, 1)

	reply := d.HandleMessage(ctx, 1, "edit 4 start -m 10")
	require.Contains(t, reply, "no session at position 4")
}

func TestDispatcher_Settings(t *testing.T) {
	d, _ := newDispatcher(t)
	ctx := context.Background()
	registerUser(t, d, 1)

	reply := d.HandleMessage(ctx, 1, "settings")
	require.Contains(t, reply, "UTC offset: +0 min")
	require.Contains(t, reply, "Lunch reminder: off")

	reply = d.HandleMessage(ctx, 1, "settings utc 2")
	require.Contains(t, reply, "UTC offset: +120 min")

	reply = d.HandleMessage(ctx, 1, "settings lunch 12:30")
	require.Contains(t, reply, "Lunch reminder: 12:30")

	reply = d.HandleMessage(ctx, 1, "settings cap work 9")
	require.Contains(t, reply, "Work cap: 9h00m")

	reply = d.HandleMessage(ctx, 1, "settings threshold 90")
	require.Contains(t, reply, "exceed 100")
}

func TestDispatcher_LoginIssuesUsablePhrase(t *testing.T) {
	d, _ := newDispatcher(t)
	ctx := context.Background()
	registerUser(t, d, 1)

	reply := d.HandleMessage(ctx, 1, "login")
	require.Contains(t, reply, "login phrase")

	lines := strings.Split(reply, "\n")
	phrase := lines[len(lines)-1]
	user, err := d.mnemonics.Login(ctx, phrase)
	require.NoError(t, err)
	require.EqualValues(t, 1, user.ExternalID)
}

func TestDispatcher_GenerateIsAdminOnly(t *testing.T) {
	d, _ := newDispatcher(t)
	ctx := context.Background()
	registerUser(t, d, 1) // admin
	registerUserVia(t, d, 1, 2)

	reply := d.HandleMessage(ctx, 2, "generate")
	require.Contains(t, reply, "admin only")

	reply = d.HandleMessage(ctx, 1, "generate")
	require.Contains(t, reply, "Registration phrase")
}

// registerUserVia registers a second user with a phrase generated by the
// admin's generate command.
func registerUserVia(t *testing.T, d *Dispatcher, adminID, newID int64) {
	t.Helper()
	reply := d.HandleMessage(context.Background(), adminID, "generate")
	lines := strings.Split(reply, "\n")
	phrase := lines[len(lines)-1]
	reply = d.HandleMessage(context.Background(), newID, "register "+phrase)
	require.Contains(t, reply, "registered")
}

func mustUser(t *testing.T, d *Dispatcher, externalID int64) *domain.User {
	t.Helper()
	user, err := d.store.UserByExternalID(context.Background(), externalID)
	require.NoError(t, err)
	require.NotNil(t, user)
	return user
}
