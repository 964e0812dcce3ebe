package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/timesheet-app/timesheet/internal/domain"
	"github.com/timesheet-app/timesheet/internal/log"
	"github.com/timesheet-app/timesheet/internal/metrics"
	"github.com/timesheet-app/timesheet/internal/mnemonic"
	"github.com/timesheet-app/timesheet/internal/store/sqlite"
	"github.com/timesheet-app/timesheet/internal/tracking"
)

// Dispatcher translates parsed commands into core service calls and
// renders the replies. Unregistered senders are ignored except for
// register and login, so the bot leaks nothing to strangers.
type Dispatcher struct {
	store     *sqlite.Store
	tracking  *tracking.Service
	mnemonics *mnemonic.Service
	logger    zerolog.Logger
}

// NewDispatcher wires the bot front end to the core.
func NewDispatcher(store *sqlite.Store, trackingSvc *tracking.Service, mnemonicSvc *mnemonic.Service) *Dispatcher {
	return &Dispatcher{
		store:     store,
		tracking:  trackingSvc,
		mnemonics: mnemonicSvc,
		logger:    log.WithComponent("bot"),
	}
}

// HandleMessage processes one inbound message and returns the reply
// text. An empty reply means stay silent.
func (d *Dispatcher) HandleMessage(ctx context.Context, externalID int64, text string) string {
	user, err := d.store.UserByExternalID(ctx, externalID)
	if err != nil {
		d.logger.Error().Err(err).Int64("external_id", externalID).Msg("user lookup failed")
		return ""
	}

	cmd, err := Parse(text)
	if err != nil {
		if user == nil {
			return ""
		}
		metrics.RecordBotCommand("parse", "error")
		return domain.Message(err)
	}

	if user == nil {
		switch cmd.Name {
		case CmdRegister:
			return d.register(ctx, externalID, cmd)
		case CmdLogin:
			return "You are not registered. Send: register <24 words>"
		default:
			return ""
		}
	}

	reply, err := d.dispatch(ctx, user, cmd)
	if err != nil {
		metrics.RecordBotCommand(string(cmd.Name), "error")
		return domain.Message(err)
	}
	metrics.RecordBotCommand(string(cmd.Name), "ok")
	return reply
}

func (d *Dispatcher) dispatch(ctx context.Context, user *domain.User, cmd *Command) (string, error) {
	switch cmd.Name {
	case CmdToggle:
		return d.toggle(ctx, user, cmd)
	case CmdStatus:
		return d.status(ctx, user)
	case CmdList:
		return d.list(ctx, user)
	case CmdEdit:
		return d.edit(ctx, user, cmd)
	case CmdDelete:
		id, err := d.resolveEntry(ctx, user, cmd.EntryID)
		if err != nil {
			return "", err
		}
		if err := d.tracking.Delete(ctx, user, id); err != nil {
			return "", err
		}
		return "Entry deleted.", nil
	case CmdSettings:
		return d.settings(ctx, user, cmd.Setting)
	case CmdRegister:
		return "", domain.E(domain.KindAlreadyRegistered, "you are already registered")
	case CmdLogin:
		phrase, err := d.mnemonics.IssueLogin(ctx, user, 0)
		if err != nil {
			return "", err
		}
		return "One-time browser login phrase (valid 1 hour):\n" + phrase, nil
	case CmdGenerate:
		if !user.IsAdmin {
			return "", domain.E(domain.KindNotAuthorized, "generate is admin only")
		}
		phrase, err := d.mnemonics.Issue(ctx, 0)
		if err != nil {
			return "", err
		}
		return "Registration phrase (valid 1 hour):\n" + phrase, nil
	}
	return "", domain.E(domain.KindInvalidRequest, "unknown command")
}

func (d *Dispatcher) register(ctx context.Context, externalID int64, cmd *Command) string {
	user, err := d.mnemonics.Register(ctx, externalID, cmd.Mnemonic)
	if err != nil {
		metrics.RecordBotCommand(string(CmdRegister), "error")
		return domain.Message(err)
	}
	metrics.RecordBotCommand(string(CmdRegister), "ok")
	if user.IsAdmin {
		return "Welcome! You are registered as the admin."
	}
	return "Welcome! You are registered."
}

func (d *Dispatcher) toggle(ctx context.Context, user *domain.User, cmd *Command) (string, error) {
	result, err := d.tracking.Toggle(ctx, user, cmd.Activity, cmd.Spec)
	if err != nil {
		return "", err
	}

	switch {
	case result.Started != nil && result.Ended != nil:
		return fmt.Sprintf("Switched %s → %s at %s.",
			activityLabel(result.Ended), activityLabel(result.Started),
			clock(user, result.Started.StartedAt)), nil
	case result.Started != nil:
		return fmt.Sprintf("Started %s at %s.",
			activityLabel(result.Started), clock(user, result.Started.StartedAt)), nil
	default:
		return fmt.Sprintf("Ended %s at %s (%s).",
			activityLabel(result.Ended), clock(user, *result.Ended.EndedAt),
			fmtDuration(result.Ended.Duration(time.Now()))), nil
	}
}

func (d *Dispatcher) status(ctx context.Context, user *domain.User) (string, error) {
	st, err := d.tracking.CurrentStatus(ctx, user)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if st.Active == nil {
		b.WriteString("No active session.")
	} else {
		fmt.Fprintf(&b, "%s since %s (%s).",
			capitalize(activityLabel(st.Active)),
			clock(user, st.Active.StartedAt), fmtDuration(st.Duration))
	}
	fmt.Fprintf(&b, "\nWorked today: %s", fmtDuration(st.WorkedToday))
	if st.TargetWorkHours != nil {
		fmt.Fprintf(&b, " of %s target", fmtHours(*st.TargetWorkHours))
	}
	return b.String(), nil
}

func (d *Dispatcher) list(ctx context.Context, user *domain.User) (string, error) {
	sessions, err := d.tracking.ListDay(ctx, user, domain.Date{})
	if err != nil {
		return "", err
	}
	if len(sessions) == 0 {
		return "No sessions today.", nil
	}

	var b strings.Builder
	b.WriteString("Today:")
	for i, sess := range sessions {
		end := "…"
		if !sess.Active() {
			end = clock(user, *sess.EndedAt)
		}
		fmt.Fprintf(&b, "\n%d. %s %s–%s (%s)",
			i+1, activityLabel(sess), clock(user, sess.StartedAt), end, sess.ID[:8])
	}
	return b.String(), nil
}

// resolveEntry turns a delete argument into a session id. A plain number
// is a recency index as shown by list; anything else matches a recent
// session id or its prefix, falling back to the raw value.
func (d *Dispatcher) resolveEntry(ctx context.Context, user *domain.User, arg string) (string, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 {
			return "", domain.E(domain.KindInvalidRequest, "index must be at least 1")
		}
		sessions, err := d.tracking.Recent(ctx, user, n)
		if err != nil {
			return "", err
		}
		if len(sessions) < n {
			return "", domain.E(domain.KindNotFound, "no session at position %d", n)
		}
		return sessions[n-1].ID, nil
	}

	sessions, err := d.tracking.Recent(ctx, user, 50)
	if err != nil {
		return "", err
	}
	for _, sess := range sessions {
		if strings.HasPrefix(sess.ID, arg) {
			return sess.ID, nil
		}
	}
	return arg, nil
}

func (d *Dispatcher) edit(ctx context.Context, user *domain.User, cmd *Command) (string, error) {
	index := cmd.EditIndex
	if index == 0 {
		index = 1
	}
	sessions, err := d.tracking.Recent(ctx, user, index)
	if err != nil {
		return "", err
	}
	if len(sessions) < index {
		return "", domain.E(domain.KindNotFound, "no session at position %d", index)
	}
	target := sessions[index-1]
	delta := time.Duration(cmd.EditDeltaMinutes) * time.Minute

	var sess *domain.Session
	if cmd.EditField == "start" {
		sess, err = d.tracking.AdjustStartTime(ctx, user, target.ID, delta)
	} else {
		sess, err = d.tracking.AdjustEndTime(ctx, user, target.ID, delta)
	}
	if err != nil {
		return "", err
	}

	end := "…"
	if !sess.Active() {
		end = clock(user, *sess.EndedAt)
	}
	return fmt.Sprintf("Adjusted: %s %s–%s.", activityLabel(sess), clock(user, sess.StartedAt), end), nil
}

func (d *Dispatcher) settings(ctx context.Context, user *domain.User, change *SettingChange) (string, error) {
	if change == nil {
		return renderSettings(user), nil
	}

	switch change.Key {
	case "utc":
		user.UTCOffsetMinutes = change.OffsetMinutes
	case "lunch":
		if change.Off {
			user.LunchReminderHour, user.LunchReminderMinute = nil, nil
		} else {
			h, m := change.Hour, change.Minute
			user.LunchReminderHour, user.LunchReminderMinute = &h, &m
		}
	case "target":
		user.TargetWorkHours = hoursOrNil(change)
	case "office":
		user.TargetOfficeHours = hoursOrNil(change)
	case "threshold":
		user.ForgotShutdownThresholdPercent = hoursOrNil(change)
	case "cap":
		switch change.Activity {
		case domain.StateWorking:
			user.MaxWorkHours = hoursOrNil(change)
		case domain.StateCommuting:
			user.MaxCommuteHours = hoursOrNil(change)
		case domain.StateLunch:
			user.MaxLunchHours = hoursOrNil(change)
		}
	}

	if err := d.tracking.UpdateSettings(ctx, user); err != nil {
		return "", err
	}
	return "Saved.\n" + renderSettings(user), nil
}

func hoursOrNil(change *SettingChange) *float64 {
	if change.Off {
		return nil
	}
	v := change.Hours
	return &v
}

func renderSettings(user *domain.User) string {
	var b strings.Builder
	fmt.Fprintf(&b, "UTC offset: %+d min", user.UTCOffsetMinutes)
	if user.LunchReminderHour != nil && user.LunchReminderMinute != nil {
		fmt.Fprintf(&b, "\nLunch reminder: %02d:%02d", *user.LunchReminderHour, *user.LunchReminderMinute)
	} else {
		b.WriteString("\nLunch reminder: off")
	}
	writeOptHours(&b, "Work target", user.TargetWorkHours)
	writeOptHours(&b, "Office target", user.TargetOfficeHours)
	writeOptHours(&b, "Work cap", user.MaxWorkHours)
	writeOptHours(&b, "Commute cap", user.MaxCommuteHours)
	writeOptHours(&b, "Lunch cap", user.MaxLunchHours)
	if p := user.ForgotShutdownThresholdPercent; p != nil {
		fmt.Fprintf(&b, "\nForgot-shutdown threshold: %.0f%%", *p)
	} else {
		b.WriteString("\nForgot-shutdown threshold: off")
	}
	return b.String()
}

func writeOptHours(b *strings.Builder, label string, v *float64) {
	if v != nil {
		fmt.Fprintf(b, "\n%s: %s", label, fmtHours(*v))
	} else {
		fmt.Fprintf(b, "\n%s: off", label)
	}
}

func activityLabel(s *domain.Session) string {
	if s.State == domain.StateCommuting && s.Direction != nil {
		return fmt.Sprintf("commuting (%s)", strings.ReplaceAll(string(*s.Direction), "_", " "))
	}
	return string(s.State)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// clock renders an instant on the user's local wall clock.
func clock(user *domain.User, t time.Time) string {
	return user.Local(t).Format("15:04")
}

func fmtDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", h, m)
}

func fmtHours(h float64) string {
	return fmtDuration(time.Duration(h * float64(time.Hour)))
}
