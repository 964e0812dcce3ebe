// Package domain holds the shared value types of the tracking core and the
// pure toggle state machine. It has no knowledge of storage or transports.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActivityState is one of the mutually exclusive tracked activities.
// Idle is the absence of an active session and is never persisted.
type ActivityState string

const (
	StateCommuting ActivityState = "commuting"
	StateWorking   ActivityState = "working"
	StateLunch     ActivityState = "lunch"
)

// Valid reports whether s is a known activity state.
func (s ActivityState) Valid() bool {
	switch s {
	case StateCommuting, StateWorking, StateLunch:
		return true
	}
	return false
}

// CommuteDirection tags a commute session as heading to the office or home.
type CommuteDirection string

const (
	DirectionToWork CommuteDirection = "to_work"
	DirectionToHome CommuteDirection = "to_home"
)

// Session is a closed or open interval in one activity.
type Session struct {
	ID        string
	UserID    string
	State     ActivityState
	StartedAt time.Time // UTC
	EndedAt   *time.Time
	Direction *CommuteDirection // set iff State == StateCommuting
	Note      string
}

// NewSession creates an active session starting at the given UTC instant.
func NewSession(userID string, state ActivityState, startedAt time.Time, direction *CommuteDirection) *Session {
	return &Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		State:     state,
		StartedAt: startedAt.UTC(),
		Direction: direction,
	}
}

// Active reports whether the session is still open.
func (s *Session) Active() bool { return s.EndedAt == nil }

// Close ends the session at the given instant. Ends before the start are
// clamped to the start so a duration is never negative.
func (s *Session) Close(endedAt time.Time) {
	endedAt = endedAt.UTC()
	if endedAt.Before(s.StartedAt) {
		endedAt = s.StartedAt
	}
	s.EndedAt = &endedAt
}

// Duration returns the session length, using now for an active session.
func (s *Session) Duration(now time.Time) time.Duration {
	end := now.UTC()
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	d := end.Sub(s.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

// Hours returns the closed session length in decimal hours, 0 when active.
func (s *Session) Hours() float64 {
	if s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt).Hours()
}

// User carries a stable identity and per-user settings. All caps and
// targets are optional; a nil pointer means "not configured".
type User struct {
	ID               string
	ExternalID       int64
	IsAdmin          bool
	UTCOffsetMinutes int

	MaxWorkHours    *float64
	MaxCommuteHours *float64
	MaxLunchHours   *float64

	LunchReminderHour   *int
	LunchReminderMinute *int

	TargetWorkHours   *float64
	TargetOfficeHours *float64

	// ForgotShutdownThresholdPercent enables heuristic auto-shutdown at
	// percent/100 of the user's average historical duration. Must be > 100.
	ForgotShutdownThresholdPercent *float64

	CreatedAt time.Time
}

// NewUser creates a user with the platform identity and a zero offset.
func NewUser(externalID int64, isAdmin bool, now time.Time) *User {
	return &User{
		ID:         uuid.New().String(),
		ExternalID: externalID,
		IsAdmin:    isAdmin,
		CreatedAt:  now.UTC(),
	}
}

// CapHoursFor returns the configured absolute cap for the given state.
func (u *User) CapHoursFor(state ActivityState) *float64 {
	switch state {
	case StateWorking:
		return u.MaxWorkHours
	case StateCommuting:
		return u.MaxCommuteHours
	case StateLunch:
		return u.MaxLunchHours
	}
	return nil
}

// Local converts a UTC instant to the user's local wall clock.
func (u *User) Local(t time.Time) time.Time {
	return t.UTC().Add(time.Duration(u.UTCOffsetMinutes) * time.Minute)
}

// LocalDate returns the user-local calendar date of a UTC instant.
func (u *User) LocalDate(t time.Time) Date {
	return DateOf(u.Local(t))
}

// PendingMnemonic is a single-use credential awaiting validation.
// Registration phrases have no user; login phrases carry the id of the
// user who requested them.
type PendingMnemonic struct {
	ID         string
	UserID     *string
	Phrase     string
	ExpiresAt  time.Time
	IsConsumed bool
	CreatedAt  time.Time
}

// EmployerAttendanceRecord is an imported attendance row, unique per
// (user, date). The core treats it as immutable input to analytics.
type EmployerAttendanceRecord struct {
	ID           string
	UserID       string
	Date         Date
	ClockIn      *time.Time
	ClockOut     *time.Time
	WorkingHours float64
	HasConflict  bool
}

// ComplianceRuleType enumerates the employer rules evaluated per day.
type ComplianceRuleType string

const (
	RuleMinPresence ComplianceRuleType = "min_presence"
	RuleMinWork     ComplianceRuleType = "min_work"
	RuleCoreHours   ComplianceRuleType = "core_hours"
)

// AnchorDefinition selects how a rule derives its clock-in/out instants.
type AnchorDefinition string

const (
	AnchorFirstSessionStart AnchorDefinition = "first_session_start"
	AnchorLastSessionEnd    AnchorDefinition = "last_session_end"
	AnchorFixedTime         AnchorDefinition = "fixed_time"
)

// ComplianceRule configures one rule type for one user.
type ComplianceRule struct {
	ID             string
	UserID         string
	RuleType       ComplianceRuleType
	IsEnabled      bool
	ThresholdHours float64
	ClockInDef     AnchorDefinition
	ClockOutDef    AnchorDefinition
	// Fixed local times as "HH:MM", used when the matching definition is
	// AnchorFixedTime.
	FixedClockIn  string
	FixedClockOut string
}

// HolidayType tags a holiday interval.
type HolidayType string

const (
	HolidayVacation HolidayType = "vacation"
	HolidaySick     HolidayType = "sick"
	HolidayPublic   HolidayType = "public"
)

// Holiday is a half-open date interval [StartDate, EndDate) excluded from
// compliance evaluation.
type Holiday struct {
	ID          string
	UserID      string
	StartDate   Date
	EndDate     Date
	Type        HolidayType
	Description string
}

// Covers reports whether the holiday interval contains the given date.
func (h *Holiday) Covers(d Date) bool {
	return !d.Before(h.StartDate) && d.Before(h.EndDate)
}
