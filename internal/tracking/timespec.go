package tracking

import (
	"time"

	"github.com/timesheet-app/timesheet/internal/domain"
)

// TimeSpec selects the effective timestamp of a toggle. The zero value
// means "now". At most one qualifier may be set.
type TimeSpec struct {
	// OffsetMinutes shifts now by a signed number of minutes
	// (negative: "I actually started N minutes ago").
	OffsetMinutes *int
	// LocalClock is a 24-hour "HH:MM" on the user's local wall clock,
	// applied to today's local date.
	LocalClock string
}

// IsZero reports whether the spec requests the current instant.
func (ts TimeSpec) IsZero() bool {
	return ts.OffsetMinutes == nil && ts.LocalClock == ""
}

// Resolve computes the effective UTC timestamp for the user. A local
// clock value that lands in the future wraps back one local day. The
// result must fall within maxOffset of now.
func (ts TimeSpec) Resolve(now time.Time, user *domain.User, maxOffset time.Duration) (time.Time, error) {
	now = now.UTC()
	if ts.OffsetMinutes != nil && ts.LocalClock != "" {
		return time.Time{}, domain.E(domain.KindInvalidRequest, "only one time qualifier may be given")
	}

	var t time.Time
	switch {
	case ts.IsZero():
		return now, nil
	case ts.OffsetMinutes != nil:
		t = now.Add(time.Duration(*ts.OffsetMinutes) * time.Minute)
	default:
		hour, minute, err := domain.ParseClock(ts.LocalClock)
		if err != nil {
			return time.Time{}, err
		}
		local := user.Local(now)
		localAt := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, time.UTC)
		t = localAt.Add(-time.Duration(user.UTCOffsetMinutes) * time.Minute)
		if t.After(now) {
			t = t.AddDate(0, 0, -1)
		}
	}

	if diff := t.Sub(now); diff > maxOffset || diff < -maxOffset {
		return time.Time{}, domain.E(domain.KindInvalidRequest, "time is more than %s away from now", maxOffset)
	}
	return t, nil
}
