// Package analytics derives read-only reports from the session store:
// daily breakdowns, aggregate statistics, commute patterns, chart series
// and compliance evaluation. Only closed sessions contribute to totals.
package analytics

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/timesheet-app/timesheet/internal/domain"
	"github.com/timesheet-app/timesheet/internal/log"
	"github.com/timesheet-app/timesheet/internal/store/sqlite"
)

// Service answers analytics queries for one store.
type Service struct {
	store  *sqlite.Store
	logger zerolog.Logger
}

// NewService creates an analytics service over the store.
func NewService(store *sqlite.Store) *Service {
	return &Service{store: store, logger: log.WithComponent("analytics")}
}

// DayBreakdown is one report row for one local date. OfficeSpanHours and
// IdleHours are nil (not zero) when the day is missing either commute
// anchor.
type DayBreakdown struct {
	Date               domain.Date `json:"date"`
	WorkHours          float64     `json:"work_hours"`
	CommuteToWorkHours float64     `json:"commute_to_work_hours"`
	CommuteToHomeHours float64     `json:"commute_to_home_hours"`
	LunchHours         float64     `json:"lunch_hours"`
	OfficeSpanHours    *float64    `json:"office_span_hours"`
	IdleHours          *float64    `json:"idle_hours"`
	HasActivity        bool        `json:"has_activity"`
}

// DailyBreakdown produces one row per local date in [from, to), zero-filled
// for days without sessions. A session crossing local midnight is
// attributed in full to the date of its start; one action never splits
// across two report rows.
func (s *Service) DailyBreakdown(ctx context.Context, user *domain.User, from, to domain.Date) ([]DayBreakdown, error) {
	if !from.Before(to) {
		return nil, domain.E(domain.KindInvalidRequest, "empty date range")
	}

	byDay, err := s.closedSessionsByLocalDay(ctx, user, from, to)
	if err != nil {
		return nil, err
	}

	days := from.DaysUntil(to)
	out := make([]DayBreakdown, 0, days)
	for d := from; d.Before(to); d = d.AddDays(1) {
		out = append(out, buildDayBreakdown(d, byDay[d]))
	}
	return out, nil
}

func buildDayBreakdown(day domain.Date, sessions []*domain.Session) DayBreakdown {
	row := DayBreakdown{Date: day}
	if len(sessions) == 0 {
		return row
	}
	row.HasActivity = true

	var firstToWorkEnd, lastToHomeStart *time.Time
	for _, sess := range sessions {
		hours := sess.Hours()
		switch sess.State {
		case domain.StateWorking:
			row.WorkHours += hours
		case domain.StateLunch:
			row.LunchHours += hours
		case domain.StateCommuting:
			if sess.Direction != nil && *sess.Direction == domain.DirectionToHome {
				row.CommuteToHomeHours += hours
				start := sess.StartedAt
				lastToHomeStart = &start
			} else {
				row.CommuteToWorkHours += hours
				if firstToWorkEnd == nil {
					end := *sess.EndedAt
					firstToWorkEnd = &end
				}
			}
		}
	}

	// Office span runs from the end of the first commute to work to the
	// start of the last commute home. Missing anchors leave it absent.
	if firstToWorkEnd != nil && lastToHomeStart != nil {
		span := lastToHomeStart.Sub(*firstToWorkEnd).Hours()
		row.OfficeSpanHours = &span
		idle := math.Max(0, span-row.WorkHours-row.LunchHours)
		row.IdleHours = &idle
	}
	return row
}

// ActivityStats aggregates one activity's per-day totals over a window.
// Days without that activity are excluded from Avg/Min/Max/StdDev/Count
// but implicitly included in Total.
type ActivityStats struct {
	Avg    float64 `json:"avg"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"std_dev"`
	Total  float64 `json:"total"`
	Count  int     `json:"count"`
}

// Aggregates bundles the four tracked activity statistics.
type Aggregates struct {
	Work          ActivityStats `json:"work"`
	CommuteToWork ActivityStats `json:"commute_to_work"`
	CommuteToHome ActivityStats `json:"commute_to_home"`
	Lunch         ActivityStats `json:"lunch"`
}

// AggregateStats computes per-activity statistics over the daily totals in
// [from, to). StdDev is the population standard deviation.
func (s *Service) AggregateStats(ctx context.Context, user *domain.User, from, to domain.Date) (*Aggregates, error) {
	breakdown, err := s.DailyBreakdown(ctx, user, from, to)
	if err != nil {
		return nil, err
	}

	var work, toWork, toHome, lunch []float64
	for _, day := range breakdown {
		work = appendNonZero(work, day.WorkHours)
		toWork = appendNonZero(toWork, day.CommuteToWorkHours)
		toHome = appendNonZero(toHome, day.CommuteToHomeHours)
		lunch = appendNonZero(lunch, day.LunchHours)
	}
	return &Aggregates{
		Work:          statsOf(work),
		CommuteToWork: statsOf(toWork),
		CommuteToHome: statsOf(toHome),
		Lunch:         statsOf(lunch),
	}, nil
}

func appendNonZero(dst []float64, v float64) []float64 {
	if v > 0 {
		dst = append(dst, v)
	}
	return dst
}

func statsOf(values []float64) ActivityStats {
	if len(values) == 0 {
		return ActivityStats{}
	}
	st := ActivityStats{Min: math.MaxFloat64, Count: len(values)}
	for _, v := range values {
		st.Total += v
		st.Min = math.Min(st.Min, v)
		st.Max = math.Max(st.Max, v)
	}
	st.Avg = st.Total / float64(len(values))

	var sumSq float64
	for _, v := range values {
		d := v - st.Avg
		sumSq += d * d
	}
	st.StdDev = math.Sqrt(sumSq / float64(len(values)))
	return st
}

// closedSessionsByLocalDay loads the user's closed sessions whose start
// falls on a local date in [from, to), grouped by that date.
func (s *Service) closedSessionsByLocalDay(ctx context.Context, user *domain.User, from, to domain.Date) (map[domain.Date][]*domain.Session, error) {
	offset := time.Duration(user.UTCOffsetMinutes) * time.Minute
	fromUTC := from.Time().Add(-offset)
	toUTC := to.Time().Add(-offset)

	sessions, err := s.store.SessionsInRange(ctx, user.ID, fromUTC, toUTC)
	if err != nil {
		return nil, err
	}

	byDay := make(map[domain.Date][]*domain.Session)
	for _, sess := range sessions {
		if sess.Active() {
			continue
		}
		day := user.LocalDate(sess.StartedAt)
		byDay[day] = append(byDay[day], sess)
	}
	return byDay, nil
}
