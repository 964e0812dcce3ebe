package analytics

import (
	"context"
	"time"

	"github.com/timesheet-app/timesheet/internal/domain"
)

// HourStat is one bucket of the per-start-hour commute histogram.
type HourStat struct {
	Hour     int     `json:"hour"` // local start hour, 0..23
	AvgHours float64 `json:"avg_hours"`
	Count    int     `json:"count"`
}

// WeekdayPattern summarises one weekday's commutes in one direction.
// Weekdays with no data carry zeroed fields so consumers can iterate
// Monday through Sunday safely.
type WeekdayPattern struct {
	Weekday          time.Weekday `json:"weekday"`
	AvgHours         float64      `json:"avg_hours"`
	Histogram        []HourStat   `json:"histogram"`
	OptimalStartHour int          `json:"optimal_start_hour"`
	OptimalAvgHours  float64      `json:"optimal_avg_hours"`
	Count            int          `json:"count"`
}

// CommutePatterns groups the user's completed commutes of the given
// direction in [from, to) by local weekday. Always returns seven entries,
// Monday first.
func (s *Service) CommutePatterns(ctx context.Context, user *domain.User, direction domain.CommuteDirection, from, to domain.Date) ([]WeekdayPattern, error) {
	byDay, err := s.closedSessionsByLocalDay(ctx, user, from, to)
	if err != nil {
		return nil, err
	}

	type hourAgg struct {
		total time.Duration
		count int
	}
	type weekdayAgg struct {
		total time.Duration
		count int
		hours map[int]*hourAgg
	}
	agg := make(map[time.Weekday]*weekdayAgg)

	for day, sessions := range byDay {
		wd := day.Weekday()
		for _, sess := range sessions {
			if sess.State != domain.StateCommuting || sess.Direction == nil || *sess.Direction != direction {
				continue
			}
			a := agg[wd]
			if a == nil {
				a = &weekdayAgg{hours: make(map[int]*hourAgg)}
				agg[wd] = a
			}
			dur := sess.EndedAt.Sub(sess.StartedAt)
			a.total += dur
			a.count++

			hour := user.Local(sess.StartedAt).Hour()
			h := a.hours[hour]
			if h == nil {
				h = &hourAgg{}
				a.hours[hour] = h
			}
			h.total += dur
			h.count++
		}
	}

	weekdays := []time.Weekday{
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
		time.Friday, time.Saturday, time.Sunday,
	}
	out := make([]WeekdayPattern, 0, len(weekdays))
	for _, wd := range weekdays {
		p := WeekdayPattern{Weekday: wd, Histogram: []HourStat{}}
		if a := agg[wd]; a != nil {
			p.Count = a.count
			p.AvgHours = a.total.Hours() / float64(a.count)

			bestAvg := 0.0
			bestHour := -1
			for hour := 0; hour < 24; hour++ {
				h := a.hours[hour]
				if h == nil {
					continue
				}
				avg := h.total.Hours() / float64(h.count)
				p.Histogram = append(p.Histogram, HourStat{Hour: hour, AvgHours: avg, Count: h.count})
				if bestHour == -1 || avg < bestAvg {
					bestAvg, bestHour = avg, hour
				}
			}
			p.OptimalStartHour = bestHour
			p.OptimalAvgHours = bestAvg
		}
		out = append(out, p)
	}
	return out, nil
}
