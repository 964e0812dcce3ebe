package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/timesheet-app/timesheet/internal/domain"
)

// Bucketing selects the chart aggregation granularity.
type Bucketing string

const (
	BucketDay   Bucketing = "day"
	BucketWeek  Bucketing = "week" // ISO week, Monday start
	BucketMonth Bucketing = "month"
	BucketYear  Bucketing = "year"
)

// Valid reports whether b is a known bucketing.
func (b Bucketing) Valid() bool {
	switch b {
	case BucketDay, BucketWeek, BucketMonth, BucketYear:
		return true
	}
	return false
}

// ChartBucket is one time-series point. Buckets without sessions are
// emitted with zeros so consumers render contiguous series.
type ChartBucket struct {
	Label          string  `json:"label"`
	WorkHours      float64 `json:"work_hours"`
	CommuteHours   float64 `json:"commute_hours"`
	LunchHours     float64 `json:"lunch_hours"`
	TotalSpanHours float64 `json:"total_span_hours"`
	IdleHours      float64 `json:"idle_hours"`
}

// ChartData buckets the user's closed sessions in [from, to) by local
// start date. TotalSpan is max(ended_at) − min(started_at) per bucket;
// idle is the span not covered by any tracked activity.
func (s *Service) ChartData(ctx context.Context, user *domain.User, from, to domain.Date, bucketing Bucketing) ([]ChartBucket, error) {
	if !bucketing.Valid() {
		return nil, domain.E(domain.KindInvalidRequest, "unknown bucketing %q", bucketing)
	}

	byDay, err := s.closedSessionsByLocalDay(ctx, user, from, to)
	if err != nil {
		return nil, err
	}

	type bucketAgg struct {
		work, commute, lunch float64
		minStart, maxEnd     time.Time
	}
	agg := make(map[string]*bucketAgg)

	for day, sessions := range byDay {
		key := bucketLabel(day, bucketing)
		b := agg[key]
		if b == nil {
			b = &bucketAgg{}
			agg[key] = b
		}
		for _, sess := range sessions {
			hours := sess.Hours()
			switch sess.State {
			case domain.StateWorking:
				b.work += hours
			case domain.StateCommuting:
				b.commute += hours
			case domain.StateLunch:
				b.lunch += hours
			}
			if b.minStart.IsZero() || sess.StartedAt.Before(b.minStart) {
				b.minStart = sess.StartedAt
			}
			if sess.EndedAt.After(b.maxEnd) {
				b.maxEnd = *sess.EndedAt
			}
		}
	}

	var out []ChartBucket
	seen := make(map[string]bool)
	for d := from; d.Before(to); d = d.AddDays(1) {
		key := bucketLabel(d, bucketing)
		if seen[key] {
			continue
		}
		seen[key] = true

		bucket := ChartBucket{Label: key}
		if b := agg[key]; b != nil {
			bucket.WorkHours = b.work
			bucket.CommuteHours = b.commute
			bucket.LunchHours = b.lunch
			bucket.TotalSpanHours = b.maxEnd.Sub(b.minStart).Hours()
			bucket.IdleHours = math.Max(0, bucket.TotalSpanHours-(b.work+b.commute+b.lunch))
		}
		out = append(out, bucket)
	}
	return out, nil
}

func bucketLabel(d domain.Date, bucketing Bucketing) string {
	switch bucketing {
	case BucketWeek:
		year, week := d.Time().ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case BucketMonth:
		return fmt.Sprintf("%04d-%02d", d.Year, int(d.Month))
	case BucketYear:
		return fmt.Sprintf("%04d", d.Year)
	default:
		return d.String()
	}
}
