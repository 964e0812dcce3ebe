package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/timesheet-app/timesheet/internal/domain"
)

// Violation records one rule breach on one day.
type Violation struct {
	Date           domain.Date               `json:"date"`
	RuleType       domain.ComplianceRuleType `json:"rule_type"`
	ActualHours    float64                   `json:"actual_hours"`
	ThresholdHours float64                   `json:"threshold_hours"`
	Description    string                    `json:"description"`
}

// ComplianceReport is the evaluation result over a window.
type ComplianceReport struct {
	Violations     []Violation `json:"violations"`
	TotalDays      int         `json:"total_days"`
	ViolationCount int         `json:"violation_count"`
}

// EvaluateCompliance checks each enabled rule against each day in
// [from, to). Days covered by a holiday are skipped, as are days without
// sessions unless the rule anchors entirely on fixed times.
func (s *Service) EvaluateCompliance(ctx context.Context, user *domain.User, from, to domain.Date) (*ComplianceReport, error) {
	rules, err := s.store.ComplianceRules(ctx, user.ID, true)
	if err != nil {
		return nil, err
	}

	holidays, err := s.store.Holidays(ctx, user.ID, from, to.AddDays(-1))
	if err != nil {
		return nil, err
	}

	byDay, err := s.closedSessionsByLocalDay(ctx, user, from, to)
	if err != nil {
		return nil, err
	}

	report := &ComplianceReport{Violations: []Violation{}}
	for d := from; d.Before(to); d = d.AddDays(1) {
		if coveredByHoliday(holidays, d) {
			continue
		}
		sessions := byDay[d]

		evaluated := false
		for _, rule := range rules {
			fixedOnly := rule.ClockInDef == domain.AnchorFixedTime && rule.ClockOutDef == domain.AnchorFixedTime
			if len(sessions) == 0 && !fixedOnly {
				continue
			}

			in, ok := anchor(user, d, sessions, rule.ClockInDef, rule.FixedClockIn)
			if !ok {
				continue
			}
			out, ok := anchor(user, d, sessions, rule.ClockOutDef, rule.FixedClockOut)
			if !ok {
				continue
			}
			evaluated = true

			actual := out.Sub(in).Hours()
			if actual < rule.ThresholdHours {
				report.Violations = append(report.Violations, Violation{
					Date:           d,
					RuleType:       rule.RuleType,
					ActualHours:    actual,
					ThresholdHours: rule.ThresholdHours,
					Description: fmt.Sprintf("%s: %.2fh present, %.2fh required",
						rule.RuleType, actual, rule.ThresholdHours),
				})
			}
		}
		if evaluated {
			report.TotalDays++
		}
	}
	report.ViolationCount = len(report.Violations)
	return report, nil
}

func coveredByHoliday(holidays []domain.Holiday, d domain.Date) bool {
	for _, h := range holidays {
		if h.Covers(d) {
			return true
		}
	}
	return false
}

// anchor resolves one clock anchor for the day.
func anchor(user *domain.User, day domain.Date, sessions []*domain.Session, def domain.AnchorDefinition, fixed string) (time.Time, bool) {
	switch def {
	case domain.AnchorFirstSessionStart:
		if len(sessions) == 0 {
			return time.Time{}, false
		}
		return sessions[0].StartedAt, true
	case domain.AnchorLastSessionEnd:
		if len(sessions) == 0 {
			return time.Time{}, false
		}
		last := sessions[len(sessions)-1]
		return *last.EndedAt, true
	case domain.AnchorFixedTime:
		hour, minute, err := domain.ParseClock(fixed)
		if err != nil {
			return time.Time{}, false
		}
		local := time.Date(day.Year, day.Month, day.Day, hour, minute, 0, 0, time.UTC)
		return local.Add(-time.Duration(user.UTCOffsetMinutes) * time.Minute), true
	}
	return time.Time{}, false
}
