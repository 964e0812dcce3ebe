package sqlite

import (
	"context"

	"github.com/timesheet-app/timesheet/internal/domain"
)

const ruleColumns = `id, user_id, rule_type, is_enabled, threshold_hours,
	clock_in_def, clock_out_def, fixed_clock_in, fixed_clock_out`

// UpsertComplianceRule inserts or replaces the user's rule for one type.
func (s *Store) UpsertComplianceRule(ctx context.Context, r *domain.ComplianceRule) error {
	query := `
	INSERT INTO user_compliance_rules (` + ruleColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id, rule_type) DO UPDATE SET
		is_enabled = excluded.is_enabled,
		threshold_hours = excluded.threshold_hours,
		clock_in_def = excluded.clock_in_def,
		clock_out_def = excluded.clock_out_def,
		fixed_clock_in = excluded.fixed_clock_in,
		fixed_clock_out = excluded.fixed_clock_out
	`
	_, err := s.q.ExecContext(ctx, query,
		r.ID, r.UserID, string(r.RuleType), r.IsEnabled, r.ThresholdHours,
		string(r.ClockInDef), string(r.ClockOutDef), r.FixedClockIn, r.FixedClockOut,
	)
	if err != nil {
		return domain.Wrap(domain.KindInternal, err, "upsert compliance rule")
	}
	return nil
}

// ComplianceRules returns the user's rules. When enabledOnly is set,
// disabled rules are filtered out.
func (s *Store) ComplianceRules(ctx context.Context, userID string, enabledOnly bool) ([]domain.ComplianceRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM user_compliance_rules WHERE user_id = ?`
	if enabledOnly {
		query += ` AND is_enabled = 1`
	}
	query += ` ORDER BY rule_type`

	rows, err := s.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, err, "query compliance rules")
	}
	defer func() { _ = rows.Close() }()

	var out []domain.ComplianceRule
	for rows.Next() {
		var (
			r                   domain.ComplianceRule
			ruleType, inD, outD string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &ruleType, &r.IsEnabled, &r.ThresholdHours,
			&inD, &outD, &r.FixedClockIn, &r.FixedClockOut); err != nil {
			return nil, domain.Wrap(domain.KindInternal, err, "scan compliance rule")
		}
		r.RuleType = domain.ComplianceRuleType(ruleType)
		r.ClockInDef = domain.AnchorDefinition(inD)
		r.ClockOutDef = domain.AnchorDefinition(outD)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteComplianceRule removes one rule type for the user.
func (s *Store) DeleteComplianceRule(ctx context.Context, userID string, ruleType domain.ComplianceRuleType) error {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM user_compliance_rules WHERE user_id = ? AND rule_type = ?`,
		userID, string(ruleType))
	if err != nil {
		return domain.Wrap(domain.KindInternal, err, "delete compliance rule")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.E(domain.KindNotFound, "rule %s not found", ruleType)
	}
	return nil
}
