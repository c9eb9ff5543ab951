package ledger

import (
	"context"
	"database/sql"
	"fmt"
)

const ruleColumns = `id, algorithm_id, rule_type, condition_field,
	condition_operator, condition_value, action, order_index, created_at`

func scanRule(scan func(dest ...interface{}) error) (*Rule, error) {
	var r Rule
	err := scan(&r.ID, &r.AlgorithmID, &r.RuleType, &r.ConditionField,
		&r.ConditionOperator, &r.ConditionValue, &r.Action, &r.OrderIndex, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRule appends a rule to an algorithm. When orderIndex is negative the
// rule is placed after the algorithm's current last rule.
func (s *Store) CreateRule(ctx context.Context, r *Rule) (*Rule, error) {
	if r.OrderIndex < 0 {
		var next sql.NullInt64
		err := s.db.QueryRowContext(ctx,
			`SELECT MAX(order_index) + 1 FROM algorithm_rules WHERE algorithm_id = ?`,
			r.AlgorithmID).Scan(&next)
		if err != nil {
			return nil, err
		}
		r.OrderIndex = int(next.Int64)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO algorithm_rules (algorithm_id, rule_type, condition_field, condition_operator, condition_value, action, order_index)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.AlgorithmID, r.RuleType, r.ConditionField, r.ConditionOperator,
		r.ConditionValue, r.Action, r.OrderIndex,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.getRule(ctx, id)
}

func (s *Store) getRule(ctx context.Context, id int64) (*Rule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM algorithm_rules WHERE id = ?`, id)
	return scanRule(row.Scan)
}

// ListRules returns the algorithm's rules in evaluation order.
func (s *Store) ListRules(ctx context.Context, algorithmID string) ([]Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM algorithm_rules WHERE algorithm_id = ? ORDER BY order_index ASC, id ASC`,
		algorithmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		r, err := scanRule(rows.Scan)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

// UpdateRule replaces the mutable fields of a rule scoped to its algorithm.
func (s *Store) UpdateRule(ctx context.Context, r *Rule) (*Rule, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE algorithm_rules
		SET rule_type = ?, condition_field = ?, condition_operator = ?,
			condition_value = ?, action = ?, order_index = ?
		WHERE id = ? AND algorithm_id = ?`,
		r.RuleType, r.ConditionField, r.ConditionOperator, r.ConditionValue,
		r.Action, r.OrderIndex, r.ID, r.AlgorithmID,
	)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.getRule(ctx, r.ID)
}

// DeleteRule removes one rule scoped to its algorithm.
func (s *Store) DeleteRule(ctx context.Context, ruleID int64, algorithmID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM algorithm_rules WHERE id = ? AND algorithm_id = ?`, ruleID, algorithmID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
