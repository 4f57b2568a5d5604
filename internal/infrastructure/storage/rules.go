package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/rules"
)

// SaveRule creates or updates a rule. Updating an id owned by another
// organization returns ErrNotFound.
func (s *Storage) SaveRule(ctx context.Context, rule *rules.MatchingRule) error {
	now := s.now().UTC()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	conditionsJSON, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("failed to encode conditions: %w", err)
	}
	actionsJSON, err := json.Marshal(rule.Actions)
	if err != nil {
		return fmt.Errorf("failed to encode actions: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
	INSERT INTO matching_rules
	(id, organization_id, name, priority, active, conditions_json, actions_json,
	 bank_account_id, property_id, match_count, last_matched_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		priority = excluded.priority,
		active = excluded.active,
		conditions_json = excluded.conditions_json,
		actions_json = excluded.actions_json,
		bank_account_id = excluded.bank_account_id,
		property_id = excluded.property_id,
		updated_at = excluded.updated_at
	WHERE matching_rules.organization_id = excluded.organization_id
	`,
		rule.ID,
		rule.OrganizationID,
		rule.Name,
		rule.Priority,
		rule.Active,
		string(conditionsJSON),
		string(actionsJSON),
		rule.BankAccountID,
		rule.PropertyID,
		rule.MatchCount,
		nullTime(rule.LastMatchedAt),
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save rule %s: %w", rule.ID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrNotFound)
	}
	return nil
}

// GetRule retrieves a rule by ID
func (s *Storage) GetRule(ctx context.Context, org ledger.OrganizationContext, ruleID string) (*rules.MatchingRule, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, organization_id, name, priority, active, conditions_json, actions_json,
	       bank_account_id, property_id, match_count, last_matched_at, created_at, updated_at
	FROM matching_rules WHERE organization_id = ? AND id = ?
	`, org.OrganizationID, ruleID)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	return rule, err
}

// ListRules returns every rule ordered by priority, then name
func (s *Storage) ListRules(ctx context.Context, org ledger.OrganizationContext) ([]*rules.MatchingRule, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, organization_id, name, priority, active, conditions_json, actions_json,
	       bank_account_id, property_id, match_count, last_matched_at, created_at, updated_at
	FROM matching_rules WHERE organization_id = ?
	ORDER BY priority, name
	`, org.OrganizationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var list []*rules.MatchingRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rule)
	}
	return list, rows.Err()
}

// RecordRuleMatch persists updated usage statistics
func (s *Storage) RecordRuleMatch(ctx context.Context, org ledger.OrganizationContext, ruleID string, matchCount int, matchedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
	UPDATE matching_rules SET match_count = ?, last_matched_at = ?
	WHERE organization_id = ? AND id = ?
	`, matchCount, utc(matchedAt), org.OrganizationID, ruleID)
	if err != nil {
		return fmt.Errorf("failed to record rule match: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	return nil
}

func scanRule(row scanner) (*rules.MatchingRule, error) {
	var (
		r              rules.MatchingRule
		conditionsJSON string
		actionsJSON    string
		lastMatchedAt  sql.NullTime
	)
	err := row.Scan(&r.ID, &r.OrganizationID, &r.Name, &r.Priority, &r.Active, &conditionsJSON, &actionsJSON,
		&r.BankAccountID, &r.PropertyID, &r.MatchCount, &lastMatchedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(conditionsJSON), &r.Conditions); err != nil {
		return nil, fmt.Errorf("rule %s: invalid conditions: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(actionsJSON), &r.Actions); err != nil {
		return nil, fmt.Errorf("rule %s: invalid actions: %w", r.ID, err)
	}
	r.LastMatchedAt = timePtr(lastMatchedAt)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}
