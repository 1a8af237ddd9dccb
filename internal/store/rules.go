// internal/store/rules.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerline/autoflow/internal/types"
)

/*
 * Rule persistence.
 *
 * Rules are stored with their condition tree and action list as JSON
 * columns. Validation against the closed grammar happens in the API layer
 * before anything reaches these methods; the Runner re-validates on load and
 * uses DisableRule (the fail-safe path) for rows that no longer parse.
 */

// ruleRow mirrors the rules table; actions unmarshal separately because
// sqlx cannot scan JSON into []types.ActionSpec directly.
type ruleRow struct {
	ID             types.RuleID    `db:"rule_id"`
	TenantID       types.TenantID  `db:"tenant_id"`
	Name           string          `db:"name"`
	Enabled        bool            `db:"enabled"`
	DisabledReason string          `db:"disabled_reason"`
	TriggerType    string          `db:"trigger_type"`
	Conditions     json.RawMessage `db:"conditions"`
	Actions        json.RawMessage `db:"actions"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func (r ruleRow) toRule() (*types.Rule, error) {
	rule := &types.Rule{
		ID:             r.ID,
		TenantID:       r.TenantID,
		Name:           r.Name,
		Enabled:        r.Enabled,
		DisabledReason: r.DisabledReason,
		TriggerType:    r.TriggerType,
		Conditions:     r.Conditions,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if err := json.Unmarshal(r.Actions, &rule.Actions); err != nil {
		return nil, fmt.Errorf("rule %s has unreadable action list: %w", r.ID, err)
	}
	return rule, nil
}

// CreateRule persists a new rule for the tenant.
func (s *Store) CreateRule(ctx context.Context, rule *types.Rule) error {
	if rule.TenantID == "" {
		return types.ErrMissingTenant
	}

	actions, err := json.Marshal(rule.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}

	_, err = s.q.Exec(ctx, "create-rule",
		rule.ID, rule.TenantID, rule.Name, rule.Enabled, rule.DisabledReason,
		rule.TriggerType, string(rule.Conditions), string(actions),
		rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

// UpdateRule replaces the mutable fields of an existing rule.
func (s *Store) UpdateRule(ctx context.Context, rule *types.Rule) error {
	actions, err := json.Marshal(rule.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}

	res, err := s.q.Exec(ctx, "update-rule",
		rule.Name, rule.TriggerType, string(rule.Conditions), string(actions),
		rule.Enabled, rule.DisabledReason, rule.UpdatedAt,
		rule.ID, rule.TenantID,
	)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.ErrRuleNotFound
	}
	return nil
}

// GetRule fetches one rule scoped to the tenant.
func (s *Store) GetRule(ctx context.Context, tenantID types.TenantID, ruleID types.RuleID) (*types.Rule, error) {
	var row ruleRow
	err := s.q.Get(ctx, "get-rule", &row, ruleID, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return row.toRule()
}

// ListRules returns all rules of the tenant, newest first.
func (s *Store) ListRules(ctx context.Context, tenantID types.TenantID) ([]*types.Rule, error) {
	var rows []ruleRow
	if err := s.q.Select(ctx, "list-rules", &rows, tenantID); err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rowsToRules(rows)
}

// ListEnabledRules returns the tenant's enabled rules for a Runner pass.
// Disabled rules are skipped entirely: not evaluated, not logged.
func (s *Store) ListEnabledRules(ctx context.Context, tenantID types.TenantID) ([]*types.Rule, error) {
	var rows []ruleRow
	if err := s.q.Select(ctx, "list-enabled-rules", &rows, tenantID); err != nil {
		return nil, fmt.Errorf("list enabled rules: %w", err)
	}
	return rowsToRules(rows)
}

func rowsToRules(rows []ruleRow) ([]*types.Rule, error) {
	rules := make([]*types.Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := row.toRule()
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// SetRuleEnabled toggles a rule. Reason is recorded when disabling so
// operators see "disabled-with-reason", never a silent drop.
func (s *Store) SetRuleEnabled(ctx context.Context, tenantID types.TenantID, ruleID types.RuleID, enabled bool, reason string) error {
	if enabled {
		reason = ""
	}
	res, err := s.q.Exec(ctx, "set-rule-enabled", enabled, reason, time.Now().UTC(), ruleID, tenantID)
	if err != nil {
		return fmt.Errorf("set rule enabled: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.ErrRuleNotFound
	}
	return nil
}

// DisableRule is the engine's fail-safe path for rules that stopped
// parsing: disabled with a reason, never silently ignored.
func (s *Store) DisableRule(ctx context.Context, tenantID types.TenantID, ruleID types.RuleID, reason string) error {
	return s.SetRuleEnabled(ctx, tenantID, ruleID, false, reason)
}
