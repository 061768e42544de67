package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iiot-platform/core/pkg/types"
)

// CreateRule inserts a new rule. Database errors go through
// classifyDBError (a foreign-key or other constraint violation is
// Permanent); the INSERT does not check that the device belongs to the
// rule's tenant.
func (s *Store) CreateRule(ctx context.Context, r *types.Rule) error {
	params, err := marshalRuleParams(r)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO rules (id, tenant_id, enabled, device_id, metric, family, severity, action_ids, params, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, r.ID, r.TenantID, r.Enabled, r.DeviceID, r.Metric, r.Family, r.Severity, r.ActionIDs, params, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return classifyDBError(err)
	}
	return nil
}

// ListEnabledRules returns every enabled rule for a tenant (feeds C4's
// scheduler directly; no cache tier sits in front of it).
func (s *Store) ListEnabledRules(ctx context.Context, tenantID uuid.UUID) ([]types.Rule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, enabled, device_id, metric, family, severity, action_ids, params,
			consecutive_errors, auto_disabled, created_at, updated_at
		FROM rules WHERE tenant_id = $1 AND enabled = true AND auto_disabled = false
	`, tenantID)
	if err != nil {
		return nil, classifyDBError(err)
	}
	defer rows.Close()

	var out []types.Rule
	for rows.Next() {
		var r types.Rule
		var params []byte
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Enabled, &r.DeviceID, &r.Metric, &r.Family, &r.Severity,
			&r.ActionIDs, &params, &r.ConsecutiveErrors, &r.AutoDisabled, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, classifyDBError(err)
		}
		if err := unmarshalRuleParams(&r, params); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRule fetches a single rule, tenant-scoped.
func (s *Store) GetRule(ctx context.Context, tenantID, id uuid.UUID) (*types.Rule, error) {
	var r types.Rule
	var params []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, enabled, device_id, metric, family, severity, action_ids, params,
			consecutive_errors, auto_disabled, created_at, updated_at
		FROM rules WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(&r.ID, &r.TenantID, &r.Enabled, &r.DeviceID, &r.Metric, &r.Family, &r.Severity,
		&r.ActionIDs, &params, &r.ConsecutiveErrors, &r.AutoDisabled, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyDBError(err)
	}
	if err := unmarshalRuleParams(&r, params); err != nil {
		return nil, err
	}
	return &r, nil
}

// RecordRuleError increments the consecutive-error counter and
// auto-disables the rule once it reaches config.RuleAutoDisableThreshold
// (§7: "a rule that errors repeatedly is auto-disabled").
func (s *Store) RecordRuleError(ctx context.Context, id uuid.UUID, threshold int) (autoDisabled bool, err error) {
	err = s.pool.QueryRow(ctx, `
		UPDATE rules SET
			consecutive_errors = consecutive_errors + 1,
			auto_disabled = (consecutive_errors + 1) >= $2
		WHERE id = $1
		RETURNING auto_disabled
	`, id, threshold).Scan(&autoDisabled)
	if err != nil {
		return false, classifyDBError(err)
	}
	return autoDisabled, nil
}

// ResetRuleErrors clears the consecutive-error counter after a
// successful evaluation.
func (s *Store) ResetRuleErrors(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE rules SET consecutive_errors = 0 WHERE id = $1 AND consecutive_errors != 0`, id)
	if err != nil {
		return classifyDBError(err)
	}
	return nil
}

func marshalRuleParams(r *types.Rule) ([]byte, error) {
	var v any
	switch r.Family {
	case types.RuleThreshold:
		v = r.Threshold
	case types.RuleComparison:
		v = r.Comparison
	case types.RuleTimeWindow:
		v = r.TimeWindow
	case types.RuleStatistical:
		v = r.Statistical
	}
	return json.Marshal(v)
}

func unmarshalRuleParams(r *types.Rule, raw []byte) error {
	switch r.Family {
	case types.RuleThreshold:
		r.Threshold = &types.ThresholdParams{}
		return json.Unmarshal(raw, r.Threshold)
	case types.RuleComparison:
		r.Comparison = &types.ComparisonParams{}
		return json.Unmarshal(raw, r.Comparison)
	case types.RuleTimeWindow:
		r.TimeWindow = &types.TimeWindowParams{}
		return json.Unmarshal(raw, r.TimeWindow)
	case types.RuleStatistical:
		r.Statistical = &types.StatisticalParams{}
		return json.Unmarshal(raw, r.Statistical)
	}
	return nil
}
