package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iiot-platform/core/pkg/types"
)

// GetEscalationPolicyForSeverity returns the first tenant policy whose
// Severities includes sev, or nil if none matches (§4.7 policy lookup).
func (s *Store) GetEscalationPolicyForSeverity(ctx context.Context, tenantID uuid.UUID, sev types.Severity) (*types.EscalationPolicy, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, name, severities, tiers FROM escalation_policies WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, classifyDBError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var p types.EscalationPolicy
		var sevJSON, tiersJSON []byte
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &sevJSON, &tiersJSON); err != nil {
			return nil, classifyDBError(err)
		}
		_ = json.Unmarshal(sevJSON, &p.Severities)
		if !p.Matches(sev) {
			continue
		}
		if err := json.Unmarshal(tiersJSON, &p.Tiers); err != nil {
			return nil, classifyDBError(err)
		}
		return &p, nil
	}
	return nil, rows.Err()
}

// GetEscalationPolicy fetches a policy by id, tenant-scoped.
func (s *Store) GetEscalationPolicy(ctx context.Context, tenantID, id uuid.UUID) (*types.EscalationPolicy, error) {
	var p types.EscalationPolicy
	var sevJSON, tiersJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, severities, tiers FROM escalation_policies WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(&p.ID, &p.TenantID, &p.Name, &sevJSON, &tiersJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyDBError(err)
	}
	_ = json.Unmarshal(sevJSON, &p.Severities)
	_ = json.Unmarshal(tiersJSON, &p.Tiers)
	return &p, nil
}

// CreateEscalationPolicy inserts a new policy.
func (s *Store) CreateEscalationPolicy(ctx context.Context, p *types.EscalationPolicy) error {
	sevJSON, err := json.Marshal(p.Severities)
	if err != nil {
		return err
	}
	tiersJSON, err := json.Marshal(p.Tiers)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO escalation_policies (id, tenant_id, name, severities, tiers)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.TenantID, p.Name, sevJSON, tiersJSON)
	if err != nil {
		return classifyDBError(err)
	}
	return nil
}

// CreateTimer persists a scheduled tier-fire entry.
func (s *Store) CreateTimer(ctx context.Context, t types.EscalationTimer) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO escalation_timers (id, alert_id, policy_id, tier, fire_at, fired, canceled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.AlertID, t.PolicyID, t.Tier, t.FireAt, t.Fired, t.Canceled)
	if err != nil {
		return classifyDBError(err)
	}
	return nil
}

// CancelTimersForAlert marks every unfired timer for alertID canceled —
// called when the alert leaves NEW (ack/resolve/suppress).
func (s *Store) CancelTimersForAlert(ctx context.Context, alertID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE escalation_timers SET canceled = true WHERE alert_id = $1 AND fired = false
	`, alertID)
	if err != nil {
		return classifyDBError(err)
	}
	return nil
}

// MarkTimerFired flips a timer's fired flag, used after its tier has
// been dispatched.
func (s *Store) MarkTimerFired(ctx context.Context, timerID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE escalation_timers SET fired = true WHERE id = $1`, timerID)
	if err != nil {
		return classifyDBError(err)
	}
	return nil
}

// LoadPendingTimers returns every unfired, uncanceled timer — used to
// rehydrate the in-process heap scheduler on startup or after a
// restart.
func (s *Store) LoadPendingTimers(ctx context.Context) ([]types.EscalationTimer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, alert_id, policy_id, tier, fire_at, fired, canceled
		FROM escalation_timers
		WHERE fired = false AND canceled = false
	`)
	if err != nil {
		return nil, classifyDBError(err)
	}
	defer rows.Close()

	var out []types.EscalationTimer
	for rows.Next() {
		var t types.EscalationTimer
		if err := rows.Scan(&t.ID, &t.AlertID, &t.PolicyID, &t.Tier, &t.FireAt, &t.Fired, &t.Canceled); err != nil {
			return nil, classifyDBError(err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
