package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iiot-platform/core/internal/apperr"
	"github.com/iiot-platform/core/pkg/types"
)

// CreateAlert inserts a new alert plus its initial NEW state row and SLA
// row, all in one transaction — grounded on the teacher's
// store_alerts.go CreateAlert/EscalateAlert transactional shape.
func (s *Store) CreateAlert(ctx context.Context, a *types.Alert, sla types.SLATarget) error {
	metaJSON, err := json.Marshal(a.Metadata)
	if err != nil {
		return apperr.NewValidation("invalid alert metadata", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classifyDBError(err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO alerts (id, tenant_id, rule_id, source_id, device_id, severity, message, metadata, group_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.ID, a.TenantID, a.RuleID, a.SourceID, a.DeviceID, a.Severity, a.Message, metaJSON, a.GroupID, a.CreatedAt)
	if err != nil {
		return classifyDBError(err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO alert_states (alert_id, state, by_principal, note, at)
		VALUES ($1, $2, 'system', 'alert created', $3)
	`, a.ID, types.StateNew, a.CreatedAt)
	if err != nil {
		return classifyDBError(err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO alert_slas (alert_id, target_tta, target_ttr)
		VALUES ($1, $2, $3)
	`, a.ID, sla.TTA, sla.TTR)
	if err != nil {
		return classifyDBError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyDBError(err)
	}
	return nil
}

// GetAlert fetches an alert tenant-scoped.
func (s *Store) GetAlert(ctx context.Context, tenantID, id uuid.UUID) (*types.Alert, error) {
	var a types.Alert
	var metaJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, rule_id, source_id, device_id, severity, message, metadata, group_id, created_at
		FROM alerts WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(&a.ID, &a.TenantID, &a.RuleID, &a.SourceID, &a.DeviceID, &a.Severity, &a.Message,
		&metaJSON, &a.GroupID, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyDBError(err)
	}
	_ = json.Unmarshal(metaJSON, &a.Metadata)
	return &a, nil
}

// GetAlertByID fetches an alert without a tenant scope, used by the
// escalation scheduler which only carries an alert id until the row
// itself reveals the owning tenant.
func (s *Store) GetAlertByID(ctx context.Context, id uuid.UUID) (*types.Alert, error) {
	var a types.Alert
	var metaJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, rule_id, source_id, device_id, severity, message, metadata, group_id, created_at
		FROM alerts WHERE id = $1
	`, id).Scan(&a.ID, &a.TenantID, &a.RuleID, &a.SourceID, &a.DeviceID, &a.Severity, &a.Message,
		&metaJSON, &a.GroupID, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyDBError(err)
	}
	_ = json.Unmarshal(metaJSON, &a.Metadata)
	return &a, nil
}

// CurrentState returns the single current-state row for an alert,
// backed by the v_current_alert_states view (§6).
func (s *Store) CurrentState(ctx context.Context, alertID uuid.UUID) (types.AlertState, error) {
	var state types.AlertState
	err := s.pool.QueryRow(ctx, `
		SELECT state FROM v_current_alert_states WHERE alert_id = $1
	`, alertID).Scan(&state)
	if err != nil {
		return "", classifyDBError(err)
	}
	return state, nil
}

// FindOpenAlertForRule returns the open alert (NEW|ACKNOWLEDGED|
// INVESTIGATING) produced by ruleID, if any — the deduplication guard
// from §4.4.
func (s *Store) FindOpenAlertForRule(ctx context.Context, tenantID, ruleID uuid.UUID) (*types.Alert, error) {
	var a types.Alert
	var metaJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT a.id, a.tenant_id, a.rule_id, a.source_id, a.device_id, a.severity, a.message, a.metadata, a.group_id, a.created_at
		FROM alerts a
		JOIN v_current_alert_states cs ON cs.alert_id = a.id
		WHERE a.tenant_id = $1 AND a.rule_id = $2
		  AND cs.state IN ('NEW', 'ACKNOWLEDGED', 'INVESTIGATING')
		ORDER BY a.created_at DESC
		LIMIT 1
	`, tenantID, ruleID).Scan(&a.ID, &a.TenantID, &a.RuleID, &a.SourceID, &a.DeviceID, &a.Severity, &a.Message,
		&metaJSON, &a.GroupID, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyDBError(err)
	}
	_ = json.Unmarshal(metaJSON, &a.Metadata)
	return &a, nil
}

// TransitionAlert appends a new state row under a single-row lock,
// enforcing the FSM edge and the append-only history invariant. It
// returns apperr.Conflict if another writer raced the lock, and
// apperr.Validation if the transition is not a valid FSM edge.
func (s *Store) TransitionAlert(ctx context.Context, alertID uuid.UUID, t types.Transition, byPrincipal, note string, at time.Time) (types.AlertState, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", classifyDBError(err)
	}
	defer tx.Rollback(ctx)

	// Lock the alert row without waiting: if another transition of the
	// same alert holds it, report a Conflict instead of proceeding on a
	// state that is about to change.
	if _, err := tx.Exec(ctx, `SELECT 1 FROM alerts WHERE id = $1 FOR UPDATE NOWAIT`, alertID); err != nil {
		var pgErr interface{ SQLState() string }
		if errors.As(err, &pgErr) && pgErr.SQLState() == "55P03" {
			return "", apperr.NewConflict("alert transition raced another writer", err)
		}
		return "", classifyDBError(err)
	}

	var current types.AlertState
	err = tx.QueryRow(ctx, `
		SELECT state FROM alert_states WHERE alert_id = $1 ORDER BY id DESC LIMIT 1 FOR UPDATE
	`, alertID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperr.NewNotFound("alert has no state history", nil)
	}
	if err != nil {
		return "", classifyDBError(err)
	}

	next, ok := types.NextState(current, t)
	if !ok {
		return "", apperr.NewValidation("invalid_state_transition", nil)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO alert_states (alert_id, state, by_principal, note, at)
		VALUES ($1, $2, $3, $4, $5)
	`, alertID, next, byPrincipal, note, at)
	if err != nil {
		return "", classifyDBError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", classifyDBError(err)
	}
	return next, nil
}

// ListAlerts lists alerts matching filter, tenant-scoped.
func (s *Store) ListAlerts(ctx context.Context, filter types.AlertFilter) ([]types.Alert, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.tenant_id, a.rule_id, a.source_id, a.device_id, a.severity, a.message, a.metadata, a.group_id, a.created_at
		FROM alerts a
		WHERE a.tenant_id = $1
		ORDER BY a.created_at DESC
		LIMIT $2 OFFSET $3
	`, filter.TenantID, limit, filter.Offset)
	if err != nil {
		return nil, classifyDBError(err)
	}
	defer rows.Close()

	var out []types.Alert
	for rows.Next() {
		var a types.Alert
		var metaJSON []byte
		if err := rows.Scan(&a.ID, &a.TenantID, &a.RuleID, &a.SourceID, &a.DeviceID, &a.Severity, &a.Message,
			&metaJSON, &a.GroupID, &a.CreatedAt); err != nil {
			return nil, classifyDBError(err)
		}
		_ = json.Unmarshal(metaJSON, &a.Metadata)
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetSLA fetches the SLA row for an alert.
func (s *Store) GetSLA(ctx context.Context, alertID uuid.UUID) (*types.AlertSLA, error) {
	var sla types.AlertSLA
	sla.AlertID = alertID
	err := s.pool.QueryRow(ctx, `
		SELECT target_tta, target_ttr, acknowledged_at, resolved_at, tta_seconds, ttr_seconds, tta_breached, ttr_breached
		FROM alert_slas WHERE alert_id = $1
	`, alertID).Scan(&sla.TargetTTA, &sla.TargetTTR, &sla.AcknowledgedAt, &sla.ResolvedAt,
		&sla.TTASeconds, &sla.TTRSeconds, &sla.TTABreached, &sla.TTRBreached)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyDBError(err)
	}
	return &sla, nil
}

// RecordAck updates the SLA row's acknowledged_at/tta_seconds/breach on
// ack, per §4.5.
func (s *Store) RecordAck(ctx context.Context, alertID uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE alert_slas SET
			acknowledged_at = $2,
			tta_seconds = EXTRACT(EPOCH FROM ($2 - (SELECT created_at FROM alerts WHERE id = $1))),
			tta_breached = EXTRACT(EPOCH FROM ($2 - (SELECT created_at FROM alerts WHERE id = $1))) > EXTRACT(EPOCH FROM target_tta)
		WHERE alert_id = $1
	`, alertID, at)
	if err != nil {
		return classifyDBError(err)
	}
	return nil
}

// RecordResolve updates the SLA row's resolved_at/ttr_seconds/breach on
// resolve, per §4.5.
func (s *Store) RecordResolve(ctx context.Context, alertID uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE alert_slas SET
			resolved_at = $2,
			ttr_seconds = EXTRACT(EPOCH FROM ($2 - (SELECT created_at FROM alerts WHERE id = $1))),
			ttr_breached = EXTRACT(EPOCH FROM ($2 - (SELECT created_at FROM alerts WHERE id = $1))) > EXTRACT(EPOCH FROM target_ttr)
		WHERE alert_id = $1
	`, alertID, at)
	if err != nil {
		return classifyDBError(err)
	}
	return nil
}

// SweepOverdueAlerts finds open alerts overdue for ack or resolution,
// marking the breach flags and returning the affected alert ids — the
// §4.5 background SLA sweep marks `tta_breached | ttr_breached` on
// overdue-but-unresolved alerts, so both targets are swept independently;
// an alert overdue on both in the same pass is returned once.
func (s *Store) SweepOverdueAlerts(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID

	ttaIDs, err := s.sweepBreach(ctx, `
		UPDATE alert_slas SET
			tta_breached = true
		WHERE acknowledged_at IS NULL
		  AND target_tta > interval '0'
		  AND (SELECT created_at FROM alerts WHERE id = alert_id) + target_tta < $1
		  AND tta_breached = false
		  AND alert_id IN (SELECT alert_id FROM v_current_alert_states WHERE state IN ('NEW', 'ACKNOWLEDGED', 'INVESTIGATING'))
		RETURNING alert_id
	`, now)
	if err != nil {
		return nil, err
	}
	for _, id := range ttaIDs {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	ttrIDs, err := s.sweepBreach(ctx, `
		UPDATE alert_slas SET
			ttr_breached = true
		WHERE resolved_at IS NULL
		  AND target_ttr > interval '0'
		  AND (SELECT created_at FROM alerts WHERE id = alert_id) + target_ttr < $1
		  AND ttr_breached = false
		  AND alert_id IN (SELECT alert_id FROM v_current_alert_states WHERE state IN ('NEW', 'ACKNOWLEDGED', 'INVESTIGATING'))
		RETURNING alert_id
	`, now)
	if err != nil {
		return nil, err
	}
	for _, id := range ttrIDs {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	return ids, nil
}

func (s *Store) sweepBreach(ctx context.Context, query string, now time.Time) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, query, now)
	if err != nil {
		return nil, classifyDBError(err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, classifyDBError(err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
