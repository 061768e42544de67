package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iiot-platform/core/pkg/types"
)

// GetOnCallSchedule fetches a schedule by id, tenant-scoped.
func (s *Store) GetOnCallSchedule(ctx context.Context, tenantID, id uuid.UUID) (*types.OnCallSchedule, error) {
	var sch types.OnCallSchedule
	var rotationJSON, overridesJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, rotation, unit, shift_every, anchor, timezone, overrides
		FROM oncall_schedules WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(&sch.ID, &sch.TenantID, &sch.Name, &rotationJSON, &sch.Unit,
		&sch.ShiftEvery, &sch.Anchor, &sch.Timezone, &overridesJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyDBError(err)
	}
	_ = json.Unmarshal(rotationJSON, &sch.Rotation)
	if len(overridesJSON) > 0 {
		_ = json.Unmarshal(overridesJSON, &sch.Overrides)
	}
	return &sch, nil
}

// CreateOnCallSchedule inserts a new rotation.
func (s *Store) CreateOnCallSchedule(ctx context.Context, sch *types.OnCallSchedule) error {
	rotationJSON, err := json.Marshal(sch.Rotation)
	if err != nil {
		return err
	}
	overridesJSON, err := json.Marshal(sch.Overrides)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO oncall_schedules (id, tenant_id, name, rotation, unit, shift_every, anchor, timezone, overrides)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, sch.ID, sch.TenantID, sch.Name, rotationJSON, sch.Unit, sch.ShiftEvery, sch.Anchor, sch.Timezone, overridesJSON)
	if err != nil {
		return classifyDBError(err)
	}
	return nil
}

// AddOnCallOverride appends an override window to a schedule.
func (s *Store) AddOnCallOverride(ctx context.Context, scheduleID uuid.UUID, ov types.OnCallOverride) error {
	ovJSON, err := json.Marshal(ov)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE oncall_schedules SET overrides = overrides || $2::jsonb WHERE id = $1
	`, scheduleID, "["+string(ovJSON)+"]")
	if err != nil {
		return classifyDBError(err)
	}
	return nil
}
