package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iiot-platform/core/pkg/types"
)

// CreateDevice inserts a new device, tenant-scoped.
func (s *Store) CreateDevice(ctx context.Context, d *types.Device) error {
	attrsJSON, _ := json.Marshal(d.Attributes)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO devices (id, tenant_id, name, device_type, location, attributes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, d.ID, d.TenantID, d.Name, d.DeviceType, d.Location, attrsJSON, d.CreatedAt)
	if err != nil {
		return classifyDBError(err)
	}
	return nil
}

// GetDevice fetches a device scoped to tenantID; returns nil if absent
// or owned by a different tenant (§4.8 fails-closed tenant filtering).
func (s *Store) GetDevice(ctx context.Context, tenantID, id uuid.UUID) (*types.Device, error) {
	var d types.Device
	var attrsJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, device_type, location, attributes, created_at
		FROM devices WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(&d.ID, &d.TenantID, &d.Name, &d.DeviceType, &d.Location, &attrsJSON, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyDBError(err)
	}
	_ = json.Unmarshal(attrsJSON, &d.Attributes)
	return &d, nil
}

// CountDevices implements tenant.QuotaCounter.
func (s *Store) CountDevices(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM devices WHERE tenant_id = $1`, tenantID).Scan(&n)
	if err != nil {
		return 0, classifyDBError(err)
	}
	return n, nil
}

// CountUsers implements tenant.QuotaCounter.
func (s *Store) CountUsers(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tenant_users WHERE tenant_id = $1`, tenantID).Scan(&n)
	if err != nil {
		return 0, classifyDBError(err)
	}
	return n, nil
}

// CountTelemetryToday implements tenant.QuotaCounter.
func (s *Store) CountTelemetryToday(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM telemetry
		WHERE tenant_id = $1 AND ts >= date_trunc('day', now())
	`, tenantID).Scan(&n)
	if err != nil {
		return 0, classifyDBError(err)
	}
	return n, nil
}

// GetTenant loads a tenant row, used by tenant.Resolver.
func (s *Store) GetTenant(ctx context.Context, id uuid.UUID) (*types.Tenant, error) {
	var t types.Tenant
	var featuresJSON, brandingJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, slug, status, tier, max_devices, max_users, max_telemetry_per_day, features, branding, created_at
		FROM tenants WHERE id = $1
	`, id).Scan(&t.ID, &t.Slug, &t.Status, &t.Tier, &t.Quotas.MaxDevices, &t.Quotas.MaxUsers,
		&t.Quotas.MaxTelemetryPerDay, &featuresJSON, &brandingJSON, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyDBError(err)
	}
	_ = json.Unmarshal(featuresJSON, &t.Features)
	_ = json.Unmarshal(brandingJSON, &t.Branding)
	return &t, nil
}
