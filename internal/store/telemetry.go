package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/google/uuid"

	"github.com/iiot-platform/core/internal/apperr"
	"github.com/iiot-platform/core/pkg/types"
)

// AppendTelemetry appends a telemetry record (C1 append). Idempotent on
// (tenant, device, metric, timestamp) collisions — the newer value
// wins, per §4.1.
func (s *Store) AppendTelemetry(ctx context.Context, rec types.TelemetryRecord) error {
	if rec.TenantID == uuid.Nil {
		return apperr.NewValidation("telemetry record missing tenant_id", nil)
	}
	attrsJSON, err := json.Marshal(rec.Attributes)
	if err != nil {
		return apperr.NewValidation("invalid telemetry attributes", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO telemetry (tenant_id, device_id, metric, ts, value, unit, attrs)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, device_id, metric, ts) DO UPDATE SET
			value = EXCLUDED.value,
			unit = EXCLUDED.unit,
			attrs = EXCLUDED.attrs
	`, rec.TenantID, rec.DeviceID, rec.Metric, rec.Timestamp, rec.Value, rec.Unit, attrsJSON)
	if err != nil {
		return classifyDBError(err)
	}
	return nil
}

// LatestTelemetry returns the most recent record for (tenant, device,
// metric), or nil if none exists (C1 latest).
func (s *Store) LatestTelemetry(ctx context.Context, tenantID, deviceID uuid.UUID, metric string) (*types.TelemetryRecord, error) {
	var rec types.TelemetryRecord
	var attrsJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT tenant_id, device_id, metric, ts, value, unit, attrs
		FROM telemetry
		WHERE tenant_id = $1 AND device_id = $2 AND metric = $3
		ORDER BY ts DESC
		LIMIT 1
	`, tenantID, deviceID, metric).Scan(
		&rec.TenantID, &rec.DeviceID, &rec.Metric, &rec.Timestamp, &rec.Value, &rec.Unit, &attrsJSON,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyDBError(err)
	}
	_ = json.Unmarshal(attrsJSON, &rec.Attributes)
	return &rec, nil
}

// RangeTelemetry returns records for (tenant, device, metric) within
// [from, to], newest first, bounded by the smaller of the requested
// limit and types.MaxRangeLimit (C1 range).
func (s *Store) RangeTelemetry(ctx context.Context, rng types.TelemetryRange) ([]types.TelemetryRecord, error) {
	limit := rng.Limit
	if limit <= 0 || limit > types.MaxRangeLimit {
		limit = types.MaxRangeLimit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT tenant_id, device_id, metric, ts, value, unit, attrs
		FROM telemetry
		WHERE tenant_id = $1 AND device_id = $2 AND metric = $3
		  AND ts >= $4 AND ts <= $5
		ORDER BY ts DESC
		LIMIT $6
	`, rng.TenantID, rng.DeviceID, rng.Metric, rng.From, rng.To, limit)
	if err != nil {
		return nil, classifyDBError(err)
	}
	defer rows.Close()

	var out []types.TelemetryRecord
	for rows.Next() {
		var rec types.TelemetryRecord
		var attrsJSON []byte
		if err := rows.Scan(&rec.TenantID, &rec.DeviceID, &rec.Metric, &rec.Timestamp, &rec.Value, &rec.Unit, &attrsJSON); err != nil {
			return nil, classifyDBError(err)
		}
		_ = json.Unmarshal(attrsJSON, &rec.Attributes)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyDBError(err)
	}
	return out, nil
}

// AggregateTelemetry computes an aggregate (avg/min/max/sum/count/stddev)
// over the trailing window for a (tenant, device, metric), used by the
// TIME_WINDOW and STATISTICAL rule families when the cache misses.
func (s *Store) AggregateTelemetry(ctx context.Context, tenantID, deviceID uuid.UUID, metric string, since time.Time, agg types.AggregateFunc) (float64, int, error) {
	var sqlAgg string
	switch agg {
	case types.AggAvg:
		sqlAgg = "AVG(value)"
	case types.AggMin:
		sqlAgg = "MIN(value)"
	case types.AggMax:
		sqlAgg = "MAX(value)"
	case types.AggSum:
		sqlAgg = "SUM(value)"
	case types.AggCount:
		sqlAgg = "COUNT(value)"
	case types.AggStddev:
		sqlAgg = "STDDEV(value)"
	default:
		return 0, 0, apperr.NewValidation("unsupported aggregate for store-level computation", nil)
	}

	var result *float64
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT `+sqlAgg+`, COUNT(value)
		FROM telemetry
		WHERE tenant_id = $1 AND device_id = $2 AND metric = $3 AND ts >= $4
	`, tenantID, deviceID, metric, since).Scan(&result, &count)
	if err != nil {
		return 0, 0, classifyDBError(err)
	}
	if result == nil {
		return 0, count, nil
	}
	return *result, count, nil
}

// classifyDBError maps a pgx error into the §4.1 Transient/Permanent
// split: connection and timeout failures are Transient (bounded retry
// upstream); constraint/schema errors are Permanent (a bug).
func classifyDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperr.NewTransient("database operation timed out", err)
	}
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		// Constraint violations (23xxx) and syntax/undefined-object errors
		// (42xxx) are schema/programmer bugs, not operational hiccups;
		// other server errors (e.g. statement timeouts) stay Transient.
		if code := pgErr.SQLState(); len(code) >= 2 && (code[:2] == "23" || code[:2] == "42") {
			return apperr.NewPermanent("database constraint or schema error", err)
		}
	}
	return apperr.NewTransient("database operation failed", err)
}
