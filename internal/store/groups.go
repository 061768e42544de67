package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iiot-platform/core/pkg/types"
)

// FindActiveGroup returns the active group for key if one exists and its
// last occurrence falls within window of now — the §4.6 grouping rule.
func (s *Store) FindActiveGroup(ctx context.Context, key types.GroupKey, now time.Time, window time.Duration) (*types.AlertGroup, error) {
	var g types.AlertGroup
	g.Key = key
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, status, first_occurrence, last_occurrence, occurrence_count
		FROM alert_groups
		WHERE tenant_id = $1 AND device_id = $2 AND rule_family = $3 AND metric = $4
		  AND status = 'active' AND last_occurrence >= $5
		ORDER BY last_occurrence DESC
		LIMIT 1
	`, key.TenantID, key.DeviceID, key.RuleFamily, key.Metric, now.Add(-window)).
		Scan(&g.ID, &g.TenantID, &g.Status, &g.FirstOccurrence, &g.LastOccurrence, &g.OccurrenceCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyDBError(err)
	}
	return &g, nil
}

// CreateGroup opens a new active group for key.
func (s *Store) CreateGroup(ctx context.Context, key types.GroupKey, id uuid.UUID, now time.Time) (*types.AlertGroup, error) {
	g := &types.AlertGroup{
		ID:              id,
		TenantID:        key.TenantID,
		Key:             key,
		Status:          types.GroupActive,
		FirstOccurrence: now,
		LastOccurrence:  now,
		OccurrenceCount: 1,
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alert_groups (id, tenant_id, device_id, rule_family, metric, status, first_occurrence, last_occurrence, occurrence_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, g.ID, g.TenantID, key.DeviceID, key.RuleFamily, key.Metric, g.Status, g.FirstOccurrence, g.LastOccurrence, g.OccurrenceCount)
	if err != nil {
		return nil, classifyDBError(err)
	}
	return g, nil
}

// AttachToGroup bumps an existing group's last_occurrence and
// occurrence_count when a new alert is folded into it.
func (s *Store) AttachToGroup(ctx context.Context, groupID uuid.UUID, now time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE alert_groups SET
			last_occurrence = $2,
			occurrence_count = occurrence_count + 1
		WHERE id = $1
	`, groupID, now)
	if err != nil {
		return classifyDBError(err)
	}
	return nil
}

// CloseGroup marks a group closed, ending its attach window — called
// once every alert attached to it reaches a terminal state.
func (s *Store) CloseGroup(ctx context.Context, groupID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE alert_groups SET status = 'closed' WHERE id = $1`, groupID)
	if err != nil {
		return classifyDBError(err)
	}
	return nil
}

// CountOpenAlertsInGroup returns how many alerts attached to groupID
// are still in a non-terminal state — used to decide whether a group
// can be closed after one of its members transitions.
func (s *Store) CountOpenAlertsInGroup(ctx context.Context, groupID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM alerts a
		JOIN v_current_alert_states cs ON cs.alert_id = a.id
		WHERE a.group_id = $1 AND cs.state NOT IN ('RESOLVED', 'EXPIRED', 'SUPPRESSED')
	`, groupID).Scan(&n)
	if err != nil {
		return 0, classifyDBError(err)
	}
	return n, nil
}
