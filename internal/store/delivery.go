package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/iiot-platform/core/pkg/types"
)

// RecordDeliveryAttempt persists one channel's attempt to deliver a
// notification event, for audit and retry-history inspection (§4.7).
func (s *Store) RecordDeliveryAttempt(ctx context.Context, tenantID, alertID uuid.UUID, a types.DeliveryAttempt) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO delivery_attempts (id, tenant_id, alert_id, channel, recipient, status, error, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, tenantID, alertID, a.Channel, a.Recipient, a.Status, a.Error, a.AttemptedAt)
	if err != nil {
		return classifyDBError(err)
	}
	return nil
}
