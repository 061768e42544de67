package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iiot-platform/core/pkg/types"
)

// ListUsersWithRole returns every tenant_users id carrying role, used by
// escalation tiers whose recipient is role-based (§4.6).
func (s *Store) ListUsersWithRole(ctx context.Context, tenantID uuid.UUID, role string) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM tenant_users WHERE tenant_id = $1 AND $2 = ANY(roles)
	`, tenantID, role)
	if err != nil {
		return nil, classifyDBError(err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, classifyDBError(err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// GetUserContact fetches the channel addresses on file for a tenant
// user, used by notification dispatch to turn a resolved recipient id
// into an actual destination.
func (s *Store) GetUserContact(ctx context.Context, tenantID, userID uuid.UUID) (*types.UserContact, error) {
	var c types.UserContact
	c.UserID = userID
	c.TenantID = tenantID
	var email, pushChannel, webhookURL, webhookSecret *string
	err := s.pool.QueryRow(ctx, `
		SELECT email, push_channel, webhook_url, webhook_secret, roles
		FROM tenant_users WHERE tenant_id = $1 AND id = $2
	`, tenantID, userID).Scan(&email, &pushChannel, &webhookURL, &webhookSecret, &c.Roles)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyDBError(err)
	}
	if email != nil {
		c.Email = *email
	}
	if pushChannel != nil {
		c.PushChannel = *pushChannel
	}
	if webhookURL != nil {
		c.WebhookURL = *webhookURL
	}
	if webhookSecret != nil {
		c.WebhookSecret = *webhookSecret
	}
	return &c, nil
}
