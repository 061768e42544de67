package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/iiot-platform/core/pkg/types"
)

// GetActions fetches the Action rows referenced by a rule's ActionIDs,
// tenant-scoped, preserving no particular order.
func (s *Store) GetActions(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]types.Action, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, type, COALESCE(address, ''), COALESCE(url, ''), COALESCE(secret, ''), COALESCE(channel, '')
		FROM actions WHERE tenant_id = $1 AND id = ANY($2)
	`, tenantID, ids)
	if err != nil {
		return nil, classifyDBError(err)
	}
	defer rows.Close()

	var out []types.Action
	for rows.Next() {
		var a types.Action
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Type, &a.Address, &a.URL, &a.Secret, &a.Channel); err != nil {
			return nil, classifyDBError(err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
