package store

import (
	"context"

	"github.com/google/uuid"
)

// ListActiveTenantIDs returns every tenant not suspended, used by the
// rule engine's scheduler to decide which tenants to sweep each tick.
func (s *Store) ListActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM tenants WHERE status != 'suspended'`)
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
