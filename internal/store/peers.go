package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/iiot-platform/core/internal/ingestion"
)

// ResolvePeer implements ingestion.PeerResolver: devices register a
// transport-qualified peer id at provisioning time (peer_ids column),
// which authenticated traffic is then matched against.
func (s *Store) ResolvePeer(ctx context.Context, transport, peerID string) (*ingestion.PeerRegistration, error) {
	var reg ingestion.PeerRegistration
	err := s.pool.QueryRow(ctx, `
		SELECT tenant_id, id FROM devices WHERE attributes->'peer_ids'->>$1 = $2
	`, transport, peerID).Scan(&reg.TenantID, &reg.DeviceID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyDBError(err)
	}
	return &reg, nil
}
