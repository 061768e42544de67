package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/iiot-platform/core/internal/apperr"
	"github.com/iiot-platform/core/internal/tenant"
)

// ResolveTenant implements tenant.Resolver, loading the Context every
// boundary entry point needs before doing any tenant-scoped work.
func (s *Store) ResolveTenant(ctx context.Context, tenantID uuid.UUID) (tenant.Context, error) {
	t, err := s.GetTenant(ctx, tenantID)
	if err != nil {
		return tenant.Context{}, err
	}
	if t == nil {
		return tenant.Context{}, apperr.NewNotFound("tenant not found", nil)
	}
	return tenant.Context{
		TenantID: t.ID,
		Tier:     t.Tier,
		Features: t.Features,
		Quotas:   t.Quotas,
		Status:   t.Status,
	}, nil
}
