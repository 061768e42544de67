package escalation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/iiot-platform/core/pkg/types"
)

// ScheduleLookup resolves an on-call schedule by id, tenant-scoped.
type ScheduleLookup interface {
	GetOnCallSchedule(ctx context.Context, tenantID, id uuid.UUID) (*types.OnCallSchedule, error)
}

// RoleLookup resolves every user holding a role in a tenant.
type RoleLookup interface {
	ListUsersWithRole(ctx context.Context, tenantID uuid.UUID, role string) ([]uuid.UUID, error)
}

// resolveRecipients implements §4.6's recipient resolution: fixed user,
// role (all holders), or on-call schedule (current principal, with
// fallback to the tier's secondary recipient when unassigned).
func resolveRecipients(ctx context.Context, schedules ScheduleLookup, roles RoleLookup, tenantID uuid.UUID, r types.RecipientResolver, secondary *uuid.UUID, now time.Time) ([]uuid.UUID, error) {
	switch r.Kind {
	case types.RecipientFixedUser:
		if r.UserID == nil {
			return nil, nil
		}
		return []uuid.UUID{*r.UserID}, nil

	case types.RecipientRole:
		return roles.ListUsersWithRole(ctx, tenantID, r.Role)

	case types.RecipientOnCall:
		if r.ScheduleID == nil {
			return nil, nil
		}
		sch, err := schedules.GetOnCallSchedule(ctx, tenantID, *r.ScheduleID)
		if err != nil {
			return nil, err
		}
		if sch == nil {
			return nil, nil
		}
		principal := ResolveOnCall(sch, now)
		if IsUnassigned(principal) {
			// §4.6 + decided Open Question #2: fall through to the
			// tier's secondary recipient if configured; otherwise the
			// caller logs and moves on (no dead-letter alert).
			if secondary != nil {
				return []uuid.UUID{*secondary}, nil
			}
			return nil, nil
		}
		return []uuid.UUID{principal}, nil

	default:
		return nil, nil
	}
}
