package escalation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iiot-platform/core/pkg/types"
)

type fakeScheduleLookup struct {
	sch *types.OnCallSchedule
	err error
}

func (f *fakeScheduleLookup) GetOnCallSchedule(ctx context.Context, tenantID, id uuid.UUID) (*types.OnCallSchedule, error) {
	return f.sch, f.err
}

type fakeRoleLookup struct {
	users []uuid.UUID
	err   error
}

func (f *fakeRoleLookup) ListUsersWithRole(ctx context.Context, tenantID uuid.UUID, role string) ([]uuid.UUID, error) {
	return f.users, f.err
}

func TestResolveRecipients_FixedUser(t *testing.T) {
	u := uuid.New()
	r := types.RecipientResolver{Kind: types.RecipientFixedUser, UserID: &u}

	got, err := resolveRecipients(context.Background(), &fakeScheduleLookup{}, &fakeRoleLookup{}, uuid.New(), r, nil, time.Now())

	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{u}, got)
}

func TestResolveRecipients_Role(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	r := types.RecipientResolver{Kind: types.RecipientRole, Role: "on_call_engineer"}
	roles := &fakeRoleLookup{users: []uuid.UUID{a, b}}

	got, err := resolveRecipients(context.Background(), &fakeScheduleLookup{}, roles, uuid.New(), r, nil, time.Now())

	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a, b}, got)
}

func TestResolveRecipients_OnCall_ResolvesPrincipal(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	alice, bob := uuid.New(), uuid.New()
	schID := uuid.New()
	sch := &types.OnCallSchedule{
		Rotation: []uuid.UUID{alice, bob},
		Unit:     types.RotationDaily,
		Anchor:   anchor,
		Timezone: "UTC",
	}
	r := types.RecipientResolver{Kind: types.RecipientOnCall, ScheduleID: &schID}

	got, err := resolveRecipients(context.Background(), &fakeScheduleLookup{sch: sch}, &fakeRoleLookup{}, uuid.New(), r, nil, anchor.Add(24*time.Hour))

	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{bob}, got)
}

func TestResolveRecipients_OnCall_UnassignedFallsBackToSecondary(t *testing.T) {
	schID := uuid.New()
	secondary := uuid.New()
	sch := &types.OnCallSchedule{Timezone: "UTC"} // no rotation participants
	r := types.RecipientResolver{Kind: types.RecipientOnCall, ScheduleID: &schID}

	got, err := resolveRecipients(context.Background(), &fakeScheduleLookup{sch: sch}, &fakeRoleLookup{}, uuid.New(), r, &secondary, time.Now())

	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{secondary}, got)
}

func TestResolveRecipients_OnCall_UnassignedNoSecondaryReturnsEmpty(t *testing.T) {
	schID := uuid.New()
	sch := &types.OnCallSchedule{Timezone: "UTC"}
	r := types.RecipientResolver{Kind: types.RecipientOnCall, ScheduleID: &schID}

	got, err := resolveRecipients(context.Background(), &fakeScheduleLookup{sch: sch}, &fakeRoleLookup{}, uuid.New(), r, nil, time.Now())

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolveRecipients_OnCall_NoScheduleIDReturnsEmpty(t *testing.T) {
	r := types.RecipientResolver{Kind: types.RecipientOnCall}

	got, err := resolveRecipients(context.Background(), &fakeScheduleLookup{}, &fakeRoleLookup{}, uuid.New(), r, nil, time.Now())

	require.NoError(t, err)
	assert.Empty(t, got)
}
