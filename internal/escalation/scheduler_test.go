package escalation

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iiot-platform/core/pkg/types"
)

// fakeEscalationStore is a minimal, hand-fed Store for deterministic
// Service tests that drive the timer queue directly (no goroutine loop).
type fakeEscalationStore struct {
	policy        *types.EscalationPolicy
	policyErr     error
	timers        []types.EscalationTimer
	canceledAlert []uuid.UUID
	state         types.AlertState
	alert         *types.Alert
}

func (f *fakeEscalationStore) GetEscalationPolicyForSeverity(ctx context.Context, tenantID uuid.UUID, sev types.Severity) (*types.EscalationPolicy, error) {
	if f.policyErr != nil {
		return nil, f.policyErr
	}
	if f.policy == nil || !f.policy.Matches(sev) {
		return nil, nil
	}
	return f.policy, nil
}

func (f *fakeEscalationStore) GetEscalationPolicy(ctx context.Context, tenantID, id uuid.UUID) (*types.EscalationPolicy, error) {
	if f.policy != nil && f.policy.ID == id {
		return f.policy, nil
	}
	return nil, nil
}

func (f *fakeEscalationStore) CreateTimer(ctx context.Context, t types.EscalationTimer) error {
	f.timers = append(f.timers, t)
	return nil
}

func (f *fakeEscalationStore) CancelTimersForAlert(ctx context.Context, alertID uuid.UUID) error {
	f.canceledAlert = append(f.canceledAlert, alertID)
	return nil
}

func (f *fakeEscalationStore) MarkTimerFired(ctx context.Context, timerID uuid.UUID) error {
	return nil
}

func (f *fakeEscalationStore) LoadPendingTimers(ctx context.Context) ([]types.EscalationTimer, error) {
	return nil, nil
}

func (f *fakeEscalationStore) CurrentState(ctx context.Context, alertID uuid.UUID) (types.AlertState, error) {
	return f.state, nil
}

func (f *fakeEscalationStore) GetAlertByID(ctx context.Context, alertID uuid.UUID) (*types.Alert, error) {
	return f.alert, nil
}

type fakeDispatcher struct {
	dispatched []types.Channel
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, tenantID, recipient uuid.UUID, channel types.Channel, event types.NotificationEvent) error {
	f.dispatched = append(f.dispatched, channel)
	return nil
}

type fakeRoleLookup struct{}

func (fakeRoleLookup) ListUsersWithRole(ctx context.Context, tenantID uuid.UUID, role string) ([]uuid.UUID, error) {
	return nil, nil
}

type fakeScheduleLookup struct{}

func (fakeScheduleLookup) GetOnCallSchedule(ctx context.Context, tenantID, id uuid.UUID) (*types.OnCallSchedule, error) {
	return nil, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// threeTierPolicy builds the S5 escalation policy: tier1 wait=0, tier2
// wait=5min, tier3 wait=15min, all on the push channel to a fixed user.
func threeTierPolicy(user uuid.UUID) *types.EscalationPolicy {
	recipient := types.RecipientResolver{Kind: types.RecipientFixedUser, UserID: &user}
	return &types.EscalationPolicy{
		ID:         uuid.New(),
		Severities: []types.Severity{types.SeverityCritical},
		Tiers: []types.EscalationTier{
			{Wait: 0, Channels: []types.Channel{types.ChannelPush}, Recipient: recipient},
			{Wait: 5 * time.Minute, Channels: []types.Channel{types.ChannelPush}, Recipient: recipient},
			{Wait: 15 * time.Minute, Channels: []types.Channel{types.ChannelPush}, Recipient: recipient},
		},
	}
}

func TestOnAlertCreated_SchedulesTierOneImmediately(t *testing.T) {
	user := uuid.New()
	store := &fakeEscalationStore{policy: threeTierPolicy(user)}
	disp := &fakeDispatcher{}
	svc := NewService(store, fakeScheduleLookup{}, fakeRoleLookup{}, disp, quietLogger())

	alert := &types.Alert{ID: uuid.New(), TenantID: uuid.New(), Severity: types.SeverityCritical}
	err := svc.OnAlertCreated(context.Background(), alert)

	require.NoError(t, err)
	require.Len(t, store.timers, 1)
	assert.Equal(t, 0, store.timers[0].Tier)
	assert.Equal(t, alert.ID, store.timers[0].AlertID)
}

func TestOnAlertCreated_NoPolicyIsANoop(t *testing.T) {
	store := &fakeEscalationStore{policy: nil}
	disp := &fakeDispatcher{}
	svc := NewService(store, fakeScheduleLookup{}, fakeRoleLookup{}, disp, quietLogger())

	alert := &types.Alert{ID: uuid.New(), TenantID: uuid.New(), Severity: types.SeverityLow}
	err := svc.OnAlertCreated(context.Background(), alert)

	require.NoError(t, err)
	assert.Empty(t, store.timers)
}

// TestEscalation_AckCancelsRemainingTiers is the S5 scenario: tier 1
// fires, then the alert is acked before tier 2's wait elapses, so tier
// 2/3 must never dispatch.
func TestEscalation_AckCancelsRemainingTiers(t *testing.T) {
	user := uuid.New()
	policy := threeTierPolicy(user)
	alert := &types.Alert{ID: uuid.New(), TenantID: uuid.New(), Severity: types.SeverityCritical}
	store := &fakeEscalationStore{policy: policy, alert: alert, state: types.StateNew}
	disp := &fakeDispatcher{}
	svc := NewService(store, fakeScheduleLookup{}, fakeRoleLookup{}, disp, quietLogger())

	require.NoError(t, svc.OnAlertCreated(context.Background(), alert))
	require.Len(t, store.timers, 1, "tier 1 scheduled on create")

	// Fire tier 1 directly (bypassing the timer-queue goroutine): the
	// state is still NEW/open, so it dispatches and schedules tier 2.
	tier1 := store.timers[0]
	require.NoError(t, svc.fireTier(context.Background(), tier1))
	assert.Len(t, disp.dispatched, 1, "tier 1 dispatched once")
	require.Len(t, store.timers, 2, "tier 2 scheduled after tier 1 fires")

	// Ack the alert: the alertcore service would call OnAlertClosed at
	// this transition (leaving NEW), canceling tier 2/3.
	store.state = types.StateAcknowledged
	require.NoError(t, svc.OnAlertClosed(context.Background(), alert.ID))
	assert.Equal(t, []uuid.UUID{alert.ID}, store.canceledAlert)

	// Tier 2 attempting to fire now re-reads state (ACKNOWLEDGED is no
	// longer NEW) and must not dispatch, per fireTier's re-check.
	tier2 := store.timers[1]
	require.NoError(t, svc.fireTier(context.Background(), tier2))
	assert.Len(t, disp.dispatched, 1, "tier 2 must not dispatch once the alert left NEW")
}

func TestFireTier_UnknownTierIndexIsANoop(t *testing.T) {
	user := uuid.New()
	policy := threeTierPolicy(user)
	alert := &types.Alert{ID: uuid.New(), TenantID: uuid.New(), Severity: types.SeverityCritical}
	store := &fakeEscalationStore{policy: policy, alert: alert, state: types.StateNew}
	disp := &fakeDispatcher{}
	svc := NewService(store, fakeScheduleLookup{}, fakeRoleLookup{}, disp, quietLogger())

	timer := types.EscalationTimer{ID: uuid.New(), AlertID: alert.ID, PolicyID: policy.ID, Tier: 99}
	require.NoError(t, svc.fireTier(context.Background(), timer))
	assert.Empty(t, disp.dispatched)
}
