package alertcore

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iiot-platform/core/internal/rules"
	"github.com/iiot-platform/core/pkg/types"
)

// fakeStore is a minimal, hand-fed Store for deterministic Service tests.
type fakeStore struct {
	openAlert      *types.Alert
	createErr      error
	created        []*types.Alert
	currentState   types.AlertState
	transitionErr  error
	activeGroup    *types.AlertGroup
	attachErr      error
	createGroupErr error
	openInGroup    int
	closeGroupErr  error
	closedGroups   []uuid.UUID
	actions        []types.Action
	getAlertGroup  *uuid.UUID
}

func (f *fakeStore) CreateAlert(ctx context.Context, a *types.Alert, sla types.SLATarget) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, a)
	return nil
}

func (f *fakeStore) GetAlert(ctx context.Context, tenantID, id uuid.UUID) (*types.Alert, error) {
	return &types.Alert{ID: id, TenantID: tenantID, GroupID: f.getAlertGroup}, nil
}

func (f *fakeStore) FindOpenAlertForRule(ctx context.Context, tenantID, ruleID uuid.UUID) (*types.Alert, error) {
	return f.openAlert, nil
}

func (f *fakeStore) TransitionAlert(ctx context.Context, alertID uuid.UUID, t types.Transition, byPrincipal, note string, at time.Time) (types.AlertState, error) {
	if f.transitionErr != nil {
		return "", f.transitionErr
	}
	next, ok := types.NextState(f.currentState, t)
	if !ok {
		return "", assertErr("invalid transition")
	}
	f.currentState = next
	return next, nil
}

func (f *fakeStore) CurrentState(ctx context.Context, alertID uuid.UUID) (types.AlertState, error) {
	return f.currentState, nil
}

func (f *fakeStore) ListAlerts(ctx context.Context, filter types.AlertFilter) ([]types.Alert, error) {
	return nil, nil
}

func (f *fakeStore) GetSLA(ctx context.Context, alertID uuid.UUID) (*types.AlertSLA, error) {
	return &types.AlertSLA{AlertID: alertID}, nil
}

func (f *fakeStore) RecordAck(ctx context.Context, alertID uuid.UUID, at time.Time) error {
	return nil
}

func (f *fakeStore) RecordResolve(ctx context.Context, alertID uuid.UUID, at time.Time) error {
	return nil
}

func (f *fakeStore) SweepOverdueAlerts(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	return nil, nil
}

func (f *fakeStore) FindActiveGroup(ctx context.Context, key types.GroupKey, now time.Time, window time.Duration) (*types.AlertGroup, error) {
	return f.activeGroup, nil
}

func (f *fakeStore) CreateGroup(ctx context.Context, key types.GroupKey, id uuid.UUID, now time.Time) (*types.AlertGroup, error) {
	if f.createGroupErr != nil {
		return nil, f.createGroupErr
	}
	g := &types.AlertGroup{ID: id, Key: key, Status: types.GroupActive, FirstOccurrence: now, LastOccurrence: now, OccurrenceCount: 1}
	f.activeGroup = g
	return g, nil
}

func (f *fakeStore) AttachToGroup(ctx context.Context, groupID uuid.UUID, now time.Time) error {
	return f.attachErr
}

func (f *fakeStore) CloseGroup(ctx context.Context, groupID uuid.UUID) error {
	f.closedGroups = append(f.closedGroups, groupID)
	return f.closeGroupErr
}

func (f *fakeStore) CountOpenAlertsInGroup(ctx context.Context, groupID uuid.UUID) (int, error) {
	return f.openInGroup, nil
}

func (f *fakeStore) GetActions(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]types.Action, error) {
	return f.actions, nil
}

type strErr string

func (e strErr) Error() string { return string(e) }

func assertErr(msg string) error { return strErr(msg) }

// fakeEscalator and fakeNotifier record invocations without side effects.
type fakeEscalator struct {
	created []uuid.UUID
	closed  []uuid.UUID
}

func (f *fakeEscalator) OnAlertCreated(ctx context.Context, a *types.Alert) error {
	f.created = append(f.created, a.ID)
	return nil
}

func (f *fakeEscalator) OnAlertClosed(ctx context.Context, alertID uuid.UUID) error {
	f.closed = append(f.closed, alertID)
	return nil
}

type fakeNotifier struct {
	events []types.EventKind
}

func (f *fakeNotifier) NotifyAlertEvent(ctx context.Context, tenantID uuid.UUID, kind types.EventKind, alert *types.Alert) {
	f.events = append(f.events, kind)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(store *fakeStore, esc *fakeEscalator, notif *fakeNotifier) *Service {
	return NewService(store, esc, notif, nil, nil, testLogger())
}

func TestHandleFired_DeduplicatesWhileAlertOpen(t *testing.T) {
	store := &fakeStore{openAlert: &types.Alert{ID: uuid.New()}}
	esc := &fakeEscalator{}
	notif := &fakeNotifier{}
	svc := newTestService(store, esc, notif)

	r := &types.Rule{ID: uuid.New(), TenantID: uuid.New(), DeviceID: uuid.New(), Metric: "temp", Family: types.RuleThreshold, Severity: types.SeverityHigh}
	err := svc.HandleFired(context.Background(), r, rules.Result{Outcome: rules.OutcomeFired})

	require.NoError(t, err)
	assert.Empty(t, store.created, "no new alert should be created while one is open")
	assert.Empty(t, esc.created)
}

func TestHandleFired_CreatesAlertWhenNoneOpen(t *testing.T) {
	store := &fakeStore{}
	esc := &fakeEscalator{}
	notif := &fakeNotifier{}
	svc := newTestService(store, esc, notif)

	r := &types.Rule{ID: uuid.New(), TenantID: uuid.New(), DeviceID: uuid.New(), Metric: "temp", Family: types.RuleThreshold, Severity: types.SeverityHigh}
	err := svc.HandleFired(context.Background(), r, rules.Result{Outcome: rules.OutcomeFired, Metadata: map[string]any{"value": 95.0}})

	require.NoError(t, err)
	require.Len(t, store.created, 1)
	assert.Equal(t, []uuid.UUID{store.created[0].ID}, esc.created)
	assert.Equal(t, []types.EventKind{types.EventAlertCreated}, notif.events)
}

func TestCreate_GroupingAttachesSecondAlertAndSuppressesNotifyFirst(t *testing.T) {
	store := &fakeStore{}
	esc := &fakeEscalator{}
	notif := &fakeNotifier{}
	svc := newTestService(store, esc, notif)

	tenant, device := uuid.New(), uuid.New()
	a1 := &types.Alert{ID: uuid.New(), TenantID: tenant, DeviceID: device, Severity: types.SeverityHigh}
	require.NoError(t, svc.Create(context.Background(), a1, types.RuleThreshold, "temperature", nil))
	require.NotNil(t, a1.GroupID)

	// Second alert in same tenant/device/family/metric attaches to the
	// same active group and, under the default notify_on=first policy,
	// does not re-trigger escalation.
	store.activeGroup.OccurrenceCount = 2
	a2 := &types.Alert{ID: uuid.New(), TenantID: tenant, DeviceID: device, Severity: types.SeverityHigh}
	require.NoError(t, svc.Create(context.Background(), a2, types.RuleThreshold, "temperature", nil))

	assert.Equal(t, a1.GroupID, a2.GroupID, "second alert should attach to the same group")
	assert.Len(t, esc.created, 1, "notify_on=first suppresses escalation for the second alert")
	assert.Len(t, notif.events, 2, "push stream still carries every alert")
}

func TestAck_RecordsTransitionAndCancelsEscalation(t *testing.T) {
	store := &fakeStore{currentState: types.StateNew}
	esc := &fakeEscalator{}
	notif := &fakeNotifier{}
	svc := newTestService(store, esc, notif)

	alertID := uuid.New()
	err := svc.Ack(context.Background(), uuid.New(), alertID, "alice", "")

	require.NoError(t, err)
	assert.Equal(t, types.StateAcknowledged, store.currentState)
	assert.Len(t, esc.closed, 1, "ack reaches a state where remaining escalation tiers must be canceled")
}

func TestResolve_ClosesGroupWhenNoAlertsRemainOpen(t *testing.T) {
	groupID := uuid.New()
	store := &fakeStore{currentState: types.StateAcknowledged, openInGroup: 0, getAlertGroup: &groupID}
	esc := &fakeEscalator{}
	notif := &fakeNotifier{}
	svc := newTestService(store, esc, notif)

	alertID := uuid.New()
	err := svc.Resolve(context.Background(), uuid.New(), alertID, "alice", "fixed")

	require.NoError(t, err)
	assert.Equal(t, types.StateResolved, store.currentState)
	assert.Equal(t, []uuid.UUID{groupID}, store.closedGroups, "last open member resolving should close the group")
}

func TestResolve_LeavesGroupOpenWhileOtherMembersAreStillOpen(t *testing.T) {
	groupID := uuid.New()
	store := &fakeStore{currentState: types.StateAcknowledged, openInGroup: 2, getAlertGroup: &groupID}
	esc := &fakeEscalator{}
	notif := &fakeNotifier{}
	svc := newTestService(store, esc, notif)

	err := svc.Resolve(context.Background(), uuid.New(), uuid.New(), "alice", "fixed")

	require.NoError(t, err)
	assert.Empty(t, store.closedGroups, "group must stay active while other members are still open")
}

func TestResolve_InvalidTransitionFromTerminalStateIsRejected(t *testing.T) {
	store := &fakeStore{currentState: types.StateResolved}
	esc := &fakeEscalator{}
	notif := &fakeNotifier{}
	svc := newTestService(store, esc, notif)

	err := svc.Resolve(context.Background(), uuid.New(), uuid.New(), "alice", "")
	assert.Error(t, err, "resolving an already-resolved alert is a backward/no-op edge, not in the FSM")
}
