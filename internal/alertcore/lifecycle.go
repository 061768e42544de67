// Package alertcore implements C5: alert creation from a rule fire,
// the lifecycle state machine, SLA tracking, and grouping.
package alertcore

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iiot-platform/core/internal/apperr"
	"github.com/iiot-platform/core/internal/rules"
	"github.com/iiot-platform/core/pkg/types"
)

// Store is C5's view of the persistence layer (internal/store.Store
// satisfies this).
type Store interface {
	CreateAlert(ctx context.Context, a *types.Alert, sla types.SLATarget) error
	GetAlert(ctx context.Context, tenantID, id uuid.UUID) (*types.Alert, error)
	FindOpenAlertForRule(ctx context.Context, tenantID, ruleID uuid.UUID) (*types.Alert, error)
	TransitionAlert(ctx context.Context, alertID uuid.UUID, t types.Transition, byPrincipal, note string, at time.Time) (types.AlertState, error)
	CurrentState(ctx context.Context, alertID uuid.UUID) (types.AlertState, error)
	ListAlerts(ctx context.Context, filter types.AlertFilter) ([]types.Alert, error)

	GetSLA(ctx context.Context, alertID uuid.UUID) (*types.AlertSLA, error)
	RecordAck(ctx context.Context, alertID uuid.UUID, at time.Time) error
	RecordResolve(ctx context.Context, alertID uuid.UUID, at time.Time) error
	SweepOverdueAlerts(ctx context.Context, now time.Time) ([]uuid.UUID, error)

	FindActiveGroup(ctx context.Context, key types.GroupKey, now time.Time, window time.Duration) (*types.AlertGroup, error)
	CreateGroup(ctx context.Context, key types.GroupKey, id uuid.UUID, now time.Time) (*types.AlertGroup, error)
	AttachToGroup(ctx context.Context, groupID uuid.UUID, now time.Time) error
	CloseGroup(ctx context.Context, groupID uuid.UUID) error
	CountOpenAlertsInGroup(ctx context.Context, groupID uuid.UUID) (int, error)

	GetActions(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]types.Action, error)
}

// ActionDispatcher is C7's entry point for a rule's own configured
// Action references (§3: "a set of action references"), distinct from
// the escalation-policy/on-call dispatch path C6 drives by severity.
type ActionDispatcher interface {
	DispatchToAction(ctx context.Context, action types.Action, event types.NotificationEvent) error
}

// Escalator is C6's entry point, invoked on every alert creation and
// on leaving NEW (so pending tiers can be canceled).
type Escalator interface {
	OnAlertCreated(ctx context.Context, a *types.Alert) error
	OnAlertClosed(ctx context.Context, alertID uuid.UUID) error
}

// Notifier is C7's entry point for lifecycle events that should be
// pushed to subscribed principals (not the escalation dispatch itself,
// which C6 drives separately).
type Notifier interface {
	NotifyAlertEvent(ctx context.Context, tenantID uuid.UUID, kind types.EventKind, alert *types.Alert)
}

// SLATargets maps severity to its TTA/TTR target; tenant-overridable
// per §4.5, defaulting to types.DefaultSLATargets().
type SLATargets func(tenantID uuid.UUID) map[types.Severity]types.SLATarget

// GroupNotifyPolicy resolves a tenant's notify_on fan-out policy
// (§4.6); defaults to NotifyFirst when unset.
type GroupNotifyPolicy func(tenantID uuid.UUID) (policy types.NotifyOn, perMinute int)

// Service is the C5 alert core.
type Service struct {
	store       Store
	escalator   Escalator
	notifier    Notifier
	actions     ActionDispatcher
	slaTargets  SLATargets
	notifyOn    GroupNotifyPolicy
	rateLimit   *RateLimiter
	groupWindow time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds the alert core service.
func NewService(store Store, escalator Escalator, notifier Notifier, actions ActionDispatcher, slaTargets SLATargets, logger *slog.Logger) *Service {
	if slaTargets == nil {
		defaults := types.DefaultSLATargets()
		slaTargets = func(uuid.UUID) map[types.Severity]types.SLATarget { return defaults }
	}
	return &Service{
		store:       store,
		escalator:   escalator,
		notifier:    notifier,
		actions:     actions,
		slaTargets:  slaTargets,
		notifyOn:    func(uuid.UUID) (types.NotifyOn, int) { return types.NotifyFirst, 1 },
		rateLimit:   NewRateLimiter(),
		groupWindow: types.DefaultGroupingWindow,
		logger:      logger.With("component", "alert_core"),
		now:         time.Now,
	}
}

// WithGroupNotifyPolicy overrides the default notify_on=first policy
// with a tenant-aware resolver.
func (s *Service) WithGroupNotifyPolicy(p GroupNotifyPolicy) *Service {
	s.notifyOn = p
	return s
}

// HandleFired implements rules.AlertSink: a rule fired. Deduplication
// (§4.4) is enforced here by checking for an already-open alert for
// the same rule before creating a new one.
func (s *Service) HandleFired(ctx context.Context, r *types.Rule, res rules.Result) error {
	open, err := s.store.FindOpenAlertForRule(ctx, r.TenantID, r.ID)
	if err != nil {
		return err
	}
	if open != nil {
		s.logger.Debug("rule fire deduplicated against open alert", "rule_id", r.ID, "alert_id", open.ID)
		return nil
	}

	ruleID := r.ID
	a := &types.Alert{
		ID:        uuid.New(),
		TenantID:  r.TenantID,
		RuleID:    &ruleID,
		DeviceID:  r.DeviceID,
		Severity:  r.Severity,
		Message:   "rule " + r.ID.String() + " fired on metric " + r.Metric,
		Metadata:  res.Metadata,
		CreatedAt: s.now(),
	}
	return s.Create(ctx, a, r.Family, r.Metric, r.ActionIDs)
}

// Create persists a new alert, attaching it to an active group if one
// matches, and notifies C6/C7. ruleFamily/metric drive the grouping
// key (§4.6); callers outside the rule engine (e.g. external sources)
// may pass a zero RuleFamily/empty metric to opt out of grouping.
// actionIDs are the firing rule's own configured Actions, if any.
func (s *Service) Create(ctx context.Context, a *types.Alert, ruleFamily types.RuleFamily, metric string, actionIDs []uuid.UUID) error {
	targets := s.slaTargets(a.TenantID)
	sla := targets[a.Severity]

	if err := s.store.CreateAlert(ctx, a, sla); err != nil {
		return err
	}

	dispatchNotifications := true
	if ruleFamily != "" && metric != "" {
		key := types.GroupKey{TenantID: a.TenantID, DeviceID: a.DeviceID, RuleFamily: ruleFamily, Metric: metric}
		g, err := s.attachToGroup(ctx, a, key)
		if err != nil {
			s.logger.Error("grouping failed, alert still created", "alert_id", a.ID, "error", err)
		} else {
			policy, perMinute := s.notifyOn(a.TenantID)
			dispatchNotifications = s.rateLimit.ShouldNotify(g.ID, g.OccurrenceCount, policy, perMinute, s.now())
		}
	}

	// Grouping suppresses escalation/channel fan-out for subsequent
	// alerts in the same group (§4.6); the push stream still carries
	// every alert so UI state stays current (Open Question #3).
	if dispatchNotifications {
		if err := s.escalator.OnAlertCreated(ctx, a); err != nil {
			s.logger.Error("escalation scheduling failed", "alert_id", a.ID, "error", err)
		}
		s.dispatchRuleActions(ctx, a, actionIDs)
	} else {
		s.logger.Debug("escalation suppressed by group notify policy", "alert_id", a.ID, "group_id", a.GroupID)
	}
	s.notifier.NotifyAlertEvent(ctx, a.TenantID, types.EventAlertCreated, a)
	return nil
}

// dispatchRuleActions fans the alert out to the firing rule's own
// EMAIL/WEBHOOK/PUSH Action references (§3), independent of the
// severity-driven escalation policy C6 owns.
func (s *Service) dispatchRuleActions(ctx context.Context, a *types.Alert, actionIDs []uuid.UUID) {
	if s.actions == nil || len(actionIDs) == 0 {
		return
	}
	list, err := s.store.GetActions(ctx, a.TenantID, actionIDs)
	if err != nil {
		s.logger.Error("failed to load rule actions", "alert_id", a.ID, "error", err)
		return
	}
	event := types.NotificationEvent{
		Event:      types.EventAlertCreated,
		TenantID:   a.TenantID,
		AlertID:    a.ID,
		Severity:   a.Severity,
		DeviceID:   a.DeviceID,
		Message:    a.Message,
		Metadata:   a.Metadata,
		OccurredAt: a.CreatedAt,
	}
	for _, action := range list {
		if err := s.actions.DispatchToAction(ctx, action, event); err != nil {
			s.logger.Error("rule action dispatch failed", "alert_id", a.ID, "action_id", action.ID, "error", err)
		}
	}
}

func (s *Service) attachToGroup(ctx context.Context, a *types.Alert, key types.GroupKey) (*types.AlertGroup, error) {
	now := s.now()
	g, err := s.store.FindActiveGroup(ctx, key, now, s.groupWindow)
	if err != nil {
		return nil, err
	}
	if g == nil {
		g, err = s.store.CreateGroup(ctx, key, uuid.New(), now)
		if err != nil {
			return nil, err
		}
	} else if err := s.store.AttachToGroup(ctx, g.ID, now); err != nil {
		return nil, err
	} else {
		g.OccurrenceCount++
		g.LastOccurrence = now
	}
	a.GroupID = &g.ID
	return g, nil
}

// Ack records an acknowledgement transition, per §4.5.
func (s *Service) Ack(ctx context.Context, tenantID, alertID uuid.UUID, byPrincipal, note string) error {
	return s.transition(ctx, tenantID, alertID, types.TransitionAck, byPrincipal, note, func(a *types.Alert) error {
		return s.store.RecordAck(ctx, alertID, s.now())
	})
}

// Investigate records the investigate transition.
func (s *Service) Investigate(ctx context.Context, tenantID, alertID uuid.UUID, byPrincipal, note string) error {
	return s.transition(ctx, tenantID, alertID, types.TransitionInvestigate, byPrincipal, note, nil)
}

// Resolve records a resolution, closing the alert's group if every
// member alert is now terminal.
func (s *Service) Resolve(ctx context.Context, tenantID, alertID uuid.UUID, byPrincipal, note string) error {
	return s.transition(ctx, tenantID, alertID, types.TransitionResolve, byPrincipal, note, func(a *types.Alert) error {
		if err := s.store.RecordResolve(ctx, alertID, s.now()); err != nil {
			return err
		}
		return s.maybeCloseGroup(ctx, a)
	})
}

// Suppress marks an alert suppressed (manual operator action, distinct
// from de-duplication).
func (s *Service) Suppress(ctx context.Context, tenantID, alertID uuid.UUID, byPrincipal, note string) error {
	return s.transition(ctx, tenantID, alertID, types.TransitionSuppress, byPrincipal, note, func(a *types.Alert) error {
		return s.maybeCloseGroup(ctx, a)
	})
}

// Expire marks an alert expired (escalation/SLA timeout path).
func (s *Service) Expire(ctx context.Context, tenantID, alertID uuid.UUID) error {
	return s.transition(ctx, tenantID, alertID, types.TransitionExpire, "system", "expired by timeout", func(a *types.Alert) error {
		return s.maybeCloseGroup(ctx, a)
	})
}

func (s *Service) transition(ctx context.Context, tenantID, alertID uuid.UUID, t types.Transition, byPrincipal, note string, after func(a *types.Alert) error) error {
	next, err := s.store.TransitionAlert(ctx, alertID, t, byPrincipal, note, s.now())
	if err != nil {
		return err
	}

	a, err := s.store.GetAlert(ctx, tenantID, alertID)
	if err != nil {
		return err
	}
	if a == nil {
		return apperr.NewNotFound("alert not found after transition", nil)
	}

	if after != nil {
		if err := after(a); err != nil {
			s.logger.Error("post-transition step failed", "alert_id", alertID, "error", err)
		}
	}

	if next.IsTerminal() || next == types.StateAcknowledged {
		if err := s.escalator.OnAlertClosed(ctx, alertID); err != nil {
			s.logger.Error("escalation cancellation failed", "alert_id", alertID, "error", err)
		}
	}

	s.notifier.NotifyAlertEvent(ctx, tenantID, types.EventAlertStateChanged, a)
	return nil
}

func (s *Service) maybeCloseGroup(ctx context.Context, a *types.Alert) error {
	if a.GroupID == nil {
		return nil
	}
	open, err := s.store.CountOpenAlertsInGroup(ctx, *a.GroupID)
	if err != nil {
		return err
	}
	if open == 0 {
		return s.store.CloseGroup(ctx, *a.GroupID)
	}
	return nil
}
