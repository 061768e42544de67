package escalation

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iiot-platform/core/pkg/types"
)

// Store is C6's view of persistence, backed by internal/store.
type Store interface {
	GetEscalationPolicyForSeverity(ctx context.Context, tenantID uuid.UUID, sev types.Severity) (*types.EscalationPolicy, error)
	GetEscalationPolicy(ctx context.Context, tenantID, id uuid.UUID) (*types.EscalationPolicy, error)
	CreateTimer(ctx context.Context, t types.EscalationTimer) error
	CancelTimersForAlert(ctx context.Context, alertID uuid.UUID) error
	MarkTimerFired(ctx context.Context, timerID uuid.UUID) error
	LoadPendingTimers(ctx context.Context) ([]types.EscalationTimer, error)
	CurrentState(ctx context.Context, alertID uuid.UUID) (types.AlertState, error)
	GetAlertByID(ctx context.Context, alertID uuid.UUID) (*types.Alert, error)
}

// Dispatcher is C7's entry point for a single tier-channel-recipient
// fire. Implemented by internal/notify.Hub.
type Dispatcher interface {
	Dispatch(ctx context.Context, tenantID, recipient uuid.UUID, channel types.Channel, event types.NotificationEvent) error
}

// timerQueue is a container/heap.Interface ordered by FireAt, the
// priority queue of pending tier fires from §5.
type timerQueue []*types.EscalationTimer

func (q timerQueue) Len() int            { return len(q) }
func (q timerQueue) Less(i, j int) bool  { return q[i].FireAt.Before(q[j].FireAt) }
func (q timerQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *timerQueue) Push(x any)         { *q = append(*q, x.(*types.EscalationTimer)) }
func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// Service is the C6 escalation scheduler: a timer-priority-queue-driven
// loop that fires ordered policy tiers for each alert and cancels
// remaining tiers once the alert leaves NEW.
type Service struct {
	store      Store
	schedules  ScheduleLookup
	roles      RoleLookup
	dispatcher Dispatcher
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	queue    timerQueue
	byAlert  map[uuid.UUID][]uuid.UUID // alertID -> pending timer ids
	canceled map[uuid.UUID]struct{}    // timer ids canceled in-flight

	wake   chan struct{}
	stopCh chan struct{}
}

// NewService builds the escalation scheduler.
func NewService(store Store, schedules ScheduleLookup, roles RoleLookup, dispatcher Dispatcher, logger *slog.Logger) *Service {
	return &Service{
		store:      store,
		schedules:  schedules,
		roles:      roles,
		dispatcher: dispatcher,
		logger:     logger.With("component", "escalation"),
		now:        time.Now,
		byAlert:    make(map[uuid.UUID][]uuid.UUID),
		canceled:   make(map[uuid.UUID]struct{}),
		wake:       make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
	}
}

// Start rehydrates pending timers from the store and begins the
// scheduler loop in a goroutine — timers survive a process restart
// since they are persisted before being queued in memory.
func (s *Service) Start(ctx context.Context) {
	pending, err := s.store.LoadPendingTimers(ctx)
	if err != nil {
		s.logger.Error("failed to load pending escalation timers", "error", err)
	}
	s.mu.Lock()
	for i := range pending {
		t := pending[i]
		heap.Push(&s.queue, &t)
		s.byAlert[t.AlertID] = append(s.byAlert[t.AlertID], t.ID)
	}
	s.mu.Unlock()

	go s.run(ctx)
}

// Stop signals the scheduler loop to stop.
func (s *Service) Stop() {
	close(s.stopCh)
}

// OnAlertCreated implements alertcore.Escalator: schedules tier 1 of
// the applicable policy (first match by severity set), per §4.6.
func (s *Service) OnAlertCreated(ctx context.Context, a *types.Alert) error {
	policy, err := s.store.GetEscalationPolicyForSeverity(ctx, a.TenantID, a.Severity)
	if err != nil {
		return err
	}
	if policy == nil || len(policy.Tiers) == 0 {
		s.logger.Debug("no escalation policy for severity", "alert_id", a.ID, "severity", a.Severity)
		return nil
	}
	return s.scheduleTier(ctx, a.ID, policy.ID, 0, policy.Tiers[0].Wait)
}

// OnAlertClosed implements alertcore.Escalator: cancels every pending
// tier fire for alertID once it leaves NEW.
func (s *Service) OnAlertClosed(ctx context.Context, alertID uuid.UUID) error {
	if err := s.store.CancelTimersForAlert(ctx, alertID); err != nil {
		return err
	}
	s.mu.Lock()
	for _, id := range s.byAlert[alertID] {
		s.canceled[id] = struct{}{}
	}
	delete(s.byAlert, alertID)
	s.mu.Unlock()
	return nil
}

func (s *Service) scheduleTier(ctx context.Context, alertID, policyID uuid.UUID, tier int, wait time.Duration) error {
	t := types.EscalationTimer{
		ID:       uuid.New(),
		AlertID:  alertID,
		PolicyID: policyID,
		Tier:     tier,
		FireAt:   s.now().Add(wait),
	}
	if err := s.store.CreateTimer(ctx, t); err != nil {
		return err
	}
	s.mu.Lock()
	heap.Push(&s.queue, &t)
	s.byAlert[alertID] = append(s.byAlert[alertID], t.ID)
	s.mu.Unlock()
	s.pokeWake()
	return nil
}

func (s *Service) pokeWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) run(ctx context.Context) {
	for {
		wait, ok := s.nextWait()
		var timerC <-chan time.Time
		var tm *time.Timer
		if ok {
			tm = time.NewTimer(wait)
			timerC = tm.C
		}

		select {
		case <-ctx.Done():
			stopTimer(tm)
			return
		case <-s.stopCh:
			stopTimer(tm)
			return
		case <-s.wake:
			// Queue changed (new/canceled timer); recompute next wait.
			stopTimer(tm)
		case <-timerC:
			s.fireNext(ctx)
		}
	}
}

func stopTimer(tm *time.Timer) {
	if tm == nil {
		return
	}
	if !tm.Stop() {
		select {
		case <-tm.C:
		default:
		}
	}
}

func (s *Service) nextWait() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		return 0, false
	}
	d := s.queue[0].FireAt.Sub(s.now())
	if d < 0 {
		d = 0
	}
	return d, true
}

func (s *Service) fireNext(ctx context.Context) {
	s.mu.Lock()
	if s.queue.Len() == 0 {
		s.mu.Unlock()
		return
	}
	item := heap.Pop(&s.queue).(*types.EscalationTimer)
	_, wasCanceled := s.canceled[item.ID]
	delete(s.canceled, item.ID)
	s.mu.Unlock()

	if wasCanceled {
		return
	}
	if item.FireAt.After(s.now()) {
		// Not due yet (popped speculatively after a wake); requeue.
		s.mu.Lock()
		heap.Push(&s.queue, item)
		s.mu.Unlock()
		return
	}

	if err := s.fireTier(ctx, *item); err != nil {
		s.logger.Error("tier fire failed", "alert_id", item.AlertID, "tier", item.Tier, "error", err)
	}
}

// fireTier re-reads the alert's current state immediately before
// dispatch — the §4.6 "firing check re-reads current state in the same
// transaction as dispatch" rule, approximated here as back-to-back
// store calls with no intervening suspension point — so at most one
// spurious notification per tier is possible under a race with
// cancellation.
func (s *Service) fireTier(ctx context.Context, item types.EscalationTimer) error {
	state, err := s.store.CurrentState(ctx, item.AlertID)
	if err != nil {
		return err
	}
	// Escalation continues only while the alert is NEW: acknowledging,
	// resolving or suppressing it ends escalation (IsOpen also counts
	// ACKNOWLEDGED, so it is not used here).
	if state != types.StateNew {
		return nil
	}

	a, err := s.store.GetAlertByID(ctx, item.AlertID)
	if err != nil {
		return err
	}
	if a == nil {
		return nil
	}

	policy, err := s.store.GetEscalationPolicy(ctx, a.TenantID, item.PolicyID)
	if err != nil {
		return err
	}
	if policy == nil || item.Tier >= len(policy.Tiers) {
		return nil
	}
	tier := policy.Tiers[item.Tier]

	recipients, err := resolveRecipients(ctx, s.schedules, s.roles, a.TenantID, tier.Recipient, tier.SecondaryUserID, s.now())
	if err != nil {
		s.logger.Error("recipient resolution failed", "alert_id", a.ID, "tier", item.Tier, "error", err)
	}
	if len(recipients) == 0 {
		s.logger.Warn("escalation tier resolved no recipient", "alert_id", a.ID, "tier", item.Tier)
	}

	event := types.NotificationEvent{
		Event:      types.EventAlertCreated,
		TenantID:   a.TenantID,
		AlertID:    a.ID,
		Severity:   a.Severity,
		DeviceID:   a.DeviceID,
		Message:    a.Message,
		Metadata:   a.Metadata,
		OccurredAt: s.now(),
	}
	for _, recipient := range recipients {
		for _, ch := range tier.Channels {
			if err := s.dispatcher.Dispatch(ctx, a.TenantID, recipient, ch, event); err != nil {
				s.logger.Error("tier dispatch failed", "alert_id", a.ID, "tier", item.Tier, "channel", ch, "error", err)
			}
		}
	}

	if err := s.store.MarkTimerFired(ctx, item.ID); err != nil {
		s.logger.Error("failed to mark timer fired", "timer_id", item.ID, "error", err)
	}

	if item.Tier+1 < len(policy.Tiers) {
		return s.scheduleTier(ctx, a.ID, policy.ID, item.Tier+1, policy.Tiers[item.Tier+1].Wait)
	}
	return nil
}
