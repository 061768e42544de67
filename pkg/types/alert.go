package types

import (
	"time"

	"github.com/google/uuid"
)

// AlertState is the current lifecycle state of an alert (§3, §4.5).
type AlertState string

const (
	StateNew           AlertState = "NEW"
	StateAcknowledged  AlertState = "ACKNOWLEDGED"
	StateInvestigating AlertState = "INVESTIGATING"
	StateResolved      AlertState = "RESOLVED"
	StateSuppressed    AlertState = "SUPPRESSED"
	StateExpired       AlertState = "EXPIRED"
)

// IsTerminal reports whether the state is a terminal branch of the FSM.
func (s AlertState) IsTerminal() bool {
	switch s {
	case StateResolved, StateSuppressed, StateExpired:
		return true
	default:
		return false
	}
}

// IsOpen reports whether a rule's deduplication guard should still
// suppress a new fire for this state (§4.4 deduplication).
func (s AlertState) IsOpen() bool {
	switch s {
	case StateNew, StateAcknowledged, StateInvestigating:
		return true
	default:
		return false
	}
}

// Alert is created by a rule firing or by an external source.
// It is immutable except for the lifecycle fields tracked in AlertStateRecord.
type Alert struct {
	ID         uuid.UUID      `json:"id"`
	TenantID   uuid.UUID      `json:"tenant_id"`
	RuleID     *uuid.UUID     `json:"rule_id,omitempty"`
	SourceID   string         `json:"source_id,omitempty"` // external source (e.g. ML anomaly)
	DeviceID   uuid.UUID      `json:"device_id"`
	Severity   Severity       `json:"severity"`
	Message    string         `json:"message"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	GroupID    *uuid.UUID     `json:"group_id,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// AlertStateRecord is one row in the append-only alert_states history.
type AlertStateRecord struct {
	ID          int64      `json:"id"`
	AlertID     uuid.UUID  `json:"alert_id"`
	State       AlertState `json:"state"`
	ByPrincipal string     `json:"by_principal,omitempty"`
	Note        string     `json:"note,omitempty"`
	At          time.Time  `json:"at"`
}

// Transition describes a requested state change.
type Transition string

const (
	TransitionAck         Transition = "ack"
	TransitionInvestigate Transition = "investigate"
	TransitionResolve     Transition = "resolve"
	TransitionSuppress    Transition = "suppress"
	TransitionExpire      Transition = "expire"
)

// validEdges enumerates the allowed (from, transition) -> to moves of the FSM.
var validEdges = map[AlertState]map[Transition]AlertState{
	StateNew: {
		TransitionAck:         StateAcknowledged,
		TransitionResolve:     StateResolved,
		TransitionSuppress:    StateSuppressed,
		TransitionExpire:      StateExpired,
	},
	StateAcknowledged: {
		TransitionInvestigate: StateInvestigating,
		TransitionResolve:     StateResolved,
		TransitionExpire:      StateExpired,
	},
	StateInvestigating: {
		TransitionResolve: StateResolved,
		TransitionExpire:  StateExpired,
	},
}

// NextState returns the destination state for (current, transition), or
// ("", false) if the edge is not part of the FSM.
func NextState(current AlertState, t Transition) (AlertState, bool) {
	edges, ok := validEdges[current]
	if !ok {
		return "", false
	}
	to, ok := edges[t]
	return to, ok
}

// AlertFilter narrows a ListAlerts query.
type AlertFilter struct {
	TenantID uuid.UUID
	State    *AlertState
	Severity *Severity
	DeviceID *uuid.UUID
	Since    *time.Time
	Limit    int
	Offset   int
}

// SLATarget holds TTA/TTR targets for a severity (§4.5).
type SLATarget struct {
	TTA time.Duration
	TTR time.Duration
}

// DefaultSLATargets returns the spec's default SLA table, by severity.
func DefaultSLATargets() map[Severity]SLATarget {
	return map[Severity]SLATarget{
		SeverityCritical: {TTA: 5 * time.Minute, TTR: 1 * time.Hour},
		SeverityHigh:     {TTA: 15 * time.Minute, TTR: 4 * time.Hour},
		SeverityMedium:   {TTA: 1 * time.Hour, TTR: 24 * time.Hour},
		SeverityLow:      {TTA: 4 * time.Hour, TTR: 72 * time.Hour},
		SeverityInfo:     {}, // N/A
	}
}

// AlertSLA is the one-per-alert SLA tracking row.
type AlertSLA struct {
	AlertID        uuid.UUID  `json:"alert_id"`
	TargetTTA      time.Duration `json:"target_tta"`
	TargetTTR      time.Duration `json:"target_ttr"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	TTASeconds     *float64   `json:"tta_seconds,omitempty"`
	TTRSeconds     *float64   `json:"ttr_seconds,omitempty"`
	TTABreached    bool       `json:"tta_breached"`
	TTRBreached    bool       `json:"ttr_breached"`
}

// GroupStatus is the lifecycle status of an alert group.
type GroupStatus string

const (
	GroupActive GroupStatus = "active"
	GroupClosed GroupStatus = "closed"
)

// NotifyOn controls fan-out suppression for subsequent alerts in a group.
type NotifyOn string

const (
	NotifyFirst       NotifyOn = "first"
	NotifyEvery        NotifyOn = "every"
	NotifyRateLimited NotifyOn = "rate_limited"
)

// AlertGroup aggregates alerts judged "the same event" by grouping key (§4.6).
type AlertGroup struct {
	ID              uuid.UUID   `json:"id"`
	TenantID        uuid.UUID   `json:"tenant_id"`
	Key             GroupKey    `json:"key"`
	Status          GroupStatus `json:"status"`
	FirstOccurrence time.Time   `json:"first_occurrence"`
	LastOccurrence  time.Time   `json:"last_occurrence"`
	OccurrenceCount int         `json:"occurrence_count"`
}

// GroupKey is the grouping tuple from §4.6: (tenant, device, rule_family, metric).
type GroupKey struct {
	TenantID   uuid.UUID
	DeviceID   uuid.UUID
	RuleFamily RuleFamily
	Metric     string
}

// DefaultGroupingWindow is the default window within which a new alert
// attaches to an existing active group instead of starting a new one.
const DefaultGroupingWindow = 5 * time.Minute
