package types

import (
	"time"

	"github.com/google/uuid"
)

// Channel names a notification channel usable by an escalation tier.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelWebhook Channel = "webhook"
	ChannelPush    Channel = "push"
)

// RecipientKind selects how a tier resolves its recipient.
type RecipientKind string

const (
	RecipientFixedUser RecipientKind = "fixed_user"
	RecipientRole      RecipientKind = "role"
	RecipientOnCall    RecipientKind = "on_call"
)

// RecipientResolver maps (escalation tier, instant) to a set of principals.
type RecipientResolver struct {
	Kind       RecipientKind `json:"kind"`
	UserID     *uuid.UUID    `json:"user_id,omitempty"`
	Role       string        `json:"role,omitempty"`
	ScheduleID *uuid.UUID    `json:"schedule_id,omitempty"`
}

// EscalationTier is one ordered step of an escalation policy.
type EscalationTier struct {
	Wait              time.Duration     `json:"wait"`
	Channels          []Channel         `json:"channels"`
	Recipient         RecipientResolver `json:"recipient"`
	SecondaryUserID   *uuid.UUID        `json:"secondary_user_id,omitempty"`
}

// EscalationPolicy is an ordered list of tiers applying to a severity set.
type EscalationPolicy struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   uuid.UUID  `json:"tenant_id"`
	Name       string     `json:"name"`
	Severities []Severity `json:"severities"`
	Tiers      []EscalationTier `json:"tiers"`
}

// Matches reports whether the policy applies to the given severity.
func (p *EscalationPolicy) Matches(sev Severity) bool {
	for _, s := range p.Severities {
		if s == sev {
			return true
		}
	}
	return false
}

// RotationUnit names the cadence of an on-call rotation.
type RotationUnit string

const (
	RotationDaily  RotationUnit = "daily"
	RotationWeekly RotationUnit = "weekly"
	RotationCustom RotationUnit = "custom"
)

// OnCallOverride replaces the computed rotation slot for a time window.
type OnCallOverride struct {
	UserID uuid.UUID `json:"user_id"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
}

// Contains reports whether instant falls within [From, To).
func (o OnCallOverride) Contains(instant time.Time) bool {
	return !instant.Before(o.From) && instant.Before(o.To)
}

// OnCallSchedule is a named rotation of principals.
type OnCallSchedule struct {
	ID         uuid.UUID        `json:"id"`
	TenantID   uuid.UUID        `json:"tenant_id"`
	Name       string           `json:"name"`
	Rotation   []uuid.UUID      `json:"rotation"` // ordered participants
	Unit       RotationUnit     `json:"unit"`
	ShiftEvery time.Duration    `json:"shift_every"` // used when Unit == RotationCustom
	Anchor     time.Time        `json:"anchor"`       // start of rotation slot 0
	Timezone   string           `json:"timezone"`
	Overrides  []OnCallOverride `json:"overrides,omitempty"`
}

// EscalationTimer is a scheduled tier-fire entry (persisted state layout §6).
type EscalationTimer struct {
	ID       uuid.UUID `json:"id"`
	AlertID  uuid.UUID `json:"alert_id"`
	PolicyID uuid.UUID `json:"policy_id"`
	Tier     int       `json:"tier"`
	FireAt   time.Time `json:"fire_at"`
	Fired    bool      `json:"fired"`
	Canceled bool      `json:"canceled"`
}
