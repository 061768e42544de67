package types

import (
	"time"

	"github.com/google/uuid"
)

// RuleFamily is one of the four evaluation kinds (§4.4).
type RuleFamily string

const (
	RuleThreshold   RuleFamily = "THRESHOLD"
	RuleComparison  RuleFamily = "COMPARISON"
	RuleTimeWindow  RuleFamily = "TIME_WINDOW"
	RuleStatistical RuleFamily = "STATISTICAL"
)

// Severity is the urgency assigned to a rule and inherited by its alerts.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// Level returns a numeric severity level for comparison (higher = more severe).
func (s Severity) Level() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// CompareOp is a comparison operator used by THRESHOLD/COMPARISON/TIME_WINDOW/STATISTICAL.
type CompareOp string

const (
	OpLT CompareOp = "<"
	OpLE CompareOp = "<="
	OpGT CompareOp = ">"
	OpGE CompareOp = ">="
	OpEQ CompareOp = "=="
	OpNE CompareOp = "!="
)

// Evaluate applies the operator to (lhs, rhs).
func (op CompareOp) Evaluate(lhs, rhs float64) bool {
	switch op {
	case OpLT:
		return lhs < rhs
	case OpLE:
		return lhs <= rhs
	case OpGT:
		return lhs > rhs
	case OpGE:
		return lhs >= rhs
	case OpEQ:
		return lhs == rhs
	case OpNE:
		return lhs != rhs
	default:
		return false
	}
}

// AggregateFunc names a time-window/statistical aggregate.
type AggregateFunc string

const (
	AggAvg    AggregateFunc = "avg"
	AggMin    AggregateFunc = "min"
	AggMax    AggregateFunc = "max"
	AggSum    AggregateFunc = "sum"
	AggCount  AggregateFunc = "count"
	AggStddev AggregateFunc = "stddev"
	AggZScore AggregateFunc = "zscore"
)

// ThresholdParams is the parameter bundle for a THRESHOLD rule.
type ThresholdParams struct {
	Op    CompareOp `json:"op"`
	Value float64   `json:"value"`
}

// ComparisonParams is the parameter bundle for a COMPARISON rule.
type ComparisonParams struct {
	MetricA string    `json:"metric_a"`
	MetricB string    `json:"metric_b"`
	Op      CompareOp `json:"op"`
}

// TimeWindowParams is the parameter bundle for a TIME_WINDOW rule.
type TimeWindowParams struct {
	WindowSeconds int           `json:"window_seconds"`
	Aggregate     AggregateFunc `json:"aggregate"`
	Op            CompareOp     `json:"op"`
	Value         float64       `json:"value"`
}

// StatisticalParams is the parameter bundle for a STATISTICAL rule.
type StatisticalParams struct {
	WindowSeconds int           `json:"window_seconds"`
	Aggregate     AggregateFunc `json:"aggregate"` // stddev | zscore
	Op            CompareOp     `json:"op"`
	Value         float64       `json:"value"`
}

// ActionType names a notification side-effect.
type ActionType string

const (
	ActionEmail   ActionType = "EMAIL"
	ActionWebhook ActionType = "WEBHOOK"
	ActionPush    ActionType = "PUSH"
)

// Action is a side-effect reference owned by the same tenant as the enclosing rule.
type Action struct {
	ID       uuid.UUID  `json:"id"`
	TenantID uuid.UUID  `json:"tenant_id"`
	Type     ActionType `json:"type"`
	Address  string     `json:"address,omitempty"` // EMAIL
	URL      string     `json:"url,omitempty"`     // WEBHOOK
	Secret   string     `json:"secret,omitempty"`  // WEBHOOK HMAC secret
	Channel  string     `json:"channel,omitempty"` // PUSH
}

// Rule is a tenant-scoped, user-defined evaluation on a device metric.
type Rule struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   uuid.UUID  `json:"tenant_id"`
	Enabled    bool       `json:"enabled"`
	DeviceID   uuid.UUID  `json:"device_id"`
	Metric     string     `json:"metric"`
	Family     RuleFamily `json:"family"`
	Severity   Severity   `json:"severity"`
	ActionIDs  []uuid.UUID `json:"action_ids,omitempty"`

	Threshold  *ThresholdParams   `json:"threshold,omitempty"`
	Comparison *ComparisonParams  `json:"comparison,omitempty"`
	TimeWindow *TimeWindowParams  `json:"time_window,omitempty"`
	Statistical *StatisticalParams `json:"statistical,omitempty"`

	ConsecutiveErrors int       `json:"consecutive_errors"`
	AutoDisabled      bool      `json:"auto_disabled"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
