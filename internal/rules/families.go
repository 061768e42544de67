// Package rules implements C4: the rule engine that evaluates enabled
// rules on a fixed cadence and produces candidate alerts.
package rules

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/iiot-platform/core/pkg/types"
)

// Outcome is the §4.4 evaluation contract: fired(metadata) | ok |
// insufficient_data | error(reason).
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeFired
	OutcomeInsufficientData
	OutcomeError
)

// Result is the full output of evaluating one rule once.
type Result struct {
	Outcome  Outcome
	Message  string
	Metadata map[string]any
	Err      error
}

// TelemetrySource is what a family evaluator needs from C1/C2: the
// latest reading and trailing-window aggregates, cache-first.
type TelemetrySource interface {
	Latest(ctx context.Context, tenantID, deviceID uuid.UUID, metric string) (*types.TelemetryRecord, error)
	Aggregate(ctx context.Context, tenantID, deviceID uuid.UUID, metric string, window time.Duration, agg types.AggregateFunc) (value float64, count int, err error)
	Mean(ctx context.Context, tenantID, deviceID uuid.UUID, metric string, window time.Duration) (mean, stddev float64, count int, err error)
}

// Evaluate dispatches to the family-specific evaluator named by r.Family.
func Evaluate(ctx context.Context, src TelemetrySource, r *types.Rule) Result {
	switch r.Family {
	case types.RuleThreshold:
		return evalThreshold(ctx, src, r)
	case types.RuleComparison:
		return evalComparison(ctx, src, r)
	case types.RuleTimeWindow:
		return evalTimeWindow(ctx, src, r)
	case types.RuleStatistical:
		return evalStatistical(ctx, src, r)
	default:
		return Result{Outcome: OutcomeError, Err: errUnknownFamily(r.Family)}
	}
}

func errUnknownFamily(f types.RuleFamily) error {
	return &unknownFamilyError{family: f}
}

type unknownFamilyError struct{ family types.RuleFamily }

func (e *unknownFamilyError) Error() string { return "unknown rule family: " + string(e.family) }

// evalThreshold fires when the latest reading satisfies {op, value}.
func evalThreshold(ctx context.Context, src TelemetrySource, r *types.Rule) Result {
	if r.Threshold == nil {
		return Result{Outcome: OutcomeError, Err: errMissingParams("threshold")}
	}
	rec, err := src.Latest(ctx, r.TenantID, r.DeviceID, r.Metric)
	if err != nil {
		return Result{Outcome: OutcomeError, Err: err}
	}
	if rec == nil {
		return Result{Outcome: OutcomeInsufficientData}
	}
	if r.Threshold.Op.Evaluate(rec.Value, r.Threshold.Value) {
		return Result{Outcome: OutcomeFired, Metadata: map[string]any{
			"metric": r.Metric, "value": rec.Value, "threshold": r.Threshold.Value, "op": r.Threshold.Op,
		}}
	}
	return Result{Outcome: OutcomeOK}
}

// evalComparison fires when the latest readings of two metrics on the
// same device satisfy {op}. Requires both latest readings to exist;
// otherwise no-fire, no-error (§4.4). The age of the readings is not
// checked against the cadence window.
func evalComparison(ctx context.Context, src TelemetrySource, r *types.Rule) Result {
	if r.Comparison == nil {
		return Result{Outcome: OutcomeError, Err: errMissingParams("comparison")}
	}
	a, err := src.Latest(ctx, r.TenantID, r.DeviceID, r.Comparison.MetricA)
	if err != nil {
		return Result{Outcome: OutcomeError, Err: err}
	}
	b, err := src.Latest(ctx, r.TenantID, r.DeviceID, r.Comparison.MetricB)
	if err != nil {
		return Result{Outcome: OutcomeError, Err: err}
	}
	if a == nil || b == nil {
		return Result{Outcome: OutcomeInsufficientData}
	}
	if r.Comparison.Op.Evaluate(a.Value, b.Value) {
		return Result{Outcome: OutcomeFired, Metadata: map[string]any{
			"metric_a": r.Comparison.MetricA, "value_a": a.Value,
			"metric_b": r.Comparison.MetricB, "value_b": b.Value,
			"op": r.Comparison.Op,
		}}
	}
	return Result{Outcome: OutcomeOK}
}

// evalTimeWindow fires when the aggregate over the trailing window
// satisfies {op, value}.
func evalTimeWindow(ctx context.Context, src TelemetrySource, r *types.Rule) Result {
	if r.TimeWindow == nil {
		return Result{Outcome: OutcomeError, Err: errMissingParams("time_window")}
	}
	window := time.Duration(r.TimeWindow.WindowSeconds) * time.Second
	value, count, err := src.Aggregate(ctx, r.TenantID, r.DeviceID, r.Metric, window, r.TimeWindow.Aggregate)
	if err != nil {
		return Result{Outcome: OutcomeError, Err: err}
	}
	if count == 0 {
		return Result{Outcome: OutcomeInsufficientData}
	}
	if r.TimeWindow.Op.Evaluate(value, r.TimeWindow.Value) {
		return Result{Outcome: OutcomeFired, Metadata: map[string]any{
			"metric": r.Metric, "aggregate": r.TimeWindow.Aggregate, "value": value, "threshold": r.TimeWindow.Value,
		}}
	}
	return Result{Outcome: OutcomeOK}
}

// evalStatistical fires when the statistical measure (stddev or
// zscore) over the trailing window satisfies {op, value}. zscore uses
// a rolling mean/stddev of the same window, grounded on the teacher's
// calculateState z-score math: (value - mean) / stddev.
func evalStatistical(ctx context.Context, src TelemetrySource, r *types.Rule) Result {
	if r.Statistical == nil {
		return Result{Outcome: OutcomeError, Err: errMissingParams("statistical")}
	}
	window := time.Duration(r.Statistical.WindowSeconds) * time.Second

	mean, stddev, count, err := src.Mean(ctx, r.TenantID, r.DeviceID, r.Metric, window)
	if err != nil {
		return Result{Outcome: OutcomeError, Err: err}
	}
	if count == 0 {
		return Result{Outcome: OutcomeInsufficientData}
	}

	var measure float64
	switch r.Statistical.Aggregate {
	case types.AggStddev:
		measure = stddev
	case types.AggZScore:
		rec, err := src.Latest(ctx, r.TenantID, r.DeviceID, r.Metric)
		if err != nil {
			return Result{Outcome: OutcomeError, Err: err}
		}
		if rec == nil || stddev == 0 || math.IsNaN(stddev) {
			return Result{Outcome: OutcomeInsufficientData}
		}
		measure = (rec.Value - mean) / stddev
	default:
		return Result{Outcome: OutcomeError, Err: errMissingParams("statistical aggregate")}
	}

	if r.Statistical.Op.Evaluate(measure, r.Statistical.Value) {
		return Result{Outcome: OutcomeFired, Metadata: map[string]any{
			"metric": r.Metric, "aggregate": r.Statistical.Aggregate, "measure": measure, "threshold": r.Statistical.Value,
		}}
	}
	return Result{Outcome: OutcomeOK}
}

func errMissingParams(family string) error {
	return &missingParamsError{family: family}
}

type missingParamsError struct{ family string }

func (e *missingParamsError) Error() string { return "rule missing " + e.family + " parameter bundle" }
