package rules

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iiot-platform/core/pkg/types"
)

// RuleLister is C4's view of the enabled-rule list. The engine reads it
// from the store on every tick; no cache sits in front of it.
type RuleLister interface {
	ListEnabledRules(ctx context.Context, tenantID uuid.UUID) ([]types.Rule, error)
}

// TenantLister supplies the set of tenants the scheduler sweeps each tick.
type TenantLister interface {
	ListActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// ErrorRecorder implements the §7 auto-disable path for rules that
// error repeatedly.
type ErrorRecorder interface {
	RecordRuleError(ctx context.Context, ruleID uuid.UUID, threshold int) (autoDisabled bool, err error)
	ResetRuleErrors(ctx context.Context, ruleID uuid.UUID) error
}

// AlertSink receives a fired evaluation; C5 owns whether it produces a
// new alert, dedupes against an open one, or folds it into a group.
type AlertSink interface {
	HandleFired(ctx context.Context, r *types.Rule, res Result) error
}

// Config bounds the scheduler's cadence and concurrency (§4.4: default
// 30s, per-tenant overridable; bounded worker pool).
type Config struct {
	Interval           time.Duration
	WorkerPoolSize     int // 0 => runtime.NumCPU()
	AutoDisableErrors  int
}

// DefaultConfig matches the spec's defaults.
func DefaultConfig() Config {
	return Config{Interval: 30 * time.Second, WorkerPoolSize: 0, AutoDisableErrors: 5}
}

// Engine is the C4 scheduler: on each tick it fetches the enabled-rule
// list per tenant and evaluates each rule in parallel within a bounded
// worker pool (rules are not grouped by device) — grounded on
// evaluator_worker.go's ticker + bulk-fetch + bounded-evaluation shape.
type Engine struct {
	tenants  TenantLister
	rules    RuleLister
	src      TelemetrySource
	errs     ErrorRecorder
	sink     AlertSink
	cfg      Config
	logger   *slog.Logger
	guard    *guardSet
	stopCh   chan struct{}
}

// NewEngine builds a rule engine.
func NewEngine(tenants TenantLister, rules RuleLister, src TelemetrySource, errs ErrorRecorder, sink AlertSink, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		tenants: tenants,
		rules:   rules,
		src:     src,
		errs:    errs,
		sink:    sink,
		cfg:     cfg,
		logger:  logger.With("component", "rule_engine"),
		guard:   newGuardSet(),
		stopCh:  make(chan struct{}),
	}
}

// Start begins the scheduler loop in a goroutine.
func (e *Engine) Start(ctx context.Context) {
	go e.run(ctx)
}

// Stop signals the scheduler to stop.
func (e *Engine) Stop() {
	close(e.stopCh)
}

func (e *Engine) run(ctx context.Context) {
	e.logger.Info("rule engine started", "interval", e.cfg.Interval)

	e.runOnce(ctx)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("rule engine stopping (context canceled)")
			return
		case <-e.stopCh:
			e.logger.Info("rule engine stopping (stop signal)")
			return
		case <-ticker.C:
			e.runOnce(ctx)
		}
	}
}

func (e *Engine) runOnce(ctx context.Context) {
	start := time.Now()

	tenantIDs, err := e.tenants.ListActiveTenantIDs(ctx)
	if err != nil {
		e.logger.Error("failed to list active tenants", "error", err)
		return
	}

	var allRules []types.Rule
	for _, tid := range tenantIDs {
		rs, err := e.rules.ListEnabledRules(ctx, tid)
		if err != nil {
			e.logger.Error("failed to list enabled rules", "tenant_id", tid, "error", err)
			continue
		}
		allRules = append(allRules, rs...)
	}
	if len(allRules) == 0 {
		return
	}

	poolSize := e.cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
	}
	sem := make(chan struct{}, poolSize)
	var wg sync.WaitGroup

	fired, errored, skipped := 0, 0, 0
	var mu sync.Mutex

	for i := range allRules {
		r := allRules[i]
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if !e.guard.tryLock(r.ID) {
				mu.Lock()
				skipped++
				mu.Unlock()
				return
			}
			defer e.guard.unlock(r.ID)

			res := Evaluate(ctx, e.src, &r)
			switch res.Outcome {
			case OutcomeFired:
				if err := e.sink.HandleFired(ctx, &r, res); err != nil {
					e.logger.Error("alert sink failed", "rule_id", r.ID, "error", err)
				}
				mu.Lock()
				fired++
				mu.Unlock()
				_ = e.errs.ResetRuleErrors(ctx, r.ID)
			case OutcomeOK:
				_ = e.errs.ResetRuleErrors(ctx, r.ID)
			case OutcomeInsufficientData:
				// Silent per §4.4.
			case OutcomeError:
				mu.Lock()
				errored++
				mu.Unlock()
				e.recordError(ctx, r.ID, res.Err)
			}
		}()
	}
	wg.Wait()

	e.logger.Info("rule engine cycle complete",
		"duration", time.Since(start),
		"rules_evaluated", len(allRules),
		"fired", fired,
		"errored", errored,
		"skipped_inflight", skipped,
	)
}

func (e *Engine) recordError(ctx context.Context, ruleID uuid.UUID, cause error) {
	e.logger.Warn("rule evaluation error", "rule_id", ruleID, "error", cause)
	autoDisabled, err := e.errs.RecordRuleError(ctx, ruleID, e.cfg.AutoDisableErrors)
	if err != nil {
		e.logger.Error("failed to record rule error", "rule_id", ruleID, "error", err)
		return
	}
	if autoDisabled {
		e.logger.Warn("rule auto-disabled after repeated errors", "rule_id", ruleID)
	}
}
