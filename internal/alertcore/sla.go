package alertcore

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// BreachNotifier receives a breach event, consumable by C6 per §4.5
// ("emitting a breach event consumable by C6").
type BreachNotifier interface {
	OnSLABreach(ctx context.Context, alertID uuid.UUID)
}

// SLASweeper runs the §4.5 background SLA sweep every minute, marking
// breach flags on overdue-but-unresolved alerts.
type SLASweeper struct {
	store    Store
	breaches BreachNotifier
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
	stopCh   chan struct{}
}

// NewSLASweeper builds the sweep task.
func NewSLASweeper(store Store, breaches BreachNotifier, interval time.Duration, logger *slog.Logger) *SLASweeper {
	return &SLASweeper{
		store:    store,
		breaches: breaches,
		interval: interval,
		logger:   logger.With("component", "sla_sweeper"),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the sweep loop in a goroutine.
func (w *SLASweeper) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop signals the sweep loop to stop.
func (w *SLASweeper) Stop() {
	close(w.stopCh)
}

func (w *SLASweeper) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweepOnce(ctx)
		}
	}
}

func (w *SLASweeper) sweepOnce(ctx context.Context) {
	breached, err := w.store.SweepOverdueAlerts(ctx, w.now())
	if err != nil {
		w.logger.Error("sla sweep failed", "error", err)
		return
	}
	for _, id := range breached {
		w.breaches.OnSLABreach(ctx, id)
	}
	if len(breached) > 0 {
		w.logger.Info("sla sweep found breaches", "count", len(breached))
	}
}
