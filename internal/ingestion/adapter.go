package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iiot-platform/core/internal/apperr"
	"github.com/iiot-platform/core/internal/cache"
	"github.com/iiot-platform/core/pkg/types"
)

// Parser turns a transport's raw payload into a telemetry record, minus
// the tenant/device identity (filled in by the resolved peer). Each
// protocol supplies its own wire format; the default parsers here
// expect a flat JSON object {"metric": "...", "value": ..., "ts": ...}.
type Parser interface {
	Parse(payload []byte) (metric string, value float64, ts time.Time, attrs map[string]any, err error)
}

// MetricBounds restricts a metric to an optional value range.
type MetricBounds struct {
	Min, Max *float64
}

// Validator enforces §4.3 step 4: metric allow-listing and optional
// per-metric range bounds, on top of the clock-skew check the Adapter
// applies itself.
type Validator struct {
	AllowedMetrics map[string]MetricBounds // empty map => allow-list disabled
}

// Validate checks metric against the allow-list (if non-empty) and
// value against its bounds.
func (v Validator) Validate(metric string, value float64) error {
	if len(v.AllowedMetrics) == 0 {
		return nil
	}
	bounds, ok := v.AllowedMetrics[metric]
	if !ok {
		return apperr.NewValidation(fmt.Sprintf("metric %q not in allow-list", metric), nil)
	}
	if bounds.Min != nil && value < *bounds.Min {
		return apperr.NewValidation(fmt.Sprintf("value %v below minimum %v for metric %q", value, *bounds.Min, metric), nil)
	}
	if bounds.Max != nil && value > *bounds.Max {
		return apperr.NewValidation(fmt.Sprintf("value %v above maximum %v for metric %q", value, *bounds.Max, metric), nil)
	}
	return nil
}

// Appender is the C1 capability the adapter needs: append only. The
// adapter invalidates the cache for the device it just wrote itself.
type Appender interface {
	AppendTelemetry(ctx context.Context, rec types.TelemetryRecord) error
}

// Config bounds an adapter's reconnect behavior (§4.3 backoff).
// InboxSize is carried in the config but the Adapter does not read it;
// messages are handled one at a time as the transport delivers them.
type Config struct {
	InboxSize      int
	ReconnectBase  time.Duration
	ReconnectCap   time.Duration
}

// DefaultConfig matches the spec's defaults: exponential backoff capped
// at 60s, a modest bounded inbox.
func DefaultConfig() Config {
	return Config{
		InboxSize:     1024,
		ReconnectBase: 1 * time.Second,
		ReconnectCap:  60 * time.Second,
	}
}

// Adapter runs the five-step pipeline from §4.3 over a Transport: peer
// authentication already happened inside Transport.Listen; here we
// resolve the peer to a tenant/device, parse, validate, and append.
type Adapter struct {
	transport Transport
	resolver  PeerResolver
	parser    Parser
	validator Validator
	appender  Appender
	cache     cache.Cache
	deadLtr   DeadLetterSink
	cfg       Config
	logger    *slog.Logger

	stopCh chan struct{}
}

// NewAdapter builds an adapter wiring one protocol Transport into the
// shared pipeline.
func NewAdapter(t Transport, resolver PeerResolver, parser Parser, validator Validator, appender Appender, c cache.Cache, dl DeadLetterSink, cfg Config, logger *slog.Logger) *Adapter {
	return &Adapter{
		transport: t,
		resolver:  resolver,
		parser:    parser,
		validator: validator,
		appender:  appender,
		cache:     c,
		deadLtr:   dl,
		cfg:       cfg,
		logger:    logger.With("component", "ingestion_adapter", "transport", t.Name()),
		stopCh:    make(chan struct{}),
	}
}

// Start begins consuming the transport in a goroutine.
func (a *Adapter) Start(ctx context.Context) {
	go a.run(ctx)
}

// Stop signals the adapter to stop.
func (a *Adapter) Stop() {
	close(a.stopCh)
	_ = a.transport.Close()
}

func (a *Adapter) run(ctx context.Context) {
	backoff := a.cfg.ReconnectBase
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		default:
		}

		msgs, err := a.transport.Listen(ctx)
		if err != nil {
			a.logger.Warn("transport listen failed, backing off", "error", err, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			case <-a.stopCh:
				return
			}
			backoff *= 2
			if backoff > a.cfg.ReconnectCap {
				backoff = a.cfg.ReconnectCap
			}
			continue
		}
		backoff = a.cfg.ReconnectBase

		a.drain(ctx, msgs)
	}
}

// drain consumes msgs until the channel closes (broker disconnect) or
// the adapter is stopped.
func (a *Adapter) drain(ctx context.Context, msgs <-chan RawMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			a.handle(ctx, msg)
		}
	}
}

// handle runs the five-step pipeline for a single message.
func (a *Adapter) handle(ctx context.Context, msg RawMessage) {
	reg, err := a.resolver.ResolvePeer(ctx, a.transport.Name(), msg.PeerID)
	if err != nil || reg == nil {
		a.logger.Warn("unknown peer rejected", "peer_id", msg.PeerID)
		a.deadLtr.Record(ctx, DeadLetter{
			Transport: a.transport.Name(), PeerID: msg.PeerID, Payload: msg.Payload,
			Reason: "unknown peer", At: msg.ReceiveAt,
		})
		return
	}

	metric, value, ts, attrs, err := a.parser.Parse(msg.Payload)
	if err != nil {
		a.deadLtr.Record(ctx, DeadLetter{
			Transport: a.transport.Name(), PeerID: msg.PeerID, Payload: msg.Payload,
			Reason: "parse error: " + err.Error(), At: msg.ReceiveAt,
		})
		return
	}

	if d := ts.Sub(msg.ReceiveAt); d > types.ClockSkewTolerance {
		a.deadLtr.Record(ctx, DeadLetter{
			Transport: a.transport.Name(), PeerID: msg.PeerID, Payload: msg.Payload,
			Reason: "clock skew exceeds tolerance", At: msg.ReceiveAt,
		})
		return
	}

	if err := a.validator.Validate(metric, value); err != nil {
		a.deadLtr.Record(ctx, DeadLetter{
			Transport: a.transport.Name(), PeerID: msg.PeerID, Payload: msg.Payload,
			Reason: err.Error(), At: msg.ReceiveAt,
		})
		return
	}

	rec := types.TelemetryRecord{
		TenantID:   reg.TenantID,
		DeviceID:   reg.DeviceID,
		Timestamp:  ts,
		Metric:     metric,
		Value:      value,
		Attributes: attrs,
	}

	if err := a.appender.AppendTelemetry(ctx, rec); err != nil {
		if apperr.Is(err, apperr.Transient) {
			// Backpressure signal: the broker will redeliver, CoAP
			// replies busy, OPC-UA tags the write overloaded.
			a.transport.Busy(msg.PeerID)
			return
		}
		a.logger.Error("append failed", "error", err, "device_id", reg.DeviceID)
		return
	}

	_ = a.cache.Delete(ctx, cache.DeviceLatestKey(reg.TenantID, reg.DeviceID))
}
