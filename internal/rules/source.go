package rules

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/iiot-platform/core/internal/cache"
	"github.com/iiot-platform/core/pkg/types"
)

// TelemetryStore is C1's view needed by the cached source.
type TelemetryStore interface {
	LatestTelemetry(ctx context.Context, tenantID, deviceID uuid.UUID, metric string) (*types.TelemetryRecord, error)
	AggregateTelemetry(ctx context.Context, tenantID, deviceID uuid.UUID, metric string, since time.Time, agg types.AggregateFunc) (float64, int, error)
}

// CachedSource implements TelemetrySource as cache-then-store, per
// §4.4's "uses the aggregate cache key" / §4.2 cache-fronting design.
type CachedSource struct {
	store TelemetryStore
	cache cache.Cache
	now   func() time.Time
}

// NewCachedSource builds a TelemetrySource fronting store with cache.
func NewCachedSource(store TelemetryStore, c cache.Cache) *CachedSource {
	return &CachedSource{store: store, cache: c, now: time.Now}
}

func (s *CachedSource) Latest(ctx context.Context, tenantID, deviceID uuid.UUID, metric string) (*types.TelemetryRecord, error) {
	key := cache.DeviceLatestKey(tenantID, deviceID) + ":" + metric
	var rec types.TelemetryRecord
	if hit, _ := s.cache.GetJSON(ctx, key, &rec); hit {
		return &rec, nil
	}
	got, err := s.store.LatestTelemetry(ctx, tenantID, deviceID, metric)
	if err != nil || got == nil {
		return got, err
	}
	_ = s.cache.SetJSON(ctx, key, got, 60*time.Second)
	return got, nil
}

func (s *CachedSource) Aggregate(ctx context.Context, tenantID, deviceID uuid.UUID, metric string, window time.Duration, agg types.AggregateFunc) (float64, int, error) {
	key := cache.AggregateKey(tenantID, deviceID, metric, window) + ":" + string(agg)
	var cached aggregateCacheEntry
	if hit, _ := s.cache.GetJSON(ctx, key, &cached); hit {
		return cached.Value, cached.Count, nil
	}
	value, count, err := s.store.AggregateTelemetry(ctx, tenantID, deviceID, metric, s.now().Add(-window), agg)
	if err != nil {
		return 0, 0, err
	}
	_ = s.cache.SetJSON(ctx, key, aggregateCacheEntry{Value: value, Count: count}, cache.AggregateTTL(window))
	return value, count, nil
}

func (s *CachedSource) Mean(ctx context.Context, tenantID, deviceID uuid.UUID, metric string, window time.Duration) (mean, stddev float64, count int, err error) {
	mean, count, err = s.Aggregate(ctx, tenantID, deviceID, metric, window, types.AggAvg)
	if err != nil || count == 0 {
		return 0, 0, count, err
	}
	stddev, _, err = s.Aggregate(ctx, tenantID, deviceID, metric, window, types.AggStddev)
	if err != nil {
		return 0, 0, 0, err
	}
	return mean, stddev, count, nil
}

type aggregateCacheEntry struct {
	Value float64 `json:"value"`
	Count int     `json:"count"`
}
