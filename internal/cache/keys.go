package cache

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iiot-platform/core/internal/config"
)

// DeviceLatestKey is the key for a device's latest telemetry snapshot
// per metric (§4.2).
func DeviceLatestKey(tenantID, deviceID uuid.UUID) string {
	return fmt.Sprintf("device:%s:%s:latest", tenantID, deviceID)
}

// RulesEnabledKey is the key for a tenant's enabled-rule list.
func RulesEnabledKey(tenantID uuid.UUID) string {
	return fmt.Sprintf("rules:%s:enabled", tenantID)
}

// AggregateKey is the key for a derived aggregate used by TIME_WINDOW
// and STATISTICAL rules.
func AggregateKey(tenantID, deviceID uuid.UUID, metric string, window time.Duration) string {
	return fmt.Sprintf("aggregate:%s:%s:%s:%s", tenantID, deviceID, metric, window)
}

// AggregateTTL bounds a window-derived aggregate's TTL to [30s, 10m],
// equal to window/2, per §4.2.
func AggregateTTL(window time.Duration) time.Duration {
	ttl := window / 2
	if ttl < config.AggregateTTLMin {
		return config.AggregateTTLMin
	}
	if ttl > config.AggregateTTLMax {
		return config.AggregateTTLMax
	}
	return ttl
}
