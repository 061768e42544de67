package types

import (
	"time"

	"github.com/google/uuid"
)

// TelemetryRecord is an immutable reading from a device, once written.
type TelemetryRecord struct {
	TenantID   uuid.UUID      `json:"tenant_id"`
	DeviceID   uuid.UUID      `json:"device_id"`
	Timestamp  time.Time      `json:"timestamp"` // UTC
	Metric     string         `json:"metric"`
	Value      float64        `json:"value"`
	Unit       string         `json:"unit,omitempty"`
	Attributes map[string]any `json:"attrs,omitempty"`
}

// TelemetryRange bounds a range query over C1.
type TelemetryRange struct {
	TenantID uuid.UUID
	DeviceID uuid.UUID
	Metric   string
	From     time.Time
	To       time.Time
	Limit    int
}

// MaxRangeLimit caps the number of rows a single range query may return (§4.1).
const MaxRangeLimit = 10000

// ClockSkewTolerance is the maximum amount a telemetry record's timestamp
// may be ahead of server wall time before it is rejected (§3 invariant 2).
// There is no lower bound: a reading timestamped arbitrarily far in the
// past is a normal buffered/delayed device report, not a clock-skew fault.
const ClockSkewTolerance = 60 * time.Second
