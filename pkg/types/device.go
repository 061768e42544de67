package types

import (
	"time"

	"github.com/google/uuid"
)

// Device is a tenant-scoped physical or virtual asset emitting telemetry.
type Device struct {
	ID         uuid.UUID      `json:"id"`
	TenantID   uuid.UUID      `json:"tenant_id"`
	Name       string         `json:"name"`
	DeviceType string         `json:"device_type"`
	Location   string         `json:"location,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
