package types

import (
	"time"

	"github.com/google/uuid"
)

// EventKind names an outbound notification event (§6 webhook format).
type EventKind string

const (
	EventAlertCreated      EventKind = "alert.created"
	EventAlertStateChanged EventKind = "alert.state_changed"
	EventSLABreached       EventKind = "sla.breached"
)

// NotificationEvent is the payload fanned out to every channel.
type NotificationEvent struct {
	Event      EventKind      `json:"event"`
	TenantID   uuid.UUID      `json:"tenant_id"`
	AlertID    uuid.UUID      `json:"alert_id"`
	Severity   Severity       `json:"severity"`
	DeviceID   uuid.UUID      `json:"device_id"`
	Message    string         `json:"message"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// DeliveryStatus is the outcome of a single dispatch attempt.
type DeliveryStatus string

const (
	DeliveryQueued    DeliveryStatus = "queued"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// DeliveryAttempt records one channel's attempt to deliver an event.
type DeliveryAttempt struct {
	ID        uuid.UUID      `json:"id"`
	Channel   Channel        `json:"channel"`
	Recipient string         `json:"recipient"`
	Status    DeliveryStatus `json:"status"`
	Error     string         `json:"error,omitempty"`
	AttemptedAt time.Time    `json:"attempted_at"`
}

// PushFrame is a single newline-delimited JSON frame on the push stream (§6).
type PushFrame struct {
	Seq     int64  `json:"seq"`
	Event   EventKind `json:"event"`
	Payload any    `json:"payload"`
}
