// Package types defines the core domain types shared across the
// ingestion, rule-evaluation, and alert-distribution pipeline.
//
// # Design Principles
//
// 1. Simplicity: types represent the domain model directly, no ORM abstractions.
// 2. Serialization: every type is JSON-serializable for transport and push frames.
// 3. Tenant scoping: every persisted entity carries a TenantID.
package types

import (
	"time"

	"github.com/google/uuid"
)

// TenantStatus is the lifecycle status of a tenant.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
	TenantTrial     TenantStatus = "trial"
)

// Tenant owns every device, rule, and alert in the system.
type Tenant struct {
	ID        uuid.UUID      `json:"id"`
	Slug      string         `json:"slug"`
	Status    TenantStatus   `json:"status"`
	Tier      string         `json:"tier"`
	Quotas    TenantQuotas   `json:"quotas"`
	Features  map[string]bool `json:"features,omitempty"`
	Branding  map[string]any `json:"branding,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// TenantQuotas bounds how much of the system a tenant may consume.
type TenantQuotas struct {
	MaxDevices            int `json:"max_devices"`
	MaxUsers              int `json:"max_users"`
	MaxTelemetryPerDay    int `json:"max_telemetry_per_day"`
}

// Principal is the authenticated actor on whose behalf an operation runs.
type Principal struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	Roles       []string  `json:"roles,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
}

// HasPermission reports whether the principal carries the given permission.
func (p Principal) HasPermission(perm string) bool {
	for _, v := range p.Permissions {
		if v == perm {
			return true
		}
	}
	return false
}

// HasRole reports whether the principal carries the given role.
func (p Principal) HasRole(role string) bool {
	for _, v := range p.Roles {
		if v == role {
			return true
		}
	}
	return false
}

// UserContact holds the destination addresses a tenant user has on file
// for each notification channel (§4.7). A zero value for a given
// channel means the user has not configured that channel.
type UserContact struct {
	UserID        uuid.UUID `json:"user_id"`
	TenantID      uuid.UUID `json:"tenant_id"`
	Email         string    `json:"email,omitempty"`
	PushChannel   string    `json:"push_channel,omitempty"`
	WebhookURL    string    `json:"webhook_url,omitempty"`
	WebhookSecret string    `json:"webhook_secret,omitempty"`
	Roles         []string  `json:"roles,omitempty"`
}
