// Package tenant implements C8: tenant context resolution, quota checks,
// and isolation enforcement. Every boundary entry point (ingestion, API,
// rule scheduler start) resolves a Context and carries it explicitly
// through the call stack — never as a process-global, per the Design
// Notes.
package tenant

import (
	"context"

	"github.com/google/uuid"

	"github.com/iiot-platform/core/internal/apperr"
	"github.com/iiot-platform/core/pkg/types"
)

// Context bundles everything a boundary call needs to know about the
// tenant it is acting on behalf of.
type Context struct {
	TenantID uuid.UUID
	Tier     string
	Features map[string]bool
	Quotas   types.TenantQuotas
	Status   types.TenantStatus
}

// Feature reports whether the named feature flag is enabled for the tenant.
func (c Context) Feature(name string) bool {
	return c.Features[name]
}

type ctxKey struct{}

// WithContext attaches a tenant Context to a context.Context.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// FromContext extracts the tenant Context, or ok=false if none is set.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

// Resolver loads a tenant's context from the store, used by every
// boundary entry point (HTTP, ingestion, scheduler start) to build a
// Context before any work begins.
type Resolver interface {
	ResolveTenant(ctx context.Context, tenantID uuid.UUID) (Context, error)
}

// QuotaCounter reports the current usage for a quota-checked resource,
// so CheckQuota can compare current_count+1 <= max before any create.
type QuotaCounter interface {
	CountDevices(ctx context.Context, tenantID uuid.UUID) (int, error)
	CountUsers(ctx context.Context, tenantID uuid.UUID) (int, error)
	CountTelemetryToday(ctx context.Context, tenantID uuid.UUID) (int, error)
}

// Resource names a quota-checked resource kind.
type Resource string

const (
	ResourceDevice    Resource = "device"
	ResourceUser      Resource = "user"
	ResourceTelemetry Resource = "telemetry"
)

// CheckQuota enforces invariant 6: quota checks run before any
// create-device/create-user (and, here, before ingest); denial returns
// apperr.Quota regardless of other permissions.
func CheckQuota(ctx context.Context, counter QuotaCounter, tc Context, resource Resource) error {
	var current, max int
	var err error

	switch resource {
	case ResourceDevice:
		current, err = counter.CountDevices(ctx, tc.TenantID)
		max = tc.Quotas.MaxDevices
	case ResourceUser:
		current, err = counter.CountUsers(ctx, tc.TenantID)
		max = tc.Quotas.MaxUsers
	case ResourceTelemetry:
		current, err = counter.CountTelemetryToday(ctx, tc.TenantID)
		max = tc.Quotas.MaxTelemetryPerDay
	default:
		return apperr.NewValidation("unknown quota resource", nil)
	}
	if err != nil {
		return apperr.NewTransient("quota count failed", err)
	}
	if max > 0 && current+1 > max {
		return apperr.NewQuota("quota exceeded for "+string(resource), nil)
	}
	return nil
}

// RequireActive rejects writes, and non-read-only reads, for suspended
// tenants.
func RequireActive(tc Context, readOnly bool) error {
	if tc.Status == types.TenantSuspended && !readOnly {
		return apperr.NewAuth("tenant suspended", nil)
	}
	if tc.Status == types.TenantSuspended && readOnly {
		// Suspended tenants may still perform read-only operations per §4.8
		// ("reject all writes and all non-read-only reads") — a plain read
		// is allowed.
		return nil
	}
	return nil
}
