package tenant

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iiot-platform/core/internal/apperr"
	"github.com/iiot-platform/core/pkg/types"
)

type fakeQuotaCounter struct {
	devices, users, telemetry int
	err                        error
}

func (f *fakeQuotaCounter) CountDevices(ctx context.Context, tenantID uuid.UUID) (int, error) {
	return f.devices, f.err
}
func (f *fakeQuotaCounter) CountUsers(ctx context.Context, tenantID uuid.UUID) (int, error) {
	return f.users, f.err
}
func (f *fakeQuotaCounter) CountTelemetryToday(ctx context.Context, tenantID uuid.UUID) (int, error) {
	return f.telemetry, f.err
}

func TestCheckQuota_AllowsWhenUnderLimit(t *testing.T) {
	tc := Context{Quotas: types.TenantQuotas{MaxDevices: 10}}
	err := CheckQuota(context.Background(), &fakeQuotaCounter{devices: 5}, tc, ResourceDevice)
	assert.NoError(t, err)
}

func TestCheckQuota_DeniesAtLimit(t *testing.T) {
	tc := Context{Quotas: types.TenantQuotas{MaxDevices: 5}}
	err := CheckQuota(context.Background(), &fakeQuotaCounter{devices: 5}, tc, ResourceDevice)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Quota))
}

func TestCheckQuota_ZeroMaxMeansUnlimited(t *testing.T) {
	tc := Context{Quotas: types.TenantQuotas{MaxUsers: 0}}
	err := CheckQuota(context.Background(), &fakeQuotaCounter{users: 1_000_000}, tc, ResourceUser)
	assert.NoError(t, err)
}

func TestCheckQuota_UnknownResourceIsValidationError(t *testing.T) {
	tc := Context{}
	err := CheckQuota(context.Background(), &fakeQuotaCounter{}, tc, Resource("bogus"))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Validation))
}

func TestRequireActive_SuspendedTenantRejectsWrites(t *testing.T) {
	tc := Context{Status: types.TenantSuspended}
	err := RequireActive(tc, false)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Auth))
}

func TestRequireActive_SuspendedTenantAllowsReadOnly(t *testing.T) {
	tc := Context{Status: types.TenantSuspended}
	assert.NoError(t, RequireActive(tc, true))
}

func TestRequireActive_ActiveTenantAllowsEverything(t *testing.T) {
	tc := Context{Status: types.TenantActive}
	assert.NoError(t, RequireActive(tc, false))
	assert.NoError(t, RequireActive(tc, true))
}

func TestContext_FeatureLookup(t *testing.T) {
	tc := Context{Features: map[string]bool{"opcua": true}}
	assert.True(t, tc.Feature("opcua"))
	assert.False(t, tc.Feature("unknown"))
}

func TestWithContextAndFromContext_RoundTrip(t *testing.T) {
	tc := Context{TenantID: uuid.New(), Tier: "pro"}
	ctx := WithContext(context.Background(), tc)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, tc, got)
}

func TestFromContext_AbsentReturnsFalse(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}
