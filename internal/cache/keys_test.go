package cache

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAggregateTTL_ClampsToMinimum(t *testing.T) {
	assert.Equal(t, 30*time.Second, AggregateTTL(10*time.Second))
}

func TestAggregateTTL_ClampsToMaximum(t *testing.T) {
	assert.Equal(t, 10*time.Minute, AggregateTTL(time.Hour))
}

func TestAggregateTTL_HalfOfWindowWithinBounds(t *testing.T) {
	assert.Equal(t, 2*time.Minute, AggregateTTL(4*time.Minute))
}

func TestDeviceLatestKey_IncludesTenantAndDevice(t *testing.T) {
	tenant, device := uuid.New(), uuid.New()
	key := DeviceLatestKey(tenant, device)
	assert.Contains(t, key, tenant.String())
	assert.Contains(t, key, device.String())
}

func TestRulesEnabledKey_IncludesTenant(t *testing.T) {
	tenant := uuid.New()
	assert.Contains(t, RulesEnabledKey(tenant), tenant.String())
}
