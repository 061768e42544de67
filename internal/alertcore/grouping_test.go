package alertcore

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/iiot-platform/core/pkg/types"
)

func TestRateLimiter_NotifyFirstOnlyFirstOccurrence(t *testing.T) {
	r := NewRateLimiter()
	g := uuid.New()
	now := time.Now()

	assert.True(t, r.ShouldNotify(g, 1, types.NotifyFirst, 0, now))
	assert.False(t, r.ShouldNotify(g, 2, types.NotifyFirst, 0, now))
	assert.False(t, r.ShouldNotify(g, 3, types.NotifyFirst, 0, now))
}

func TestRateLimiter_NotifyEveryAlwaysFires(t *testing.T) {
	r := NewRateLimiter()
	g := uuid.New()
	now := time.Now()

	for i := 1; i <= 5; i++ {
		assert.True(t, r.ShouldNotify(g, i, types.NotifyEvery, 0, now))
	}
}

func TestRateLimiter_RateLimitedSuppressesWithinWindow(t *testing.T) {
	r := NewRateLimiter()
	g := uuid.New()
	now := time.Now()

	assert.True(t, r.ShouldNotify(g, 1, types.NotifyRateLimited, 2, now), "first occurrence always notifies")
	assert.False(t, r.ShouldNotify(g, 2, types.NotifyRateLimited, 2, now.Add(10*time.Second)), "within the 30s min-gap for 2/min")
	assert.True(t, r.ShouldNotify(g, 3, types.NotifyRateLimited, 2, now.Add(31*time.Second)), "past the min-gap")
}

func TestRateLimiter_RateLimitedIndependentPerGroup(t *testing.T) {
	r := NewRateLimiter()
	a, b := uuid.New(), uuid.New()
	now := time.Now()

	assert.True(t, r.ShouldNotify(a, 1, types.NotifyRateLimited, 1, now))
	assert.True(t, r.ShouldNotify(b, 1, types.NotifyRateLimited, 1, now))
}
