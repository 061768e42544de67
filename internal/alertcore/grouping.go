package alertcore

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iiot-platform/core/pkg/types"
)

// RateLimiter tracks the last notification time per group for
// notify_on = rate_limited(n/min) fan-out suppression (§4.6).
type RateLimiter struct {
	mu   sync.Mutex
	last map[uuid.UUID]time.Time
}

// NewRateLimiter builds an empty per-group rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{last: make(map[uuid.UUID]time.Time)}
}

// ShouldNotify decides whether a new group occurrence should fan out a
// notification, given the group's NotifyOn policy. perMinute is only
// consulted when policy is NotifyRateLimited.
func (r *RateLimiter) ShouldNotify(groupID uuid.UUID, occurrenceCount int, policy types.NotifyOn, perMinute int, now time.Time) bool {
	switch policy {
	case types.NotifyFirst:
		return occurrenceCount <= 1
	case types.NotifyEvery:
		return true
	case types.NotifyRateLimited:
		if perMinute <= 0 {
			perMinute = 1
		}
		minGap := time.Minute / time.Duration(perMinute)
		r.mu.Lock()
		defer r.mu.Unlock()
		last, seen := r.last[groupID]
		if seen && now.Sub(last) < minGap {
			return false
		}
		r.last[groupID] = now
		return true
	default:
		return true
	}
}
