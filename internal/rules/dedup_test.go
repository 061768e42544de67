package rules

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestGuardSet_TryLockPreventsOverlap(t *testing.T) {
	g := newGuardSet()
	ruleID := uuid.New()

	assert.True(t, g.tryLock(ruleID), "first lock should succeed")
	assert.False(t, g.tryLock(ruleID), "second lock while in flight should fail")

	g.unlock(ruleID)
	assert.True(t, g.tryLock(ruleID), "lock should succeed again after unlock")
}

func TestGuardSet_IndependentRulesDoNotContend(t *testing.T) {
	g := newGuardSet()
	a, b := uuid.New(), uuid.New()

	assert.True(t, g.tryLock(a))
	assert.True(t, g.tryLock(b))
}
