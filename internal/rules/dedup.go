package rules

import (
	"sync"

	"github.com/google/uuid"
)

// guardSet enforces §4.4's "two evaluations of the same rule cannot
// overlap" invariant: the scheduler holds a per-rule guard for the
// duration of one evaluation. tryLock reports false if another
// evaluation of the same rule is already in flight, in which case the
// scheduler skips this tick for that rule rather than blocking.
type guardSet struct {
	mu    sync.Mutex
	inUse map[uuid.UUID]struct{}
}

func newGuardSet() *guardSet {
	return &guardSet{inUse: make(map[uuid.UUID]struct{})}
}

func (g *guardSet) tryLock(ruleID uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inUse[ruleID]; busy {
		return false
	}
	g.inUse[ruleID] = struct{}{}
	return true
}

func (g *guardSet) unlock(ruleID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inUse, ruleID)
}
