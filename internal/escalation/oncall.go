// Package escalation implements C6: multi-tier escalation policies, the
// priority-queue timer scheduler that drives them, and on-call rotation
// resolution. New subsystem relative to the teacher (no on-call concept
// there); built in the teacher's worker idiom (Start(ctx)/Stop()/run
// select loop) with a container/heap-backed timer queue per §5
// ("priority queue keyed by next-fire time") — the same primitive
// k8s.io/client-go's workqueue builds on, the pack's closest precedent.
package escalation

import (
	"time"

	"github.com/google/uuid"

	"github.com/iiot-platform/core/pkg/types"
)

// unassigned is the zero UUID sentinel meaning "no principal resolved".
var unassigned uuid.UUID

// IsUnassigned reports whether id is the "unassigned" sentinel.
func IsUnassigned(id uuid.UUID) bool { return id == unassigned }

// ResolveOnCall computes the on-call principal for (schedule, instant)
// per §4.6: rotation slot from the schedule's anchor/unit/timezone, then
// any override whose window contains instant, in definition order
// (overrides take precedence). Returns the unassigned sentinel if the
// schedule has no participants.
func ResolveOnCall(sch *types.OnCallSchedule, instant time.Time) uuid.UUID {
	for _, ov := range sch.Overrides {
		if ov.Contains(instant) {
			return ov.UserID
		}
	}
	if len(sch.Rotation) == 0 {
		return unassigned
	}

	loc, err := time.LoadLocation(sch.Timezone)
	if err != nil || sch.Timezone == "" {
		loc = time.UTC
	}
	at := instant.In(loc)
	anchor := sch.Anchor.In(loc)
	if at.Before(anchor) {
		return sch.Rotation[0]
	}

	var slot int64
	switch sch.Unit {
	case types.RotationDaily:
		slot = int64(at.Sub(anchor).Hours() / 24)
	case types.RotationWeekly:
		slot = int64(at.Sub(anchor).Hours() / (24 * 7))
	case types.RotationCustom:
		shift := sch.ShiftEvery
		if shift <= 0 {
			shift = 7 * 24 * time.Hour
		}
		slot = int64(at.Sub(anchor) / shift)
	default:
		slot = int64(at.Sub(anchor).Hours() / (24 * 7))
	}

	n := int64(len(sch.Rotation))
	idx := slot % n
	if idx < 0 {
		idx += n
	}
	return sch.Rotation[idx]
}
