package escalation

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/iiot-platform/core/pkg/types"
)

func TestResolveOnCall_DailyRotationAdvancesBySlot(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	sch := &types.OnCallSchedule{
		Rotation: []uuid.UUID{alice, bob, carol},
		Unit:     types.RotationDaily,
		Anchor:   anchor,
		Timezone: "UTC",
	}

	assert.Equal(t, alice, ResolveOnCall(sch, anchor))
	assert.Equal(t, bob, ResolveOnCall(sch, anchor.Add(24*time.Hour)))
	assert.Equal(t, carol, ResolveOnCall(sch, anchor.Add(48*time.Hour)))
	assert.Equal(t, alice, ResolveOnCall(sch, anchor.Add(72*time.Hour)), "rotation wraps")
}

func TestResolveOnCall_BeforeAnchorReturnsFirstParticipant(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	alice, bob := uuid.New(), uuid.New()
	sch := &types.OnCallSchedule{
		Rotation: []uuid.UUID{alice, bob},
		Unit:     types.RotationDaily,
		Anchor:   anchor,
		Timezone: "UTC",
	}

	assert.Equal(t, alice, ResolveOnCall(sch, anchor.Add(-time.Hour)))
}

func TestResolveOnCall_OverrideTakesPrecedenceOverRotation(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	alice, bob, standin := uuid.New(), uuid.New(), uuid.New()
	overrideStart := anchor.Add(12 * time.Hour)
	overrideEnd := anchor.Add(36 * time.Hour)
	sch := &types.OnCallSchedule{
		Rotation: []uuid.UUID{alice, bob},
		Unit:     types.RotationDaily,
		Anchor:   anchor,
		Timezone: "UTC",
		Overrides: []types.OnCallOverride{
			{UserID: standin, From: overrideStart, To: overrideEnd},
		},
	}

	// Without the override this instant would resolve to alice (slot 0).
	assert.Equal(t, standin, ResolveOnCall(sch, overrideStart))
	// Just before/after the override window, the rotation resumes.
	assert.Equal(t, alice, ResolveOnCall(sch, overrideStart.Add(-time.Minute)))
	assert.Equal(t, bob, ResolveOnCall(sch, overrideEnd))
}

func TestResolveOnCall_EmptyRotationIsUnassigned(t *testing.T) {
	sch := &types.OnCallSchedule{Timezone: "UTC"}
	got := ResolveOnCall(sch, time.Now())
	assert.True(t, IsUnassigned(got))
}
