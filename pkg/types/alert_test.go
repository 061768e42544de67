package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextState_ValidEdges(t *testing.T) {
	cases := []struct {
		from  AlertState
		trans Transition
		want  AlertState
	}{
		{StateNew, TransitionAck, StateAcknowledged},
		{StateNew, TransitionResolve, StateResolved},
		{StateNew, TransitionSuppress, StateSuppressed},
		{StateNew, TransitionExpire, StateExpired},
		{StateAcknowledged, TransitionInvestigate, StateInvestigating},
		{StateAcknowledged, TransitionResolve, StateResolved},
		{StateInvestigating, TransitionResolve, StateResolved},
	}
	for _, tc := range cases {
		got, ok := NextState(tc.from, tc.trans)
		assert.True(t, ok, "%s -%s-> should be valid", tc.from, tc.trans)
		assert.Equal(t, tc.want, got)
	}
}

func TestNextState_InvalidEdges(t *testing.T) {
	cases := []struct {
		from  AlertState
		trans Transition
	}{
		{StateResolved, TransitionAck},        // terminal state, no further edges
		{StateNew, TransitionInvestigate},      // must acknowledge first
		{StateSuppressed, TransitionResolve},   // terminal
		{StateExpired, TransitionAck},          // terminal
	}
	for _, tc := range cases {
		_, ok := NextState(tc.from, tc.trans)
		assert.False(t, ok, "%s -%s-> should be invalid", tc.from, tc.trans)
	}
}

func TestAlertState_IsTerminalAndIsOpen(t *testing.T) {
	assert.True(t, StateResolved.IsTerminal())
	assert.True(t, StateSuppressed.IsTerminal())
	assert.True(t, StateExpired.IsTerminal())
	assert.False(t, StateNew.IsTerminal())
	assert.False(t, StateAcknowledged.IsTerminal())

	assert.True(t, StateNew.IsOpen())
	assert.True(t, StateAcknowledged.IsOpen())
	assert.True(t, StateInvestigating.IsOpen())
	assert.False(t, StateResolved.IsOpen())
	assert.False(t, StateExpired.IsOpen())
}

func TestDefaultSLATargets_CoversEverySeverity(t *testing.T) {
	targets := DefaultSLATargets()
	for _, sev := range []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo} {
		_, ok := targets[sev]
		assert.True(t, ok, "missing SLA target for %s", sev)
	}
	assert.Less(t, targets[SeverityCritical].TTA, targets[SeverityHigh].TTA)
	assert.Less(t, targets[SeverityHigh].TTA, targets[SeverityMedium].TTA)
	assert.Less(t, targets[SeverityMedium].TTA, targets[SeverityLow].TTA)
}
