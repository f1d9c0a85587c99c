package signaling

import (
	"errors"
	"testing"

	"github.com/tj/assert"
)

func TestTransitionFromRinging(t *testing.T) {
	tests := []struct {
		event   EventKind
		want    State
		effects []Effect
	}{
		{EventAccept, StateAccepted, []Effect{EffectNotifyCaller}},
		{EventDecline, StateDeclined, []Effect{EffectNotifyCaller}},
		{EventCancel, StateCancelled, []Effect{EffectBroadcastCancel}},
		{EventTimeout, StateTimedOut, []Effect{EffectNotifyCaller}},
	}

	for _, tt := range tests {
		t.Run(string(tt.event), func(t *testing.T) {
			got, effects, err := Transition(StateRinging, tt.event)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.effects, effects)
			assert.True(t, got.Terminal())
		})
	}
}

func TestTransitionFromTerminalStates(t *testing.T) {
	terminal := []State{StateAccepted, StateDeclined, StateCancelled, StateTimedOut}
	events := []EventKind{EventAccept, EventDecline, EventCancel, EventTimeout}

	for _, s := range terminal {
		for _, e := range events {
			got, effects, err := Transition(s, e)
			assert.True(t, errors.Is(err, ErrInvalidTransition))
			assert.Equal(t, s, got)
			assert.Nil(t, effects)
		}
	}
}

func TestTransitionUnknownEvent(t *testing.T) {
	_, _, err := Transition(StateRinging, EventKind("hold"))
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.False(t, StateRinging.Terminal())
}
