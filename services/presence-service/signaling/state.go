// Package signaling brokers the call-setup handshake between two users.
package signaling

import (
	"errors"
	"fmt"
)

// State of a call session. Every state except StateRinging is terminal.
type State string

const (
	StateRinging   State = "ringing"
	StateAccepted  State = "accepted"
	StateDeclined  State = "declined"
	StateCancelled State = "cancelled"
	StateTimedOut  State = "timed_out"
)

func (s State) Terminal() bool {
	return s != StateRinging
}

type EventKind string

const (
	EventAccept  EventKind = "accept"
	EventDecline EventKind = "decline"
	EventCancel  EventKind = "cancel"
	EventTimeout EventKind = "timeout"
)

// Effect is a notification the coordinator must emit after a transition.
type Effect string

const (
	// EffectNotifyCaller sends the outcome to the caller only.
	EffectNotifyCaller Effect = "notify_caller"
	// EffectBroadcastCancel tells every connected client the room is gone.
	EffectBroadcastCancel Effect = "broadcast_cancel"
)

var ErrInvalidTransition = errors.New("invalid call transition")

// Transition applies event to state. Only a ringing session accepts events.
func Transition(state State, event EventKind) (State, []Effect, error) {
	if state.Terminal() {
		return state, nil, fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, event, state)
	}

	switch event {
	case EventAccept:
		return StateAccepted, []Effect{EffectNotifyCaller}, nil
	case EventDecline:
		return StateDeclined, []Effect{EffectNotifyCaller}, nil
	case EventCancel:
		return StateCancelled, []Effect{EffectBroadcastCancel}, nil
	case EventTimeout:
		return StateTimedOut, []Effect{EffectNotifyCaller}, nil
	default:
		return state, nil, fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, event)
	}
}
