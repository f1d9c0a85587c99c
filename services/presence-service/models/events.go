package models

import (
	"encoding/json"
	"fmt"
)

// Inbound frame types.
const (
	EventJoin                    = "join"
	EventRing                    = "ring"
	EventAccept                  = "accept"
	EventDecline                 = "decline"
	EventCancel                  = "cancel"
	EventSendMessage             = "sendMessage"
	EventDeleteMessage           = "deleteMessage"
	EventRequestPresenceSnapshot = "requestPresenceSnapshot"
	EventHeartbeat               = "heartbeat"
)

// Outbound notification types.
const (
	EventPresenceSnapshot = "presenceSnapshot"
	EventIncomingCall     = "incomingCall"
	EventCallAccepted     = "callAccepted"
	EventCallDeclined     = "callDeclined"
	EventCallCancelled    = "callCancelled"
	EventCallTimedOut     = "callTimedOut"
	EventMessageReceived  = "messageReceived"
	EventMessageDeleted   = "messageDeleted"
	EventError            = "error"
)

// Envelope is the JSON frame exchanged over the websocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an envelope of the given type.
func NewEnvelope(eventType string, payload interface{}) (Envelope, error) {
	env := Envelope{Type: eventType}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshalling %s payload: %w", eventType, err)
	}
	env.Payload = data
	return env, nil
}

// Encode returns the wire form of the envelope.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s: invalid payload: %w", e.Type, err)
	}
	return nil
}

// ParseEnvelope parses an inbound frame.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("invalid frame: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("missing frame type")
	}
	return env, nil
}

// Inbound payloads

type JoinPayload struct {
	UserID string `json:"userId"`
}

type HeartbeatPayload struct {
	UserID string `json:"userId,omitempty"`
}

type RingPayload struct {
	RoomID      string `json:"roomId"`
	CallerID    string `json:"callerId"`
	CalleeID    string `json:"calleeId"`
	CallerName  string `json:"callerName,omitempty"`
	CallerImage string `json:"callerImage,omitempty"`
}

type AcceptPayload struct {
	RoomID   string `json:"roomId"`
	CalleeID string `json:"calleeId"`
}

type RoomPayload struct {
	RoomID string `json:"roomId"`
}

type SendMessagePayload struct {
	SenderID   string `json:"senderId,omitempty"`
	ReceiverID string `json:"receiverId"`
	Body       string `json:"body"`
}

type DeleteMessagePayload struct {
	MessageID string `json:"messageId"`
}

// Outbound payloads

type PresenceSnapshotPayload struct {
	UserIDs []string `json:"userIds"`
}

type IncomingCallPayload struct {
	RoomID      string `json:"roomId"`
	CallerID    string `json:"callerId"`
	CallerName  string `json:"callerName,omitempty"`
	CallerImage string `json:"callerImage,omitempty"`
}

type CallAcceptedPayload struct {
	RoomID   string `json:"roomId"`
	CalleeID string `json:"calleeId"`
}

type MessageDeletedPayload struct {
	MessageID  string `json:"messageId"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
