package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"chorus/services/presence-service/metrics"
	"chorus/services/presence-service/models"
	"chorus/services/presence-service/registry"
	"chorus/services/presence-service/utils"
)

// MessageStore is the authoritative message persistence.
type MessageStore interface {
	Create(ctx context.Context, msg *models.Message) error
	Get(ctx context.Context, id uuid.UUID) (*models.Message, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Conversation(ctx context.Context, a, b string) ([]models.Message, error)
}

// Relay persists messages first and then tries in-band delivery.
type Relay struct {
	store       MessageStore
	broadcaster *Broadcaster
	logger      *utils.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewRelay(store MessageStore, b *Broadcaster, logger *utils.Logger, m *metrics.Metrics) *Relay {
	return &Relay{
		store:       store,
		broadcaster: b,
		logger:      logger.With("component", "relay"),
		metrics:     m,
		now:         time.Now,
	}
}

// Send stores the message and, if the receiver is connected, delivers it.
// Only the store write can fail the call.
func (r *Relay) Send(ctx context.Context, senderID, receiverID, body string) (*models.Message, error) {
	if strings.TrimSpace(senderID) == "" || strings.TrimSpace(receiverID) == "" {
		return nil, fmt.Errorf("%w: sender and receiver are required", ErrInvalidMessage)
	}
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: body is empty", ErrInvalidMessage)
	}

	msg := &models.Message{
		ID:         uuid.New(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		CreatedAt:  r.now().UTC(),
	}
	if err := r.store.Create(ctx, msg); err != nil {
		return nil, transient("persisting message", err)
	}

	r.deliver(msg)
	return msg, nil
}

func (r *Relay) deliver(msg *models.Message) {
	env, err := models.NewEnvelope(models.EventMessageReceived, msg)
	if err != nil {
		r.logger.Error("Failed to build message frame", "message_id", msg.ID, "error", err)
		r.metrics.MessageSent("failed")
		return
	}

	err = r.broadcaster.SendTo(msg.ReceiverID, env)
	switch {
	case err == nil:
		r.metrics.MessageSent("delivered")
	case errors.Is(err, registry.ErrNotConnected):
		r.logger.Debug("Receiver offline, message left for history", "message_id", msg.ID, "receiver_id", msg.ReceiverID)
		r.metrics.MessageSent("offline")
	default:
		r.logger.Warn("In-band delivery failed", "message_id", msg.ID, "receiver_id", msg.ReceiverID, "error", err)
		r.metrics.MessageSent("failed")
	}
}

// Delete removes a message and tells every connected client.
func (r *Relay) Delete(ctx context.Context, id string) error {
	_, err := r.remove(ctx, id, "")
	return err
}

// DeleteAs is Delete restricted to the message's sender.
func (r *Relay) DeleteAs(ctx context.Context, id, userID string) error {
	_, err := r.remove(ctx, id, userID)
	return err
}

func (r *Relay) remove(ctx context.Context, id, requester string) (*models.Message, error) {
	msgID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed message id %q", ErrInvalidMessage, id)
	}

	msg, err := r.store.Get(ctx, msgID)
	if err != nil {
		if errors.Is(err, ErrMessageNotFound) {
			return nil, err
		}
		return nil, transient("loading message", err)
	}
	if requester != "" && msg.SenderID != requester {
		return nil, ErrNotMessageOwner
	}

	if err := r.store.Delete(ctx, msgID); err != nil {
		if errors.Is(err, ErrMessageNotFound) {
			return nil, err
		}
		return nil, transient("deleting message", err)
	}
	r.metrics.MessageDeleted()

	env, err := models.NewEnvelope(models.EventMessageDeleted, models.MessageDeletedPayload{
		MessageID:  msg.ID.String(),
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
	})
	if err != nil {
		r.logger.Error("Failed to build deletion frame", "message_id", msg.ID, "error", err)
		return msg, nil
	}
	r.broadcaster.Broadcast(env)
	return msg, nil
}

// History returns the conversation between a and b, oldest first.
func (r *Relay) History(ctx context.Context, a, b string) ([]models.Message, error) {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return nil, fmt.Errorf("%w: both participants are required", ErrInvalidMessage)
	}
	msgs, err := r.store.Conversation(ctx, a, b)
	if err != nil {
		return nil, transient("listing conversation", err)
	}
	return msgs, nil
}
