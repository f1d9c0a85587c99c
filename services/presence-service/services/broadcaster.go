package services

import (
	"fmt"

	"chorus/services/presence-service/metrics"
	"chorus/services/presence-service/models"
	"chorus/services/presence-service/registry"
	"chorus/services/presence-service/utils"
)

// Broadcaster fans frames out to registered connections. Sends never block
// and are not acknowledged.
type Broadcaster struct {
	registry *registry.Registry
	logger   *utils.Logger
	metrics  *metrics.Metrics
}

func NewBroadcaster(reg *registry.Registry, logger *utils.Logger, m *metrics.Metrics) *Broadcaster {
	return &Broadcaster{
		registry: reg,
		logger:   logger.With("component", "broadcaster"),
		metrics:  m,
	}
}

// PublishOnlineSet sends the full online set to every connected client.
func (b *Broadcaster) PublishOnlineSet(userIDs []string) {
	if userIDs == nil {
		userIDs = []string{}
	}
	env, err := models.NewEnvelope(models.EventPresenceSnapshot, models.PresenceSnapshotPayload{UserIDs: userIDs})
	if err != nil {
		b.logger.Error("Failed to build presence snapshot", "error", err)
		return
	}
	b.Broadcast(env)
}

// Broadcast sends env to every registered connection.
func (b *Broadcaster) Broadcast(env models.Envelope) {
	data, err := env.Encode()
	if err != nil {
		b.logger.Error("Failed to encode broadcast", "type", env.Type, "error", err)
		return
	}

	for _, conn := range b.registry.Conns() {
		if err := conn.Send(data); err != nil {
			b.logger.Debug("Broadcast delivery missed",
				"type", env.Type,
				"user_id", conn.UserID(),
				"error", err,
			)
		}
	}
	b.metrics.Broadcast(env.Type)
}

// SendTo delivers env to userID's current connection. It returns
// registry.ErrNotConnected when the user has no connection.
func (b *Broadcaster) SendTo(userID string, env models.Envelope) error {
	conn, ok := b.registry.Lookup(userID)
	if !ok {
		return registry.ErrNotConnected
	}
	return Send(conn, env)
}

// Send encodes env and writes it to conn.
func Send(conn registry.Conn, env models.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encoding %s: %w", env.Type, err)
	}
	return conn.Send(data)
}
