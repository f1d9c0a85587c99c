package services

import (
	"context"
	"sort"
	"time"

	"chorus/services/presence-service/metrics"
	"chorus/services/presence-service/models"
	"chorus/services/presence-service/registry"
	"chorus/services/presence-service/utils"
)

// Presence drives the connection lifecycle: registry mutation, then an
// immediate store write, then a broadcast.
type Presence struct {
	registry    *registry.Registry
	store       PresenceStore
	broadcaster *Broadcaster
	logger      *utils.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewPresence(reg *registry.Registry, store PresenceStore, b *Broadcaster, logger *utils.Logger, m *metrics.Metrics) *Presence {
	return &Presence{
		registry:    reg,
		store:       store,
		broadcaster: b,
		logger:      logger.With("component", "presence"),
		metrics:     m,
		now:         time.Now,
	}
}

// Connect registers a freshly authenticated connection.
func (p *Presence) Connect(ctx context.Context, conn registry.Conn) {
	p.register(ctx, conn, "connect")
}

// Join re-registers conn, reclaiming the user's slot if another connection
// took it in the meantime.
func (p *Presence) Join(ctx context.Context, conn registry.Conn) {
	p.register(ctx, conn, "join")
}

func (p *Presence) register(ctx context.Context, conn registry.Conn, reason string) {
	userID := conn.UserID()

	prev, replaced := p.registry.Register(userID, conn)
	if replaced {
		p.logger.Info("Replaced existing connection",
			"user_id", userID,
			"previous_conn", prev.ID(),
			"conn", conn.ID(),
		)
		p.metrics.ConnectionReplaced()
	}
	p.metrics.SetConnectedUsers(p.registry.Len())

	if err := p.store.SetOnline(ctx, userID, p.now()); err != nil {
		p.logger.Warn("Failed to persist online status", "user_id", userID, "event", reason, "error", err)
	}
	p.PublishOnline(ctx)
}

// Disconnect unregisters conn. A disconnect from a connection that was
// already replaced changes nothing.
func (p *Presence) Disconnect(ctx context.Context, conn registry.Conn) {
	userID := conn.UserID()
	if !p.registry.Unregister(userID, conn) {
		p.logger.Debug("Ignoring disconnect of replaced connection", "user_id", userID, "conn", conn.ID())
		return
	}
	p.metrics.SetConnectedUsers(p.registry.Len())

	if err := p.store.SetOffline(ctx, userID, p.now()); err != nil {
		p.logger.Warn("Failed to persist offline status", "user_id", userID, "error", err)
	}
	p.PublishOnline(ctx)
}

// Heartbeat refreshes lastActiveAt for userID.
func (p *Presence) Heartbeat(ctx context.Context, userID string) error {
	if err := p.store.SetOnline(ctx, userID, p.now()); err != nil {
		return transient("heartbeat", err)
	}
	p.PublishOnline(ctx)
	return nil
}

// SendSnapshot answers a presence snapshot request on conn only.
func (p *Presence) SendSnapshot(ctx context.Context, conn registry.Conn) error {
	env, err := models.NewEnvelope(models.EventPresenceSnapshot, models.PresenceSnapshotPayload{
		UserIDs: p.OnlineSet(ctx),
	})
	if err != nil {
		return err
	}
	return Send(conn, env)
}

// PublishOnline broadcasts the current online set.
func (p *Presence) PublishOnline(ctx context.Context) {
	p.broadcaster.PublishOnlineSet(p.OnlineSet(ctx))
}

// OnlineSet is the union of registered users and users the store reports
// online. If the store is unavailable only registered users are returned.
func (p *Presence) OnlineSet(ctx context.Context) []string {
	ids, _, err := p.onlineSet(ctx)
	if err != nil {
		p.logger.Warn("Falling back to registry for online set", "error", err)
	}
	return ids
}

// OnlineUsers reports both sources and their union.
func (p *Presence) OnlineUsers(ctx context.Context) (models.OnlineUsersResponse, error) {
	all, stored, err := p.onlineSet(ctx)
	if err != nil {
		return models.OnlineUsersResponse{}, transient("listing online users", err)
	}
	if stored == nil {
		stored = []models.PresenceRecord{}
	}

	connected := p.registry.Snapshot()
	since := make(map[string]time.Time, len(connected))
	for _, id := range connected {
		if at, ok := p.registry.JoinedAt(id); ok {
			since[id] = at
		}
	}

	return models.OnlineUsersResponse{
		SocketConnectedUsers: connected,
		ConnectedSince:       since,
		DatabaseOnlineUsers:  stored,
		AllOnlineUsers:       all,
	}, nil
}

func (p *Presence) onlineSet(ctx context.Context) ([]string, []models.PresenceRecord, error) {
	set := make(map[string]struct{})
	for _, id := range p.registry.Snapshot() {
		set[id] = struct{}{}
	}

	stored, err := p.store.OnlineUsers(ctx)
	for _, rec := range stored {
		set[rec.UserID] = struct{}{}
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, stored, err
}
