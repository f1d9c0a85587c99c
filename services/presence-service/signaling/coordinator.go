package signaling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"chorus/services/presence-service/metrics"
	"chorus/services/presence-service/models"
	"chorus/services/presence-service/registry"
	"chorus/services/presence-service/utils"
)

var (
	ErrInvalidRing = errors.New("invalid ring request")
	ErrClosed      = errors.New("coordinator closed")
)

// Notifier delivers frames to connected users.
type Notifier interface {
	SendTo(userID string, env models.Envelope) error
	Broadcast(env models.Envelope)
}

// Directory resolves caller display metadata for invites.
type Directory interface {
	Lookup(ctx context.Context, userID string) (models.UserProfile, error)
}

type Config struct {
	RingTimeout time.Duration
	// DeadRoomRetention is how long a finished roomID keeps rejecting events.
	DeadRoomRetention time.Duration
	DeadRoomCapacity  int
	LookupTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.RingTimeout <= 0 {
		c.RingTimeout = 30 * time.Second
	}
	if c.DeadRoomRetention <= 0 {
		c.DeadRoomRetention = 10 * time.Minute
	}
	if c.DeadRoomCapacity <= 0 {
		c.DeadRoomCapacity = 10000
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = 2 * time.Second
	}
	return c
}

type CallSession struct {
	RoomID    string    `json:"roomId"`
	CallerID  string    `json:"callerId"`
	CalleeID  string    `json:"calleeId"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
}

type RingRequest struct {
	RoomID      string
	CallerID    string
	CalleeID    string
	CallerName  string
	CallerImage string
}

type session struct {
	CallSession
	timer *time.Timer
}

// Coordinator owns every ringing call session. All transitions, including
// the ring timeout, happen under one lock so exactly one terminal outcome is
// applied per room.
type Coordinator struct {
	cfg       Config
	notifier  Notifier
	directory Directory
	logger    *utils.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
	dead     *expirable.LRU[string, State]
	closed   bool
}

// NewCoordinator creates a Coordinator. directory may be nil, in which case
// invites carry the caller-supplied metadata.
func NewCoordinator(cfg Config, notifier Notifier, directory Directory, logger *utils.Logger, m *metrics.Metrics) *Coordinator {
	cfg = cfg.withDefaults()
	return &Coordinator{
		cfg:       cfg,
		notifier:  notifier,
		directory: directory,
		logger:    logger.With("component", "signaling"),
		metrics:   m,
		now:       time.Now,
		sessions:  make(map[string]*session),
		dead:      expirable.NewLRU[string, State](cfg.DeadRoomCapacity, nil, cfg.DeadRoomRetention),
	}
}

// Ring opens a session for req.RoomID and invites the callee if connected.
// A ring for a room that is live or recently finished is rejected.
func (c *Coordinator) Ring(ctx context.Context, req RingRequest) error {
	if strings.TrimSpace(req.RoomID) == "" || req.CallerID == "" || req.CalleeID == "" {
		return fmt.Errorf("%w: roomId, callerId and calleeId are required", ErrInvalidRing)
	}
	if req.CallerID == req.CalleeID {
		return fmt.Errorf("%w: cannot call yourself", ErrInvalidRing)
	}

	c.mu.Lock()
	err := c.checkRingableLocked(req.RoomID)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	invite := c.buildInvite(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()

	// the room may have been claimed while the directory was queried
	if err := c.checkRingableLocked(req.RoomID); err != nil {
		return err
	}

	s := &session{CallSession: CallSession{
		RoomID:    req.RoomID,
		CallerID:  req.CallerID,
		CalleeID:  req.CalleeID,
		State:     StateRinging,
		CreatedAt: c.now(),
	}}
	s.timer = time.AfterFunc(c.cfg.RingTimeout, func() { c.expire(s) })
	c.sessions[req.RoomID] = s
	c.metrics.SetActiveCalls(len(c.sessions))

	c.logger.Info("Call ringing", "room_id", req.RoomID, "caller_id", req.CallerID, "callee_id", req.CalleeID)
	c.deliver(req.CalleeID, models.EventIncomingCall, invite)
	return nil
}

func (c *Coordinator) checkRingableLocked(roomID string) error {
	if c.closed {
		return ErrClosed
	}
	if _, ok := c.sessions[roomID]; ok {
		return fmt.Errorf("%w: room %s is already ringing", ErrInvalidTransition, roomID)
	}
	if state, ok := c.dead.Get(roomID); ok {
		return fmt.Errorf("%w: room %s already ended as %s", ErrInvalidTransition, roomID, state)
	}
	return nil
}

// buildInvite prefers directory metadata and falls back to what the caller
// sent when the lookup fails.
func (c *Coordinator) buildInvite(ctx context.Context, req RingRequest) models.IncomingCallPayload {
	invite := models.IncomingCallPayload{
		RoomID:      req.RoomID,
		CallerID:    req.CallerID,
		CallerName:  req.CallerName,
		CallerImage: req.CallerImage,
	}
	if c.directory == nil {
		return invite
	}

	lookupCtx, cancel := context.WithTimeout(ctx, c.cfg.LookupTimeout)
	defer cancel()

	profile, err := c.directory.Lookup(lookupCtx, req.CallerID)
	if err != nil {
		c.logger.Warn("Caller lookup failed, using supplied metadata", "caller_id", req.CallerID, "error", err)
		return invite
	}
	if profile.DisplayName != "" {
		invite.CallerName = profile.DisplayName
	}
	if profile.AvatarURL != "" {
		invite.CallerImage = profile.AvatarURL
	}
	return invite
}

// Accept answers a ringing call. calleeID must be the invited user.
func (c *Coordinator) Accept(roomID, calleeID string) error {
	return c.apply(roomID, EventAccept, func(s *session) error {
		if s.CalleeID != calleeID {
			return fmt.Errorf("%w: %s is not the callee of room %s", ErrInvalidTransition, calleeID, roomID)
		}
		return nil
	})
}

func (c *Coordinator) Decline(roomID string) error {
	return c.apply(roomID, EventDecline, nil)
}

func (c *Coordinator) Cancel(roomID string) error {
	return c.apply(roomID, EventCancel, nil)
}

// expire fires from the ring timer. It only acts if s is still the live
// session for its room.
func (c *Coordinator) expire(s *session) {
	err := c.apply(s.RoomID, EventTimeout, func(cur *session) error {
		if cur != s {
			return fmt.Errorf("%w: stale timer for room %s", ErrInvalidTransition, s.RoomID)
		}
		return nil
	})
	if err != nil {
		c.logger.Debug("Ring timeout suppressed", "room_id", s.RoomID, "error", err)
	}
}

func (c *Coordinator) apply(roomID string, event EventKind, guard func(*session) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[roomID]
	if !ok {
		return fmt.Errorf("%w: %s for unknown room %s", ErrInvalidTransition, event, roomID)
	}
	if guard != nil {
		if err := guard(s); err != nil {
			return err
		}
	}

	next, effects, err := Transition(s.State, event)
	if err != nil {
		return err
	}

	s.timer.Stop()
	s.State = next
	delete(c.sessions, roomID)
	c.dead.Add(roomID, next)
	c.metrics.SetActiveCalls(len(c.sessions))
	c.metrics.CallOutcome(string(next))

	c.logger.Info("Call ended", "room_id", roomID, "state", string(next))
	for _, effect := range effects {
		c.emit(s.CallSession, effect)
	}
	return nil
}

func (c *Coordinator) emit(s CallSession, effect Effect) {
	switch effect {
	case EffectNotifyCaller:
		switch s.State {
		case StateAccepted:
			c.deliver(s.CallerID, models.EventCallAccepted, models.CallAcceptedPayload{RoomID: s.RoomID, CalleeID: s.CalleeID})
		case StateDeclined:
			c.deliver(s.CallerID, models.EventCallDeclined, models.RoomPayload{RoomID: s.RoomID})
		case StateTimedOut:
			c.deliver(s.CallerID, models.EventCallTimedOut, models.RoomPayload{RoomID: s.RoomID})
		}
	case EffectBroadcastCancel:
		env, err := models.NewEnvelope(models.EventCallCancelled, models.RoomPayload{RoomID: s.RoomID})
		if err != nil {
			c.logger.Error("Failed to build cancel frame", "room_id", s.RoomID, "error", err)
			return
		}
		c.notifier.Broadcast(env)
	}
}

func (c *Coordinator) deliver(userID, eventType string, payload interface{}) {
	env, err := models.NewEnvelope(eventType, payload)
	if err != nil {
		c.logger.Error("Failed to build signaling frame", "type", eventType, "error", err)
		return
	}
	if err := c.notifier.SendTo(userID, env); err != nil {
		if errors.Is(err, registry.ErrNotConnected) {
			c.logger.Debug("Signaling target offline", "type", eventType, "user_id", userID)
			return
		}
		c.logger.Warn("Signaling delivery failed", "type", eventType, "user_id", userID, "error", err)
	}
}

// Session returns a copy of the live session for roomID.
func (c *Coordinator) Session(roomID string) (CallSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[roomID]
	if !ok {
		return CallSession{}, false
	}
	return s.CallSession, true
}

// ActiveCalls is the number of ringing sessions.
func (c *Coordinator) ActiveCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Close stops every pending timer and drops all sessions without notifying
// anyone. Further rings fail with ErrClosed.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for roomID, s := range c.sessions {
		s.timer.Stop()
		delete(c.sessions, roomID)
	}
	c.closed = true
	c.metrics.SetActiveCalls(0)
}
