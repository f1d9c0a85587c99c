package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chorus/services/presence-service/middleware"
	"chorus/services/presence-service/models"
	"chorus/services/presence-service/registry"
	"chorus/services/presence-service/services"
	"chorus/services/presence-service/signaling"
	"chorus/services/presence-service/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 64
	opTimeout      = 10 * time.Second
)

// Error codes carried by error frames.
const (
	codeInvalidRequest = "invalid_request"
	codeForbidden      = "forbidden"
	codeNotFound       = "not_found"
	codeUnavailable    = "unavailable"
	codeUnknownEvent   = "unknown_event"
)

// client is one websocket connection. It satisfies registry.Conn.
type client struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) ID() string     { return c.id }
func (c *client) UserID() string { return c.userID }

// Send queues data without blocking.
func (c *client) Send(data []byte) error {
	select {
	case <-c.done:
		return registry.ErrConnectionClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return registry.ErrConnectionClosed
	default:
		return registry.ErrSendBufferFull
	}
}

func (c *client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

type WebsocketHandler struct {
	upgrader    websocket.Upgrader
	presence    *services.Presence
	coordinator *signaling.Coordinator
	relay       *services.Relay
	logger      *utils.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closing bool
	pumps   sync.WaitGroup
}

func NewWebsocketHandler(
	presence *services.Presence,
	coordinator *signaling.Coordinator,
	relay *services.Relay,
	allowedOrigins []string,
	logger *utils.Logger,
) *WebsocketHandler {
	return &WebsocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		presence:    presence,
		coordinator: coordinator,
		relay:       relay,
		logger:      logger.With("component", "websocket"),
		clients:     make(map[*client]struct{}),
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if middleware.AllowsAnyOrigin(allowed) {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Serve handles GET /ws. The caller is already authenticated.
func (h *WebsocketHandler) Serve(c *gin.Context) {
	userID := middleware.UserID(c)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	cl := &client{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
	if !h.track(cl) {
		conn.Close()
		return
	}

	h.logger.Info("Client connected", "user_id", userID, "conn", cl.id)

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	h.presence.Connect(ctx, cl)
	cancel()

	go h.writePump(cl)
	h.readPump(cl)
}

// track adds cl and counts its read pump. It refuses new clients once
// Shutdown has started.
func (h *WebsocketHandler) track(cl *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.clients[cl] = struct{}{}
	h.pumps.Add(1)
	return true
}

func (h *WebsocketHandler) untrack(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, cl)
}

// Shutdown closes every open connection and waits until each one has run its
// disconnect, or until ctx is done.
func (h *WebsocketHandler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	for cl := range h.clients {
		cl.Close()
		cl.conn.Close()
	}
	h.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		h.pumps.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *WebsocketHandler) readPump(cl *client) {
	defer func() {
		defer h.pumps.Done()
		cl.Close()
		cl.conn.Close()
		h.untrack(cl)

		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		h.presence.Disconnect(ctx, cl)
		cancel()

		h.logger.Info("Client disconnected", "user_id", cl.userID, "conn", cl.id)
	}()

	cl.conn.SetReadLimit(maxMessageSize)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("Websocket read error", "user_id", cl.userID, "error", err)
			}
			return
		}
		h.dispatch(cl, data)
	}
}

func (h *WebsocketHandler) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()

	for {
		select {
		case data := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				cl.Close()
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cl.Close()
				return
			}
		case <-cl.done:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			cl.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (h *WebsocketHandler) dispatch(cl *client, data []byte) {
	env, err := models.ParseEnvelope(data)
	if err != nil {
		h.replyError(cl, codeInvalidRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	switch env.Type {
	case models.EventJoin:
		h.handleJoin(ctx, cl, env)
	case models.EventHeartbeat:
		h.handleHeartbeat(ctx, cl, env)
	case models.EventRequestPresenceSnapshot:
		if err := h.presence.SendSnapshot(ctx, cl); err != nil {
			h.logger.Debug("Presence snapshot not delivered", "user_id", cl.userID, "error", err)
		}
	case models.EventRing:
		h.handleRing(ctx, cl, env)
	case models.EventAccept:
		h.handleAccept(cl, env)
	case models.EventDecline, models.EventCancel:
		h.handleEndCall(cl, env)
	case models.EventSendMessage:
		h.handleSendMessage(ctx, cl, env)
	case models.EventDeleteMessage:
		h.handleDeleteMessage(ctx, cl, env)
	default:
		h.replyError(cl, codeUnknownEvent, "unknown event type "+env.Type)
	}
}

// identity resolves a client-supplied identity field. Empty means the
// authenticated user; anything else must match it.
func identity(cl *client, claimed string) (string, bool) {
	if claimed == "" {
		return cl.userID, true
	}
	return claimed, claimed == cl.userID
}

func (h *WebsocketHandler) handleJoin(ctx context.Context, cl *client, env models.Envelope) {
	var p models.JoinPayload
	if len(env.Payload) > 0 {
		if err := env.Decode(&p); err != nil {
			h.replyError(cl, codeInvalidRequest, err.Error())
			return
		}
	}
	if _, ok := identity(cl, p.UserID); !ok {
		h.replyError(cl, codeForbidden, "userId does not match the authenticated user")
		return
	}
	h.presence.Join(ctx, cl)
}

func (h *WebsocketHandler) handleHeartbeat(ctx context.Context, cl *client, env models.Envelope) {
	var p models.HeartbeatPayload
	if len(env.Payload) > 0 {
		if err := env.Decode(&p); err != nil {
			h.replyError(cl, codeInvalidRequest, err.Error())
			return
		}
	}
	if _, ok := identity(cl, p.UserID); !ok {
		h.replyError(cl, codeForbidden, "userId does not match the authenticated user")
		return
	}
	if err := h.presence.Heartbeat(ctx, cl.userID); err != nil {
		h.logger.Warn("Heartbeat not persisted", "user_id", cl.userID, "error", err)
		h.replyError(cl, codeUnavailable, "presence store unavailable")
	}
}

func (h *WebsocketHandler) handleRing(ctx context.Context, cl *client, env models.Envelope) {
	var p models.RingPayload
	if err := env.Decode(&p); err != nil {
		h.replyError(cl, codeInvalidRequest, err.Error())
		return
	}
	callerID, ok := identity(cl, p.CallerID)
	if !ok {
		h.replyError(cl, codeForbidden, "callerId does not match the authenticated user")
		return
	}

	err := h.coordinator.Ring(ctx, signaling.RingRequest{
		RoomID:      p.RoomID,
		CallerID:    callerID,
		CalleeID:    p.CalleeID,
		CallerName:  p.CallerName,
		CallerImage: p.CallerImage,
	})
	switch {
	case err == nil:
	case errors.Is(err, signaling.ErrInvalidTransition):
		h.logger.Debug("Ring dropped", "room_id", p.RoomID, "error", err)
	case errors.Is(err, signaling.ErrInvalidRing):
		h.replyError(cl, codeInvalidRequest, err.Error())
	default:
		h.replyError(cl, codeUnavailable, err.Error())
	}
}

func (h *WebsocketHandler) handleAccept(cl *client, env models.Envelope) {
	var p models.AcceptPayload
	if err := env.Decode(&p); err != nil {
		h.replyError(cl, codeInvalidRequest, err.Error())
		return
	}
	calleeID, ok := identity(cl, p.CalleeID)
	if !ok {
		h.replyError(cl, codeForbidden, "calleeId does not match the authenticated user")
		return
	}
	if err := h.coordinator.Accept(p.RoomID, calleeID); err != nil {
		h.logger.Debug("Accept dropped", "room_id", p.RoomID, "error", err)
	}
}

// handleEndCall applies decline (callee only) or cancel (caller only).
func (h *WebsocketHandler) handleEndCall(cl *client, env models.Envelope) {
	var p models.RoomPayload
	if err := env.Decode(&p); err != nil {
		h.replyError(cl, codeInvalidRequest, err.Error())
		return
	}

	session, ok := h.coordinator.Session(p.RoomID)
	if !ok {
		h.logger.Debug("Call event for unknown room dropped", "type", env.Type, "room_id", p.RoomID)
		return
	}

	var err error
	if env.Type == models.EventDecline {
		if session.CalleeID != cl.userID {
			h.replyError(cl, codeForbidden, "only the callee may decline")
			return
		}
		err = h.coordinator.Decline(p.RoomID)
	} else {
		if session.CallerID != cl.userID {
			h.replyError(cl, codeForbidden, "only the caller may cancel")
			return
		}
		err = h.coordinator.Cancel(p.RoomID)
	}
	if err != nil {
		h.logger.Debug("Call event dropped", "type", env.Type, "room_id", p.RoomID, "error", err)
	}
}

func (h *WebsocketHandler) handleSendMessage(ctx context.Context, cl *client, env models.Envelope) {
	var p models.SendMessagePayload
	if err := env.Decode(&p); err != nil {
		h.replyError(cl, codeInvalidRequest, err.Error())
		return
	}
	senderID, ok := identity(cl, p.SenderID)
	if !ok {
		h.replyError(cl, codeForbidden, "senderId does not match the authenticated user")
		return
	}

	if _, err := h.relay.Send(ctx, senderID, p.ReceiverID, p.Body); err != nil {
		if errors.Is(err, services.ErrInvalidMessage) {
			h.replyError(cl, codeInvalidRequest, err.Error())
			return
		}
		h.logger.Error("Failed to send message", "sender_id", senderID, "error", err)
		h.replyError(cl, codeUnavailable, "message not sent")
	}
}

func (h *WebsocketHandler) handleDeleteMessage(ctx context.Context, cl *client, env models.Envelope) {
	var p models.DeleteMessagePayload
	if err := env.Decode(&p); err != nil {
		h.replyError(cl, codeInvalidRequest, err.Error())
		return
	}

	err := h.relay.DeleteAs(ctx, p.MessageID, cl.userID)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrMessageNotFound):
		h.replyError(cl, codeNotFound, "message not found")
	case errors.Is(err, services.ErrNotMessageOwner):
		h.replyError(cl, codeForbidden, err.Error())
	case errors.Is(err, services.ErrInvalidMessage):
		h.replyError(cl, codeInvalidRequest, err.Error())
	default:
		h.logger.Error("Failed to delete message", "message_id", p.MessageID, "error", err)
		h.replyError(cl, codeUnavailable, "message not deleted")
	}
}

func (h *WebsocketHandler) replyError(cl *client, code, message string) {
	env, err := models.NewEnvelope(models.EventError, models.ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	if err := services.Send(cl, env); err != nil {
		h.logger.Debug("Error frame not delivered", "user_id", cl.userID, "error", err)
	}
}
