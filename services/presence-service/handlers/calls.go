package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"chorus/services/presence-service/middleware"
	"chorus/services/presence-service/signaling"
	"chorus/services/presence-service/utils"
)

// MediaTokenConfig holds the media provider's signing settings.
type MediaTokenConfig struct {
	Secret string
	AppID  string
	TTL    time.Duration
}

type CallHandler struct {
	coordinator *signaling.Coordinator
	media       MediaTokenConfig
	logger      *utils.Logger
	now         func() time.Time
}

func NewCallHandler(coordinator *signaling.Coordinator, media MediaTokenConfig, logger *utils.Logger) *CallHandler {
	return &CallHandler{
		coordinator: coordinator,
		media:       media,
		logger:      logger,
		now:         time.Now,
	}
}

type MediaTokenResponse struct {
	Token     string    `json:"token"`
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	AppID     string    `json:"appId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IssueToken handles POST /api/v1/calls/:roomId/token
func (h *CallHandler) IssueToken(c *gin.Context) {
	roomID := strings.TrimSpace(c.Param("roomId"))
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "roomId is required"})
		return
	}
	userID := middleware.UserID(c)

	issuedAt := h.now().UTC()
	expiresAt := issuedAt.Add(h.media.TTL)
	token, err := signMediaToken(h.media, roomID, userID, issuedAt, expiresAt)
	if err != nil {
		h.logger.Error("Failed to sign media token", "room_id", roomID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, MediaTokenResponse{
		Token:     token,
		RoomID:    roomID,
		UserID:    userID,
		AppID:     h.media.AppID,
		ExpiresAt: expiresAt,
	})
}

func signMediaToken(cfg MediaTokenConfig, roomID, userID string, issuedAt, expiresAt time.Time) (string, error) {
	if cfg.Secret == "" {
		return "", errors.New("media secret is not configured")
	}
	claims := jwt.MapClaims{
		"iss":     cfg.AppID,
		"room_id": roomID,
		"user_id": userID,
		"privileges": map[string]bool{
			"login":   true,
			"publish": true,
		},
		"iat": issuedAt.Unix(),
		"exp": expiresAt.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}

// GetCall handles GET /api/v1/calls/:roomId. Only the two participants may
// see a ringing session.
func (h *CallHandler) GetCall(c *gin.Context) {
	session, ok := h.coordinator.Session(c.Param("roomId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Call not found"})
		return
	}

	userID := middleware.UserID(c)
	if userID != session.CallerID && userID != session.CalleeID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant of this call"})
		return
	}

	c.JSON(http.StatusOK, session)
}
