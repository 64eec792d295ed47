package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/proctorrelay/internal/middleware"
	"github.com/charlesng35/proctorrelay/internal/realtime"
	apperrors "github.com/charlesng35/proctorrelay/pkg/errors"
	"github.com/charlesng35/proctorrelay/pkg/logger"
	"github.com/charlesng35/proctorrelay/pkg/metrics"
	"github.com/charlesng35/proctorrelay/pkg/response"
)

// RoomRecorder persists room keys as they are first used.
type RoomRecorder interface {
	EnsureRoom(ctx context.Context, roomID string) (bool, error)
}

// ChatHandler upgrades authenticated requests into relay sessions.
type ChatHandler struct {
	hub   *realtime.Hub
	rooms RoomRecorder
}

func NewChatHandler(hub *realtime.Hub, rooms RoomRecorder) *ChatHandler {
	return &ChatHandler{hub: hub, rooms: rooms}
}

// Connect handles GET /ws/chat/:room_id. Every rejection is answered over plain HTTP
// before the upgrade, so no relay is touched for a refused caller. The room key is used
// verbatim; only a blank key is refused.
func (h *ChatHandler) Connect(c *gin.Context) {
	log := logger.WithModule("http")

	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		metrics.ConnectionRejections.WithLabelValues("unauthenticated").Inc()
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	roomID := c.Param("room_id")
	if strings.TrimSpace(roomID) == "" {
		metrics.ConnectionRejections.WithLabelValues("invalid_room").Inc()
		response.Error(c, apperrors.NewBadRequest("room id is required"))
		return
	}

	if !identity.Type.CanJoinRelay() {
		metrics.ConnectionRejections.WithLabelValues("invalid_user_type").Inc()
		log.Info("relay connection refused",
			zap.Int64("user_id", identity.UserID),
			zap.String("user_type", identity.Type.String()),
			zap.String("room", roomID),
		)
		response.Error(c, apperrors.ErrInvalidUserType)
		return
	}

	if h.rooms != nil {
		created, err := h.rooms.EnsureRoom(requestContext(c), roomID)
		switch {
		case err != nil:
			log.Warn("room not persisted", zap.String("room", roomID), zap.Error(err))
		case created:
			log.Info("room persisted", zap.String("room", roomID))
		}
	}

	if err := h.hub.Serve(identity.UserID, identity.Type, roomID, c.Writer, c.Request); err != nil {
		switch {
		case errors.Is(err, realtime.ErrHubClosed):
			metrics.ConnectionRejections.WithLabelValues("shutting_down").Inc()
			response.Error(c, apperrors.ErrServiceUnavailable)
		case errors.Is(err, realtime.ErrInvalidUserType):
			metrics.ConnectionRejections.WithLabelValues("invalid_user_type").Inc()
			response.Error(c, apperrors.ErrInvalidUserType)
		default:
			// The upgrader has already answered the client.
			metrics.ConnectionRejections.WithLabelValues("upgrade_failed").Inc()
			log.Debug("websocket upgrade failed", zap.String("room", roomID), zap.Error(err))
		}
	}
}
