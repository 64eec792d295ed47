package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/proctorrelay/internal/models"
	"github.com/charlesng35/proctorrelay/internal/realtime"
	"github.com/charlesng35/proctorrelay/internal/services"
	apperrors "github.com/charlesng35/proctorrelay/pkg/errors"
	"github.com/charlesng35/proctorrelay/pkg/response"
)

type RoomHandler struct {
	directory *realtime.Directory
	rooms     *services.RoomService
}

func NewRoomHandler(directory *realtime.Directory, rooms *services.RoomService) *RoomHandler {
	return &RoomHandler{directory: directory, rooms: rooms}
}

type roomDTO struct {
	RoomID      string     `json:"room_id"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	Persisted   bool       `json:"persisted"`
	Live        bool       `json:"live"`
	ProctorID   *int64     `json:"proctor_id,omitempty"`
	MemberCount int        `json:"member_count"`
	MemberIDs   []int64    `json:"member_ids,omitempty"`
}

// List handles GET /api/rooms. Persisted rooms are paged with limit/offset; rooms that
// are live but were never persisted are appended to the first page.
func (h *RoomHandler) List(c *gin.Context) {
	ctx := requestContext(c)

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	persisted, err := h.rooms.List(ctx, services.ListRoomsOptions{Limit: limit, Offset: offset})
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}
	total, err := h.rooms.Count(ctx)
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}

	seen := make(map[string]struct{}, len(persisted))
	out := make([]roomDTO, 0, len(persisted))
	for i := range persisted {
		seen[persisted[i].RoomID] = struct{}{}
		out = append(out, h.describe(persisted[i].RoomID, &persisted[i], false))
	}

	liveOnly := 0
	for _, roomID := range h.directory.RoomIDs() {
		if _, ok := seen[roomID]; ok {
			continue
		}
		if _, err := h.rooms.Get(ctx, roomID); err == nil {
			continue
		}
		liveOnly++
		if offset == 0 {
			out = append(out, h.describe(roomID, nil, false))
		}
	}

	response.SuccessWithMeta(c, http.StatusOK, out, &response.Meta{Total: int(total) + liveOnly})
}

// Get handles GET /api/rooms/:room_id and includes the live roster.
func (h *RoomHandler) Get(c *gin.Context) {
	roomID := c.Param("room_id")
	if strings.TrimSpace(roomID) == "" {
		response.Error(c, apperrors.NewBadRequest("room id is required"))
		return
	}

	// Keys too long to persist can still be live.
	room, err := h.rooms.Get(requestContext(c), roomID)
	if err != nil && !errors.Is(err, services.ErrRoomNotFound) && !errors.Is(err, services.ErrInvalidRoomID) {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}

	dto := h.describe(roomID, room, true)
	if !dto.Live && !dto.Persisted {
		response.Error(c, apperrors.ErrNotFound)
		return
	}
	response.Success(c, http.StatusOK, dto)
}

func (h *RoomHandler) describe(roomID string, room *models.ChatRoom, withMembers bool) roomDTO {
	dto := roomDTO{RoomID: roomID}
	if room != nil {
		created := room.CreatedAt
		dto.CreatedAt = &created
		dto.Persisted = true
	}

	relay, ok := h.directory.Lookup(roomID)
	if !ok {
		return dto
	}

	snapshot := relay.Snapshot()
	dto.Live = true
	dto.MemberCount = len(snapshot.MemberIDs)
	if snapshot.HasProctor {
		proctorID := snapshot.ProctorID
		dto.ProctorID = &proctorID
	}
	if withMembers {
		dto.MemberIDs = snapshot.MemberIDs
	}
	return dto
}
