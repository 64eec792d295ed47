package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/proctorrelay/internal/database/testutil"
	"github.com/charlesng35/proctorrelay/internal/models"
	"github.com/charlesng35/proctorrelay/internal/realtime"
	"github.com/charlesng35/proctorrelay/internal/services"
)

type roomsEnvelope struct {
	Success bool      `json:"success"`
	Data    []roomDTO `json:"data"`
	Meta    struct {
		Total int `json:"total"`
	} `json:"meta"`
}

type roomEnvelope struct {
	Success bool    `json:"success"`
	Data    roomDTO `json:"data"`
}

func newRoomRouter(t *testing.T) (*gin.Engine, *realtime.Directory, *services.RoomService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	rooms, err := services.NewRoomService(db)
	require.NoError(t, err)
	directory := realtime.NewDirectory()

	handler := NewRoomHandler(directory, rooms)
	r := gin.New()
	r.GET("/api/rooms", handler.List)
	r.GET("/api/rooms/:room_id", handler.Get)
	return r, directory, rooms
}

func TestRoomHandlerList(t *testing.T) {
	r, directory, rooms := newRoomRouter(t)

	_, err := rooms.EnsureRoom(context.Background(), "persisted-only")
	require.NoError(t, err)
	_, err = rooms.EnsureRoom(context.Background(), "both")
	require.NoError(t, err)

	both := directory.GetOrCreate("both")
	require.NoError(t, both.Register(models.UserTypeProctor, 1, "c1", make(realtime.Mailbox, 1)))
	require.NoError(t, both.Register(models.UserTypeMember, 2, "c2", make(realtime.Mailbox, 1)))
	directory.GetOrCreate("live-only")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload roomsEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.True(t, payload.Success)
	require.Equal(t, 3, payload.Meta.Total)
	require.Len(t, payload.Data, 3)

	byID := make(map[string]roomDTO, len(payload.Data))
	for _, room := range payload.Data {
		byID[room.RoomID] = room
	}

	require.True(t, byID["persisted-only"].Persisted)
	require.False(t, byID["persisted-only"].Live)

	require.True(t, byID["both"].Live)
	require.NotNil(t, byID["both"].ProctorID)
	require.Equal(t, int64(1), *byID["both"].ProctorID)
	require.Equal(t, 1, byID["both"].MemberCount)
	require.Empty(t, byID["both"].MemberIDs)

	require.True(t, byID["live-only"].Live)
	require.False(t, byID["live-only"].Persisted)
}

func TestRoomHandlerGet(t *testing.T) {
	r, directory, rooms := newRoomRouter(t)

	_, err := rooms.EnsureRoom(context.Background(), "exam")
	require.NoError(t, err)
	relay := directory.GetOrCreate("exam")
	require.NoError(t, relay.Register(models.UserTypeMember, 2, "c2", make(realtime.Mailbox, 1)))
	require.NoError(t, relay.Register(models.UserTypeMember, 3, "c3", make(realtime.Mailbox, 1)))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms/exam", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload roomEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, "exam", payload.Data.RoomID)
	require.True(t, payload.Data.Persisted)
	require.NotNil(t, payload.Data.CreatedAt)
	require.Nil(t, payload.Data.ProctorID)
	require.Equal(t, []int64{2, 3}, payload.Data.MemberIDs)
}

func TestRoomHandlerGetMissing(t *testing.T) {
	r, directory, _ := newRoomRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms/nowhere", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	_, ok := directory.Lookup("nowhere")
	require.False(t, ok)
}
