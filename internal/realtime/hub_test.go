package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/proctorrelay/internal/models"
)

type testServer struct {
	hub    *Hub
	server *httptest.Server
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()

	hub := NewHub(NewDirectory(), opts)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(r.URL.Query().Get("uid"), 10, 64)
		if err != nil {
			http.Error(w, "bad uid", http.StatusBadRequest)
			return
		}
		userType := models.UserType(r.URL.Query().Get("type"))
		if err := hub.Serve(userID, userType, r.URL.Query().Get("room"), w, r); err != nil {
			if errors.Is(err, ErrInvalidUserType) {
				http.Error(w, err.Error(), http.StatusBadRequest)
			}
		}
	}))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
		server.Close()
	})

	return &testServer{hub: hub, server: server}
}

func (s *testServer) dial(t *testing.T, room string, userID int64, userType models.UserType) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(s.server.URL, "http") +
		"/?room=" + room + "&uid=" + strconv.FormatInt(userID, 10) + "&type=" + string(userType)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *testServer) waitForRoster(t *testing.T, room string, proctor int64, members int) {
	t.Helper()
	require.Eventually(t, func() bool {
		relay, ok := s.hub.Directory().Lookup(room)
		if !ok {
			return false
		}
		snapshot := relay.Snapshot()
		return snapshot.ProctorID == proctor && len(snapshot.MemberIDs) == members
	}, 2*time.Second, 10*time.Millisecond)
}

func readOutbound(t *testing.T, conn *websocket.Conn) OutboundMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg OutboundMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHubRelaysBetweenProctorAndMember(t *testing.T) {
	srv := newTestServer(t, Options{})

	proctor := srv.dial(t, "exam", 1, models.UserTypeProctor)
	member := srv.dial(t, "exam", 2, models.UserTypeMember)
	srv.waitForRoster(t, "exam", 1, 1)

	require.NoError(t, member.WriteJSON(map[string]any{"event": "chat", "message": "hi", "participant": 1}))
	require.Equal(t, OutboundMessage{Event: "chat", Message: "hi", SenderID: "2"}, readOutbound(t, proctor))

	require.NoError(t, proctor.WriteJSON(map[string]any{"event": "chat", "message": "ok", "participant": 2}))
	require.Equal(t, OutboundMessage{Event: "chat", Message: "ok", SenderID: "1"}, readOutbound(t, member))
}

func TestHubDiscardsMalformedFramesAndKeepsSession(t *testing.T) {
	srv := newTestServer(t, Options{})

	proctor := srv.dial(t, "exam", 1, models.UserTypeProctor)
	member := srv.dial(t, "exam", 2, models.UserTypeMember)
	srv.waitForRoster(t, "exam", 1, 1)

	require.NoError(t, member.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, member.WriteMessage(websocket.TextMessage, []byte(`{"event":"chat"}`)))
	require.NoError(t, member.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}))
	require.NoError(t, proctor.WriteMessage(websocket.TextMessage, []byte(`{"event":"chat","message":"no target"}`)))

	require.NoError(t, member.WriteJSON(map[string]any{"event": "chat", "message": "still here"}))
	require.Equal(t, OutboundMessage{Event: "chat", Message: "still here", SenderID: "2"}, readOutbound(t, proctor))
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	srv := newTestServer(t, Options{})

	srv.dial(t, "exam", 1, models.UserTypeProctor)
	member := srv.dial(t, "exam", 2, models.UserTypeMember)
	srv.waitForRoster(t, "exam", 1, 1)

	require.NoError(t, member.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	srv.waitForRoster(t, "exam", 1, 0)
}

func TestHubAnswersPing(t *testing.T) {
	srv := newTestServer(t, Options{})
	member := srv.dial(t, "exam", 2, models.UserTypeMember)
	srv.waitForRoster(t, "exam", NoProctor, 1)

	pong := make(chan string, 1)
	member.SetPongHandler(func(data string) error {
		pong <- data
		return nil
	})
	require.NoError(t, member.WriteControl(websocket.PingMessage, []byte("are-you-there"), time.Now().Add(time.Second)))

	// Control frames are processed while reading.
	go func() {
		_, _, _ = member.ReadMessage()
	}()

	select {
	case data := <-pong:
		require.Equal(t, "are-you-there", data)
	case <-time.After(2 * time.Second):
		t.Fatal("no pong received")
	}
}

func TestHubRejectsAdminBeforeUpgrade(t *testing.T) {
	srv := newTestServer(t, Options{})

	url := "ws" + strings.TrimPrefix(srv.server.URL, "http") + "/?room=exam&uid=9&type=admin"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	_, ok := srv.hub.Directory().Lookup("exam")
	require.False(t, ok)
}

func TestHubShutdownClosesSessions(t *testing.T) {
	srv := newTestServer(t, Options{})
	member := srv.dial(t, "exam", 2, models.UserTypeMember)
	srv.waitForRoster(t, "exam", NoProctor, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.hub.Shutdown(ctx))

	require.NoError(t, member.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := member.ReadMessage()
	require.Error(t, err)
	srv.waitForRoster(t, "exam", NoProctor, 0)

	require.ErrorIs(t, srv.hub.Serve(3, models.UserTypeMember, "exam", httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil)), ErrHubClosed)
}

func TestOriginAllowed(t *testing.T) {
	allowed := map[string]struct{}{"https://exam.example.com": {}}

	req := httptest.NewRequest(http.MethodGet, "http://relay.internal/ws", nil)
	require.True(t, originAllowed(req, allowed))

	req.Header.Set("Origin", "https://exam.example.com")
	require.True(t, originAllowed(req, allowed))

	req.Header.Set("Origin", "http://localhost:5173")
	require.True(t, originAllowed(req, allowed))

	req.Header.Set("Origin", "http://relay.internal:8080")
	require.True(t, originAllowed(req, allowed))

	req.Header.Set("Origin", "https://evil.example.net")
	require.False(t, originAllowed(req, allowed))
	require.True(t, originAllowed(req, map[string]struct{}{"*": {}}))
}
