package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/proctorrelay/internal/models"
	"github.com/charlesng35/proctorrelay/pkg/logger"
	"github.com/charlesng35/proctorrelay/pkg/metrics"
)

// Session owns one client socket attached to a relay. It moves from connecting to
// active when Register succeeds and to closed exactly once, whatever ends it.
type Session struct {
	relay        *Relay
	socket       *websocket.Conn
	userID       int64
	userType     models.UserType
	connectionID string
	mailbox      Mailbox
	opts         Options
	log          *zap.Logger

	once       sync.Once
	writerDone chan struct{}
}

func newSession(relay *Relay, socket *websocket.Conn, userID int64, userType models.UserType, opts Options) *Session {
	connectionID := uuid.NewString()
	return &Session{
		relay:        relay,
		socket:       socket,
		userID:       userID,
		userType:     userType,
		connectionID: connectionID,
		mailbox:      make(Mailbox, opts.MailboxSize),
		opts:         opts,
		writerDone:   make(chan struct{}),
		log: logger.WithModule("realtime").With(
			zap.String("room", relay.RoomID()),
			zap.Int64("user_id", userID),
			zap.String("role", userType.String()),
			zap.String("connection_id", connectionID),
		),
	}
}

// ConnectionID returns the identifier this session registered under.
func (s *Session) ConnectionID() string {
	return s.connectionID
}

func (s *Session) run(ctx context.Context) {
	if err := s.relay.Register(s.userType, s.userID, s.connectionID, s.mailbox); err != nil {
		s.log.Warn("relay registration refused", zap.Error(err))
		s.writeClose(websocket.ClosePolicyViolation, "invalid user type")
		_ = s.socket.Close()
		return
	}

	metrics.ActiveSessions.WithLabelValues(s.userType.String()).Inc()
	defer metrics.ActiveSessions.WithLabelValues(s.userType.String()).Dec()
	s.log.Info("session active")

	stop := context.AfterFunc(ctx, s.close)
	defer stop()

	go s.writeLoop()
	s.readLoop()
	s.close()
	<-s.writerDone

	s.log.Info("session closed")
}

func (s *Session) readLoop() {
	s.socket.SetReadLimit(s.opts.MaxMessageSize)
	s.extendReadDeadline()
	s.socket.SetPongHandler(func(string) error {
		s.extendReadDeadline()
		return nil
	})

	for {
		messageType, payload, err := s.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.log.Debug("socket closed unexpectedly", zap.Error(err))
			}
			return
		}
		s.extendReadDeadline()

		if messageType != websocket.TextMessage {
			metrics.DiscardedFrames.WithLabelValues("non_text").Inc()
			continue
		}
		s.handleFrame(payload)
	}
}

func (s *Session) handleFrame(payload []byte) {
	msg, err := decodeInbound(payload, s.userType)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, errMissingParticipant) {
			reason = "missing_participant"
		}
		metrics.DiscardedFrames.WithLabelValues(reason).Inc()
		s.log.Debug("discarding inbound frame", zap.Error(err))
		return
	}

	recipient := NoProctor
	if msg.Participant != nil {
		recipient = *msg.Participant
	}
	s.relay.Route(s.userType, s.userID, recipient, *msg.Event, *msg.Message)
}

func (s *Session) writeLoop() {
	defer close(s.writerDone)

	var pings <-chan time.Time
	if s.opts.PingInterval > 0 {
		ticker := time.NewTicker(s.opts.PingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}

	for {
		select {
		case message, ok := <-s.mailbox:
			if !ok {
				return
			}
			_ = s.socket.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := s.socket.WriteJSON(message); err != nil {
				s.log.Debug("write failed", zap.Error(err))
				s.close()
				return
			}
		case <-pings:
			_ = s.socket.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := s.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Debug("ping failed", zap.Error(err))
				s.close()
				return
			}
		}
	}
}

// close unregisters before closing the mailbox so the relay can never push into a
// closed channel.
func (s *Session) close() {
	s.once.Do(func() {
		s.relay.Unregister(s.connectionID)
		close(s.mailbox)
		s.writeClose(websocket.CloseNormalClosure, "")
		_ = s.socket.Close()
	})
}

func (s *Session) writeClose(code int, text string) {
	deadline := time.Now().Add(s.opts.WriteTimeout)
	_ = s.socket.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
}

func (s *Session) extendReadDeadline() {
	if s.opts.PongTimeout <= 0 {
		return
	}
	_ = s.socket.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
}
