package realtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/charlesng35/proctorrelay/internal/models"
)

const (
	defaultMailboxSize    = 64
	defaultWriteTimeout   = 10 * time.Second
	defaultMaxMessageSize = 64 << 10 // 64 KiB
)

// ErrHubClosed is returned by Serve once Shutdown has been called.
var ErrHubClosed = errors.New("realtime: hub is shut down")

// Options tune websocket sessions served by a Hub.
type Options struct {
	// MailboxSize bounds each participant's outbound queue. Deliveries to a full mailbox are dropped.
	MailboxSize int
	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration
	// PingInterval enables server keep-alive pings when positive.
	PingInterval time.Duration
	// PongTimeout closes a session that stays silent this long. Zero keeps idle sessions open.
	PongTimeout time.Duration
	// MaxMessageSize caps inbound frame size in bytes.
	MaxMessageSize int64
	// AllowedOrigins extends the same-origin check. "*" accepts any origin.
	AllowedOrigins []string
}

func (o Options) withDefaults() Options {
	if o.MailboxSize <= 0 {
		o.MailboxSize = defaultMailboxSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
	if o.PingInterval < 0 {
		o.PingInterval = 0
	}
	if o.PongTimeout < 0 {
		o.PongTimeout = 0
	}
	return o
}

// Hub upgrades authenticated requests into relay sessions.
type Hub struct {
	directory *Directory
	upgrader  websocket.Upgrader
	opts      Options

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	sessions sync.WaitGroup
}

// NewHub constructs a hub serving rooms from directory.
func NewHub(directory *Directory, opts Options) *Hub {
	if directory == nil {
		directory = NewDirectory()
	}
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	allowed := make(map[string]struct{}, len(opts.AllowedOrigins))
	for _, origin := range opts.AllowedOrigins {
		if origin = strings.ToLower(strings.TrimSpace(origin)); origin != "" {
			allowed[origin] = struct{}{}
		}
	}

	return &Hub{
		directory: directory,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(r, allowed)
			},
		},
	}
}

// Directory exposes the room directory backing this hub.
func (h *Hub) Directory() *Directory {
	return h.directory
}

// Accepting reports whether Serve still starts new sessions.
func (h *Hub) Accepting() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.closed
}

// Serve upgrades the request and runs a session for the given identity until the
// socket closes or the hub shuts down. Only members and proctors are accepted, and the
// check happens before the upgrade so a rejected caller never touches a relay.
func (h *Hub) Serve(userID int64, userType models.UserType, roomID string, w http.ResponseWriter, r *http.Request) error {
	if !userType.CanJoinRelay() {
		return ErrInvalidUserType
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	h.sessions.Add(1)
	h.mu.Unlock()
	defer h.sessions.Done()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("realtime: upgrade: %w", err)
	}

	relay := h.directory.GetOrCreate(roomID)
	session := newSession(relay, conn, userID, userType, h.opts)
	session.run(h.ctx)
	return nil
}

// Shutdown stops accepting sessions, closes the running ones and waits for them to finish.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	h.cancel()

	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func originAllowed(r *http.Request, allowed map[string]struct{}) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if _, ok := allowed["*"]; ok {
		return true
	}
	if _, ok := allowed[strings.ToLower(strings.TrimSpace(origin))]; ok {
		return true
	}

	originHost := hostWithoutPort(origin)
	requestHost := hostWithoutPort(r.Host)
	return originHost == requestHost || isLoopback(originHost)
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		parsed, err := http.NewRequest(http.MethodGet, host, nil)
		if err == nil {
			return hostWithoutPort(parsed.URL.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
