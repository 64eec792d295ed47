package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/proctorrelay/internal/app"
	iauth "github.com/charlesng35/proctorrelay/internal/auth"
	"github.com/charlesng35/proctorrelay/internal/handlers"
	"github.com/charlesng35/proctorrelay/internal/middleware"
	"github.com/charlesng35/proctorrelay/internal/realtime"
	"github.com/charlesng35/proctorrelay/internal/services"
)

// NewRouter builds the Gin engine, wires middleware and registers the relay routes.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, hub *realtime.Hub) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if hub == nil {
		return nil, fmt.Errorf("realtime hub must be provided")
	}

	identities, err := iauth.NewIdentityService(db)
	if err != nil {
		return nil, err
	}
	rooms, err := services.NewRoomService(db)
	if err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins...))

	registerHealthRoutes(r, cfg, db, hub)
	registerMonitoringRoutes(r, cfg)

	requireAuth := middleware.Auth(jwt, identities)

	chatHandler := handlers.NewChatHandler(hub, rooms)
	ws := r.Group("/ws")
	ws.Use(requireAuth)
	{
		ws.GET("/chat/:room_id", chatHandler.Connect)
	}

	roomHandler := handlers.NewRoomHandler(hub.Directory(), rooms)
	api := r.Group("/api")
	api.Use(requireAuth)
	{
		api.GET("/rooms", roomHandler.List)
		api.GET("/rooms/:room_id", roomHandler.Get)
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
