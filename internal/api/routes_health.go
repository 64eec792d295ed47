package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/proctorrelay/internal/app"
	"github.com/charlesng35/proctorrelay/internal/handlers"
	"github.com/charlesng35/proctorrelay/internal/monitoring"
	"github.com/charlesng35/proctorrelay/internal/monitoring/checks"
	"github.com/charlesng35/proctorrelay/internal/realtime"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, db *gorm.DB, hub *realtime.Hub) {
	if !cfg.Monitoring.Health.Enabled {
		r.GET("/health", disabledHealthHandler)
		r.GET("/health/live", disabledHealthHandler)
		r.GET("/health/ready", disabledHealthHandler)
		return
	}

	manager := monitoring.NewHealthManager()
	manager.RegisterReadiness(checks.Relays(hub))
	manager.RegisterReadiness(checks.Database(db, 0))

	health := handlers.NewHealthHandler(manager, hub.Directory())
	r.GET("/health", health.Summary)
	r.GET("/health/live", health.Live)
	r.GET("/health/ready", health.Ready)
}

func disabledHealthHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"status":  "disabled",
	})
}
