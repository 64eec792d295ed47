package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/proctorrelay/internal/monitoring"
	"github.com/charlesng35/proctorrelay/internal/realtime"
	"github.com/charlesng35/proctorrelay/pkg/logger"
)

// HealthHandler serves liveness and readiness reports.
type HealthHandler struct {
	manager   *monitoring.HealthManager
	directory *realtime.Directory
}

// NewHealthHandler constructs a health handler. The directory is optional and only
// adds live room counts to the summary.
func NewHealthHandler(manager *monitoring.HealthManager, directory *realtime.Directory) *HealthHandler {
	if manager == nil {
		manager = monitoring.NewHealthManager()
	}
	return &HealthHandler{manager: manager, directory: directory}
}

// Summary reports readiness without per-probe detail.
func (h *HealthHandler) Summary(c *gin.Context) {
	report := h.manager.EvaluateReadiness(requestContext(c))
	if !report.Success {
		logger.WithModule("http").Warn("health check failed",
			zap.String("status", string(report.Status)),
			zap.Any("checks", report.Checks),
		)
	}

	payload := gin.H{
		"success":    report.Success,
		"status":     report.Status,
		"checked_at": report.CheckedAt,
	}
	if h.directory != nil {
		payload["relays"] = h.directory.Stats()
	}
	c.JSON(healthStatusCode(report), payload)
}

// Live reports liveness probes.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.EvaluateLiveness(requestContext(c)))
}

// Ready reports readiness probes. Any probe that is not up yields 503.
func (h *HealthHandler) Ready(c *gin.Context) {
	report := h.manager.EvaluateReadiness(requestContext(c))
	c.JSON(healthStatusCode(report), report)
}

func healthStatusCode(report monitoring.HealthReport) int {
	if report.Success {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}
