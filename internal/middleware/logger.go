package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/proctorrelay/pkg/logger"
)

// Logger writes a concise structured access log for each request. Upgraded
// WebSocket requests are logged when the session ends, with its full duration.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method
		websocket := c.IsWebsocket()

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		}
		if identity, ok := IdentityFromContext(c); ok {
			fields = append(fields, zap.Int64("user_id", identity.UserID), zap.String("user_type", identity.Type.String()))
		}
		if websocket {
			fields = append(fields, zap.Bool("websocket", true))
		}

		log := logger.WithModule("http")
		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}
