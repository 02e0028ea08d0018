package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/skyroute/booking-backend/internal/utils"
)

// RequestLogger logs one structured line per request
func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		scope := GetRequestScope(c)
		client := utils.ParseUserAgent(utils.GetUserAgent(c))
		fields := logrus.Fields{
			"request_id":    scope.RequestID,
			"session_id":    scope.SessionID,
			"authenticated": scope.IsAuthenticated(),
			"method":        c.Request.Method,
			"path":          path,
			"route":         c.FullPath(),
			"status":        c.Writer.Status(),
			"latency_ms":    time.Since(start).Milliseconds(),
			"ip":            utils.GetRealIP(c),
			"device":        client.DeviceType,
			"platform":      client.Platform,
			"bot":           client.IsBot,
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		entry := logger.WithFields(fields)
		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Error("Request failed")
		case status >= 400:
			entry.Warn("Request rejected")
		default:
			entry.Info("Request completed")
		}
	}
}
