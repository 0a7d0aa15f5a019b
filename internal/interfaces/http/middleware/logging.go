package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orris-inc/soundmesh/internal/shared/constants"
	"github.com/orris-inc/soundmesh/internal/shared/logger"
)

// RequestLogger logs one line per status API request, tagged with the node
// or guild it concerns. Reads are debug level since dashboards poll them;
// operator actions on nodes are always logged.
func RequestLogger(log logger.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		args := []any{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if requestID := c.GetString(constants.ContextKeyRequestID); requestID != "" {
			args = append(args, "request_id", requestID)
		}
		if name := c.Param("name"); name != "" {
			args = append(args, "node", name)
		}
		if guildID := c.Query("guild_id"); guildID != "" {
			args = append(args, "guild_id", guildID)
		}
		if last := c.Errors.Last(); last != nil {
			args = append(args, "error", last.Err)
		}

		switch {
		case status >= 500:
			log.Errorw("status API request failed", args...)
		case status >= 400:
			log.Warnw("status API request rejected", args...)
		case c.Request.Method != "GET":
			log.Infow("node action via status API", args...)
		default:
			log.Debugw("status API request served", args...)
		}
	}
}
