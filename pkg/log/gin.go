package log

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const headerRequestID = "X-Request-ID"

// GinMiddleware tags every request with a request id, stores the child
// logger in the request context and logs the completed request.
//
// A websocket request completes as soon as the upgrade is done, so its line
// marks the handshake rather than the connection lifetime. Health checks are
// logged at debug level.
func GinMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(headerRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		child := logger.With().
			Str(FieldRequestID, reqID).
			Str(FieldMethod, c.Request.Method).
			Str(FieldPath, c.Request.URL.Path).
			Str(FieldClientIP, c.ClientIP()).
			Logger()

		c.Header(headerRequestID, reqID)
		c.Request = c.Request.WithContext(WithLogger(c.Request.Context(), child))

		c.Next()

		status := c.Writer.Status()
		var evt *zerolog.Event
		switch {
		case status >= 500:
			evt = child.Error()
		case c.Request.URL.Path == "/health":
			evt = child.Debug()
		default:
			evt = child.Info()
		}
		evt = evt.
			Int(FieldStatus, status).
			Float64(FieldLatency, float64(time.Since(start).Microseconds())/1000)

		// Keys are set by pkg/middleware after a successful bearer check.
		if s := c.GetString(FieldUserID); s != "" {
			evt = evt.Str(FieldUserID, s)
		}
		if s := c.GetString(FieldUsername); s != "" {
			evt = evt.Str(FieldUsername, s)
		}
		if len(c.Errors) > 0 {
			evt = evt.Str("errors", c.Errors.String())
		}

		msg := "request completed"
		if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
			msg = "websocket handshake completed"
		}
		evt.Msg(msg)
	}
}
