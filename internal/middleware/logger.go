package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// quietPrefixes are polled by health checks and scrapers; successful hits are
// logged at debug level only.
var quietPrefixes = []string{"/metrics", "/api/v1/health/"}

// Logger logs one line per request through the request scoped logger.
// Bodies and query strings are never logged; they carry bearer tokens,
// session ids and patient data.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		logger := zerolog.Ctx(c.Request.Context())

		var event *zerolog.Event
		msg := "Request processed"
		switch {
		case status >= 500:
			event = logger.Error()
			msg = "Server error"
		case status >= 400:
			event = logger.Warn()
			msg = "Client error"
		case quiet(path):
			event = logger.Debug()
		default:
			event = logger.Info()
		}

		event.
			Str("session_id", c.GetString(ContextSessionID)).
			Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Str("path", path).
			Str("ip", c.ClientIP()).
			Int("status", status).
			Str("error_kind", c.GetString(ContextErrorKind)).
			Dur("duration", time.Since(start)).
			Str("user_agent", c.Request.UserAgent()).
			Msg(msg)
	}
}

func quiet(path string) bool {
	for _, p := range quietPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
