package observability

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const unmatchedRoute = "unmatched"

// StatusMiddleware records and logs every status request. Each log line
// carries the bot's registration state at the time of the request, as
// reported by state (nil reports "unknown").
//
// Scrapes of /metrics log at trace. A 503 from /ready before registration is
// expected and logs at debug.
func StatusMiddleware(instance string, logger zerolog.Logger, state func() string) gin.HandlerFunc {
	if state == nil {
		state = func() string { return "unknown" }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		RecordHTTPRequest(instance, c.Request.Method, route, status, elapsed)

		logger.WithLevel(statusLevel(route, status)).
			Str("service", instance).
			Str("route", route).
			Int("status", status).
			Str("bot_state", state()).
			Dur("duration", elapsed).
			Str("client_ip", c.ClientIP()).
			Msg("observability.StatusMiddleware request")
	}
}

func statusLevel(route string, status int) zerolog.Level {
	switch {
	case route == "/metrics" && status == http.StatusOK:
		return zerolog.TraceLevel
	case route == "/ready" && status == http.StatusServiceUnavailable:
		return zerolog.DebugLevel
	case status >= 500:
		return zerolog.ErrorLevel
	case status >= 400:
		return zerolog.WarnLevel
	}
	return zerolog.DebugLevel
}
