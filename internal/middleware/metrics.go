// Package middleware provides the Gin middleware for the email service: request
// ids, Prometheus metrics, structured request logging, CORS, security headers
// and x-api-key authentication for the send endpoint.
//
// Ordering is set in internal/api/router.go:
//
//	Recovery → RequestID → Metrics → Logger → CORS → SecurityHeaders → Handler
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mickBoat00/email-service/internal/telemetry"
)

// noRoutePath labels requests that matched no route, keeping raw URLs out of label values.
const noRoutePath = "<no-route>"

// MetricsMiddleware records http_requests_total and http_request_duration_seconds
// for every request. The path label is the matched route template from c.FullPath().
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = noRoutePath
		}
		method := c.Request.Method

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
