package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clinical-case-trainer/internal/metrics"
)

// unmatchedRoute labels requests that hit no registered route
const unmatchedRoute = "unmatched"

// Metrics records request counts and latency by route template
func Metrics(m *metrics.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		m.RecordHTTPRequest(route, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}
