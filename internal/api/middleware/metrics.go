package middleware

import (
	"time"

	"course-enrollment/internal/service"

	"github.com/gin-gonic/gin"
)

// Metrics records request counts and latencies against the route template so
// per-ID paths don't explode label cardinality.
func Metrics(metrics *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
