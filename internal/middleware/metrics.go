package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/still-there/attendance-api/internal/service"
)

// Metrics records duration and count per route template. Requests that match
// no route are collapsed into a single "unmatched" label so scanners probing
// random paths cannot inflate series cardinality.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
