package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// Route template keeps label cardinality bounded
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures a conductor request
type Timer struct {
	start    time.Time
	metrics  *Metrics
	endpoint string
	request  string
}

// NewTimer creates a new timer; a nil metrics makes Stop a no-op
func NewTimer(metrics *Metrics, endpoint, request string) *Timer {
	return &Timer{
		start:    time.Now(),
		metrics:  metrics,
		endpoint: endpoint,
		request:  request,
	}
}

// Stop stops the timer and records the call
func (t *Timer) Stop(status string) {
	if t.metrics == nil {
		return
	}
	t.metrics.RecordConductorCall(t.endpoint, t.request, status, time.Since(t.start))
}
