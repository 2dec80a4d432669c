package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for monitor request metrics
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		// Process request
		c.Next()

		duration := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())

		metrics.RecordHTTPRequest(method, path, status, duration)
	}
}

// Timer measures one syscall's duration for the dispatcher
type Timer struct {
	start   time.Time
	metrics *Metrics
	syscall string
}

// NewTimer starts timing a syscall
func NewTimer(metrics *Metrics, syscall string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		syscall: syscall,
	}
}

// Stop stops the timer and records the syscall outcome
func (t *Timer) Stop(result string) {
	duration := time.Since(t.start)
	t.metrics.RecordSyscall(t.syscall, result, duration)
}
