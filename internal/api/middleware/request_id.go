package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderRequestID carries the request id on both directions.
const HeaderRequestID = "X-Request-ID"

// ContextRequestID is the gin context key handlers read the id from.
const ContextRequestID = "request_id"

// RequestID tags every request with an id for log correlation. An
// inbound X-Request-ID is kept so callers can thread their own.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderRequestID)
		if rid == "" {
			rid = uuid.New().String()
		}
		c.Set(ContextRequestID, rid)
		c.Header(HeaderRequestID, rid)
		c.Next()
	}
}
