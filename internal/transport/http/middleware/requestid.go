package middleware

import (
	"github.com/ErlanBelekov/court-capture/internal/requestid"
	"github.com/gin-gonic/gin"
)

// RequestID attaches a request id to the context and echoes it back.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := requestid.Accept(c.GetHeader(requestid.Header))
		c.Request = c.Request.WithContext(requestid.WithRequestID(c.Request.Context(), id))
		c.Header(requestid.Header, id)
		c.Next()
	}
}
